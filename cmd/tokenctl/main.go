package main

import (
	"os"

	"github.com/jrsteele09/go-token-manager/internal/cli"
)

func main() {
	if err := cli.NewRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
