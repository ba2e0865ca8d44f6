// Package cli implements tokenctl, the operator command line for the token manager.
package cli

import (
	"context"
	"io"

	"github.com/jrsteele09/go-token-manager/internal/app"
	"github.com/jrsteele09/go-token-manager/internal/config"
	"github.com/jrsteele09/go-token-manager/internal/logging"
	"github.com/spf13/cobra"
)

type options struct {
	configFile string
	logLevel   string
	out        io.Writer
	app        *app.App
}

// NewRootCmd builds the tokenctl command tree. Output is written to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	opts := &options{out: out}

	rootCmd := &cobra.Command{
		Use:   "tokenctl",
		Short: "Inspect and manage OAuth2 access tokens",
		Long: `tokenctl obtains, inspects and revokes the access tokens managed by the token
manager, using the same client table, OIDC schemes and cache backend as the proxy.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.app == nil {
				return nil
			}
			return opts.app.Close()
		},
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "client and scheme configuration file (default $TOKEN_MANAGER_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(newClientsCmd(opts))
	rootCmd.AddCommand(newTokenCmd(opts))
	rootCmd.AddCommand(newSchemesCmd(opts))
	return rootCmd
}

func (o *options) load(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	config.LoadDotEnv()
	c := config.New()
	logging.Setup(o.logLevel, "DEV")

	path := o.configFile
	if path == "" {
		path = c.GetConfigFile()
	}
	file, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	o.app, err = app.New(ctx, c, file)
	return err
}
