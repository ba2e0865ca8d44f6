package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newClientsCmd(opts *options) *cobra.Command {
	clientsCmd := &cobra.Command{
		Use:   "clients",
		Short: "Inspect the named client table",
	}
	clientsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := opts.app.Clients.List()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(opts.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCLIENT ID\tTOKEN ENDPOINT\tSCOPE\tUPSTREAM")
			for _, c := range all {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.Name, c.ClientID, c.Address, c.Scope, c.Upstream)
			}
			return w.Flush()
		},
	})
	return clientsCmd
}
