package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSchemesCmd(opts *options) *cobra.Command {
	schemesCmd := &cobra.Command{
		Use:   "schemes",
		Short: "Inspect OIDC schemes",
	}
	schemesCmd.AddCommand(&cobra.Command{
		Use:   "resolve [scheme]",
		Short: "Resolve a scheme's endpoints, fetching its discovery document if needed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			s, err := opts.app.Resolver.ResolveScheme(cmd.Context(), name)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(opts.out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "NAME\t%s\n", s.Name)
			fmt.Fprintf(w, "CLIENT ID\t%s\n", s.ClientID)
			fmt.Fprintf(w, "TOKEN ENDPOINT\t%s\n", s.TokenEndpoint)
			fmt.Fprintf(w, "REVOCATION ENDPOINT\t%s\n", s.RevocationEndpoint)
			return w.Flush()
		},
	})
	return schemesCmd
}
