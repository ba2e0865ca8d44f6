package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/go-token-manager/oauth2"
	"github.com/jrsteele09/go-token-manager/oauthmodel"
	"github.com/jrsteele09/go-token-manager/token"
	"github.com/spf13/cobra"
)

type tokenStatus struct {
	Client      string `json:"client"`
	AccessToken string `json:"access_token"`
	Expiration  string `json:"expiration,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

func newTokenCmd(opts *options) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Obtain and revoke access tokens",
	}
	tokenCmd.AddCommand(newTokenGetCmd(opts))
	tokenCmd.AddCommand(newTokenRevokeCmd(opts))
	return tokenCmd
}

func newTokenGetCmd(opts *options) *cobra.Command {
	var (
		params oauthmodel.ClientAccessTokenParameters
		raw    bool
	)
	cmd := &cobra.Command{
		Use:   "get [client]",
		Short: "Get a client credentials token, from the cache when possible",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientName := oauthmodel.DefaultClientName
			if len(args) == 1 {
				clientName = args[0]
			}
			t, err := opts.app.ClientTokens.GetClientAccessToken(cmd.Context(), clientName, &params)
			if err != nil {
				return err
			}
			if t == nil {
				return fmt.Errorf("authorization server did not issue a token for %q", clientName)
			}
			if raw {
				_, err := fmt.Fprintln(opts.out, t.AccessToken)
				return err
			}
			status := tokenStatus{
				Client:      clientName,
				AccessToken: token.Redact(t.AccessToken),
				Scope:       t.Scope,
			}
			if !t.Expiration.IsZero() {
				status.Expiration = t.Expiration.Format(time.RFC3339)
			}
			enc := json.NewEncoder(opts.out)
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}
	cmd.Flags().BoolVar(&params.ForceRenewal, "force", false, "bypass the cache and request a new token")
	cmd.Flags().StringVar(&params.Resource, "resource", "", "resource indicator (RFC 8707)")
	cmd.Flags().StringVar(&params.Scope, "scope", "", "scope override")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the unredacted access token only")
	return cmd
}

func newTokenRevokeCmd(opts *options) *cobra.Command {
	var (
		clientName string
		scheme     string
		hint       string
	)
	cmd := &cobra.Command{
		Use:   "revoke <token>",
		Short: "Revoke a token at the revocation endpoint of a client or OIDC scheme",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var details oauthmodel.ClientCredentialsRequestDetails
			if scheme != "" {
				s, err := opts.app.Resolver.ResolveScheme(ctx, scheme)
				if err != nil {
					return err
				}
				if s.RevocationEndpoint == "" {
					return fmt.Errorf("scheme %q has no revocation endpoint", s.Name)
				}
				details = s.RevocationRequestDetails()
			} else {
				var err error
				if details, err = opts.app.Resolver.ResolveRevocation(ctx, clientName); err != nil {
					return err
				}
			}

			resp := opts.app.Endpoint.RevokeToken(ctx, details, args[0], oauth2.TokenTypeHint(hint))
			if resp.IsError {
				return fmt.Errorf("revocation failed (status %d): %s", resp.HTTPStatus, resp.ErrorMessage())
			}
			_, err := fmt.Fprintln(opts.out, "revoked")
			return err
		},
	}
	cmd.Flags().StringVar(&clientName, "client", oauthmodel.DefaultClientName, "client whose revocation endpoint is used")
	cmd.Flags().StringVar(&scheme, "scheme", "", "OIDC scheme whose revocation endpoint is used")
	cmd.Flags().StringVar(&hint, "hint", string(oauth2.AccessTokenHint), "token_type_hint: access_token or refresh_token")
	cmd.MarkFlagsMutuallyExclusive("client", "scheme")
	return cmd
}
