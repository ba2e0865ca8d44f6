package oauthmodel

import (
	"net/url"

	"github.com/jrsteele09/go-token-manager/oauth2"
)

// ClientAssertion is a pre-built client authentication assertion (RFC 7521).
type ClientAssertion struct {
	// Type is the client_assertion_type, usually oauth2.ClientAssertionTypeJWTBearer.
	Type string

	// Value is the serialized assertion.
	Value string
}

// ClientCredentialsRequestDetails holds fully resolved, ready-to-send parameters for
// a request to the authorization server. Built fresh for every request and never cached.
type ClientCredentialsRequestDetails struct {
	// Address is the endpoint URL the request goes to (token or revocation endpoint).
	// Example: "https://idp.example.com/connect/token"
	Address string

	// ClientID identifies the client at the authorization server.
	ClientID string

	// ClientSecret is the shared secret. Empty when a ClientAssertion is used
	// or for public clients.
	// Security: Never log or expose this value
	ClientSecret string

	// Scope is the space separated scope list, optional.
	Scope string

	// Resource is the RFC 8707 resource indicator, optional.
	Resource string

	// ClientAssertion replaces the client secret when present.
	ClientAssertion *ClientAssertion

	// CredentialStyle controls how ClientID/ClientSecret are transmitted.
	// Zero value means oauth2.AuthorizationHeader.
	CredentialStyle oauth2.ClientCredentialStyle

	// Parameters are extra form parameters added to the request.
	Parameters url.Values
}

// WithAddress returns a copy of the details pointing at a different endpoint.
func (d ClientCredentialsRequestDetails) WithAddress(address string) ClientCredentialsRequestDetails {
	d.Address = address
	d.Parameters = cloneValues(d.Parameters)
	return d
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
