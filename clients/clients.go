package clients

import (
	"net/url"
	"sort"

	"github.com/jrsteele09/go-token-manager/oauth2"
	"github.com/pkg/errors"
)

// Client is one entry of the named client table: the static configuration for obtaining
// client-credentials tokens against a token endpoint. Address is the token endpoint and
// RevocationAddress the optional RFC 7009 endpoint. Parameters are extra form parameters sent
// with every token request. Upstream is the downstream API base URL used by the egress proxy.
// When Assertion is set a signed client assertion is sent instead of the secret.
type Client struct {
	Name              string                       `json:"name" yaml:"name"`
	Address           string                       `json:"address" yaml:"address"`
	RevocationAddress string                       `json:"revocationAddress" yaml:"revocation_address"`
	ClientID          string                       `json:"clientId" yaml:"client_id"`
	ClientSecret      string                       `json:"-" yaml:"client_secret"`
	Scope             string                       `json:"scope" yaml:"scope"`
	Resource          string                       `json:"resource" yaml:"resource"`
	CredentialStyle   oauth2.ClientCredentialStyle `json:"credentialStyle" yaml:"credential_style"`
	Parameters        map[string]string            `json:"parameters" yaml:"parameters"`
	Upstream          string                       `json:"upstream" yaml:"upstream"`
	Assertion         *AssertionKey                `json:"assertion,omitempty" yaml:"assertion,omitempty"`
}

// AssertionKey configures JWT client authentication (RFC 7523). With PrivateKeyFile set the
// client uses private_key_jwt; otherwise the client secret signs an HS256 assertion
// (client_secret_jwt).
type AssertionKey struct {
	KeyID          string `json:"keyId" yaml:"key_id"`
	Algorithm      string `json:"algorithm" yaml:"algorithm"`
	PrivateKeyFile string `json:"privateKeyFile" yaml:"private_key_file"`
}

var (
	ErrInvalidClient   = errors.New("invalid client configuration")
	ErrClientNotFound  = errors.New("client not found")
	ErrInvalidStyle    = errors.New("invalid credential style")
	ErrMissingName     = errors.New("client name is required")
	ErrMissingAddress  = errors.New("client token endpoint address is required")
	ErrMissingClientID = errors.New("client id is required")
)

// Validate checks the fields a token request cannot do without.
func (c *Client) Validate() error {
	if c.Name == "" {
		return ErrMissingName
	}
	if c.Address == "" {
		return errors.Wrapf(ErrMissingAddress, "client %q", c.Name)
	}
	if _, err := url.ParseRequestURI(c.Address); err != nil {
		return errors.Wrapf(ErrInvalidClient, "client %q address: %v", c.Name, err)
	}
	if c.ClientID == "" {
		return errors.Wrapf(ErrMissingClientID, "client %q", c.Name)
	}
	switch c.CredentialStyle {
	case "", oauth2.AuthorizationHeader, oauth2.PostBody:
	default:
		return errors.Wrapf(ErrInvalidStyle, "client %q: %q", c.Name, c.CredentialStyle)
	}
	return nil
}

// FormParameters returns the static extra parameters as form values.
func (c *Client) FormParameters() url.Values {
	if len(c.Parameters) == 0 {
		return nil
	}
	values := make(url.Values, len(c.Parameters))
	keys := make([]string, 0, len(c.Parameters))
	for k := range c.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values.Set(k, c.Parameters[k])
	}
	return values
}
