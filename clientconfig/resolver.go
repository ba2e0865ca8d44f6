// Package clientconfig resolves the request details for a named client: from the static
// client table, or derived from an OIDC scheme and its discovery document.
package clientconfig

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-token-manager/clients"
	tmerrors "github.com/jrsteele09/go-token-manager/internal/errors"
	"github.com/jrsteele09/go-token-manager/oauth2"
	"github.com/jrsteele09/go-token-manager/oauthmodel"
	"github.com/jrsteele09/go-token-manager/token/assertion"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ClientConfigurationResolver is the contract the token managers depend on.
type ClientConfigurationResolver interface {
	Resolve(ctx context.Context, clientName string) (oauthmodel.ClientCredentialsRequestDetails, error)
	ResolveScheme(ctx context.Context, scheme string) (*SchemeConfiguration, error)
}

var _ ClientConfigurationResolver = (*Resolver)(nil)

type Resolver struct {
	clients                clients.Repo
	schemes                SchemeProvider
	defaultScheme          string
	defaultChallengeScheme string
	defaultStyle           oauth2.ClientCredentialStyle
	logger                 zerolog.Logger

	mu         sync.Mutex
	assertions map[string]*assertion.Builder
}

type Option func(*Resolver)

// WithSchemeProvider enables scheme-derived configurations.
func WithSchemeProvider(provider SchemeProvider) Option {
	return func(r *Resolver) {
		r.schemes = provider
	}
}

// WithDefaultScheme names the scheme used for the default client when no clients are
// configured, and for user tokens when no challenge scheme is given.
func WithDefaultScheme(scheme string) Option {
	return func(r *Resolver) {
		r.defaultScheme = scheme
	}
}

// WithDefaultChallengeScheme is the host authentication's default challenge scheme, used when
// no default scheme is set.
func WithDefaultChallengeScheme(scheme string) Option {
	return func(r *Resolver) {
		r.defaultChallengeScheme = scheme
	}
}

// WithDefaultCredentialStyle applies to clients and schemes that do not set a style.
func WithDefaultCredentialStyle(style oauth2.ClientCredentialStyle) Option {
	return func(r *Resolver) {
		r.defaultStyle = style
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func NewResolver(clientRepo clients.Repo, options ...Option) *Resolver {
	r := &Resolver{
		clients:      clientRepo,
		defaultStyle: oauth2.AuthorizationHeader,
		logger:       log.Logger,
		assertions:   make(map[string]*assertion.Builder),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Resolve returns fresh request details for clientName addressed to its token endpoint.
// Failures are ConfigurationErrors.
func (r *Resolver) Resolve(ctx context.Context, clientName string) (oauthmodel.ClientCredentialsRequestDetails, error) {
	client, err := r.lookupClient(clientName)
	if err != nil {
		return oauthmodel.ClientCredentialsRequestDetails{}, err
	}
	if client != nil {
		return r.clientDetails(client, client.Address)
	}

	scheme, err := r.ResolveScheme(ctx, "")
	if err != nil {
		return oauthmodel.ClientCredentialsRequestDetails{}, err
	}
	r.logger.Debug().Str("scheme", scheme.Name).Msg("default client derived from oidc scheme")
	return scheme.TokenRequestDetails(), nil
}

// ResolveRevocation is Resolve addressed to the client's revocation endpoint.
func (r *Resolver) ResolveRevocation(ctx context.Context, clientName string) (oauthmodel.ClientCredentialsRequestDetails, error) {
	client, err := r.lookupClient(clientName)
	if err != nil {
		return oauthmodel.ClientCredentialsRequestDetails{}, err
	}
	if client != nil {
		if client.RevocationAddress == "" {
			return oauthmodel.ClientCredentialsRequestDetails{}, oauthmodel.NewConfigurationError(client.Name, "no revocation endpoint configured", tmerrors.ErrMissingRevokeURL)
		}
		return r.clientDetails(client, client.RevocationAddress)
	}

	scheme, err := r.ResolveScheme(ctx, "")
	if err != nil {
		return oauthmodel.ClientCredentialsRequestDetails{}, err
	}
	if scheme.RevocationEndpoint == "" {
		return oauthmodel.ClientCredentialsRequestDetails{}, oauthmodel.NewConfigurationError(scheme.Name, "scheme has no revocation endpoint", tmerrors.ErrMissingRevokeURL)
	}
	return scheme.RevocationRequestDetails(), nil
}

// lookupClient applies the client table rules. A nil client without error means the default
// client has to be derived from the default scheme.
func (r *Resolver) lookupClient(clientName string) (*clients.Client, error) {
	if clientName == "" {
		clientName = oauthmodel.DefaultClientName
	}

	client, err := r.clients.Get(clientName)
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, clients.ErrClientNotFound) {
		return nil, oauthmodel.NewConfigurationError(clientName, "client table lookup failed", err)
	}
	if clientName != oauthmodel.DefaultClientName {
		return nil, oauthmodel.NewConfigurationError(clientName, "no client configuration with this name", tmerrors.ErrClientNotFound)
	}

	all, err := r.clients.List()
	if err != nil {
		return nil, oauthmodel.NewConfigurationError(clientName, "client table lookup failed", err)
	}
	switch len(all) {
	case 0:
		return nil, nil
	case 1:
		return all[0], nil
	default:
		return nil, oauthmodel.NewConfigurationError(clientName, "several clients are configured, the default is ambiguous", tmerrors.ErrClientNotFound)
	}
}

// ResolveScheme returns the configuration of scheme, or of the default scheme when empty.
func (r *Resolver) ResolveScheme(ctx context.Context, scheme string) (*SchemeConfiguration, error) {
	if scheme == "" {
		scheme = r.defaultScheme
	}
	if scheme == "" {
		scheme = r.defaultChallengeScheme
	}
	if scheme == "" {
		return nil, oauthmodel.NewConfigurationError(oauthmodel.DefaultClientName, "no clients configured and no default scheme designated", tmerrors.ErrNoDefaultScheme)
	}
	if r.schemes == nil {
		return nil, oauthmodel.NewConfigurationError(scheme, "no scheme provider registered", tmerrors.ErrSchemeNotFound)
	}

	cfg, err := r.schemes.GetScheme(ctx, scheme)
	if err != nil {
		return nil, oauthmodel.NewConfigurationError(scheme, "scheme configuration could not be resolved", err)
	}
	if cfg.CredentialStyle == "" {
		cfg.CredentialStyle = r.defaultStyle
	}
	return cfg, nil
}

func (r *Resolver) clientDetails(client *clients.Client, address string) (oauthmodel.ClientCredentialsRequestDetails, error) {
	details := oauthmodel.ClientCredentialsRequestDetails{
		Address:         address,
		ClientID:        client.ClientID,
		ClientSecret:    client.ClientSecret,
		Scope:           client.Scope,
		Resource:        client.Resource,
		CredentialStyle: client.CredentialStyle,
		Parameters:      client.FormParameters(),
	}
	if details.CredentialStyle == "" {
		details.CredentialStyle = r.defaultStyle
	}

	if client.Assertion != nil {
		a, err := r.buildAssertion(client, address)
		if err != nil {
			return oauthmodel.ClientCredentialsRequestDetails{}, err
		}
		details.ClientAssertion = a
	}
	return details, nil
}

func (r *Resolver) buildAssertion(client *clients.Client, audience string) (*oauthmodel.ClientAssertion, error) {
	builder, err := r.assertionBuilder(client)
	if err != nil {
		return nil, oauthmodel.NewConfigurationError(client.Name, "client assertion key could not be loaded", err)
	}
	a, err := builder.Build(audience)
	if err != nil {
		return nil, oauthmodel.NewConfigurationError(client.Name, "client assertion could not be signed", err)
	}
	return a, nil
}

func (r *Resolver) assertionBuilder(client *clients.Client) (*assertion.Builder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.assertions[client.Name]; ok {
		return b, nil
	}

	var signer assertion.Signer
	key := client.Assertion
	switch {
	case key.PrivateKeyFile != "":
		kp, err := assertion.LoadPrivateKeyFile(key.KeyID, key.Algorithm, key.PrivateKeyFile)
		if err != nil {
			return nil, errors.Wrap(tmerrors.ErrInvalidAssertion, err.Error())
		}
		signer = assertion.NewKeyPairSigner(kp)
	case client.ClientSecret != "":
		signer = assertion.NewHMACSigner(client.ClientSecret)
	default:
		return nil, errors.Wrap(tmerrors.ErrInvalidAssertion, "neither private key file nor client secret set")
	}

	b := assertion.NewBuilder(client.ClientID, signer)
	r.assertions[client.Name] = b
	return b, nil
}
