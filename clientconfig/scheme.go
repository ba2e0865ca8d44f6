package clientconfig

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	tmerrors "github.com/jrsteele09/go-token-manager/internal/errors"
	"github.com/jrsteele09/go-token-manager/oauth2"
	"github.com/jrsteele09/go-token-manager/oauthmodel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// SchemeConfiguration is the client configuration of an OIDC scheme with its endpoints
// resolved.
type SchemeConfiguration struct {
	Name               string
	ClientID           string
	ClientSecret       string
	TokenEndpoint      string
	RevocationEndpoint string
	CredentialStyle    oauth2.ClientCredentialStyle
}

// TokenRequestDetails returns request details addressed to the token endpoint.
func (s *SchemeConfiguration) TokenRequestDetails() oauthmodel.ClientCredentialsRequestDetails {
	return oauthmodel.ClientCredentialsRequestDetails{
		Address:         s.TokenEndpoint,
		ClientID:        s.ClientID,
		ClientSecret:    s.ClientSecret,
		CredentialStyle: s.CredentialStyle,
	}
}

// RevocationRequestDetails returns request details addressed to the revocation endpoint.
func (s *SchemeConfiguration) RevocationRequestDetails() oauthmodel.ClientCredentialsRequestDetails {
	return s.TokenRequestDetails().WithAddress(s.RevocationEndpoint)
}

// SchemeProvider returns the resolved configuration of a named OIDC scheme.
type SchemeProvider interface {
	GetScheme(ctx context.Context, name string) (*SchemeConfiguration, error)
}

// Scheme is the static configuration of an OIDC scheme. Endpoints left empty are read from
// the authority's discovery document.
type Scheme struct {
	Name               string                       `json:"name" yaml:"name"`
	Authority          string                       `json:"authority" yaml:"authority"`
	ClientID           string                       `json:"clientId" yaml:"client_id"`
	ClientSecret       string                       `json:"-" yaml:"client_secret"`
	TokenEndpoint      string                       `json:"tokenEndpoint" yaml:"token_endpoint"`
	RevocationEndpoint string                       `json:"revocationEndpoint" yaml:"revocation_endpoint"`
	CredentialStyle    oauth2.ClientCredentialStyle `json:"credentialStyle" yaml:"credential_style"`
}

// DefaultDiscoveryTimeout bounds a discovery document fetch.
const DefaultDiscoveryTimeout = 30 * time.Second

type discoveredEndpoints struct {
	token      string
	revocation string
}

var _ SchemeProvider = (*DiscoveryProvider)(nil)

// DiscoveryProvider resolves schemes from static configuration plus the OIDC discovery
// document. Discovery results are cached per authority; concurrent fetches for the same
// authority share one request, which runs detached from any single caller: a caller that
// gives up does not fail the others. Failed fetches are not cached.
type DiscoveryProvider struct {
	schemes    map[string]Scheme
	httpClient *http.Client
	timeout    time.Duration
	logger     zerolog.Logger

	mu         sync.RWMutex
	discovered map[string]discoveredEndpoints
	group      singleflight.Group
}

type DiscoveryOption func(*DiscoveryProvider)

func WithDiscoveryHTTPClient(client *http.Client) DiscoveryOption {
	return func(p *DiscoveryProvider) {
		p.httpClient = client
	}
}

// WithDiscoveryTimeout bounds each discovery document fetch.
func WithDiscoveryTimeout(d time.Duration) DiscoveryOption {
	return func(p *DiscoveryProvider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithDiscoveryLogger(logger zerolog.Logger) DiscoveryOption {
	return func(p *DiscoveryProvider) {
		p.logger = logger
	}
}

func NewDiscoveryProvider(schemes []Scheme, options ...DiscoveryOption) *DiscoveryProvider {
	p := &DiscoveryProvider{
		schemes:    make(map[string]Scheme, len(schemes)),
		timeout:    DefaultDiscoveryTimeout,
		logger:     log.Logger,
		discovered: make(map[string]discoveredEndpoints),
	}
	for _, s := range schemes {
		p.schemes[s.Name] = s
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Schemes returns the names of the configured schemes.
func (p *DiscoveryProvider) Schemes() []string {
	names := make([]string, 0, len(p.schemes))
	for name := range p.schemes {
		names = append(names, name)
	}
	return names
}

func (p *DiscoveryProvider) GetScheme(ctx context.Context, name string) (*SchemeConfiguration, error) {
	s, ok := p.schemes[name]
	if !ok {
		return nil, errors.Wrapf(tmerrors.ErrSchemeNotFound, "%q", name)
	}

	cfg := &SchemeConfiguration{
		Name:               s.Name,
		ClientID:           s.ClientID,
		ClientSecret:       s.ClientSecret,
		TokenEndpoint:      s.TokenEndpoint,
		RevocationEndpoint: s.RevocationEndpoint,
		CredentialStyle:    s.CredentialStyle,
	}
	if cfg.TokenEndpoint != "" && cfg.RevocationEndpoint != "" {
		return cfg, nil
	}
	if s.Authority == "" {
		if cfg.TokenEndpoint == "" {
			return nil, errors.Wrapf(tmerrors.ErrMissingTokenURL, "scheme %q has neither authority nor token endpoint", name)
		}
		return cfg, nil
	}

	endpoints, err := p.discover(ctx, s.Authority)
	if err != nil {
		return nil, err
	}
	if cfg.TokenEndpoint == "" {
		cfg.TokenEndpoint = endpoints.token
	}
	if cfg.RevocationEndpoint == "" {
		cfg.RevocationEndpoint = endpoints.revocation
	}
	if cfg.TokenEndpoint == "" {
		return nil, errors.Wrapf(tmerrors.ErrMissingTokenURL, "discovery document of %q", s.Authority)
	}
	return cfg, nil
}

func (p *DiscoveryProvider) discover(ctx context.Context, authority string) (discoveredEndpoints, error) {
	authority = strings.TrimSuffix(authority, "/")

	p.mu.RLock()
	endpoints, ok := p.discovered[authority]
	p.mu.RUnlock()
	if ok {
		return endpoints, nil
	}

	results := p.group.DoChan(authority, func() (any, error) {
		return p.fetch(context.WithoutCancel(ctx), authority)
	})

	var res singleflight.Result
	select {
	case res = <-results:
	case <-ctx.Done():
		return discoveredEndpoints{}, fmt.Errorf("%w: %s: %w", tmerrors.ErrDiscovery, authority, ctx.Err())
	}
	if res.Err != nil {
		p.logger.Error().Err(res.Err).Str("authority", authority).Msg("discovery document fetch failed")
		return discoveredEndpoints{}, fmt.Errorf("%w: %s: %w", tmerrors.ErrDiscovery, authority, res.Err)
	}
	return res.Val.(discoveredEndpoints), nil
}

func (p *DiscoveryProvider) fetch(ctx context.Context, authority string) (discoveredEndpoints, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if p.httpClient != nil {
		ctx = oidc.ClientContext(ctx, p.httpClient)
	}
	provider, err := oidc.NewProvider(ctx, authority)
	if err != nil {
		return discoveredEndpoints{}, err
	}

	var claims struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&claims); err != nil {
		return discoveredEndpoints{}, err
	}

	endpoints := discoveredEndpoints{
		token:      provider.Endpoint().TokenURL,
		revocation: claims.RevocationEndpoint,
	}
	p.mu.Lock()
	p.discovered[authority] = endpoints
	p.mu.Unlock()

	p.logger.Debug().
		Str("authority", authority).
		Str("token_endpoint", endpoints.token).
		Str("revocation_endpoint", endpoints.revocation).
		Msg("loaded discovery document")
	return endpoints, nil
}
