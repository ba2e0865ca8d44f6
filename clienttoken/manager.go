// Package clienttoken manages client-credentials (machine) tokens: cache lookup, a single
// synchronized token request per cache key on a miss, and write-back to the cache.
package clienttoken

import (
	"context"
	"net/url"

	"github.com/jrsteele09/go-token-manager/clientconfig"
	"github.com/jrsteele09/go-token-manager/oauthmodel"
	"github.com/jrsteele09/go-token-manager/token"
	"github.com/jrsteele09/go-token-manager/token/endpoint"
	"github.com/jrsteele09/go-token-manager/token/refresh"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultCacheKeyPrefix namespaces the manager's cache entries.
const DefaultCacheKeyPrefix = "tm::"

// Resolver is the part of the client configuration resolver the manager needs.
type Resolver interface {
	Resolve(ctx context.Context, clientName string) (oauthmodel.ClientCredentialsRequestDetails, error)
}

var _ Resolver = (clientconfig.ClientConfigurationResolver)(nil)

type Manager struct {
	resolver     Resolver
	endpoint     endpoint.TokenEndpointClient
	cache        *token.Cache
	synchronizer *refresh.Synchronizer
	keyPrefix    string
	logger       zerolog.Logger
}

type Option func(*Manager)

// WithSynchronizer shares a synchronizer with other consumers.
func WithSynchronizer(s *refresh.Synchronizer) Option {
	return func(m *Manager) {
		m.synchronizer = s
	}
}

func WithCacheKeyPrefix(prefix string) Option {
	return func(m *Manager) {
		m.keyPrefix = prefix
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func NewManager(resolver Resolver, tokenEndpoint endpoint.TokenEndpointClient, cache *token.Cache, options ...Option) *Manager {
	m := &Manager{
		resolver:     resolver,
		endpoint:     tokenEndpoint,
		cache:        cache,
		synchronizer: refresh.NewSynchronizer(),
		keyPrefix:    DefaultCacheKeyPrefix,
		logger:       log.Logger,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// GetClientAccessToken returns a token for clientName. A nil token with a nil error means the
// authorization server refused or could not be reached; the failure has been logged and the
// caller decides whether to proceed unauthenticated. Configuration errors are returned.
func (m *Manager) GetClientAccessToken(ctx context.Context, clientName string, parameters *oauthmodel.ClientAccessTokenParameters) (*token.ClientAccessToken, error) {
	clientName, params := normalize(clientName, parameters)
	key := token.ClientCacheKey(m.keyPrefix, clientName, params)

	if !params.ForceRenewal {
		if t := m.cache.Get(ctx, key); t != nil {
			return t, nil
		}
	}

	t, err := refresh.Do(ctx, m.synchronizer, key, func(ctx context.Context) (*token.ClientAccessToken, error) {
		return m.requestToken(ctx, clientName, key, params)
	})
	if err != nil {
		return nil, errors.Wrap(err, "Manager.GetClientAccessToken")
	}
	return t, nil
}

func (m *Manager) requestToken(ctx context.Context, clientName, key string, params oauthmodel.ClientAccessTokenParameters) (*token.ClientAccessToken, error) {
	details, err := m.resolver.Resolve(ctx, clientName)
	if err != nil {
		return nil, err
	}
	if params.Scope != "" {
		details.Scope = params.Scope
	}
	if params.Resource != "" {
		details.Resource = params.Resource
	}
	if len(params.Context) > 0 {
		details = details.WithAddress(details.Address)
		if details.Parameters == nil {
			details.Parameters = url.Values{}
		}
		for k, vs := range params.Context {
			details.Parameters[k] = append([]string(nil), vs...)
		}
	}

	m.logger.Debug().Str("client", clientName).Bool("force_renewal", params.ForceRenewal).Msg("requesting client access token")
	resp := m.endpoint.RequestClientCredentialsToken(ctx, details)
	if resp.IsError {
		m.logger.Error().
			Str("client", clientName).
			Int("status", resp.HTTPStatus).
			Str("error", resp.ErrorMessage()).
			Msg("error requesting client access token")
		return nil, nil
	}

	scope := resp.Scope
	if scope == "" {
		scope = details.Scope
	}
	t, err := m.cache.Set(ctx, key, resp.AccessToken, resp.ExpiresIn, scope)
	if err != nil {
		m.logger.Warn().Err(err).Str("client", clientName).Msg("client access token could not be cached")
	}
	return t, nil
}

// DeleteClientAccessToken drops the cached token for clientName and parameters. It does not
// wait for or cancel an in-flight request.
func (m *Manager) DeleteClientAccessToken(ctx context.Context, clientName string, parameters *oauthmodel.ClientAccessTokenParameters) error {
	clientName, params := normalize(clientName, parameters)
	return m.cache.Delete(ctx, token.ClientCacheKey(m.keyPrefix, clientName, params))
}

// CachedClientAccessToken returns the cached token without contacting the authorization
// server, or nil.
func (m *Manager) CachedClientAccessToken(ctx context.Context, clientName string, parameters *oauthmodel.ClientAccessTokenParameters) *token.ClientAccessToken {
	clientName, params := normalize(clientName, parameters)
	return m.cache.Get(ctx, token.ClientCacheKey(m.keyPrefix, clientName, params))
}

func normalize(clientName string, parameters *oauthmodel.ClientAccessTokenParameters) (string, oauthmodel.ClientAccessTokenParameters) {
	if clientName == "" {
		clientName = oauthmodel.DefaultClientName
	}
	if parameters == nil {
		return clientName, oauthmodel.ClientAccessTokenParameters{}
	}
	return clientName, *parameters
}
