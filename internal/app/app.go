// Package app wires the token management components from configuration. It is shared by the
// proxy server and the tokenctl CLI.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/jrsteele09/go-token-manager/cache"
	rediscache "github.com/jrsteele09/go-token-manager/cache/redis"
	smcache "github.com/jrsteele09/go-token-manager/cache/secretsmanager"
	"github.com/jrsteele09/go-token-manager/clientconfig"
	"github.com/jrsteele09/go-token-manager/clients"
	"github.com/jrsteele09/go-token-manager/clienttoken"
	"github.com/jrsteele09/go-token-manager/internal/config"
	tmerrors "github.com/jrsteele09/go-token-manager/internal/errors"
	"github.com/jrsteele09/go-token-manager/server"
	"github.com/jrsteele09/go-token-manager/token"
	"github.com/jrsteele09/go-token-manager/token/endpoint"
	"github.com/jrsteele09/go-token-manager/transport"
	"github.com/jrsteele09/go-token-manager/usertoken"
	"github.com/jrsteele09/go-token-manager/usertoken/sessionstore"
	"github.com/rs/zerolog/log"
)

// memoryCleanupInterval is how often the memory backend drops expired tokens.
const memoryCleanupInterval = time.Minute

type App struct {
	Config       config.Config
	Clients      *clients.InMemoryRepo
	Schemes      *clientconfig.DiscoveryProvider
	Resolver     *clientconfig.Resolver
	Endpoint     *endpoint.Client
	ClientTokens *clienttoken.Manager
	// UserTokens and Sessions are nil when no session secret is configured.
	UserTokens *usertoken.Manager
	Sessions   *sessionstore.Store
	Health     server.HealthChecker

	closers []io.Closer
}

// New builds the components described by c and file.
func New(ctx context.Context, c config.Config, file *config.File) (*App, error) {
	repo, err := clients.NewInMemoryRepo(file.Clients...)
	if err != nil {
		return nil, fmt.Errorf("[app New] client table: %w", err)
	}

	a := &App{Config: c, Clients: repo}

	httpClient := &http.Client{Transport: TokenEndpointTransport(c, http.DefaultTransport)}
	a.Endpoint = endpoint.NewClient(
		endpoint.WithHTTPClient(httpClient),
		endpoint.WithTimeout(c.GetBackchannelTimeout()),
	)
	a.Schemes = clientconfig.NewDiscoveryProvider(file.Schemes,
		clientconfig.WithDiscoveryHTTPClient(httpClient),
		clientconfig.WithDiscoveryTimeout(c.GetBackchannelTimeout()),
	)
	a.Resolver = clientconfig.NewResolver(repo,
		clientconfig.WithSchemeProvider(a.Schemes),
		clientconfig.WithDefaultScheme(c.GetDefaultScheme()),
		clientconfig.WithDefaultChallengeScheme(c.GetDefaultChallengeScheme()),
		clientconfig.WithDefaultCredentialStyle(c.GetCredentialStyle()),
	)

	backend, err := a.newBackend(ctx)
	if err != nil {
		return nil, err
	}
	tokenCache := token.NewCache(backend, token.WithLifetimeBuffer(c.GetCacheLifetimeBuffer()))
	a.ClientTokens = clienttoken.NewManager(a.Resolver, a.Endpoint, tokenCache,
		clienttoken.WithCacheKeyPrefix(c.GetCacheKeyPrefix()),
	)

	if secret := c.GetSessionSecret(); secret != "" {
		a.Sessions = sessionstore.NewCookieStore(c.GetSessionName(), c.GetSecureCookies(), []byte(secret))
		a.UserTokens = usertoken.NewManager(a.Sessions, a.Resolver, a.Endpoint,
			usertoken.WithRefreshBeforeExpiration(c.GetRefreshBeforeExpiration()),
		)
	}
	return a, nil
}

// Services returns the collaborators of the proxy server.
func (a *App) Services() server.Services {
	services := server.Services{
		Clients:      a.Clients,
		ClientTokens: a.ClientTokens,
		Health:       a.Health,
	}
	if a.UserTokens != nil {
		services.UserTokens = a.UserTokens
		services.Sessions = a.Sessions
	}
	return services
}

func (a *App) newBackend(ctx context.Context) (cache.DistributedCache, error) {
	c := a.Config
	switch backend := c.GetCacheBackend(); backend {
	case config.MemoryBackend:
		mc := cache.NewInMemoryCache(cache.WithCleanupInterval(memoryCleanupInterval))
		a.closers = append(a.closers, mc)
		return mc, nil
	case config.RedisBackend:
		rc, err := rediscache.NewCache(&rediscache.Config{
			Address:  c.GetRedisAddress(),
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		if err != nil {
			return nil, fmt.Errorf("[app New] redis cache: %w", err)
		}
		a.Health = rc
		a.closers = append(a.closers, rc)
		log.Info().Str("address", c.GetRedisAddress()).Msg("using redis token cache")
		return rc, nil
	case config.SecretsManagerBackend:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("[app New] aws config: %w", err)
		}
		log.Info().Str("region", awsCfg.Region).Msg("using secrets manager token cache")
		return smcache.NewCache(secretsmanager.NewFromConfig(awsCfg),
			smcache.WithNamePrefix(c.GetSecretsNamePrefix()),
		), nil
	default:
		return nil, tmerrors.Wrapf(tmerrors.ErrUnsupportedBackend, "[app New] %q", backend)
	}
}

// TokenEndpointTransport layers the configured rate limit and retry policies over base.
func TokenEndpointTransport(c config.TokenManagementConfig, base http.RoundTripper) http.RoundTripper {
	rt := base
	if limit := c.GetTokenEndpointRateLimit(); limit > 0 {
		rt = transport.NewRateLimitedTransport(rt, limit, int(limit)+1)
	}
	if retries := c.GetTokenEndpointRetries(); retries > 1 {
		rt = transport.NewRetryTransport(rt, transport.WithMaxTries(retries))
	}
	return rt
}

// Close releases backend connections.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
