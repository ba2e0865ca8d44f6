package token

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jrsteele09/go-token-manager/cache"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultCacheLifetimeBuffer is subtracted from the token lifetime when computing the backing
// store TTL, so entries are evicted shortly before the token really expires.
const DefaultCacheLifetimeBuffer = 60 * time.Second

// Cache stores ClientAccessTokens in a DistributedCache. Backend failures and unreadable
// entries are logged and reported as misses.
type Cache struct {
	store          cache.DistributedCache
	lifetimeBuffer time.Duration
	nowFunc        func() time.Time
	logger         zerolog.Logger
}

type CacheOption func(*Cache)

func WithLifetimeBuffer(buffer time.Duration) CacheOption {
	return func(c *Cache) {
		c.lifetimeBuffer = buffer
	}
}

func WithCacheNowFunc(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.nowFunc = now
	}
}

func WithCacheLogger(logger zerolog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

func NewCache(store cache.DistributedCache, options ...CacheOption) *Cache {
	c := &Cache{
		store:          store,
		lifetimeBuffer: DefaultCacheLifetimeBuffer,
		nowFunc:        time.Now,
		logger:         log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Get returns the cached token for key, or nil on a miss.
func (c *Cache) Get(ctx context.Context, key string) *ClientAccessToken {
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("cache_key", key).Msg("token cache read failed, treating as miss")
		return nil
	}
	if !found {
		return nil
	}

	var t ClientAccessToken
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		c.logger.Error().Err(err).Str("cache_key", key).Msg("unreadable token cache entry, treating as miss")
		return nil
	}
	if t.AccessToken == "" || !t.Expiration.After(c.nowFunc()) {
		return nil
	}
	return &t
}

// Set stores accessToken under key. The token expires expiresIn seconds from now; the backing
// store evicts the entry lifetimeBuffer earlier. Tokens without a lifetime, or whose lifetime
// does not exceed the buffer, are returned but not cached.
func (c *Cache) Set(ctx context.Context, key, accessToken string, expiresIn int, scope string) (*ClientAccessToken, error) {
	t := &ClientAccessToken{
		AccessToken: accessToken,
		Scope:       scope,
	}
	if expiresIn <= 0 {
		c.logger.Debug().Str("cache_key", key).Msg("token response without lifetime, not caching")
		return t, nil
	}
	lifetime := time.Duration(expiresIn) * time.Second
	t.Expiration = c.nowFunc().Add(lifetime)

	ttl := lifetime - c.lifetimeBuffer
	if ttl <= 0 {
		c.logger.Debug().Str("cache_key", key).Int("expires_in", expiresIn).Msg("token lifetime within cache buffer, not caching")
		return t, nil
	}

	data, err := json.Marshal(t)
	if err != nil {
		return t, errors.Wrap(err, "Cache.Set Marshal")
	}
	if err := c.store.Set(ctx, key, string(data), ttl); err != nil {
		return t, errors.Wrap(err, "Cache.Set store")
	}
	return t, nil
}

// Delete removes the entry for key. Removing a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, key); err != nil {
		return errors.Wrap(err, "Cache.Delete")
	}
	return nil
}
