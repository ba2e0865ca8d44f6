package token_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jrsteele09/go-token-manager/cache"
	"github.com/jrsteele09/go-token-manager/token"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("backend unavailable")
}
func (failingStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("backend unavailable")
}
func (failingStore) Delete(context.Context, string) error { return nil }

func TestCache_SetGet(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := cache.NewInMemoryCache(cache.WithNowFunc(clock))
	c := token.NewCache(store, token.WithCacheNowFunc(clock), token.WithLifetimeBuffer(60*time.Second))

	stored, err := c.Set(ctx, "k", "access-1", 3600, "api")
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Hour), stored.Expiration)

	got := c.Get(ctx, "k")
	require.NotNil(t, got)
	require.Equal(t, "access-1", got.AccessToken)
	require.Equal(t, "api", got.Scope)
	require.True(t, got.Expiration.Equal(now.Add(time.Hour)))

	t.Run("backing entry evicted one buffer before expiry", func(t *testing.T) {
		now = now.Add(59 * time.Minute)
		require.Nil(t, c.Get(ctx, "k"))
	})
}

func TestCache_ShortLivedTokenNotCached(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemoryCache()
	c := token.NewCache(store)

	stored, err := c.Set(ctx, "k", "access-1", 30, "")
	require.NoError(t, err)
	require.Equal(t, "access-1", stored.AccessToken)
	require.Nil(t, c.Get(ctx, "k"))
	require.Zero(t, store.Len())
}

func TestCache_BackendErrorsAreMisses(t *testing.T) {
	c := token.NewCache(failingStore{})
	require.Nil(t, c.Get(context.Background(), "k"))

	_, err := c.Set(context.Background(), "k", "access", 3600, "")
	require.Error(t, err)
}

func TestCache_UnreadableEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemoryCache()
	require.NoError(t, store.Set(ctx, "k", "{not json", time.Minute))

	c := token.NewCache(store)
	require.Nil(t, c.Get(ctx, "k"))
}

func TestCache_Delete(t *testing.T) {
	ctx := context.Background()
	c := token.NewCache(cache.NewInMemoryCache())

	_, err := c.Set(ctx, "k", "access", 3600, "")
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, "k"))
	require.Nil(t, c.Get(ctx, "k"))

	// idempotent
	require.NoError(t, c.Delete(ctx, "k"))
}

func TestCache_TokenWithoutLifetimeNotCached(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemoryCache()
	c := token.NewCache(store)

	stored, err := c.Set(ctx, "k", "access-1", 0, "")
	require.NoError(t, err)
	require.Equal(t, "access-1", stored.AccessToken)
	require.True(t, stored.Expiration.IsZero())
	require.Zero(t, store.Len())
}
