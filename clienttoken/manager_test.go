package clienttoken_test

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-token-manager/cache"
	"github.com/jrsteele09/go-token-manager/clientconfig"
	"github.com/jrsteele09/go-token-manager/clients"
	"github.com/jrsteele09/go-token-manager/clienttoken"
	"github.com/jrsteele09/go-token-manager/oauth2"
	"github.com/jrsteele09/go-token-manager/oauthmodel"
	"github.com/jrsteele09/go-token-manager/token"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEndpoint issues numbered tokens and records what it was asked for.
type fakeEndpoint struct {
	calls    atomic.Int32
	release  chan struct{}
	fail     bool
	lifetime int

	mu       sync.Mutex
	requests []oauthmodel.ClientCredentialsRequestDetails
}

func (f *fakeEndpoint) RequestClientCredentialsToken(ctx context.Context, details oauthmodel.ClientCredentialsRequestDetails) *oauth2.TokenResponse {
	n := f.calls.Add(1)
	f.mu.Lock()
	f.requests = append(f.requests, details)
	f.mu.Unlock()

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return oauth2.ErrorResponse(0, "", ctx.Err().Error())
		}
	}
	if f.fail {
		return oauth2.ErrorResponse(400, "invalid_client", "unknown client")
	}
	return &oauth2.TokenResponse{
		AccessToken: fmt.Sprintf("access-%d", n),
		ExpiresIn:   f.lifetime,
	}
}

func (f *fakeEndpoint) RequestRefreshToken(context.Context, oauthmodel.ClientCredentialsRequestDetails, string) *oauth2.TokenResponse {
	return oauth2.ErrorResponse(400, "unsupported_grant_type", "")
}

func (f *fakeEndpoint) RevokeToken(context.Context, oauthmodel.ClientCredentialsRequestDetails, string, oauth2.TokenTypeHint) *oauth2.TokenResponse {
	return &oauth2.TokenResponse{}
}

func (f *fakeEndpoint) lastRequest() oauthmodel.ClientCredentialsRequestDetails {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type testFixture struct {
	endpoint *fakeEndpoint
	store    *cache.InMemoryCache
	manager  *clienttoken.Manager
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	repo, err := clients.NewInMemoryRepo(&clients.Client{
		Name:         "billing",
		Address:      "https://idp.example.com/connect/token",
		ClientID:     "billing-id",
		ClientSecret: "billing-secret",
		Scope:        "invoices",
	})
	require.NoError(t, err)

	f := &testFixture{
		endpoint: &fakeEndpoint{lifetime: 3600},
		store:    cache.NewInMemoryCache(),
	}
	f.manager = clienttoken.NewManager(
		clientconfig.NewResolver(repo),
		f.endpoint,
		token.NewCache(f.store),
	)
	return f
}

func TestGetClientAccessToken_SingleFlight(t *testing.T) {
	f := newFixture(t)
	f.endpoint.release = make(chan struct{})

	const callers = 25
	results := make([]*token.ClientAccessToken, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := f.manager.GetClientAccessToken(context.Background(), "billing", nil)
			assert.NoError(t, err)
			results[i] = tok
		}(i)
	}

	require.Eventually(t, func() bool { return f.endpoint.calls.Load() == 1 }, time.Second, time.Millisecond)
	// give the remaining callers time to join the in-flight request
	time.Sleep(50 * time.Millisecond)
	close(f.endpoint.release)
	wg.Wait()

	require.EqualValues(t, 1, f.endpoint.calls.Load())
	for _, tok := range results {
		require.NotNil(t, tok)
		require.Equal(t, "access-1", tok.AccessToken)
	}
}

func TestGetClientAccessToken_CacheHit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.manager.GetClientAccessToken(ctx, "billing", nil)
	require.NoError(t, err)
	second, err := f.manager.GetClientAccessToken(ctx, "billing", nil)
	require.NoError(t, err)

	require.EqualValues(t, 1, f.endpoint.calls.Load())
	require.Equal(t, first.AccessToken, second.AccessToken)
	require.Equal(t, "invoices", second.Scope)

	cached := f.manager.CachedClientAccessToken(ctx, "billing", nil)
	require.NotNil(t, cached)
	require.Equal(t, first.AccessToken, cached.AccessToken)
}

func TestGetClientAccessToken_ForceRenewal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.manager.GetClientAccessToken(ctx, "billing", nil)
	require.NoError(t, err)

	renewed, err := f.manager.GetClientAccessToken(ctx, "billing", &oauthmodel.ClientAccessTokenParameters{ForceRenewal: true})
	require.NoError(t, err)
	require.EqualValues(t, 2, f.endpoint.calls.Load())
	require.NotEqual(t, first.AccessToken, renewed.AccessToken)

	t.Run("renewed token replaces the cache entry", func(t *testing.T) {
		again, err := f.manager.GetClientAccessToken(ctx, "billing", nil)
		require.NoError(t, err)
		require.Equal(t, renewed.AccessToken, again.AccessToken)
		require.EqualValues(t, 2, f.endpoint.calls.Load())
	})
}

func TestGetClientAccessToken_EndpointErrorYieldsNoToken(t *testing.T) {
	f := newFixture(t)
	f.endpoint.fail = true

	tok, err := f.manager.GetClientAccessToken(context.Background(), "billing", nil)
	require.NoError(t, err)
	require.Nil(t, tok)
	require.Zero(t, f.store.Len())

	t.Run("failure is not cached", func(t *testing.T) {
		f.endpoint.fail = false
		tok, err := f.manager.GetClientAccessToken(context.Background(), "billing", nil)
		require.NoError(t, err)
		require.NotNil(t, tok)
		require.EqualValues(t, 2, f.endpoint.calls.Load())
	})
}

func TestGetClientAccessToken_ConfigurationError(t *testing.T) {
	f := newFixture(t)

	tok, err := f.manager.GetClientAccessToken(context.Background(), "nonexistent_client", nil)
	require.Nil(t, tok)
	require.True(t, errors.Is(err, oauthmodel.ErrConfiguration), err)
	require.Zero(t, f.endpoint.calls.Load())
}

func TestGetClientAccessToken_DefaultClient(t *testing.T) {
	f := newFixture(t)

	tok, err := f.manager.GetClientAccessToken(context.Background(), "", nil)
	require.NoError(t, err)
	require.NotNil(t, tok)
	require.Equal(t, "billing-id", f.endpoint.lastRequest().ClientID)
}

func TestGetClientAccessToken_ParametersShapeRequestAndKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	params := &oauthmodel.ClientAccessTokenParameters{
		Resource: "urn:invoices",
		Scope:    "invoices.read",
		Context:  url.Values{"tenant": {"acme"}},
	}
	scoped, err := f.manager.GetClientAccessToken(ctx, "billing", params)
	require.NoError(t, err)

	req := f.endpoint.lastRequest()
	require.Equal(t, "urn:invoices", req.Resource)
	require.Equal(t, "invoices.read", req.Scope)
	require.Equal(t, "acme", req.Parameters.Get("tenant"))
	require.Equal(t, "invoices.read", scoped.Scope)

	unscoped, err := f.manager.GetClientAccessToken(ctx, "billing", nil)
	require.NoError(t, err)
	require.NotEqual(t, scoped.AccessToken, unscoped.AccessToken)
	require.EqualValues(t, 2, f.endpoint.calls.Load())
}

func TestDeleteClientAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.GetClientAccessToken(ctx, "billing", nil)
	require.NoError(t, err)
	require.NoError(t, f.manager.DeleteClientAccessToken(ctx, "billing", nil))
	require.Nil(t, f.manager.CachedClientAccessToken(ctx, "billing", nil))

	_, err = f.manager.GetClientAccessToken(ctx, "billing", nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, f.endpoint.calls.Load())
}

func TestGetClientAccessToken_CancelledCallerDetaches(t *testing.T) {
	f := newFixture(t)
	f.endpoint.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := f.manager.GetClientAccessToken(ctx, "billing", nil)
		errCh <- err
	}()

	done := make(chan *token.ClientAccessToken, 1)
	go func() {
		tok, _ := f.manager.GetClientAccessToken(context.Background(), "billing", nil)
		done <- tok
	}()

	require.Eventually(t, func() bool { return f.endpoint.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	close(f.endpoint.release)
	tok := <-done
	require.NotNil(t, tok)
	require.Equal(t, "access-1", tok.AccessToken)
	require.EqualValues(t, 1, f.endpoint.calls.Load())
}
