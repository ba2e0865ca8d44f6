package sessionstore_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-token-manager/clientconfig"
	tmerrors "github.com/jrsteele09/go-token-manager/internal/errors"
	"github.com/jrsteele09/go-token-manager/oauth2"
	"github.com/jrsteele09/go-token-manager/oauthmodel"
	"github.com/jrsteele09/go-token-manager/token"
	"github.com/jrsteele09/go-token-manager/usertoken"
	"github.com/jrsteele09/go-token-manager/usertoken/sessionstore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var (
	hashKey = []byte("0123456789abcdef0123456789abcdef")
	alice   = &usertoken.Principal{Subject: "alice", SessionID: "sid-1"}
)

// roundTrip runs handler behind the middleware and returns the cookies it set.
func roundTrip(t *testing.T, handler http.HandlerFunc, cookies []*http.Cookie) []*http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	sessionstore.Middleware(handler).ServeHTTP(rec, req)
	if set := rec.Result().Cookies(); len(set) > 0 {
		return set
	}
	return cookies
}

func TestStore_SignInAndReadBack(t *testing.T) {
	store := sessionstore.NewCookieStore("", false, hashKey)
	exp := time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)

	cookies := roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, store.SignIn(w, r, alice, "access-0", exp, "refresh-0"))
	}, nil)
	require.NotEmpty(t, cookies)

	roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		p, err := store.Principal(r)
		require.NoError(t, err)
		require.Equal(t, "alice", p.Subject)
		require.Equal(t, "sid-1", p.SessionID)

		tok, err := store.GetToken(r.Context(), p, oauthmodel.UserAccessTokenParameters{})
		require.NoError(t, err)
		require.NotNil(t, tok)
		require.Equal(t, "access-0", tok.AccessToken)
		require.Equal(t, "refresh-0", tok.RefreshToken)
		require.True(t, exp.Equal(tok.Expiration))
	}, cookies)
}

func TestStore_EntriesArePerResourceAndSubject(t *testing.T) {
	store := sessionstore.NewCookieStore("", false, hashKey)
	resource := oauthmodel.UserAccessTokenParameters{Resource: "urn:invoices"}

	cookies := roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, store.StoreToken(r.Context(), alice, "access-res", time.Time{}, "refresh-res", resource))
	}, nil)

	roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		tok, err := store.GetToken(r.Context(), alice, resource)
		require.NoError(t, err)
		require.Equal(t, "access-res", tok.AccessToken)
		require.True(t, tok.Expiration.IsZero())

		tok, err = store.GetToken(r.Context(), alice, oauthmodel.UserAccessTokenParameters{})
		require.NoError(t, err)
		require.Nil(t, tok)

		tok, err = store.GetToken(r.Context(), &usertoken.Principal{Subject: "mallory"}, resource)
		require.NoError(t, err)
		require.Nil(t, tok)
	}, cookies)
}

func TestStore_ClearToken(t *testing.T) {
	store := sessionstore.NewCookieStore("", false, hashKey)

	cookies := roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, store.StoreToken(r.Context(), alice, "access-0", time.Time{}, "refresh-0", oauthmodel.UserAccessTokenParameters{}))
	}, nil)
	cookies = roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, store.ClearToken(r.Context(), alice, oauthmodel.UserAccessTokenParameters{}))
	}, cookies)
	roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		tok, err := store.GetToken(r.Context(), alice, oauthmodel.UserAccessTokenParameters{})
		require.NoError(t, err)
		require.Nil(t, tok)
	}, cookies)
}

func TestStore_RequiresHTTPContext(t *testing.T) {
	store := sessionstore.NewCookieStore("", false, hashKey)

	_, err := store.GetToken(context.Background(), alice, oauthmodel.UserAccessTokenParameters{})
	require.True(t, errors.Is(err, tmerrors.ErrNoHTTPContext))
}

func TestStore_SignOut(t *testing.T) {
	store := sessionstore.NewCookieStore("", false, hashKey)

	cookies := roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, store.SignIn(w, r, alice, "access-0", time.Time{}, "refresh-0"))
	}, nil)
	cookies = roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, store.SignOut(w, r))
	}, cookies)

	for _, c := range cookies {
		require.True(t, c.MaxAge < 0 || c.Value == "")
	}
}

func TestStore_WorksWithUserTokenManager(t *testing.T) {
	store := sessionstore.NewCookieStore("", false, hashKey)
	manager := usertoken.NewManager(store, nil, nil)

	cookies := roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, store.SignIn(w, r, alice, "access-0", time.Now().Add(time.Hour), "refresh-0"))
	}, nil)
	roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		p, err := store.Principal(r)
		require.NoError(t, err)
		tok, err := manager.GetAccessToken(r.Context(), p, nil)
		require.NoError(t, err)
		require.Equal(t, "access-0", tok.AccessToken)
	}, cookies)
}

// rotatingEndpoint refreshes "rt1" into "rt1-rotated" once release is closed.
type rotatingEndpoint struct {
	calls   atomic.Int32
	release chan struct{}
}

func (e *rotatingEndpoint) RequestClientCredentialsToken(context.Context, oauthmodel.ClientCredentialsRequestDetails) *oauth2.TokenResponse {
	return oauth2.ErrorResponse(400, "unauthorized_client", "")
}

func (e *rotatingEndpoint) RequestRefreshToken(ctx context.Context, _ oauthmodel.ClientCredentialsRequestDetails, refreshToken string) *oauth2.TokenResponse {
	e.calls.Add(1)
	select {
	case <-e.release:
	case <-ctx.Done():
		return oauth2.ErrorResponse(0, "", ctx.Err().Error())
	}
	return &oauth2.TokenResponse{AccessToken: "access-new", RefreshToken: refreshToken + "-rotated", ExpiresIn: 3600}
}

func (e *rotatingEndpoint) RevokeToken(context.Context, oauthmodel.ClientCredentialsRequestDetails, string, oauth2.TokenTypeHint) *oauth2.TokenResponse {
	return &oauth2.TokenResponse{}
}

type oneScheme struct{}

func (oneScheme) ResolveScheme(_ context.Context, name string) (*clientconfig.SchemeConfiguration, error) {
	return &clientconfig.SchemeConfiguration{Name: "oidc", ClientID: "web-app", TokenEndpoint: "https://idp.example.com/token"}, nil
}

func TestStore_JoinedRefreshIsWrittenToEachSession(t *testing.T) {
	store := sessionstore.NewCookieStore("", false, hashKey)
	endpoint := &rotatingEndpoint{release: make(chan struct{})}
	manager := usertoken.NewManager(store, oneScheme{}, endpoint)

	cookies := roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, store.SignIn(w, r, alice, "access-old", time.Now().Add(-time.Minute), "rt1"))
	}, nil)

	type outcome struct {
		tok *token.UserToken
		err error
		rec *httptest.ResponseRecorder
	}
	serve := func(ctx context.Context, done chan<- outcome) {
		req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		var out outcome
		sessionstore.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := store.Principal(r)
			if err != nil {
				out.err = err
				return
			}
			out.tok, out.err = manager.GetAccessToken(r.Context(), p, nil)
		})).ServeHTTP(rec, req)
		out.rec = rec
		done <- out
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	doneA := make(chan outcome, 1)
	go serve(ctxA, doneA)
	require.Eventually(t, func() bool { return endpoint.calls.Load() == 1 }, time.Second, time.Millisecond)

	doneB := make(chan outcome, 1)
	go serve(context.Background(), doneB)
	time.Sleep(50 * time.Millisecond)

	// the request that started the refresh goes away before the endpoint answers
	cancelA()
	a := <-doneA
	require.True(t, errors.Is(a.err, context.Canceled), a.err)

	close(endpoint.release)
	b := <-doneB
	require.NoError(t, b.err)
	require.Equal(t, "access-new", b.tok.AccessToken)
	require.Equal(t, "rt1-rotated", b.tok.RefreshToken)
	require.EqualValues(t, 1, endpoint.calls.Load())

	setCookies := b.rec.Result().Cookies()
	require.NotEmpty(t, setCookies, "the surviving request's session carries the rotated token")
	roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		tok, err := store.GetToken(r.Context(), alice, oauthmodel.UserAccessTokenParameters{})
		require.NoError(t, err)
		require.Equal(t, "access-new", tok.AccessToken)
		require.Equal(t, "rt1-rotated", tok.RefreshToken)
	}, setCookies)
}
