package endpoint_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-token-manager/oauth2"
	"github.com/jrsteele09/go-token-manager/oauthmodel"
	"github.com/jrsteele09/go-token-manager/token/endpoint"
	"github.com/stretchr/testify/require"
)

const (
	testClientID     = "client-1"
	testClientSecret = "secret-1"
)

type recordedRequest struct {
	form     url.Values
	user     string
	password string
	hasBasic bool
}

func newAuthServer(t *testing.T, handler func(w http.ResponseWriter, rec recordedRequest)) (*httptest.Server, *atomic.Int32, chan recordedRequest) {
	t.Helper()
	calls := &atomic.Int32{}
	requests := make(chan recordedRequest, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = r.ParseForm()
		rec := recordedRequest{form: r.PostForm}
		rec.user, rec.password, rec.hasBasic = r.BasicAuth()
		requests <- rec
		handler(w, rec)
	}))
	t.Cleanup(srv.Close)
	return srv, calls, requests
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func details(address string) oauthmodel.ClientCredentialsRequestDetails {
	return oauthmodel.ClientCredentialsRequestDetails{
		Address:      address,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		Scope:        "api.read api.write",
		Resource:     "urn:api",
	}
}

func TestRequestClientCredentialsToken(t *testing.T) {
	srv, calls, requests := newAuthServer(t, func(w http.ResponseWriter, _ recordedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "access-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"scope":        "api.read",
		})
	})

	client := endpoint.NewClient(endpoint.WithHTTPClient(srv.Client()))
	resp := client.RequestClientCredentialsToken(context.Background(), details(srv.URL))

	require.False(t, resp.IsError, resp.ErrorMessage())
	require.Equal(t, "access-1", resp.AccessToken)
	require.Equal(t, 3600, resp.ExpiresIn)
	require.Equal(t, "api.read", resp.Scope)
	require.EqualValues(t, 1, calls.Load())

	rec := <-requests
	require.Equal(t, "client_credentials", rec.form.Get("grant_type"))
	require.Equal(t, "api.read api.write", rec.form.Get("scope"))
	require.Equal(t, "urn:api", rec.form.Get("resource"))
	require.True(t, rec.hasBasic)
	require.Equal(t, testClientID, rec.user)
	require.Equal(t, testClientSecret, rec.password)
	require.Empty(t, rec.form.Get("client_secret"))
}

func TestRequestClientCredentialsToken_PostBodyCredentials(t *testing.T) {
	srv, _, requests := newAuthServer(t, func(w http.ResponseWriter, _ recordedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "access-1", "expires_in": 60})
	})

	d := details(srv.URL)
	d.CredentialStyle = oauth2.PostBody
	d.Parameters = url.Values{"audience": {"billing"}}

	resp := endpoint.NewClient(endpoint.WithHTTPClient(srv.Client())).RequestClientCredentialsToken(context.Background(), d)
	require.False(t, resp.IsError, resp.ErrorMessage())

	rec := <-requests
	require.False(t, rec.hasBasic)
	require.Equal(t, testClientID, rec.form.Get("client_id"))
	require.Equal(t, testClientSecret, rec.form.Get("client_secret"))
	require.Equal(t, "billing", rec.form.Get("audience"))
}

func TestRequestClientCredentialsToken_ClientAssertion(t *testing.T) {
	srv, _, requests := newAuthServer(t, func(w http.ResponseWriter, _ recordedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "access-1", "expires_in": 60})
	})

	d := details(srv.URL)
	d.ClientAssertion = &oauthmodel.ClientAssertion{Type: oauth2.ClientAssertionTypeJWTBearer, Value: "signed.jwt.value"}

	resp := endpoint.NewClient(endpoint.WithHTTPClient(srv.Client())).RequestClientCredentialsToken(context.Background(), d)
	require.False(t, resp.IsError, resp.ErrorMessage())

	rec := <-requests
	require.False(t, rec.hasBasic)
	require.Empty(t, rec.form.Get("client_secret"))
	require.Equal(t, testClientID, rec.form.Get("client_id"))
	require.Equal(t, oauth2.ClientAssertionTypeJWTBearer, rec.form.Get("client_assertion_type"))
	require.Equal(t, "signed.jwt.value", rec.form.Get("client_assertion"))
}

func TestRequestClientCredentialsToken_ErrorPayload(t *testing.T) {
	srv, calls, _ := newAuthServer(t, func(w http.ResponseWriter, _ recordedRequest) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":             "invalid_client",
			"error_description": "unknown client",
		})
	})

	resp := endpoint.NewClient(endpoint.WithHTTPClient(srv.Client())).RequestClientCredentialsToken(context.Background(), details(srv.URL))
	require.True(t, resp.IsError)
	require.Equal(t, "invalid_client", resp.Error)
	require.Equal(t, "unknown client", resp.ErrorDescription)
	require.Equal(t, http.StatusBadRequest, resp.HTTPStatus)
	require.Empty(t, resp.AccessToken)
	require.EqualValues(t, 1, calls.Load(), "explicit auth style must not trigger a second attempt")
}

func TestRequestClientCredentialsToken_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	address := srv.URL
	srv.Close()

	resp := endpoint.NewClient().RequestClientCredentialsToken(context.Background(), details(address))
	require.True(t, resp.IsError)
	require.Zero(t, resp.HTTPStatus)
	require.NotEmpty(t, resp.ErrorDescription)
}

func TestRequestClientCredentialsToken_Timeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	client := endpoint.NewClient(endpoint.WithHTTPClient(srv.Client()), endpoint.WithTimeout(50*time.Millisecond))
	resp := client.RequestClientCredentialsToken(context.Background(), details(srv.URL))
	require.True(t, resp.IsError)
}

func TestRequestClientCredentialsToken_MissingAddress(t *testing.T) {
	resp := endpoint.NewClient().RequestClientCredentialsToken(context.Background(), details(""))
	require.True(t, resp.IsError)
}

func TestRequestRefreshToken(t *testing.T) {
	srv, _, requests := newAuthServer(t, func(w http.ResponseWriter, _ recordedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "access-2",
			"refresh_token": "refresh-2",
			"expires_in":    300,
		})
	})

	d := details(srv.URL)
	d.Scope = ""
	resp := endpoint.NewClient(endpoint.WithHTTPClient(srv.Client())).RequestRefreshToken(context.Background(), d, "refresh-1")
	require.False(t, resp.IsError, resp.ErrorMessage())
	require.Equal(t, "access-2", resp.AccessToken)
	require.Equal(t, "refresh-2", resp.RefreshToken)
	require.Equal(t, 300, resp.ExpiresIn)

	rec := <-requests
	require.Equal(t, "refresh_token", rec.form.Get("grant_type"))
	require.Equal(t, "refresh-1", rec.form.Get("refresh_token"))
	require.Equal(t, "urn:api", rec.form.Get("resource"))
}

func TestRequestRefreshToken_InvalidGrant(t *testing.T) {
	srv, _, _ := newAuthServer(t, func(w http.ResponseWriter, _ recordedRequest) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
	})

	resp := endpoint.NewClient(endpoint.WithHTTPClient(srv.Client())).RequestRefreshToken(context.Background(), details(srv.URL), "expired")
	require.True(t, resp.IsError)
	require.Equal(t, "invalid_grant", resp.Error)
}

func TestRequestRefreshToken_EmptyToken(t *testing.T) {
	resp := endpoint.NewClient().RequestRefreshToken(context.Background(), details("http://unused"), "")
	require.True(t, resp.IsError)
}

func TestRevokeToken(t *testing.T) {
	t.Run("basic credentials", func(t *testing.T) {
		srv, _, requests := newAuthServer(t, func(w http.ResponseWriter, _ recordedRequest) {
			w.WriteHeader(http.StatusOK)
		})

		resp := endpoint.NewClient(endpoint.WithHTTPClient(srv.Client())).
			RevokeToken(context.Background(), details(srv.URL), "refresh-1", oauth2.RefreshTokenHint)
		require.False(t, resp.IsError, resp.ErrorMessage())

		rec := <-requests
		require.Equal(t, "refresh-1", rec.form.Get("token"))
		require.Equal(t, "refresh_token", rec.form.Get("token_type_hint"))
		require.True(t, rec.hasBasic)
		require.Equal(t, testClientID, rec.user)
	})

	t.Run("server error", func(t *testing.T) {
		srv, _, _ := newAuthServer(t, func(w http.ResponseWriter, _ recordedRequest) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_token_type"})
		})

		resp := endpoint.NewClient(endpoint.WithHTTPClient(srv.Client())).
			RevokeToken(context.Background(), details(srv.URL), "access-1", oauth2.AccessTokenHint)
		require.True(t, resp.IsError)
		require.Equal(t, "unsupported_token_type", resp.Error)
		require.Equal(t, http.StatusBadRequest, resp.HTTPStatus)
	})

	t.Run("missing address", func(t *testing.T) {
		resp := endpoint.NewClient().RevokeToken(context.Background(), details(""), "access-1", "")
		require.True(t, resp.IsError)
	})
}
