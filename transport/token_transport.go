// Package transport holds the http.RoundTripper middleware of the token manager: bearer token
// injection with a single forced-renewal retry on 401, and the retry and rate limit policies
// layered under the token endpoint client.
package transport

import (
	"context"
	"io"
	"net/http"

	"github.com/jrsteele09/go-token-manager/oauthmodel"
	"github.com/jrsteele09/go-token-manager/token"
	"github.com/jrsteele09/go-token-manager/usertoken"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ClientTokens is implemented by clienttoken.Manager.
type ClientTokens interface {
	GetClientAccessToken(ctx context.Context, clientName string, parameters *oauthmodel.ClientAccessTokenParameters) (*token.ClientAccessToken, error)
}

// UserTokens is implemented by usertoken.Manager.
type UserTokens interface {
	GetAccessToken(ctx context.Context, principal *usertoken.Principal, parameters *oauthmodel.UserAccessTokenParameters) (*token.UserToken, error)
}

// tokenFunc returns the bearer token to attach, or "" to send the request unauthenticated.
type tokenFunc func(ctx context.Context, forceRenewal bool) (string, error)

// TokenTransport attaches a bearer token to every request. When the response is 401 it
// renews the token and resends the request once; a second 401 is returned to the caller.
type TokenTransport struct {
	next   http.RoundTripper
	token  tokenFunc
	logger zerolog.Logger
}

type Option func(*TokenTransport)

// WithBase sets the transport requests are sent through. Defaults to http.DefaultTransport.
func WithBase(next http.RoundTripper) Option {
	return func(t *TokenTransport) {
		t.next = next
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(t *TokenTransport) {
		t.logger = logger
	}
}

func newTokenTransport(fn tokenFunc, options ...Option) *TokenTransport {
	t := &TokenTransport{
		next:   http.DefaultTransport,
		token:  fn,
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// NewClientTokenTransport injects client-credentials tokens for clientName.
func NewClientTokenTransport(tokens ClientTokens, clientName string, parameters *oauthmodel.ClientAccessTokenParameters, options ...Option) *TokenTransport {
	base := oauthmodel.ClientAccessTokenParameters{}
	if parameters != nil {
		base = *parameters
	}
	return newTokenTransport(func(ctx context.Context, forceRenewal bool) (string, error) {
		params := base
		params.ForceRenewal = forceRenewal
		t, err := tokens.GetClientAccessToken(ctx, clientName, &params)
		if err != nil || t == nil {
			return "", err
		}
		return t.AccessToken, nil
	}, options...)
}

// NewUserTokenTransport injects the token of the user found in the request context
// (usertoken.WithPrincipal).
func NewUserTokenTransport(tokens UserTokens, parameters *oauthmodel.UserAccessTokenParameters, options ...Option) *TokenTransport {
	base := oauthmodel.UserAccessTokenParameters{}
	if parameters != nil {
		base = *parameters
	}
	return newTokenTransport(func(ctx context.Context, forceRenewal bool) (string, error) {
		params := base
		params.ForceRenewal = forceRenewal
		t, err := tokens.GetAccessToken(ctx, usertoken.PrincipalFromContext(ctx), &params)
		if err != nil || t == nil || t.IsError() {
			return "", err
		}
		return t.AccessToken, nil
	}, options...)
}

func (t *TokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	accessToken, err := t.token(ctx, false)
	if err != nil {
		closeBody(req)
		return nil, err
	}
	if accessToken == "" {
		t.logger.Debug().Str("url", req.URL.Redacted()).Msg("no access token available, sending request unauthenticated")
	}

	resp, err := t.next.RoundTrip(withBearer(req, accessToken))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// the body has been consumed by the first attempt
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		t.logger.Warn().Str("url", req.URL.Redacted()).Msg("401 response but request body cannot be replayed")
		return resp, nil
	}
	drain(resp)

	accessToken, err = t.token(ctx, true)
	if err != nil {
		return nil, err
	}

	retry := withBearer(req, accessToken)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	t.logger.Debug().Str("url", req.URL.Redacted()).Msg("401 response, retrying with renewed token")
	return t.next.RoundTrip(retry)
}

// withBearer clones req with the Authorization header set; RoundTrippers must not modify
// the caller's request.
func withBearer(req *http.Request, accessToken string) *http.Request {
	out := req.Clone(req.Context())
	if accessToken != "" {
		out.Header.Set("Authorization", "Bearer "+accessToken)
	} else {
		out.Header.Del("Authorization")
	}
	return out
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
