// Package endpoint talks to the authorization server: client-credentials and refresh-token
// grants at the token endpoint and RFC 7009 revocation. Every call is a single round trip;
// protocol and transport failures come back as TokenResponse values with IsError set.
package endpoint

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-token-manager/oauth2"
	"github.com/jrsteele09/go-token-manager/oauthmodel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	xoauth2 "golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultTimeout is the backchannel timeout applied to each round trip.
const DefaultTimeout = 30 * time.Second

const maxErrorBody = 64 << 10

// TokenEndpointClient is the contract the token managers depend on.
type TokenEndpointClient interface {
	RequestClientCredentialsToken(ctx context.Context, details oauthmodel.ClientCredentialsRequestDetails) *oauth2.TokenResponse
	RequestRefreshToken(ctx context.Context, details oauthmodel.ClientCredentialsRequestDetails, refreshToken string) *oauth2.TokenResponse
	RevokeToken(ctx context.Context, details oauthmodel.ClientCredentialsRequestDetails, token string, hint oauth2.TokenTypeHint) *oauth2.TokenResponse
}

var _ TokenEndpointClient = (*Client)(nil)

// Client is the x/oauth2 backed TokenEndpointClient.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     zerolog.Logger
	nowFunc    func() time.Time
}

type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every request. Retry and rate limit policies
// are layered by wrapping its transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the backchannel timeout. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(c *Client) {
		c.nowFunc = now
	}
}

func NewClient(options ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		timeout:    DefaultTimeout,
		logger:     log.Logger,
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// RequestClientCredentialsToken performs the client_credentials grant.
func (c *Client) RequestClientCredentialsToken(ctx context.Context, details oauthmodel.ClientCredentialsRequestDetails) *oauth2.TokenResponse {
	return c.requestToken(ctx, details, oauth2.ClientCredentialsGrant, nil)
}

// RequestRefreshToken performs the refresh_token grant.
func (c *Client) RequestRefreshToken(ctx context.Context, details oauthmodel.ClientCredentialsRequestDetails, refreshToken string) *oauth2.TokenResponse {
	if refreshToken == "" {
		return oauth2.ErrorResponse(0, "invalid_request", "refresh token is empty")
	}
	return c.requestToken(ctx, details, oauth2.RefreshTokenGrant, url.Values{"refresh_token": {refreshToken}})
}

func (c *Client) requestToken(ctx context.Context, details oauthmodel.ClientCredentialsRequestDetails, grant oauth2.GrantType, grantParams url.Values) *oauth2.TokenResponse {
	if details.Address == "" {
		return oauth2.ErrorResponse(0, "invalid_request", "token endpoint address is empty")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	ctx = context.WithValue(ctx, xoauth2.HTTPClient, c.httpClient)

	cfg := c.credentialsConfig(details)
	cfg.EndpointParams.Set("grant_type", string(grant))
	for k, vs := range grantParams {
		cfg.EndpointParams[k] = vs
	}
	if grant == oauth2.ClientCredentialsGrant && details.Scope != "" {
		cfg.Scopes = strings.Fields(details.Scope)
	}

	start := c.nowFunc()
	tok, err := cfg.Token(ctx)
	if err != nil {
		resp := c.errorResponse(err)
		c.logger.Debug().
			Str("grant_type", string(grant)).
			Str("address", details.Address).
			Int("status", resp.HTTPStatus).
			Str("error", resp.ErrorMessage()).
			Msg("token request failed")
		return resp
	}

	return &oauth2.TokenResponse{
		HTTPStatus:   http.StatusOK,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    expiresIn(tok, start),
		Scope:        extraString(tok, "scope"),
	}
}

// credentialsConfig maps the request details onto a clientcredentials.Config. The auth style
// is always explicit; auto-detection would send a second request on failure.
func (c *Client) credentialsConfig(details oauthmodel.ClientCredentialsRequestDetails) *clientcredentials.Config {
	params := url.Values{}
	for k, vs := range details.Parameters {
		params[k] = append([]string(nil), vs...)
	}
	if details.Resource != "" {
		params.Set("resource", details.Resource)
	}

	cfg := &clientcredentials.Config{
		ClientID:       details.ClientID,
		ClientSecret:   details.ClientSecret,
		TokenURL:       details.Address,
		EndpointParams: params,
		AuthStyle:      xoauth2.AuthStyleInHeader,
	}

	switch {
	case details.ClientAssertion != nil:
		cfg.ClientSecret = ""
		cfg.AuthStyle = xoauth2.AuthStyleInParams
		params.Set("client_assertion_type", details.ClientAssertion.Type)
		params.Set("client_assertion", details.ClientAssertion.Value)
	case details.CredentialStyle == oauth2.PostBody || details.ClientSecret == "":
		cfg.AuthStyle = xoauth2.AuthStyleInParams
	}
	return cfg
}

// RevokeToken revokes token at the RFC 7009 endpoint in details.Address. A 200 response is
// success whether or not the server knew the token.
func (c *Client) RevokeToken(ctx context.Context, details oauthmodel.ClientCredentialsRequestDetails, token string, hint oauth2.TokenTypeHint) *oauth2.TokenResponse {
	if details.Address == "" {
		return oauth2.ErrorResponse(0, "invalid_request", "revocation endpoint address is empty")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	form := url.Values{}
	for k, vs := range details.Parameters {
		form[k] = append([]string(nil), vs...)
	}
	form.Set("token", token)
	if hint != "" {
		form.Set("token_type_hint", string(hint))
	}

	useBasic := false
	switch {
	case details.ClientAssertion != nil:
		form.Set("client_id", details.ClientID)
		form.Set("client_assertion_type", details.ClientAssertion.Type)
		form.Set("client_assertion", details.ClientAssertion.Value)
	case details.CredentialStyle == oauth2.PostBody || details.ClientSecret == "":
		form.Set("client_id", details.ClientID)
		if details.ClientSecret != "" {
			form.Set("client_secret", details.ClientSecret)
		}
	default:
		useBasic = true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, details.Address, strings.NewReader(form.Encode()))
	if err != nil {
		return oauth2.ErrorResponse(0, "", err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if useBasic {
		req.SetBasicAuth(url.QueryEscape(details.ClientID), url.QueryEscape(details.ClientSecret))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("address", details.Address).Msg("revocation request failed")
		return oauth2.ErrorResponse(0, "", err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode != http.StatusOK {
		return parseErrorBody(resp.StatusCode, body)
	}
	return &oauth2.TokenResponse{HTTPStatus: resp.StatusCode}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) errorResponse(err error) *oauth2.TokenResponse {
	var rErr *xoauth2.RetrieveError
	if errors.As(err, &rErr) {
		status := 0
		if rErr.Response != nil {
			status = rErr.Response.StatusCode
		}
		if rErr.ErrorCode != "" {
			return oauth2.ErrorResponse(status, rErr.ErrorCode, rErr.ErrorDescription)
		}
		return parseErrorBody(status, rErr.Body)
	}
	return oauth2.ErrorResponse(0, "", err.Error())
}

func parseErrorBody(status int, body []byte) *oauth2.TokenResponse {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return oauth2.ErrorResponse(status, payload.Error, payload.ErrorDescription)
	}
	desc := strings.TrimSpace(string(body))
	if desc == "" {
		desc = http.StatusText(status)
	}
	return oauth2.ErrorResponse(status, "", desc)
}

// expiresIn prefers the raw expires_in value; x/oauth2 only exposes it as Expiry.
func expiresIn(tok *xoauth2.Token, start time.Time) int {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int(v)
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if tok.Expiry.IsZero() {
		return 0
	}
	return int(math.Round(tok.Expiry.Sub(start).Seconds()))
}

func extraString(tok *xoauth2.Token, key string) string {
	if s, ok := tok.Extra(key).(string); ok {
		return s
	}
	return ""
}
