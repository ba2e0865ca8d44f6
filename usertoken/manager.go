// Package usertoken manages delegated (user) tokens held in a Store: it hands out the stored
// access token and refreshes it, once per refresh token, when it is close to expiry.
package usertoken

import (
	"context"
	"net/url"
	"time"

	"github.com/jrsteele09/go-token-manager/clientconfig"
	tmerrors "github.com/jrsteele09/go-token-manager/internal/errors"
	"github.com/jrsteele09/go-token-manager/oauth2"
	"github.com/jrsteele09/go-token-manager/oauthmodel"
	"github.com/jrsteele09/go-token-manager/token"
	"github.com/jrsteele09/go-token-manager/token/endpoint"
	"github.com/jrsteele09/go-token-manager/token/refresh"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultRefreshBeforeExpiration is how long before expiry a token is refreshed.
const DefaultRefreshBeforeExpiration = 60 * time.Second

// SchemeResolver resolves the OIDC scheme whose client refreshes and revokes user tokens.
type SchemeResolver interface {
	ResolveScheme(ctx context.Context, scheme string) (*clientconfig.SchemeConfiguration, error)
}

type Manager struct {
	store         Store
	resolver      SchemeResolver
	endpoint      endpoint.TokenEndpointClient
	synchronizer  *refresh.Synchronizer
	refreshBefore time.Duration
	nowFunc       func() time.Time
	logger        zerolog.Logger
}

type Option func(*Manager)

func WithRefreshBeforeExpiration(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshBefore = d
	}
}

// WithSynchronizer shares a synchronizer with other consumers.
func WithSynchronizer(s *refresh.Synchronizer) Option {
	return func(m *Manager) {
		m.synchronizer = s
	}
}

// WithNowFunc sets the clock (primarily for testing)
func WithNowFunc(now func() time.Time) Option {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func NewManager(store Store, resolver SchemeResolver, tokenEndpoint endpoint.TokenEndpointClient, options ...Option) *Manager {
	m := &Manager{
		store:         store,
		resolver:      resolver,
		endpoint:      tokenEndpoint,
		synchronizer:  refresh.NewSynchronizer(),
		refreshBefore: DefaultRefreshBeforeExpiration,
		nowFunc:       time.Now,
		logger:        log.Logger,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// GetAccessToken returns the principal's token, refreshing it first when it expires within the
// refresh window or when ForceRenewal is set.
//
// Anonymous principals get nil. A failed refresh yields a UserToken with Error set and no
// access token; the store is left unchanged so the refresh token can be retried. Store and
// configuration failures are returned as errors.
func (m *Manager) GetAccessToken(ctx context.Context, principal *Principal, parameters *oauthmodel.UserAccessTokenParameters) (*token.UserToken, error) {
	if !principal.IsAuthenticated() {
		return nil, nil
	}
	params := oauthmodel.UserAccessTokenParameters{}
	if parameters != nil {
		params = *parameters
	}

	stored, err := m.store.GetToken(ctx, principal, params)
	if err != nil {
		return nil, errors.Wrap(err, "Manager.GetAccessToken GetToken")
	}
	if stored == nil {
		m.logger.Debug().Str("subject", principal.Subject).Msg("no token data for user")
		return &token.UserToken{Error: "no token data for user"}, nil
	}

	current := &token.UserToken{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		Expiration:   stored.Expiration,
	}
	if stored.RefreshToken == "" {
		return current, nil
	}
	if !params.ForceRenewal && !stored.NeedsRefresh(m.nowFunc(), m.refreshBefore) {
		return current, nil
	}

	// the shared operation only calls the token endpoint; each caller stores the result
	// through its own ctx
	refreshed, err := refresh.Do(ctx, m.synchronizer, token.RefreshSyncKey(stored.RefreshToken), func(ctx context.Context) (*token.UserToken, error) {
		return m.refreshUserToken(ctx, principal, stored.RefreshToken, params)
	})
	if err != nil {
		return nil, errors.Wrap(err, "Manager.GetAccessToken refresh")
	}
	if refreshed.IsError() {
		return refreshed, nil
	}
	m.storeRefreshed(ctx, principal, refreshed, params)
	return refreshed, nil
}

// storeRefreshed writes a refreshed token to the caller's store unless it already holds it.
// Failures are logged: the caller still gets the token it asked for.
func (m *Manager) storeRefreshed(ctx context.Context, principal *Principal, refreshed *token.UserToken, params oauthmodel.UserAccessTokenParameters) {
	current, err := m.store.GetToken(ctx, principal, params)
	if err == nil && current != nil &&
		current.AccessToken == refreshed.AccessToken &&
		current.RefreshToken == refreshed.RefreshToken &&
		current.Expiration.Unix() == refreshed.Expiration.Unix() {
		return
	}
	if err := m.store.StoreToken(ctx, principal, refreshed.AccessToken, refreshed.Expiration, refreshed.RefreshToken, params); err != nil {
		m.logger.Error().Err(err).Str("subject", principal.Subject).Msg("refreshed user token could not be stored")
	}
}

func (m *Manager) refreshUserToken(ctx context.Context, principal *Principal, refreshToken string, params oauthmodel.UserAccessTokenParameters) (*token.UserToken, error) {
	scheme, err := m.resolver.ResolveScheme(ctx, params.ChallengeScheme)
	if err != nil {
		return nil, err
	}
	details := scheme.TokenRequestDetails()
	details.Resource = params.Resource
	details.Parameters = mergeValues(details.Parameters, params.Context)

	m.logger.Debug().
		Str("subject", principal.Subject).
		Str("refresh_token", token.Redact(refreshToken)).
		Msg("refreshing user access token")

	resp := m.endpoint.RequestRefreshToken(ctx, details, refreshToken)
	if resp.IsError {
		m.logger.Error().
			Str("subject", principal.Subject).
			Int("status", resp.HTTPStatus).
			Str("error", resp.ErrorMessage()).
			Msg("error refreshing user access token")
		return &token.UserToken{Error: resp.ErrorMessage()}, nil
	}

	result := &token.UserToken{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if result.RefreshToken == "" {
		result.RefreshToken = refreshToken
	}
	if resp.ExpiresIn > 0 {
		result.Expiration = m.nowFunc().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return result, nil
}

// RevokeRefreshToken revokes the principal's refresh token at the scheme's revocation endpoint
// and clears the stored token. Authorization server failures are logged, not returned.
func (m *Manager) RevokeRefreshToken(ctx context.Context, principal *Principal, parameters *oauthmodel.UserAccessTokenParameters) error {
	if !principal.IsAuthenticated() {
		return nil
	}
	params := oauthmodel.UserAccessTokenParameters{}
	if parameters != nil {
		params = *parameters
	}

	stored, err := m.store.GetToken(ctx, principal, params)
	if err != nil {
		return errors.Wrap(err, "Manager.RevokeRefreshToken GetToken")
	}
	if stored == nil || stored.RefreshToken == "" {
		return nil
	}

	scheme, err := m.resolver.ResolveScheme(ctx, params.ChallengeScheme)
	if err != nil {
		return err
	}
	if scheme.RevocationEndpoint == "" {
		return oauthmodel.NewConfigurationError(scheme.Name, "scheme has no revocation endpoint", tmerrors.ErrMissingRevokeURL)
	}

	resp := m.endpoint.RevokeToken(ctx, scheme.RevocationRequestDetails(), stored.RefreshToken, oauth2.RefreshTokenHint)
	if resp.IsError {
		m.logger.Error().
			Str("subject", principal.Subject).
			Int("status", resp.HTTPStatus).
			Str("error", resp.ErrorMessage()).
			Msg("error revoking refresh token")
	}

	if err := m.store.ClearToken(ctx, principal, params); err != nil {
		return errors.Wrap(err, "Manager.RevokeRefreshToken ClearToken")
	}
	return nil
}

func mergeValues(base, extra url.Values) url.Values {
	if len(extra) == 0 {
		return base
	}
	out := url.Values{}
	for k, vs := range base {
		out[k] = append([]string(nil), vs...)
	}
	for k, vs := range extra {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
