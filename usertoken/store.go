package usertoken

import (
	"context"
	"time"

	"github.com/jrsteele09/go-token-manager/oauthmodel"
	"github.com/jrsteele09/go-token-manager/token"
)

// Principal is the authenticated user a token belongs to. The zero value is anonymous.
type Principal struct {
	// Subject is the user's stable identifier (the "sub" claim).
	Subject string
	// SessionID identifies the sign-in session, optional.
	SessionID string
}

// IsAuthenticated reports whether p identifies a user.
func (p *Principal) IsAuthenticated() bool {
	return p != nil && p.Subject != ""
}

type principalKey struct{}

// WithPrincipal returns a context carrying the current user.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFromContext returns the user stored by WithPrincipal, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// Store persists a user's tokens, keyed by principal plus the resource and sign-in scheme
// of the parameters. Implementations are backed by the host's session mechanism.
type Store interface {
	// GetToken returns the stored token, or nil when there is none.
	GetToken(ctx context.Context, principal *Principal, parameters oauthmodel.UserAccessTokenParameters) (*token.UserAccessToken, error)
	StoreToken(ctx context.Context, principal *Principal, accessToken string, expiration time.Time, refreshToken string, parameters oauthmodel.UserAccessTokenParameters) error
	ClearToken(ctx context.Context, principal *Principal, parameters oauthmodel.UserAccessTokenParameters) error
}

// EntryKey identifies one token of a principal. It is shared by the store implementations.
func EntryKey(parameters oauthmodel.UserAccessTokenParameters) string {
	return token.Key("", "user", parameters.Resource, parameters.SignInScheme)
}
