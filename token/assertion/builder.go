// Package assertion builds RFC 7523 JWT client assertions, used instead of a client secret
// when a client authenticates with private_key_jwt or client_secret_jwt.
package assertion

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-token-manager/oauth2"
	"github.com/jrsteele09/go-token-manager/oauthmodel"
	"github.com/pkg/errors"
)

// DefaultLifetime is how long a generated assertion is valid for.
const DefaultLifetime = 60 * time.Second

// Builder creates a fresh assertion for every request; assertions are single use (jti).
type Builder struct {
	clientID string
	signer   Signer
	lifetime time.Duration
	nowFunc  func() time.Time
}

type BuilderOption func(*Builder)

func WithLifetime(lifetime time.Duration) BuilderOption {
	return func(b *Builder) {
		b.lifetime = lifetime
	}
}

// WithNowFunc sets the clock (primarily for testing)
func WithNowFunc(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		b.nowFunc = now
	}
}

func NewBuilder(clientID string, signer Signer, options ...BuilderOption) *Builder {
	b := &Builder{
		clientID: clientID,
		signer:   signer,
		lifetime: DefaultLifetime,
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// Build returns a signed assertion with iss=sub=client id and aud=audience, which is the
// endpoint the assertion is presented to.
func (b *Builder) Build(audience string) (*oauthmodel.ClientAssertion, error) {
	if b.signer == nil {
		return nil, errors.New("Builder.Build no signer configured")
	}
	now := b.nowFunc()
	claims := jwt.MapClaims{
		"iss": b.clientID,
		"sub": b.clientID,
		"aud": audience,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(b.lifetime).Unix(),
	}

	signed, err := b.signer.Sign(claims)
	if err != nil {
		return nil, errors.Wrap(err, "Builder.Build Sign")
	}
	return &oauthmodel.ClientAssertion{
		Type:  oauth2.ClientAssertionTypeJWTBearer,
		Value: signed,
	}, nil
}
