// Package token holds the token data model shared by the client and user token managers,
// the structured cache key derivation and the client token cache.
package token

import (
	"time"
)

// ClientAccessToken is a cached client-credentials token. Values are replaced wholesale on
// renewal and never mutated in place.
type ClientAccessToken struct {
	AccessToken string    `json:"access_token"`
	Expiration  time.Time `json:"expiration"`
	Scope       string    `json:"scope,omitempty"`
}

// IsZero reports whether the token carries no access token.
func (t *ClientAccessToken) IsZero() bool {
	return t == nil || t.AccessToken == ""
}

// UserAccessToken is the delegated token state for one principal/resource/scheme combination.
// Zero-valued fields mean "absent".
type UserAccessToken struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiration   time.Time `json:"expiration,omitempty"`
}

// NeedsRefresh reports whether the token must be refreshed before use.
// A token without a refresh token never needs (or can get) a refresh.
func (t *UserAccessToken) NeedsRefresh(now time.Time, refreshBeforeExpiration time.Duration) bool {
	if t == nil || t.RefreshToken == "" {
		return false
	}
	if t.AccessToken == "" {
		return true
	}
	if t.Expiration.IsZero() {
		return false
	}
	return t.Expiration.Add(-refreshBeforeExpiration).Before(now)
}

// UserToken is the result handed to callers of the user token manager.
// Error is set when a refresh was needed but failed; AccessToken is then empty.
type UserToken struct {
	AccessToken  string
	RefreshToken string
	Expiration   time.Time
	Error        string
}

// IsError reports whether the token could not be obtained.
func (t *UserToken) IsError() bool {
	return t == nil || t.Error != ""
}

// Redact shortens a credential for logging.
func Redact(credential string) string {
	const visible = 6
	if len(credential) <= visible {
		return "***"
	}
	return credential[:visible] + "..."
}
