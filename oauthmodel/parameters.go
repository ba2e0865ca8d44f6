package oauthmodel

import "net/url"

// DefaultClientName is the sentinel client name meaning "whichever client is the default":
// the only configured client, or one derived from the default OIDC scheme.
const DefaultClientName = "default"

// ClientAccessTokenParameters holds per-call overrides for client (machine) token requests.
// They control cache bypass and cache key derivation and are never persisted.
type ClientAccessTokenParameters struct {
	// ForceRenewal skips the cache lookup and always requests a new token.
	// Used by: the injection transport after a 401 from the downstream API
	ForceRenewal bool

	// Resource is the RFC 8707 resource indicator.
	// Example: "urn:api:invoices"
	// Effect: sent to the token endpoint and part of the cache key
	Resource string

	// Scope overrides the configured scope for this call.
	// Example: "invoices.read invoices.write"
	// Effect: sent to the token endpoint and part of the cache key
	Scope string

	// Context carries additional form parameters for the token request.
	// Not part of the cache key.
	Context url.Values
}

// UserAccessTokenParameters holds per-call overrides for delegated (user) token requests.
type UserAccessTokenParameters struct {
	// ForceRenewal refreshes the token even when it is not near expiry.
	ForceRenewal bool

	// Resource selects a resource-specific token for the same user.
	Resource string

	// SignInScheme selects which sign-in session holds the token.
	// Empty means the store's default.
	SignInScheme string

	// ChallengeScheme names the OIDC scheme whose client configuration is used for
	// refresh and revocation. Empty means the configured default scheme.
	ChallengeScheme string

	// Context carries additional form parameters for the refresh request.
	Context url.Values
}
