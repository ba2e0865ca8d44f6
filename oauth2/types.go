package oauth2

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
// Determines what credentials are required to obtain tokens.
type GrantType string

const (
	// ClientCredentialsGrant allows machine-to-machine authentication.
	// Used in: Backend service authentication (no user context)
	// Token request includes: client_id, client_secret (or client_assertion), scope, resource
	// Returns: access_token (no refresh_token)
	ClientCredentialsGrant GrantType = "client_credentials"

	// RefreshTokenGrant exchanges a refresh token for new tokens.
	// Used in: Delegated user token refresh (no user interaction)
	// Token request includes: refresh_token, client_id, client_secret, resource
	// Returns: new access_token and, when the server rotates, a new refresh_token
	RefreshTokenGrant GrantType = "refresh_token"
)

// TokenTypeHint tells the revocation endpoint (RFC 7009) which kind of token is submitted.
type TokenTypeHint string

const (
	// AccessTokenHint marks the submitted token as an access token.
	AccessTokenHint TokenTypeHint = "access_token"

	// RefreshTokenHint marks the submitted token as a refresh token.
	RefreshTokenHint TokenTypeHint = "refresh_token"
)

// ClientAssertionTypeJWTBearer is the RFC 7523 client_assertion_type for signed JWT assertions.
const ClientAssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// ClientCredentialStyle controls how the client id and secret reach the token endpoint.
type ClientCredentialStyle string

const (
	// AuthorizationHeader sends the credentials as an HTTP Basic Authorization header.
	AuthorizationHeader ClientCredentialStyle = "header"

	// PostBody sends the credentials as client_id/client_secret form parameters.
	PostBody ClientCredentialStyle = "body"
)
