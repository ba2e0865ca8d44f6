package oauth2

// TokenResponse is the outcome of one round trip to the authorization server.
// Transport failures and OAuth2 error payloads are both reported through IsError;
// callers never get a Go error for protocol-level failures.
type TokenResponse struct {
	// IsError is true when no usable token was returned.
	IsError bool `json:"-"`

	// Error is RFC 6749's 'error' code (e.g. "invalid_grant").
	// Empty for transport failures.
	Error string `json:"error,omitempty"`

	// ErrorDescription is a human readable explanation of the failure.
	// For transport failures it carries the underlying error text.
	ErrorDescription string `json:"error_description,omitempty"`

	// HTTPStatus is the status code of the token endpoint response, 0 if none was received.
	HTTPStatus int `json:"-"`

	// AccessToken is the bearer credential for downstream APIs.
	AccessToken string `json:"access_token,omitempty"`

	// RefreshToken is only present on grants that issue or rotate refresh tokens.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is normally "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token, 0 if the server did not say.
	ExpiresIn int `json:"expires_in,omitempty"`

	// Scope is the granted scope when it differs from the requested one.
	Scope string `json:"scope,omitempty"`
}

// ErrorResponse builds a failed TokenResponse.
func ErrorResponse(status int, code, description string) *TokenResponse {
	return &TokenResponse{
		IsError:          true,
		Error:            code,
		ErrorDescription: description,
		HTTPStatus:       status,
	}
}

// ErrorMessage returns the most descriptive error text available.
func (r *TokenResponse) ErrorMessage() string {
	switch {
	case r == nil:
		return ""
	case r.Error != "" && r.ErrorDescription != "":
		return r.Error + ": " + r.ErrorDescription
	case r.Error != "":
		return r.Error
	default:
		return r.ErrorDescription
	}
}
