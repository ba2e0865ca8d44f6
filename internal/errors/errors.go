package errors

import (
	"errors"
	"fmt"
)

// Common error types for the token manager
var (
	// Configuration errors
	ErrClientNotFound     = errors.New("client configuration not found")
	ErrSchemeNotFound     = errors.New("oidc scheme not found")
	ErrNoDefaultScheme    = errors.New("no default oidc scheme configured")
	ErrDiscovery          = errors.New("discovery document could not be loaded")
	ErrMissingTokenURL    = errors.New("token endpoint address missing")
	ErrMissingRevokeURL   = errors.New("revocation endpoint address missing")
	ErrInvalidAssertion   = errors.New("invalid client assertion key")
	ErrUnsupportedBackend = errors.New("unsupported cache backend")

	// Store errors
	ErrNoHTTPContext = errors.New("no http request in context")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
