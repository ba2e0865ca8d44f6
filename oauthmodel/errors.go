package oauthmodel

import (
	"errors"
	"fmt"
)

// ErrConfiguration matches every ConfigurationError via errors.Is.
var ErrConfiguration = errors.New("token management configuration error")

// ConfigurationError is returned when a client or scheme configuration cannot be resolved.
// It is fatal for the call and is never retried.
type ConfigurationError struct {
	// Name is the client or scheme name being resolved.
	Name string
	// Reason describes what was missing.
	Reason string
	// Err is the underlying cause, e.g. a discovery transport error.
	Err error
}

// NewConfigurationError builds a ConfigurationError for name.
func NewConfigurationError(name, reason string, err error) *ConfigurationError {
	return &ConfigurationError{Name: name, Reason: reason, Err: err}
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error for %q: %s", e.Name, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrConfiguration) true for any ConfigurationError.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
