package settings

import (
	"errors"
	"fmt"
)

// Sentinel errors for argument and format checks.
var (
	// ErrNilArgument is returned when a required argument is nil.
	ErrNilArgument = errors.New("argument must not be nil")

	// ErrInvalidFormat is returned when an encoded value has the wrong shape.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrNotConfigured is wrapped by ConfigurationError when a service has no
	// registered endpoints.
	ErrNotConfigured = errors.New("service not configured")
)

// ConfigurationError represents a fatal configuration problem.
// It is never retried by callers.
type ConfigurationError struct {
	// Field is the setting that is invalid (empty if not field specific)
	Field string

	// Message describes the configuration problem
	Message string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Cause != nil && !errors.Is(e.Cause, ErrNotConfigured) {
		return fmt.Sprintf("configuration error: %s: %v", msg, e.Cause)
	}
	return "configuration error: " + msg
}

// Unwrap returns the underlying error for error chain support.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// NotConfigured returns the ConfigurationError reported for an unknown service.
func NotConfigured(service string) *ConfigurationError {
	return &ConfigurationError{
		Message: fmt.Sprintf("service %q not configured", service),
		Cause:   ErrNotConfigured,
	}
}
