package restclient

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when a request is sent through a closed client.
var ErrClosed = errors.New("client is closed")

// ServiceError is the structured error a service returns with
// StructuredErrorStatus.
type ServiceError struct {
	// Code is the application error code
	Code string `json:"code" yaml:"code"`

	// Message is the human readable description
	Message string `json:"message" yaml:"message"`

	// Details carries additional, service specific information
	Details map[string]any `json:"details,omitempty" yaml:"details,omitempty"`

	// Status is the HTTP status code the error arrived with
	Status int `json:"-" yaml:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("service error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("service error %s (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// ClientRequestError is returned for 4xx responses.
type ClientRequestError struct {
	// StatusCode is the HTTP status code
	StatusCode int

	// Reason is the HTTP reason phrase
	Reason string

	// Body is the response body, trimmed of surrounding white space
	Body string

	// Message is the composed error message
	Message string
}

// Error implements the error interface.
func (e *ClientRequestError) Error() string {
	return e.Message
}

// ResponseError is returned for non-success responses that are neither
// client errors nor structured service errors.
type ResponseError struct {
	// StatusCode is the HTTP status code
	StatusCode int

	// Reason is the HTTP reason phrase
	Reason string

	// Body is the response body, trimmed of surrounding white space
	Body string

	// Message is the composed error message
	Message string
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return e.Message
}

// DecodeError is returned when a response body cannot be decoded.
type DecodeError struct {
	// StatusCode is the HTTP status code of the response
	StatusCode int

	// ContentType is the media type of the response
	ContentType string

	// Target names the type the body was decoded into
	Target string

	// Cause is the underlying decoding error
	Cause error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode HTTP %d response (%s) into %s: %v",
		e.StatusCode, e.ContentType, e.Target, e.Cause)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// ServiceUnavailableError is returned when no endpoint of a service passed
// a health check.
type ServiceUnavailableError struct {
	// Service is the service that failed
	Service string

	// Attempts is the number of endpoints tried
	Attempts int

	// Cause is the error of the last endpoint tried
	Cause error
}

// Error implements the error interface.
func (e *ServiceUnavailableError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("service '%s' is not available", e.Service)
	}
	return fmt.Sprintf("service '%s' is not available: %v", e.Service, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ServiceUnavailableError) Unwrap() error {
	return e.Cause
}

// IsClientError reports whether err is a 4xx classification.
func IsClientError(err error) bool {
	var target *ClientRequestError
	return errors.As(err, &target)
}

// StatusCode extracts the HTTP status code from a classified error, or 0.
func StatusCode(err error) int {
	var (
		svcErr  *ServiceError
		cliErr  *ClientRequestError
		respErr *ResponseError
		decErr  *DecodeError
	)
	switch {
	case errors.As(err, &svcErr):
		return svcErr.Status
	case errors.As(err, &cliErr):
		return cliErr.StatusCode
	case errors.As(err, &respErr):
		return respErr.StatusCode
	case errors.As(err, &decErr):
		return decErr.StatusCode
	}
	return 0
}
