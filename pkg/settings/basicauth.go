package settings

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// basicPrefix is the scheme prefix of a Basic authorization header value.
const basicPrefix = "Basic "

// BasicAuth is a username/password credential sent with the HTTP Basic scheme.
// Both fields are required; construct it with NewBasicAuth.
type BasicAuth struct {
	username string
	password string
}

// NewBasicAuth creates a credential. An empty username is a configuration
// error; an empty password is allowed.
func NewBasicAuth(username, password string) (*BasicAuth, error) {
	if username == "" {
		return nil, &ConfigurationError{Field: "basic_auth.username", Message: "username is required"}
	}
	return &BasicAuth{username: username, password: password}, nil
}

// NewBasicAuthPtr creates a credential from optional inputs.
// A nil username or nil password is a configuration error.
func NewBasicAuthPtr(username, password *string) (*BasicAuth, error) {
	if username == nil {
		return nil, &ConfigurationError{Field: "basic_auth.username", Message: "username is required", Cause: ErrNilArgument}
	}
	if password == nil {
		return nil, &ConfigurationError{Field: "basic_auth.password", Message: "password is required", Cause: ErrNilArgument}
	}
	return NewBasicAuth(*username, *password)
}

// Username returns the user name.
func (b *BasicAuth) Username() string { return b.username }

// Password returns the password.
func (b *BasicAuth) Password() string { return b.password }

// AuthorizationHeader returns the Authorization header value for the credential.
func (b *BasicAuth) AuthorizationHeader() string {
	raw := b.username + ":" + b.password
	return basicPrefix + base64.StdEncoding.EncodeToString([]byte(raw))
}

// ParseAuthorizationHeader decodes a Basic Authorization header value.
// The decoded credential is split on the first colon, so the password may
// itself contain colons. An empty username is rejected as NewBasicAuth
// rejects it.
func ParseAuthorizationHeader(header *string) (*BasicAuth, error) {
	if header == nil {
		return nil, fmt.Errorf("authorization header: %w", ErrNilArgument)
	}

	encoded, ok := strings.CutPrefix(*header, basicPrefix)
	if !ok {
		return nil, fmt.Errorf("authorization header must start with %q: %w", basicPrefix, ErrInvalidFormat)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("authorization header is not base64 (%v): %w", err, ErrInvalidFormat)
	}

	username, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return nil, fmt.Errorf("authorization header has no credential separator: %w", ErrInvalidFormat)
	}
	if username == "" {
		return nil, fmt.Errorf("authorization header has an empty username: %w", ErrInvalidFormat)
	}

	return &BasicAuth{username: username, password: password}, nil
}

// String returns the credential with the password masked.
func (b *BasicAuth) String() string {
	return fmt.Sprintf("BasicAuth{username=%s, password=****}", b.username)
}
