package tls

import "fmt"

// CryptoConfigError reports a failure to load key material or to build a
// TLS configuration. The underlying cause is preserved.
type CryptoConfigError struct {
	// Op is the operation that failed (e.g., "load keystore", "protocol")
	Op string

	// Path is the keystore or truststore file involved (if any)
	Path string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *CryptoConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("tls %s %s: %v", e.Op, e.Path, e.Cause)
	}
	return fmt.Sprintf("tls %s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *CryptoConfigError) Unwrap() error {
	return e.Cause
}
