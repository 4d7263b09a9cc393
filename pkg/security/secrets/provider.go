package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned by providers that do not hold a secret.
var ErrNotFound = errors.New("secret not found")

// Provider retrieves named secrets from one backend.
type Provider interface {
	// Name identifies the backend in logs ("env", "file").
	Name() string

	// Get returns the value of the secret, or an error wrapping ErrNotFound.
	Get(ctx context.Context, name string) (string, error)
}

// Refresher is implemented by providers that cache values themselves.
type Refresher interface {
	// Refresh drops cached values so the next Get reads the backend.
	Refresh()
}
