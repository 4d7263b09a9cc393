package auth

import "context"

// Key is one API key accepted by the monitor server.
type Key struct {
	// Name identifies the holder in logs; it is never the secret.
	Name string

	// Value is the secret presented by clients.
	Value string
}

type contextKey struct{}

// KeyName returns the name of the key that authenticated the request.
func KeyName(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(contextKey{}).(string)
	return name, ok
}
