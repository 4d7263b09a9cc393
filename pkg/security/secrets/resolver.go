package secrets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"time"
)

// referencePattern matches ${secret:name} references.
var referencePattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// HasReference reports whether s contains a ${secret:name} reference.
func HasReference(s string) bool {
	return referencePattern.MatchString(s)
}

// Resolver looks secrets up across an ordered list of providers. The first
// provider holding a secret wins; providers reporting ErrNotFound are
// skipped, any other failure stops the lookup.
type Resolver struct {
	providers []Provider
	cache     *cache
	logger    *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCacheTTL keeps resolved values for ttl. At most maxSize values are
// kept; a non-positive maxSize means unbounded.
func WithCacheTTL(ttl time.Duration, maxSize int) Option {
	return func(r *Resolver) {
		r.cache = newCache(ttl, maxSize)
	}
}

// WithLogger sets the resolver logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a resolver over providers, tried in order.
func NewResolver(providers []Provider, opts ...Option) *Resolver {
	r := &Resolver{
		providers: providers,
		cache:     newCache(0, 0),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "secrets")
	return r
}

// Get returns the value of the named secret.
func (r *Resolver) Get(ctx context.Context, name string) (string, error) {
	if value, ok := r.cache.get(name); ok {
		return value, nil
	}

	for _, p := range r.providers {
		value, err := p.Get(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("secret %q from %s provider: %w", name, p.Name(), err)
		}

		r.logger.Debug("secret resolved", "name", name, "provider", p.Name())
		r.cache.set(name, value)
		return value, nil
	}

	return "", fmt.Errorf("secret %q: %w", name, ErrNotFound)
}

// ResolveReferences replaces every ${secret:name} reference in s. Strings
// without references are returned unchanged. Every unresolved reference is
// reported.
func (r *Resolver) ResolveReferences(ctx context.Context, s string) (string, error) {
	if !HasReference(s) {
		return s, nil
	}

	var errs []error
	resolved := referencePattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := referencePattern.FindStringSubmatch(ref)[1]
		value, err := r.Get(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return ref
		}
		return value
	})
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return resolved, nil
}

// Refresh drops cached values in the resolver and its providers.
func (r *Resolver) Refresh() {
	r.cache.clear()
	for _, p := range r.providers {
		if rf, ok := p.(Refresher); ok {
			rf.Refresh()
		}
	}
}

// Close releases providers holding resources such as directory watches.
func (r *Resolver) Close() error {
	var errs []error
	for _, p := range r.providers {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
