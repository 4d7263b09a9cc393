package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// HeaderAPIKey carries a key when the Authorization header is not used.
const HeaderAPIKey = "X-API-Key"

// Middleware rejects requests without a valid API key. Keys are read from
// "Authorization: Bearer <key>" or the X-API-Key header.
type Middleware struct {
	keyring *Keyring
	exempt  map[string]bool
	logger  *slog.Logger
}

// NewMiddleware creates the middleware. Requests for exempt paths pass
// without a key. An empty keyring lets every request through.
func NewMiddleware(keyring *Keyring, logger *slog.Logger, exempt ...string) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Middleware{
		keyring: keyring,
		exempt:  make(map[string]bool, len(exempt)),
		logger:  logger.With("component", "auth"),
	}
	for _, path := range exempt {
		m.exempt[path] = true
	}
	return m
}

// Handle wraps next.
func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.exempt[r.URL.Path] || m.keyring.Len() == 0 {
			next.ServeHTTP(w, r)
			return
		}

		value, ok := extractKey(r)
		if !ok {
			m.logger.Warn("missing API key", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			unauthorized(w)
			return
		}

		name, err := m.keyring.Authenticate(value)
		if err != nil {
			m.logger.Warn("rejected API key", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			unauthorized(w)
			return
		}

		m.logger.Debug("request authenticated", "key", name, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, name)))
	})
}

func extractKey(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, found := strings.Cut(h, " ")
		if found && strings.EqualFold(scheme, "Bearer") && token != "" {
			return strings.TrimSpace(token), true
		}
	}
	if v := r.Header.Get(HeaderAPIKey); v != "" {
		return v, true
	}
	return "", false
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="courier"`)
	http.Error(w, "missing or invalid API key", http.StatusUnauthorized)
}
