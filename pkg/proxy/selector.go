package proxy

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
)

// ProxyFunc is the http.Transport.Proxy policy signature.
type ProxyFunc func(*http.Request) (*url.URL, error)

// Route values reported to a selection hook when no prefix matched.
const (
	RoutePrevious = "previous"
	RouteDirect   = "direct"
)

// Mapping routes URLs starting with Prefix through Proxies.
type Mapping struct {
	// Prefix is matched against the absolute request URL
	Prefix string

	// Proxies are tried by the transport in order (only the first is used by net/http)
	Proxies []*url.URL
}

// Option configures a Selector.
type Option func(*Selector)

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Selector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSelectionHook registers fn to be called for every selection with the
// matched prefix, RoutePrevious or RouteDirect.
func WithSelectionHook(fn func(route string)) Option {
	return func(s *Selector) { s.hook = fn }
}

// Selector chooses proxies by URL prefix.
//
// Selector is thread-safe. Reads are lock-free; registrations are
// serialized and published atomically.
type Selector struct {
	previous ProxyFunc
	mappings atomic.Pointer[[]Mapping]
	mu       sync.Mutex
	logger   *slog.Logger
	hook     func(route string)

	installed sync.Map // *http.Transport -> struct{}, until Release
	count     atomic.Int64
}

// NewSelector creates a selector falling back to previous (which may be nil).
func NewSelector(previous ProxyFunc, opts ...Option) *Selector {
	s := &Selector{
		previous: previous,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "proxy")

	empty := []Mapping{}
	s.mappings.Store(&empty)

	return s
}

// Register adds a mapping for prefix unless one already exists.
// It reports whether the mapping was added.
func (s *Selector) Register(prefix string, proxies ...*url.URL) (bool, error) {
	if prefix == "" {
		return false, errors.New("proxy mapping prefix is empty")
	}
	if len(proxies) == 0 {
		return false, errors.New("proxy mapping needs at least one proxy")
	}
	for _, p := range proxies {
		if p == nil || p.Host == "" {
			return false, errors.New("proxy url must have a host")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := *s.mappings.Load()
	for _, m := range current {
		if m.Prefix == prefix {
			s.logger.Debug("proxy mapping already registered",
				"target", prefix,
				"proxy", m.Proxies[0].Host,
			)
			return false, nil
		}
	}

	cloned := make([]*url.URL, len(proxies))
	for i, p := range proxies {
		// Only the proxy address matters, path and query are dropped.
		cloned[i] = &url.URL{Scheme: schemeOr(p.Scheme, "http"), Host: p.Host, User: p.User}
	}

	next := make([]Mapping, len(current), len(current)+1)
	copy(next, current)
	next = append(next, Mapping{Prefix: prefix, Proxies: cloned})
	s.mappings.Store(&next)

	s.logger.Info("proxy mapping registered",
		"target", prefix,
		"proxy", cloned[0].Redacted(),
	)

	return true, nil
}

// Mappings returns the registered mappings in registration order.
func (s *Selector) Mappings() []Mapping {
	current := *s.mappings.Load()
	return append([]Mapping(nil), current...)
}

// Select returns the proxies for u. An empty result means a direct connection.
func (s *Selector) Select(u *url.URL) []*url.URL {
	return s.selectWith(u, s.previous)
}

func (s *Selector) selectWith(u *url.URL, previous ProxyFunc) []*url.URL {
	if u == nil {
		return nil
	}

	target := u.String()
	for _, m := range *s.mappings.Load() {
		if strings.HasPrefix(target, m.Prefix) {
			s.logger.Debug("selected proxy", "target", target, "proxy", m.Proxies[0].Redacted())
			s.observe(m.Prefix)
			return append([]*url.URL(nil), m.Proxies...)
		}
	}

	if previous != nil {
		p, err := previous(&http.Request{URL: u, Header: make(http.Header)})
		if err != nil {
			s.logger.Warn("previous proxy policy failed", "target", target, "error", err)
		}
		if p != nil {
			s.logger.Debug("default proxy", "target", target, "proxy", p.Redacted())
			s.observe(RoutePrevious)
			return []*url.URL{p}
		}
	}

	s.logger.Debug("no proxy", "target", target)
	s.observe(RouteDirect)
	return nil
}

// ProxyFunc implements the http.Transport.Proxy policy.
func (s *Selector) ProxyFunc(req *http.Request) (*url.URL, error) {
	proxies := s.Select(req.URL)
	if len(proxies) == 0 {
		return nil, nil
	}
	return proxies[0], nil
}

// ConnectFailed reports a failed connection to target through proxyAddr.
// It only logs; the caller decides whether to fail over.
func (s *Selector) ConnectFailed(target *url.URL, proxyAddr string, err error) {
	t := ""
	if target != nil {
		t = target.Redacted()
	}
	s.logger.Warn("failed to connect through proxy",
		"target", t,
		"proxy", proxyAddr,
		"error", err,
	)
}

// Install makes s the proxy policy of t. The policy t had before is kept as
// the fallback for URLs without a mapping; a transport without one falls
// back to the selector's own previous policy. Installing twice is a no-op
// until the transport is released.
func (s *Selector) Install(t *http.Transport) {
	if _, loaded := s.installed.LoadOrStore(t, struct{}{}); loaded {
		return
	}
	s.count.Add(1)

	previous := s.previous
	if t.Proxy != nil {
		previous = t.Proxy
	}
	t.Proxy = func(req *http.Request) (*url.URL, error) {
		proxies := s.selectWith(req.URL, previous)
		if len(proxies) == 0 {
			return nil, nil
		}
		return proxies[0], nil
	}

	s.logger.Debug("proxy selector installed")
}

// Release drops the selector's reference to t. The transport keeps its
// proxy policy; call it when the transport is discarded.
func (s *Selector) Release(t *http.Transport) {
	if _, loaded := s.installed.LoadAndDelete(t); loaded {
		s.count.Add(-1)
	}
}

// Installed returns the number of transports installed and not released.
func (s *Selector) Installed() int {
	return int(s.count.Load())
}

func (s *Selector) observe(route string) {
	if s.hook != nil {
		s.hook(route)
	}
}

func schemeOr(scheme, def string) string {
	if scheme == "" {
		return def
	}
	return scheme
}
