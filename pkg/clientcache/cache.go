package clientcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"mercator-hq/courier/pkg/registry"
	"mercator-hq/courier/pkg/restclient"
	"mercator-hq/courier/pkg/service"
)

// ErrClosed is returned by a closed cache.
var ErrClosed = errors.New("client cache is closed")

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClientOptions passes options to every client the cache builds.
func WithClientOptions(opts ...restclient.Option) Option {
	return func(c *Cache) {
		c.clientOpts = append(c.clientOpts, opts...)
	}
}

// WithBuildObserver calls fn after the targets of a service were built and
// published, with the number of endpoints.
func WithBuildObserver(fn func(svc service.Service, endpoints int)) Option {
	return func(c *Cache) { c.onBuild = fn }
}

// Cache lazily builds and keeps one client per endpoint of every service.
// Entries live until Close; settings changes in the registry do not affect
// services already built.
//
// Cache is safe for concurrent use. Concurrent first access to a service
// builds its clients exactly once.
type Cache struct {
	registry   *registry.Registry
	clientOpts []restclient.Option
	logger     *slog.Logger
	onBuild    func(service.Service, int)

	mu      sync.RWMutex
	targets map[service.Service][]*restclient.Target
	closed  bool

	group  singleflight.Group
	warned sync.Map // service.Service -> struct{}

	defaultClient *restclient.Client
}

// New creates a cache over reg. The default client for ad hoc URLs is built
// here, once.
func New(reg *registry.Registry, opts ...Option) (*Cache, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}

	c := &Cache{
		registry: reg,
		logger:   slog.Default(),
		targets:  make(map[service.Service][]*restclient.Target),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "clientcache")

	defaultClient, err := restclient.New(nil, c.clientOptions("default")...)
	if err != nil {
		return nil, fmt.Errorf("failed to create default client: %w", err)
	}
	c.defaultClient = defaultClient

	return c, nil
}

func (c *Cache) clientOptions(label string) []restclient.Option {
	opts := []restclient.Option{restclient.WithLogger(c.logger), restclient.WithLabel(label)}
	return append(opts, c.clientOpts...)
}

// Target returns the target of the first endpoint of svc. Services with more
// than one endpoint should use Targets; a warning is logged once.
func (c *Cache) Target(ctx context.Context, svc service.Service) (*restclient.Target, error) {
	targets, err := c.Targets(ctx, svc)
	if err != nil {
		return nil, err
	}

	if len(targets) > 1 {
		if _, loaded := c.warned.LoadOrStore(svc, struct{}{}); !loaded {
			c.logger.Warn("service has more than one endpoint, only the first is used; use Targets for failover",
				"service", svc.String(),
				"endpoints", len(targets),
			)
		}
	}
	return targets[0], nil
}

// Targets returns one target per endpoint of svc in registration order.
func (c *Cache) Targets(ctx context.Context, svc service.Service) ([]*restclient.Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if targets, ok, err := c.lookup(svc); ok || err != nil {
		return targets, err
	}

	v, err, shared := c.group.Do(groupKey(svc), func() (any, error) {
		return c.build(svc)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("joined concurrent client build", "service", svc.String())
	}
	return copyTargets(v.([]*restclient.Target)), nil
}

// Client returns the client of the first endpoint of svc.
func (c *Cache) Client(ctx context.Context, svc service.Service) (*restclient.Client, error) {
	targets, err := c.Targets(ctx, svc)
	if err != nil {
		return nil, err
	}
	return targets[0].Client(), nil
}

// TargetURL returns a target for an arbitrary absolute URL on the default client.
func (c *Cache) TargetURL(rawURL string) (*restclient.Target, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	return c.defaultClient.Target(rawURL)
}

// DefaultClient returns the client used by TargetURL.
func (c *Cache) DefaultClient() *restclient.Client {
	return c.defaultClient
}

// Services returns the services with built clients, sorted by name.
func (c *Cache) Services() []service.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]service.Service, 0, len(c.targets))
	for svc := range c.targets {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Close closes every client. Later lookups fail with ErrClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	all := c.targets
	c.targets = make(map[service.Service][]*restclient.Target)
	c.mu.Unlock()

	var errs []error
	for _, targets := range all {
		errs = append(errs, closeClients(targets))
	}
	errs = append(errs, c.defaultClient.Close())
	c.logger.Debug("client cache closed", "services", len(all))
	return errors.Join(errs...)
}

func (c *Cache) lookup(svc service.Service) ([]*restclient.Target, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, false, ErrClosed
	}
	targets, ok := c.targets[svc]
	if !ok {
		return nil, false, nil
	}
	return copyTargets(targets), true, nil
}

// build creates the clients of svc and publishes them unless another build
// won; clients that are not published are closed.
func (c *Cache) build(svc service.Service) ([]*restclient.Target, error) {
	if targets, ok, err := c.lookup(svc); ok || err != nil {
		return targets, err
	}

	endpoints, err := c.registry.Settings(svc)
	if err != nil {
		return nil, err
	}

	built := make([]*restclient.Target, 0, len(endpoints))
	for _, ep := range endpoints {
		client, err := restclient.New(ep, c.clientOptions(svc.String())...)
		if err != nil {
			closeClients(built)
			return nil, fmt.Errorf("service %s: %w", svc, err)
		}
		target, err := client.EndpointTarget()
		if err != nil {
			client.Close()
			closeClients(built)
			return nil, fmt.Errorf("service %s: %w", svc, err)
		}
		built = append(built, target)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		closeClients(built)
		return nil, ErrClosed
	}
	if existing, ok := c.targets[svc]; ok {
		c.mu.Unlock()
		closeClients(built)
		return copyTargets(existing), nil
	}
	c.targets[svc] = built
	c.mu.Unlock()

	c.logger.Info("service clients created", "service", svc.String(), "endpoints", len(built))
	if c.onBuild != nil {
		c.onBuild(svc, len(built))
	}
	return copyTargets(built), nil
}

func closeClients(targets []*restclient.Target) error {
	var errs []error
	for _, t := range targets {
		errs = append(errs, t.Client().Close())
	}
	return errors.Join(errs...)
}

func copyTargets(targets []*restclient.Target) []*restclient.Target {
	return append([]*restclient.Target(nil), targets...)
}

// groupKey is unambiguous even when names contain the discriminator separator.
func groupKey(svc service.Service) string {
	return fmt.Sprintf("%q/%q", svc.Name, svc.Discriminator)
}
