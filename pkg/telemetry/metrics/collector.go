package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// OtherLabel replaces label values once the cardinality limit is reached.
const OtherLabel = "other"

// Config controls the metrics collector.
type Config struct {
	// Enabled turns recording on; a disabled collector still serves /metrics
	Enabled bool

	// Namespace prefixes every metric name (default "courier")
	Namespace string

	// Subsystem is inserted between namespace and name (optional)
	Subsystem string

	// RequestDurationBuckets are the client request histogram buckets
	RequestDurationBuckets []float64

	// ProbeDurationBuckets are the failover probe histogram buckets
	ProbeDurationBuckets []float64

	// MaxCardinality bounds the distinct service and route label values
	MaxCardinality int

	// ProcessCollectors registers the Go runtime and process collectors
	ProcessCollectors bool
}

// DefaultConfig returns an enabled configuration with the default buckets.
func DefaultConfig() Config {
	return Config{
		Enabled:                true,
		Namespace:              "courier",
		RequestDurationBuckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ProbeDurationBuckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		MaxCardinality:         1000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Namespace == "" {
		c.Namespace = d.Namespace
	}
	if len(c.RequestDurationBuckets) == 0 {
		c.RequestDurationBuckets = d.RequestDurationBuckets
	}
	if len(c.ProbeDurationBuckets) == 0 {
		c.ProbeDurationBuckets = d.ProbeDurationBuckets
	}
	if c.MaxCardinality <= 0 {
		c.MaxCardinality = d.MaxCardinality
	}
	return c
}

// Collector owns the courier metrics and the registry they are exposed from.
//
// Metrics:
//   - courier_client_requests_total{service,code,method}
//   - courier_client_request_duration_seconds{service,method}
//   - courier_client_errors_total{service,kind}
//   - courier_service_health{service}
//   - courier_probe_duration_seconds{service}
//   - courier_probes_total{service,result}
//   - courier_cache_builds_total{service}
//   - courier_cache_endpoints{service}
//   - courier_proxy_selections_total{route}
type Collector struct {
	config   Config
	registry *prometheus.Registry

	client *ClientMetrics
	probe  *ProbeMetrics
	cache  *CacheMetrics
	proxy  *ProxyMetrics

	services *CardinalityLimiter
	routes   *CardinalityLimiter
}

// NewCollector creates a collector. A nil registry gets a fresh one.
func NewCollector(cfg Config, registry *prometheus.Registry) *Collector {
	cfg = cfg.withDefaults()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.ProcessCollectors {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return &Collector{
		config:   cfg,
		registry: registry,
		client:   NewClientMetrics(cfg, registry),
		probe:    NewProbeMetrics(cfg, registry),
		cache:    NewCacheMetrics(cfg, registry),
		proxy:    NewProxyMetrics(cfg, registry),
		services: NewCardinalityLimiter(cfg.MaxCardinality),
		routes:   NewCardinalityLimiter(cfg.MaxCardinality),
	}
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Enabled reports whether recording is on.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// serviceLabel bounds the service label cardinality.
func (c *Collector) serviceLabel(name string) string {
	if c.services.Allow(name) {
		return name
	}
	return OtherLabel
}

// RecordError counts a failed call by error kind (see ErrorKind).
func (c *Collector) RecordError(serviceName, kind string) {
	if !c.config.Enabled {
		return
	}
	c.client.errors.WithLabelValues(c.serviceLabel(serviceName), kind).Inc()
}

// CardinalityLimiter caps the number of distinct label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter allowing maxCardinality values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is known or still fits under the limit.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the number of tracked values.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
