package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/courier/pkg/service"
)

// CacheMetrics tracks client cache construction.
type CacheMetrics struct {
	// Target lists built per service
	builds *prometheus.CounterVec

	// Endpoints in the last build per service
	endpoints *prometheus.GaugeVec
}

// NewCacheMetrics creates and registers the cache metrics.
func NewCacheMetrics(cfg Config, registry *prometheus.Registry) *CacheMetrics {
	cm := &CacheMetrics{
		builds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_builds_total",
				Help:      "Total number of service target lists built by the client cache",
			},
			[]string{"service"},
		),

		endpoints: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_endpoints",
				Help:      "Number of endpoint clients cached per service",
			},
			[]string{"service"},
		),
	}

	registry.MustRegister(cm.builds, cm.endpoints)
	return cm
}

// ObserveCacheBuild records a cache build. It has the signature expected by
// clientcache.WithBuildObserver.
func (c *Collector) ObserveCacheBuild(svc service.Service, endpoints int) {
	if !c.config.Enabled {
		return
	}
	label := c.serviceLabel(svc.String())
	c.cache.builds.WithLabelValues(label).Inc()
	c.cache.endpoints.WithLabelValues(label).Set(float64(endpoints))
}

// ProxyMetrics tracks proxy routing decisions.
type ProxyMetrics struct {
	// Selections by matched route prefix, "direct" for no match
	selections *prometheus.CounterVec
}

// NewProxyMetrics creates and registers the proxy metrics.
func NewProxyMetrics(cfg Config, registry *prometheus.Registry) *ProxyMetrics {
	pm := &ProxyMetrics{
		selections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "proxy_selections_total",
				Help:      "Total number of proxy selections by route",
			},
			[]string{"route"},
		),
	}

	registry.MustRegister(pm.selections)
	return pm
}

// ObserveProxySelection counts a proxy selection. It has the signature
// expected by proxy.WithSelectionHook.
func (c *Collector) ObserveProxySelection(route string) {
	if !c.config.Enabled {
		return
	}
	if !c.routes.Allow(route) {
		route = OtherLabel
	}
	c.proxy.selections.WithLabelValues(route).Inc()
}
