package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/courier/pkg/restclient"
)

// ProbeMetrics tracks failover probe outcomes.
type ProbeMetrics struct {
	// Service health status (gauge: 1=healthy, 0=unhealthy)
	health *prometheus.GaugeVec

	// Probe duration histogram
	duration *prometheus.HistogramVec

	// Probe runs by result
	probes *prometheus.CounterVec
}

// NewProbeMetrics creates and registers the probe metrics.
func NewProbeMetrics(cfg Config, registry *prometheus.Registry) *ProbeMetrics {
	pm := &ProbeMetrics{
		health: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "service_health",
				Help:      "Service health from the last probe (1=healthy, 0=unhealthy)",
			},
			[]string{"service"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "probe_duration_seconds",
				Help:      "Failover probe duration in seconds",
				Buckets:   cfg.ProbeDurationBuckets,
			},
			[]string{"service"},
		),

		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "probes_total",
				Help:      "Total number of failover probes by result",
			},
			[]string{"service", "result"},
		),
	}

	registry.MustRegister(pm.health, pm.duration, pm.probes)
	return pm
}

// ObserveProbe records a probe result. It has the signature expected by
// restclient.WithObserver.
func (c *Collector) ObserveProbe(r restclient.ProbeResult) {
	if !c.config.Enabled {
		return
	}

	svc := c.serviceLabel(r.Service.String())
	result := "healthy"
	health := 1.0
	if !r.Healthy() {
		result = "unhealthy"
		health = 0
		c.client.errors.WithLabelValues(svc, ErrorKind(r.Err)).Inc()
	}

	c.probe.health.WithLabelValues(svc).Set(health)
	c.probe.duration.WithLabelValues(svc).Observe(r.Duration.Seconds())
	c.probe.probes.WithLabelValues(svc, result).Inc()
}
