package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/courier/pkg/restclient"
	"mercator-hq/courier/pkg/service"
	"mercator-hq/courier/pkg/telemetry/health"
	"mercator-hq/courier/pkg/telemetry/logging"
	"mercator-hq/courier/pkg/telemetry/metrics"
	"mercator-hq/courier/pkg/telemetry/tracing"
)

// Job names used with the scheduler.
const (
	JobProbe     = "probe"
	JobRetention = "retention"
)

// Config configures a Monitor.
type Config struct {
	// Schedule is the cron expression of probe runs (default "@every 30s")
	Schedule string

	// HealthPath is probed on every endpoint (default "/application.wadl")
	HealthPath string

	// Concurrency bounds the services probed at once
	Concurrency int

	// Retention is how long history is kept; zero keeps it forever
	Retention time.Duration

	// RetentionSchedule is the cron expression of the retention sweep
	RetentionSchedule string
}

// ServiceLister lists the services to probe. The registry implements it;
// it is consulted on every run so services added by a reload are picked up.
type ServiceLister interface {
	Services() []service.Service
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithHistory stores every probe result.
func WithHistory(h *History) Option {
	return func(m *Monitor) { m.history = h }
}

// WithMetrics records probe outcomes.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Monitor) { m.collector = c }
}

// WithHealth feeds probe outcomes to the readiness checker.
func WithHealth(c *health.Checker) Option {
	return func(m *Monitor) { m.checker = c }
}

// WithTracer records a span per run.
func WithTracer(t *tracing.Tracer) Option {
	return func(m *Monitor) { m.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// RunSummary describes one probe run.
type RunSummary struct {
	RunID     string
	Started   time.Time
	Duration  time.Duration
	Results   []restclient.ProbeResult
	Healthy   int
	Unhealthy int
}

// Monitor probes every registered service on a schedule and fans the
// results out to metrics, readiness and history.
type Monitor struct {
	config    Config
	services  ServiceLister
	probe     *restclient.Probe
	history   *History
	collector *metrics.Collector
	checker   *health.Checker
	tracer    *tracing.Tracer
	scheduler *Scheduler
	logger    *slog.Logger

	mu      sync.RWMutex
	lastRun *RunSummary
}

// New creates a monitor probing the services listed by services through
// the targets of source.
func New(cfg Config, services ServiceLister, source restclient.TargetSource, opts ...Option) *Monitor {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 30s"
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = restclient.DefaultHealthPath
	}

	m := &Monitor{
		config:   cfg,
		services: services,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "monitor")
	m.scheduler = NewScheduler(m.logger)

	probeOpts := []restclient.ProbeOption{
		restclient.WithHealthPath(cfg.HealthPath),
		restclient.WithConcurrency(cfg.Concurrency),
		restclient.WithProbeLogger(m.logger),
	}
	if m.collector != nil {
		probeOpts = append(probeOpts, restclient.WithObserver(m.collector.ObserveProbe))
	}
	if m.checker != nil {
		probeOpts = append(probeOpts, restclient.WithObserver(m.checker.ObserveProbe))
		if m.history != nil {
			m.checker.RegisterCheck("history", m.history.Ping)
		}
	}
	m.probe = restclient.NewProbe(source, probeOpts...)

	return m
}

// RunOnce probes every service once. The returned error reports history
// failures only; probe failures are part of the summary.
func (m *Monitor) RunOnce(ctx context.Context) (RunSummary, error) {
	runID := uuid.NewString()
	ctx = logging.WithRequestID(ctx, runID)

	var span trace.Span
	if m.tracer != nil {
		ctx, span = m.tracer.Start(ctx, "probe run",
			trace.WithAttributes(
				attribute.String(tracing.AttrRequestID, runID),
				attribute.String(tracing.AttrProbePath, m.config.HealthPath),
			),
		)
		defer span.End()
	}

	services := m.services.Services()
	summary := RunSummary{RunID: runID, Started: time.Now()}
	summary.Results = m.probe.ProbeAll(ctx, services)
	summary.Duration = time.Since(summary.Started)

	var errs []error
	for _, r := range summary.Results {
		if r.Healthy() {
			summary.Healthy++
		} else {
			summary.Unhealthy++
		}

		if span != nil {
			attrs := append(tracing.ServiceAttributes(r.Service),
				attribute.Int(tracing.AttrAttempts, len(r.Endpoints)),
				attribute.String(tracing.AttrEndpoint, r.Endpoint()),
				attribute.Bool("courier.probe.healthy", r.Healthy()),
			)
			span.AddEvent("service probed", trace.WithAttributes(attrs...))
		}

		if m.history != nil {
			if err := m.history.Record(ctx, runID, r); err != nil {
				errs = append(errs, err)
			}
		}
	}

	err := errors.Join(errs...)
	if span != nil {
		tracing.SetStatus(span, err)
	}
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to record probe history", "error", err)
	}

	m.logger.InfoContext(ctx, "probe run completed",
		"services", len(services),
		"healthy", summary.Healthy,
		"unhealthy", summary.Unhealthy,
		"duration_ms", summary.Duration.Milliseconds(),
	)

	m.mu.Lock()
	m.lastRun = &summary
	m.mu.Unlock()

	return summary, err
}

// LastRun returns the most recent run, or nil before the first one.
func (m *Monitor) LastRun() *RunSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRun
}

// Start runs a probe immediately, then schedules probes and the retention
// sweep. It returns once the scheduler runs; cancelling ctx stops it.
func (m *Monitor) Start(ctx context.Context) error {
	if err := m.scheduler.Add(JobProbe, m.config.Schedule, func() {
		_, _ = m.RunOnce(ctx)
	}); err != nil {
		return err
	}

	if m.history != nil && m.config.Retention > 0 && m.config.RetentionSchedule != "" {
		if err := m.scheduler.Add(JobRetention, m.config.RetentionSchedule, func() {
			_, _ = m.Prune(ctx)
		}); err != nil {
			return err
		}
	}

	_, _ = m.RunOnce(ctx)

	m.scheduler.Start(ctx)
	return nil
}

// Prune removes history older than the retention period.
func (m *Monitor) Prune(ctx context.Context) (int64, error) {
	if m.history == nil || m.config.Retention <= 0 {
		return 0, nil
	}

	deleted, err := m.history.Prune(ctx, time.Now().Add(-m.config.Retention))
	if err != nil {
		m.logger.ErrorContext(ctx, "history pruning failed", "error", err)
		return 0, err
	}
	if deleted > 0 {
		m.logger.InfoContext(ctx, "history pruned", "deleted_count", deleted)
	}
	return deleted, nil
}

// NextRun returns the next scheduled probe run.
func (m *Monitor) NextRun() time.Time {
	return m.scheduler.NextRun(JobProbe)
}

// Stop stops the scheduler and waits for a running probe.
func (m *Monitor) Stop() {
	m.scheduler.Stop()
}
