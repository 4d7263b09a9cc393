package restclient

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"mercator-hq/courier/pkg/service"
)

// DefaultHealthPath is probed when no path is given.
const DefaultHealthPath = "/application.wadl"

// DefaultProbeConcurrency bounds how many services ProbeAll checks at once.
const DefaultProbeConcurrency = 8

// TargetSource resolves the ordered endpoint targets of a service.
type TargetSource interface {
	Targets(ctx context.Context, svc service.Service) ([]*Target, error)
}

// EndpointResult is the outcome of probing one endpoint.
type EndpointResult struct {
	// URL is the probed URL without credentials
	URL string

	// Duration is how long the request took
	Duration time.Duration

	// Err is nil when the endpoint answered with a success status
	Err error
}

// ProbeResult is the outcome of probing a service.
type ProbeResult struct {
	// Service is the probed service
	Service service.Service

	// Path is the probed path
	Path string

	// Endpoints holds one result per endpoint tried, in order
	Endpoints []EndpointResult

	// Started is when the probe began
	Started time.Time

	// Duration is the total probe time
	Duration time.Duration

	// Err is nil when an endpoint succeeded
	Err error
}

// Healthy reports whether an endpoint passed.
func (r ProbeResult) Healthy() bool {
	return r.Err == nil
}

// Endpoint returns the URL of the endpoint that passed, or "".
func (r ProbeResult) Endpoint() string {
	if r.Err != nil || len(r.Endpoints) == 0 {
		return ""
	}
	return r.Endpoints[len(r.Endpoints)-1].URL
}

// ProbeOption configures a Probe.
type ProbeOption func(*Probe)

// WithHealthPath sets the default path probed by HealthCheck.
func WithHealthPath(path string) ProbeOption {
	return func(p *Probe) {
		if path != "" {
			p.path = path
		}
	}
}

// WithProbeLogger sets the logger.
func WithProbeLogger(logger *slog.Logger) ProbeOption {
	return func(p *Probe) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithObserver calls fn with every completed probe.
func WithObserver(fn func(ProbeResult)) ProbeOption {
	return func(p *Probe) { p.observers = append(p.observers, fn) }
}

// WithConcurrency bounds ProbeAll parallelism.
func WithConcurrency(n int) ProbeOption {
	return func(p *Probe) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// Probe checks service availability by trying endpoints in order until one
// answers with a success status. It never retries an endpoint.
type Probe struct {
	source      TargetSource
	path        string
	concurrency int
	observers   []func(ProbeResult)
	logger      *slog.Logger
}

// NewProbe creates a probe resolving targets from source.
func NewProbe(source TargetSource, opts ...ProbeOption) *Probe {
	p := &Probe{
		source:      source,
		path:        DefaultHealthPath,
		concurrency: DefaultProbeConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "probe")
	return p
}

// Path returns the default probe path.
func (p *Probe) Path() string {
	return p.path
}

// HealthCheck probes the default path of svc.
func (p *Probe) HealthCheck(ctx context.Context, svc service.Service) error {
	return p.HealthCheckPath(ctx, svc, p.path)
}

// HealthCheckPath probes path on the endpoints of svc. It returns nil on the
// first success and a *ServiceUnavailableError wrapping the last failure
// otherwise. Configuration errors are returned unwrapped.
func (p *Probe) HealthCheckPath(ctx context.Context, svc service.Service, path string) error {
	return p.Run(ctx, svc, path).Err
}

// Run probes path on the endpoints of svc and reports every attempt.
func (p *Probe) Run(ctx context.Context, svc service.Service, path string) ProbeResult {
	result := ProbeResult{Service: svc, Path: path, Started: time.Now()}
	defer func() {
		for _, fn := range p.observers {
			fn(result)
		}
	}()

	targets, err := p.source.Targets(ctx, svc)
	if err != nil {
		result.Err = err
		result.Duration = time.Since(result.Started)
		return result
	}

	var lastErr error
	for _, target := range targets {
		t := target.Path(path)
		start := time.Now()
		err := checkTarget(ctx, t)
		result.Endpoints = append(result.Endpoints, EndpointResult{
			URL:      t.String(),
			Duration: time.Since(start),
			Err:      err,
		})

		if err == nil {
			p.logger.Debug("service available", "service", svc.String(), "url", t.String())
			result.Duration = time.Since(result.Started)
			return result
		}

		p.logger.Warn("endpoint health check failed",
			"service", svc.String(),
			"url", t.String(),
			"error", err,
		)
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	result.Err = &ServiceUnavailableError{
		Service:  svc.String(),
		Attempts: len(result.Endpoints),
		Cause:    lastErr,
	}
	result.Duration = time.Since(result.Started)
	return result
}

func checkTarget(ctx context.Context, t *Target) error {
	resp, err := t.Get(ctx)
	if err != nil {
		return err
	}
	return CheckResponse(resp)
}

// ProbeAll probes the default path of every service concurrently. Results
// are in the order of svcs.
func (p *Probe) ProbeAll(ctx context.Context, svcs []service.Service) []ProbeResult {
	results := make([]ProbeResult, len(svcs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, svc := range svcs {
		g.Go(func() error {
			results[i] = p.Run(gctx, svc, p.path)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
