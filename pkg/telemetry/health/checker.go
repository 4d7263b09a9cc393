package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"mercator-hq/courier/pkg/restclient"
)

// Status values.
const (
	StatusOK        = "ok"
	StatusReady     = "ready"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusStale     = "stale"
)

// CheckFunc checks one component. It returns nil when the component is
// healthy.
type CheckFunc func(ctx context.Context) error

// CheckResult is the result of a single component check.
type CheckResult struct {
	// Status is "ok" or "unhealthy"
	Status string `json:"status"`

	// Message describes the failure
	Message string `json:"message,omitempty"`

	// Duration is how long the check took
	Duration time.Duration `json:"duration_ms,omitempty"`
}

// ServiceStatus is the last probe outcome of a service.
type ServiceStatus struct {
	// Status is "ok", "unhealthy" or "stale"
	Status string `json:"status"`

	// Endpoint is the endpoint that passed the last probe
	Endpoint string `json:"endpoint,omitempty"`

	// Message is the probe error
	Message string `json:"message,omitempty"`

	// CheckedAt is when the last probe started
	CheckedAt time.Time `json:"checked_at"`

	// Duration is how long the last probe took
	Duration time.Duration `json:"duration_ms"`
}

// HealthStatus is the aggregated health report.
type HealthStatus struct {
	// Status is "ok" for liveness, "ready", "degraded" or "unhealthy" for
	// readiness
	Status string `json:"status"`

	// Checks holds the component check results
	Checks map[string]CheckResult `json:"checks,omitempty"`

	// Services holds the last probe outcome per service
	Services map[string]ServiceStatus `json:"services,omitempty"`

	// Timestamp is when the report was made
	Timestamp time.Time `json:"timestamp"`
}

// Checker aggregates component checks and service probe results.
type Checker struct {
	mu       sync.RWMutex
	checks   map[string]CheckFunc
	services map[string]ServiceStatus

	// Timeout for individual checks
	checkTimeout time.Duration

	// Probe results older than this are reported stale; zero disables it
	staleAfter time.Duration

	now func() time.Time
}

var (
	// ErrCheckTimeout is reported when a check does not finish in time
	ErrCheckTimeout = errors.New("health check timeout")
)

// New creates a checker. A zero checkTimeout defaults to 5 seconds. Probe
// results older than staleAfter count as unhealthy; zero keeps them forever.
func New(checkTimeout, staleAfter time.Duration) *Checker {
	if checkTimeout == 0 {
		checkTimeout = 5 * time.Second
	}

	return &Checker{
		checks:       make(map[string]CheckFunc),
		services:     make(map[string]ServiceStatus),
		checkTimeout: checkTimeout,
		staleAfter:   staleAfter,
		now:          time.Now,
	}
}

// RegisterCheck registers or replaces the check for a component.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checks[name] = check
}

// UnregisterCheck removes a component check.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.checks, name)
}

// ListChecks returns the registered component names, sorted.
func (c *Checker) ListChecks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ObserveProbe records a probe result. It has the signature expected by
// restclient.WithObserver.
func (c *Checker) ObserveProbe(r restclient.ProbeResult) {
	status := ServiceStatus{
		Status:    StatusOK,
		Endpoint:  r.Endpoint(),
		CheckedAt: r.Started,
		Duration:  r.Duration,
	}
	if !r.Healthy() {
		status.Status = StatusUnhealthy
		status.Message = r.Err.Error()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[r.Service.String()] = status
}

// Services returns the last probe outcome per service.
func (c *Checker) Services() map[string]ServiceStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	out := make(map[string]ServiceStatus, len(c.services))
	for name, s := range c.services {
		if c.staleAfter > 0 && now.Sub(s.CheckedAt) > c.staleAfter {
			s.Status = StatusStale
		}
		out[name] = s
	}
	return out
}

// CheckLiveness reports that the process is running.
func (c *Checker) CheckLiveness(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    StatusOK,
		Timestamp: c.now(),
	}
}

// CheckReadiness runs the component checks concurrently and merges them
// with the service probe results. A failing component makes the report
// unhealthy; an unhealthy or stale service makes it degraded.
func (c *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	var resultMu sync.Mutex
	var wg sync.WaitGroup

	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			result := c.runCheck(ctx, check)

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
		}()
	}
	wg.Wait()

	services := c.Services()

	status := StatusReady
	for _, s := range services {
		if s.Status != StatusOK {
			status = StatusDegraded
		}
	}
	for _, r := range results {
		if r.Status != StatusOK {
			status = StatusUnhealthy
		}
	}

	return HealthStatus{
		Status:    status,
		Checks:    results,
		Services:  services,
		Timestamp: c.now(),
	}
}

// runCheck executes a single check with the check timeout.
func (c *Checker) runCheck(ctx context.Context, check CheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()

	errChan := make(chan error, 1)
	go func() {
		errChan <- check(checkCtx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: err.Error(), Duration: time.Since(start)}
		}
		return CheckResult{Status: StatusOK, Duration: time.Since(start)}

	case <-checkCtx.Done():
		return CheckResult{Status: StatusUnhealthy, Message: ErrCheckTimeout.Error(), Duration: time.Since(start)}
	}
}
