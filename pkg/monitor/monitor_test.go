package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/courier/pkg/clientcache"
	"mercator-hq/courier/pkg/proxy"
	"mercator-hq/courier/pkg/registry"
	"mercator-hq/courier/pkg/restclient"
	"mercator-hq/courier/pkg/service"
	"mercator-hq/courier/pkg/settings"
	"mercator-hq/courier/pkg/telemetry/health"
	"mercator-hq/courier/pkg/telemetry/metrics"
	"mercator-hq/courier/pkg/telemetry/tracing"
)

type fixture struct {
	reg   *registry.Registry
	cache *clientcache.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.New(nil)
	cache, err := clientcache.New(reg, clientcache.WithClientOptions(restclient.WithSelector(proxy.NewSelector(nil))))
	if err != nil {
		t.Fatalf("clientcache.New() failed: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return &fixture{reg: reg, cache: cache}
}

func (f *fixture) register(t *testing.T, svc service.Service, urls ...string) {
	t.Helper()
	var eps []*settings.EndpointSettings
	for _, u := range urls {
		eps = append(eps, settings.NewBuilder(u).MustBuild())
	}
	if _, err := f.reg.RegisterEndpoints(svc, eps); err != nil {
		t.Fatalf("RegisterEndpoints() failed: %v", err)
	}
}

func statusServer(t *testing.T, code int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != restclient.DefaultHealthPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(code)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMonitor_RunOnce(t *testing.T) {
	f := newFixture(t)
	up := statusServer(t, http.StatusOK)
	down := statusServer(t, http.StatusServiceUnavailable)

	billing := service.New("billing")
	orders := service.New("orders")
	f.register(t, billing, down.URL, up.URL)
	f.register(t, orders, down.URL)

	history := openMemoryHistory(t)
	collector := metrics.NewCollector(metrics.DefaultConfig(), nil)
	checker := health.New(time.Second, 0)

	exporter := tracetest.NewInMemoryExporter()
	tracer, err := tracing.New(tracing.Config{Enabled: true, ServiceName: "courier-test"}, tracing.WithExporter(exporter))
	if err != nil {
		t.Fatalf("tracing.New() failed: %v", err)
	}
	t.Cleanup(func() { tracer.Shutdown(context.Background()) })

	m := New(Config{}, f.reg, f.cache,
		WithHistory(history),
		WithMetrics(collector),
		WithHealth(checker),
		WithTracer(tracer),
	)

	summary, err := m.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() failed: %v", err)
	}
	if summary.Healthy != 1 || summary.Unhealthy != 1 {
		t.Errorf("healthy/unhealthy = %d/%d, want 1/1", summary.Healthy, summary.Unhealthy)
	}
	if len(summary.RunID) != 36 {
		t.Errorf("RunID = %q, want a UUID", summary.RunID)
	}
	if m.LastRun() == nil || m.LastRun().RunID != summary.RunID {
		t.Error("LastRun() does not match the run")
	}

	records, err := history.Query(context.Background(), Query{})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	for _, r := range records {
		if r.RunID != summary.RunID {
			t.Errorf("record run = %q, want %q", r.RunID, summary.RunID)
		}
	}

	services := checker.Services()
	if services["billing"].Status != health.StatusOK || services["orders"].Status != health.StatusUnhealthy {
		t.Errorf("services = %+v", services)
	}
	if got := checker.CheckReadiness(context.Background()); got.Status != health.StatusDegraded {
		t.Errorf("readiness = %q, want degraded", got.Status)
	}
	if _, ok := checker.CheckReadiness(context.Background()).Checks["history"]; !ok {
		t.Error("history check not registered")
	}

	if got, err := testutil.GatherAndCount(collector.Registry(), "courier_service_health"); err != nil || got != 2 {
		t.Errorf("service_health series = %d (%v), want 2", got, err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "probe run" {
		t.Fatalf("spans = %v, want one probe run span", spanNames(spans))
	}
	if len(spans[0].Events) != 2 {
		t.Errorf("span events = %d, want 2", len(spans[0].Events))
	}
}

func spanNames(spans tracetest.SpanStubs) []string {
	var names []string
	for _, s := range spans {
		names = append(names, s.Name)
	}
	return names
}

func TestMonitor_PicksUpNewServices(t *testing.T) {
	f := newFixture(t)
	up := statusServer(t, http.StatusOK)
	f.register(t, service.New("billing"), up.URL)

	m := New(Config{Concurrency: 2}, f.reg, f.cache)

	first, _ := m.RunOnce(context.Background())
	if len(first.Results) != 1 {
		t.Fatalf("first run probed %d services, want 1", len(first.Results))
	}

	f.register(t, service.New("orders"), up.URL)
	second, _ := m.RunOnce(context.Background())
	if len(second.Results) != 2 || second.Healthy != 2 {
		t.Errorf("second run = %d results, %d healthy, want 2/2", len(second.Results), second.Healthy)
	}
}

func TestMonitor_Prune(t *testing.T) {
	f := newFixture(t)
	history := openMemoryHistory(t)
	ctx := context.Background()

	old := probeResult(service.New("billing"), time.Now().Add(-10*24*time.Hour), true)
	fresh := probeResult(service.New("billing"), time.Now(), true)
	for _, r := range []restclient.ProbeResult{old, fresh} {
		if err := history.Record(ctx, "run", r); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	m := New(Config{Retention: 7 * 24 * time.Hour}, f.reg, f.cache, WithHistory(history))
	deleted, err := m.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	keep := New(Config{}, f.reg, f.cache, WithHistory(history))
	if deleted, _ := keep.Prune(ctx); deleted != 0 {
		t.Errorf("zero retention deleted %d records", deleted)
	}
}

func TestMonitor_Start(t *testing.T) {
	f := newFixture(t)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	f.register(t, service.New("billing"), srv.URL)

	m := New(Config{Schedule: "@every 1s"}, f.reg, f.cache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer m.Stop()

	if hits.Load() != 1 {
		t.Errorf("hits after Start = %d, want 1 (immediate run)", hits.Load())
	}
	if m.NextRun().IsZero() {
		t.Error("NextRun() is zero")
	}

	deadline := time.Now().Add(3 * time.Second)
	for hits.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if hits.Load() < 2 {
		t.Errorf("hits = %d, want a scheduled run", hits.Load())
	}
}

func TestMonitor_StartInvalidSchedule(t *testing.T) {
	f := newFixture(t)
	m := New(Config{Schedule: "whenever"}, f.reg, f.cache)
	if err := m.Start(context.Background()); err == nil {
		t.Error("expected error for invalid schedule")
	}
}
