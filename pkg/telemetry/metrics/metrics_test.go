package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/courier/pkg/restclient"
	"mercator-hq/courier/pkg/service"
	"mercator-hq/courier/pkg/settings"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector(DefaultConfig(), nil)
}

func instrumentedClient(t *testing.T, c *Collector, svc string) *http.Client {
	t.Helper()
	transport := &http.Transport{}
	t.Cleanup(transport.CloseIdleConnections)

	b := settings.NewTransportBuilder(transport, nil)
	if err := c.ClientExtension(svc).Configure(b); err != nil {
		t.Fatalf("Configure() failed: %v", err)
	}
	return &http.Client{Transport: b.RoundTripper()}
}

func TestClientExtension(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestCollector(t)
	client := instrumentedClient(t, c, "billing")

	for _, path := range []string{"/ok", "/ok", "/missing"} {
		resp, err := client.Get(server.URL + path)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", path, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	if got := testutil.ToFloat64(c.client.requests.WithLabelValues("billing", "200", "get")); got != 2 {
		t.Errorf("requests{200} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.client.requests.WithLabelValues("billing", "404", "get")); got != 1 {
		t.Errorf("requests{404} = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.client.duration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
	if got := testutil.CollectAndCount(c.client.errors); got != 0 {
		t.Errorf("errors series = %d, want 0", got)
	}
}

func TestClientExtension_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := newTestCollector(t)
	client := instrumentedClient(t, c, "billing")

	if _, err := client.Get(url); err == nil {
		t.Fatal("expected connection error")
	}
	if got := testutil.ToFloat64(c.client.errors.WithLabelValues("billing", KindTransport)); got != 1 {
		t.Errorf("errors{transport} = %v, want 1", got)
	}
}

func TestClientExtension_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	c := NewCollector(cfg, nil)

	b := settings.NewTransportBuilder(&http.Transport{}, nil)
	if err := c.ClientExtension("billing").Configure(b); err != nil {
		t.Fatalf("Configure() failed: %v", err)
	}
	if _, ok := b.RoundTripper().(*http.Transport); !ok {
		t.Error("disabled collector should not add middleware")
	}

	c.ObserveCacheBuild(service.New("billing"), 2)
	if got := testutil.CollectAndCount(c.cache.builds); got != 0 {
		t.Errorf("cache builds series = %d, want 0", got)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"service error", &restclient.ServiceError{Code: "E1"}, KindServiceError},
		{"client error", &restclient.ClientRequestError{StatusCode: 404}, KindClientError},
		{"response error", &restclient.ResponseError{StatusCode: 500}, KindResponseError},
		{"decode error", &restclient.DecodeError{Cause: errors.New("bad")}, KindDecodeError},
		{"unavailable", &restclient.ServiceUnavailableError{Service: "a"}, KindUnavailable},
		{"canceled", fmt.Errorf("get: %w", context.Canceled), KindCanceled},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"other", errors.New("boom"), KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestObserveProbe(t *testing.T) {
	c := newTestCollector(t)
	svc := service.New("billing")

	c.ObserveProbe(restclient.ProbeResult{Service: svc, Duration: 20 * time.Millisecond})
	if got := testutil.ToFloat64(c.probe.health.WithLabelValues("billing")); got != 1 {
		t.Errorf("health = %v, want 1", got)
	}

	c.ObserveProbe(restclient.ProbeResult{
		Service:  svc,
		Duration: time.Second,
		Err:      &restclient.ServiceUnavailableError{Service: svc.String()},
	})
	if got := testutil.ToFloat64(c.probe.health.WithLabelValues("billing")); got != 0 {
		t.Errorf("health = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.probe.probes.WithLabelValues("billing", "unhealthy")); got != 1 {
		t.Errorf("probes{unhealthy} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.client.errors.WithLabelValues("billing", KindUnavailable)); got != 1 {
		t.Errorf("errors{unavailable} = %v, want 1", got)
	}
}

func TestObserveCacheBuildAndProxy(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveCacheBuild(service.NewWithDiscriminator("billing", "eu"), 3)
	c.ObserveCacheBuild(service.NewWithDiscriminator("billing", "eu"), 2)

	label := service.NewWithDiscriminator("billing", "eu").String()
	if got := testutil.ToFloat64(c.cache.builds.WithLabelValues(label)); got != 2 {
		t.Errorf("builds = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.cache.endpoints.WithLabelValues(label)); got != 2 {
		t.Errorf("endpoints = %v, want 2", got)
	}

	c.ObserveProxySelection("https://a.example/")
	c.ObserveProxySelection("direct")
	c.ObserveProxySelection("direct")
	if got := testutil.ToFloat64(c.proxy.selections.WithLabelValues("direct")); got != 2 {
		t.Errorf("selections{direct} = %v, want 2", got)
	}
}

func TestCardinalityLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCardinality = 2
	c := NewCollector(cfg, nil)

	for _, route := range []string{"a", "b", "c", "d", "a"} {
		c.ObserveProxySelection(route)
	}

	if got := testutil.ToFloat64(c.proxy.selections.WithLabelValues(OtherLabel)); got != 2 {
		t.Errorf("selections{other} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.proxy.selections.WithLabelValues("a")); got != 2 {
		t.Errorf("selections{a} = %v, want 2", got)
	}
	if c.routes.Count() != 2 {
		t.Errorf("Count() = %d, want 2", c.routes.Count())
	}
}

func TestHandler(t *testing.T) {
	c := newTestCollector(t)
	c.ObserveCacheBuild(service.New("billing"), 1)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `courier_cache_builds_total{service="billing"} 1`) {
		t.Errorf("body missing cache builds metric:\n%s", rec.Body.String())
	}
}

func BenchmarkObserveProxySelection(b *testing.B) {
	c := NewCollector(DefaultConfig(), nil)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		c.ObserveProxySelection("direct")
	}
}
