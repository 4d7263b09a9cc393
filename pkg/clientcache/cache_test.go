package clientcache

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"mercator-hq/courier/pkg/proxy"
	"mercator-hq/courier/pkg/registry"
	"mercator-hq/courier/pkg/restclient"
	sectls "mercator-hq/courier/pkg/security/tls"
	"mercator-hq/courier/pkg/service"
	"mercator-hq/courier/pkg/settings"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newCache(t *testing.T, reg *registry.Registry, opts ...Option) *Cache {
	t.Helper()
	opts = append([]Option{WithClientOptions(restclient.WithSelector(proxy.NewSelector(nil)))}, opts...)
	c, err := New(reg, opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func register(t *testing.T, reg *registry.Registry, svc service.Service, urls ...string) {
	t.Helper()
	var eps []*settings.EndpointSettings
	for _, u := range urls {
		eps = append(eps, settings.NewBuilder(u).MustBuild())
	}
	if _, err := reg.RegisterEndpoints(svc, eps); err != nil {
		t.Fatalf("RegisterEndpoints() failed: %v", err)
	}
}

func TestCache_Targets(t *testing.T) {
	a, b := newServer(t), newServer(t)
	reg := registry.New(nil)
	svc := service.New("inventory")
	register(t, reg, svc, a.URL, b.URL)

	var builds atomic.Int32
	cache := newCache(t, reg, WithBuildObserver(func(service.Service, int) { builds.Add(1) }))

	first, err := cache.Targets(context.Background(), svc)
	if err != nil {
		t.Fatalf("Targets() failed: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("len(Targets()) = %d, want 2", len(first))
	}
	if first[0].String() != a.URL || first[1].String() != b.URL {
		t.Errorf("targets = [%s %s], want registration order", first[0], first[1])
	}

	second, _ := cache.Targets(context.Background(), svc)
	if first[0] != second[0] || first[1] != second[1] {
		t.Error("Targets() should return the cached targets")
	}
	if first[0].Client() == first[1].Client() {
		t.Error("each endpoint should have its own client")
	}

	// Mutating the returned slice does not affect the cache.
	first[0] = nil
	third, _ := cache.Targets(context.Background(), svc)
	if third[0] == nil {
		t.Error("cache exposed its internal slice")
	}

	if builds.Load() != 1 {
		t.Errorf("builds = %d, want 1", builds.Load())
	}
	if got := cache.Services(); len(got) != 1 || got[0] != svc {
		t.Errorf("Services() = %v", got)
	}
}

func TestCache_ConcurrentFirstAccess(t *testing.T) {
	srv := newServer(t)
	reg := registry.New(nil)
	svc := service.New("concurrent")
	register(t, reg, svc, srv.URL, srv.URL+"/replica")

	var builds atomic.Int32
	cache := newCache(t, reg, WithBuildObserver(func(service.Service, int) { builds.Add(1) }))

	const workers = 50
	results := make([][]*restclient.Target, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			targets, err := cache.Targets(context.Background(), svc)
			if err != nil {
				t.Errorf("Targets() failed: %v", err)
				return
			}
			results[i] = targets
		}(i)
	}
	close(start)
	wg.Wait()

	if builds.Load() != 1 {
		t.Errorf("builds = %d, want exactly 1", builds.Load())
	}
	for i := 1; i < workers; i++ {
		if results[i] == nil {
			continue
		}
		if results[i][0] != results[0][0] || results[i][1] != results[0][1] {
			t.Fatalf("worker %d got different targets", i)
		}
	}
}

func TestCache_TargetWarnsOnce(t *testing.T) {
	a, b := newServer(t), newServer(t)
	reg := registry.New(nil)
	svc := service.New("replicated")
	register(t, reg, svc, a.URL, b.URL)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	cache := newCache(t, reg, WithLogger(logger))

	for i := 0; i < 3; i++ {
		target, err := cache.Target(context.Background(), svc)
		if err != nil {
			t.Fatalf("Target() failed: %v", err)
		}
		if target.String() != a.URL {
			t.Errorf("Target() = %s, want first endpoint %s", target, a.URL)
		}
	}

	if n := strings.Count(logs.String(), "more than one endpoint"); n != 1 {
		t.Errorf("warning logged %d times, want 1", n)
	}

	single := service.New("single")
	register(t, reg, single, a.URL)
	logs.Reset()
	if _, err := cache.Target(context.Background(), single); err != nil {
		t.Fatalf("Target() failed: %v", err)
	}
	if strings.Contains(logs.String(), "more than one endpoint") {
		t.Error("single endpoint service must not warn")
	}
}

func TestCache_Client(t *testing.T) {
	a, b := newServer(t), newServer(t)
	reg := registry.New(nil)
	svc := service.New("clients")
	register(t, reg, svc, a.URL, b.URL)
	cache := newCache(t, reg)

	client, err := cache.Client(context.Background(), svc)
	if err != nil {
		t.Fatalf("Client() failed: %v", err)
	}
	again, _ := cache.Client(context.Background(), svc)
	if client != again {
		t.Error("Client() should return the cached client")
	}
	if client.Settings().URL().String() != a.URL {
		t.Errorf("client endpoint = %s, want first endpoint", client.Settings().URL())
	}
}

func TestCache_NotConfigured(t *testing.T) {
	cache := newCache(t, registry.New(nil))

	_, err := cache.Targets(context.Background(), service.New("ghost"))
	if !errors.Is(err, settings.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if len(cache.Services()) != 0 {
		t.Error("failed lookups must not be cached")
	}
}

func TestCache_BuildFailureNotCached(t *testing.T) {
	reg := registry.New(nil)
	svc := service.New("broken")
	ep := settings.NewBuilder("https://broken.invalid").
		TLS(sectls.NewConfig(sectls.WithKeyAlias("missing"))).
		MustBuild()
	if _, err := reg.Register(svc, ep); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	cache := newCache(t, reg)

	for i := 0; i < 2; i++ {
		_, err := cache.Targets(context.Background(), svc)
		var cryptoErr *sectls.CryptoConfigError
		if !errors.As(err, &cryptoErr) {
			t.Fatalf("attempt %d: expected CryptoConfigError, got %v", i, err)
		}
	}
	if len(cache.Services()) != 0 {
		t.Error("failed builds must not be cached")
	}
}

func TestCache_FailedBuildsReleaseTransports(t *testing.T) {
	srv := newServer(t)
	reg := registry.New(nil)
	svc := service.New("misconfigured")
	good := settings.NewBuilder(srv.URL).MustBuild()
	bad := settings.NewBuilder(srv.URL).Property(restclient.PropertyMaxIdleConns, "abc").MustBuild()
	if _, err := reg.RegisterEndpoints(svc, []*settings.EndpointSettings{good, bad}); err != nil {
		t.Fatalf("RegisterEndpoints() failed: %v", err)
	}

	sel := proxy.NewSelector(nil)
	cache, err := New(reg, WithClientOptions(restclient.WithSelector(sel)))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	baseline := sel.Installed()

	for i := 0; i < 50; i++ {
		if _, err := cache.Targets(context.Background(), svc); err == nil {
			t.Fatalf("attempt %d: Targets() should fail", i)
		}
	}
	if got := sel.Installed(); got != baseline {
		t.Errorf("Installed() after failed builds = %d, want %d", got, baseline)
	}

	if err := cache.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if got := sel.Installed(); got != 0 {
		t.Errorf("Installed() after Close = %d, want 0", got)
	}
}

func TestCache_TargetURL(t *testing.T) {
	srv := newServer(t)
	cache := newCache(t, registry.New(nil))

	target, err := cache.TargetURL(srv.URL + "/adhoc")
	if err != nil {
		t.Fatalf("TargetURL() failed: %v", err)
	}
	if target.Client() != cache.DefaultClient() {
		t.Error("TargetURL() should use the default client")
	}

	resp, err := target.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if err := restclient.CheckResponse(resp); err != nil {
		t.Errorf("CheckResponse() failed: %v", err)
	}

	if _, err := cache.TargetURL("not a url"); err == nil {
		t.Error("expected error for relative url")
	}
}

func TestCache_Close(t *testing.T) {
	srv := newServer(t)
	reg := registry.New(nil)
	svc := service.New("closing")
	register(t, reg, svc, srv.URL)

	cache, err := New(reg, WithClientOptions(restclient.WithSelector(proxy.NewSelector(nil))))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	target, err := cache.Target(context.Background(), svc)
	if err != nil {
		t.Fatalf("Target() failed: %v", err)
	}

	if err := cache.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("second Close() failed: %v", err)
	}

	if _, err := target.Get(context.Background()); !errors.Is(err, restclient.ErrClosed) {
		t.Errorf("request on closed client = %v, want restclient.ErrClosed", err)
	}
	if _, err := cache.Targets(context.Background(), svc); !errors.Is(err, ErrClosed) {
		t.Errorf("Targets() after Close = %v, want ErrClosed", err)
	}
	if _, err := cache.TargetURL(srv.URL); !errors.Is(err, ErrClosed) {
		t.Errorf("TargetURL() after Close = %v, want ErrClosed", err)
	}
}

func TestCache_ContextCanceled(t *testing.T) {
	cache := newCache(t, registry.New(nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := cache.Targets(ctx, service.New("any")); !errors.Is(err, context.Canceled) {
		t.Errorf("Targets() = %v, want context.Canceled", err)
	}
}

func TestCache_ProbeSource(t *testing.T) {
	srv := newServer(t)
	reg := registry.New(nil)
	svc := service.New("probed")
	register(t, reg, svc, "http://127.0.0.1:1", srv.URL)
	cache := newCache(t, reg)

	probe := restclient.NewProbe(cache, restclient.WithHealthPath("/health"))
	if err := probe.HealthCheck(context.Background(), svc); err != nil {
		t.Errorf("HealthCheck() failed: %v", err)
	}
}

func TestNew_RequiresRegistry(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected error for nil registry")
	}
}
