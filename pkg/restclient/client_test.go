package restclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/courier/internal/testcerts"
	"mercator-hq/courier/pkg/proxy"
	sectls "mercator-hq/courier/pkg/security/tls"
	"mercator-hq/courier/pkg/settings"
)

// newClient builds a client with a private proxy selector.
func newClient(t *testing.T, s *settings.EndpointSettings, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithSelector(proxy.NewSelector(nil))}, opts...)
	c, err := New(s, opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"method":  r.Method,
			"path":    r.URL.Path,
			"query":   r.URL.RawQuery,
			"headers": r.Header,
			"body":    string(body),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type echo struct {
	Method  string              `json:"method"`
	Path    string              `json:"path"`
	Query   string              `json:"query"`
	Headers map[string][]string `json:"headers"`
	Body    string              `json:"body"`
}

func (e echo) header(name string) string {
	if v := e.Headers[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func TestNew_DefaultClient(t *testing.T) {
	srv := echoServer(t)
	c := newClient(t, nil)

	if c.Settings() != nil {
		t.Error("Settings() should be nil for a default client")
	}
	if _, err := c.EndpointTarget(); err == nil {
		t.Error("EndpointTarget() should fail without settings")
	}

	target, err := c.Target(srv.URL)
	if err != nil {
		t.Fatalf("Target() failed: %v", err)
	}
	resp, err := target.Path("items").Get(context.Background())
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	got, err := GetResponse[echo](resp)
	if err != nil {
		t.Fatalf("GetResponse() failed: %v", err)
	}
	if got.Path != "/items" {
		t.Errorf("path = %q, want /items", got.Path)
	}
	if c.transport.ResponseHeaderTimeout != time.Duration(settings.DefaultRequestTimeout)*time.Second {
		t.Errorf("ResponseHeaderTimeout = %v", c.transport.ResponseHeaderTimeout)
	}

	var cfgErr *settings.ConfigurationError
	if _, err := c.Target("relative/path"); !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigurationError for relative url, got %v", err)
	}
}

func TestClient_Timeouts(t *testing.T) {
	ep := settings.NewBuilder("http://example.com").ConnectTimeout(7).RequestTimeout(11).MustBuild()
	c := newClient(t, ep)

	if c.transport.TLSHandshakeTimeout != 7*time.Second {
		t.Errorf("TLSHandshakeTimeout = %v, want 7s", c.transport.TLSHandshakeTimeout)
	}
	if c.transport.ResponseHeaderTimeout != 11*time.Second {
		t.Errorf("ResponseHeaderTimeout = %v, want 11s", c.transport.ResponseHeaderTimeout)
	}
	if !c.transport.DisableCompression {
		t.Error("transport compression should be handled by the extension")
	}
}

func TestClient_RequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer srv.Close()

	c := newClient(t, settings.NewBuilder(srv.URL).RequestTimeout(1).MustBuild())
	target, _ := c.EndpointTarget()

	start := time.Now()
	if _, err := target.Get(context.Background()); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2500*time.Millisecond {
		t.Errorf("request took %v, want about 1s", elapsed)
	}
}

func TestClient_BasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "user" || pass != "pass" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newClient(t, settings.NewBuilder(srv.URL).BasicAuth("user", "pass").MustBuild())
	target, _ := c.EndpointTarget()

	resp, err := target.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if err := CheckResponse(resp); err != nil {
		t.Errorf("CheckResponse() failed: %v", err)
	}

	// An explicit header wins over the configured credential.
	resp, err = target.Header("Authorization", "Basic b3RoZXI6d3Jvbmc=").Get(context.Background())
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if err := CheckResponse(resp); !IsClientError(err) {
		t.Errorf("expected 401 client error, got %v", err)
	}
}

func TestClient_Properties(t *testing.T) {
	srv := echoServer(t)
	ep := settings.NewBuilder(srv.URL).
		Property(PropertyUserAgent, "courier-test/1.0").
		Property("header.x-tenant", "acme").
		Property(PropertyMaxIdleConnsPerHost, "3").
		Property("custom.unknown", "ignored").
		MustBuild()

	c := newClient(t, ep)
	if c.transport.MaxIdleConnsPerHost != 3 {
		t.Errorf("MaxIdleConnsPerHost = %d, want 3", c.transport.MaxIdleConnsPerHost)
	}

	target, _ := c.EndpointTarget()
	resp, err := target.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	got, err := GetResponse[echo](resp)
	if err != nil {
		t.Fatalf("GetResponse() failed: %v", err)
	}
	if got.header("User-Agent") != "courier-test/1.0" {
		t.Errorf("User-Agent = %q", got.header("User-Agent"))
	}
	if got.header("X-Tenant") != "acme" {
		t.Errorf("X-Tenant = %q", got.header("X-Tenant"))
	}

	bad := settings.NewBuilder(srv.URL).Property(PropertyIdleConnTimeout, "soon").MustBuild()
	_, err = New(bad, WithSelector(proxy.NewSelector(nil)))
	var cfgErr *settings.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != PropertyIdleConnTimeout {
		t.Errorf("expected ConfigurationError for %s, got %v", PropertyIdleConnTimeout, err)
	}
}

// headerExtension sets a header and records its name when configured.
type headerExtension struct {
	name  string
	order *[]string
}

func (e headerExtension) Name() string { return e.name }

func (e headerExtension) Configure(b *settings.TransportBuilder) error {
	*e.order = append(*e.order, e.name)
	b.Header.Set("X-Ext-"+e.name, "on")
	return nil
}

type failingExtension struct{}

func (failingExtension) Name() string { return "failing" }

func (failingExtension) Configure(*settings.TransportBuilder) error {
	return errors.New("refused")
}

func TestClient_ExtensionOrder(t *testing.T) {
	srv := echoServer(t)
	var order []string

	ep := settings.NewBuilder(srv.URL).
		BasicAuth("u", "p").
		Extension(headerExtension{name: "settings", order: &order}).
		MustBuild()
	c := newClient(t, ep, WithExtensions(headerExtension{name: "global", order: &order}))

	if strings.Join(order, ",") != "global,settings" {
		t.Errorf("configure order = %v, want [global settings]", order)
	}

	var names []string
	for _, ext := range extensionChain(ep, []settings.Extension{headerExtension{name: "global", order: &order}}) {
		names = append(names, ext.Name())
	}
	want := "compression,basic-auth,properties,global,settings"
	if strings.Join(names, ",") != want {
		t.Errorf("chain = %v, want %s", names, want)
	}

	target, _ := c.EndpointTarget()
	resp, err := target.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	got, _ := GetResponse[echo](resp)
	if got.header("X-Ext-Global") != "on" || got.header("X-Ext-Settings") != "on" {
		t.Errorf("extension headers missing: %v", got.Headers)
	}

	failing := settings.NewBuilder(srv.URL).Extension(failingExtension{}).MustBuild()
	if _, err := New(failing, WithSelector(proxy.NewSelector(nil))); err == nil || !strings.Contains(err.Error(), "failing") {
		t.Errorf("expected extension error, got %v", err)
	}
}

func TestClient_TLS(t *testing.T) {
	ca := testcerts.NewCA(t, "Service Root")
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	srv.TLS = &tls.Config{
		Certificates: []tls.Certificate{ca.Issue(t, "localhost", testcerts.ECDSA).TLSCertificate(ca)},
	}
	srv.StartTLS()
	defer srv.Close()

	truststore, err := sectls.NewKeystore(sectls.Entry{Alias: "root", Chain: []*x509.Certificate{ca.Cert}})
	if err != nil {
		t.Fatalf("NewKeystore() failed: %v", err)
	}

	tests := []struct {
		name    string
		tls     *sectls.Config
		wantErr bool
	}{
		{name: "truststore", tls: sectls.NewConfig(sectls.WithTruststore(truststore))},
		{name: "platform trust", tls: nil, wantErr: true},
		{name: "verification disabled", tls: sectls.NewConfig(sectls.WithVerifyCertificate(false))},
		{
			name: "host name verification disabled",
			tls:  sectls.NewConfig(sectls.WithTruststore(truststore), sectls.WithVerifyHostname(false)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := settings.NewBuilder(srv.URL)
			if tt.tls != nil {
				b.TLS(tt.tls)
			}
			c := newClient(t, b.MustBuild())
			target, _ := c.EndpointTarget()

			resp, err := target.Get(context.Background())
			if tt.wantErr {
				if err == nil {
					Discard(resp)
					t.Fatal("expected TLS error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Get() failed: %v", err)
			}
			if err := CheckResponse(resp); err != nil {
				t.Errorf("CheckResponse() failed: %v", err)
			}
		})
	}

	_, err = New(settings.NewBuilder(srv.URL).TLS(sectls.NewConfig(sectls.WithKeyAlias("x"))).MustBuild(),
		WithSelector(proxy.NewSelector(nil)))
	var cryptoErr *sectls.CryptoConfigError
	if !errors.As(err, &cryptoErr) {
		t.Errorf("expected CryptoConfigError, got %v", err)
	}
}

func TestClient_Proxy(t *testing.T) {
	var (
		mu      sync.Mutex
		proxied []string
	)
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		proxied = append(proxied, r.URL.String())
		mu.Unlock()
		io.WriteString(w, "via proxy")
	}))
	defer proxySrv.Close()

	sel := proxy.NewSelector(nil)
	ep := settings.NewBuilder("http://inventory.invalid/api").Proxy(proxySrv.URL).MustBuild()
	c, err := New(ep, WithSelector(sel))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer c.Close()

	mappings := sel.Mappings()
	if len(mappings) != 1 || mappings[0].Prefix != "http://inventory.invalid/api" {
		t.Fatalf("Mappings() = %v, want endpoint prefix", mappings)
	}

	target, _ := c.EndpointTarget()
	resp, err := target.Path("items").Get(context.Background())
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if string(body) != "via proxy" {
		t.Errorf("body = %q, want via proxy", body)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(proxied) != 1 || proxied[0] != "http://inventory.invalid/api/items" {
		t.Errorf("proxied = %v", proxied)
	}

	// A second client for the same endpoint keeps the first mapping.
	other := settings.NewBuilder("http://inventory.invalid/api").Proxy("http://elsewhere:3128").MustBuild()
	c2, err := New(other, WithSelector(sel))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer c2.Close()
	if got := sel.Mappings()[0].Proxies[0].Host; got != strings.TrimPrefix(proxySrv.URL, "http://") {
		t.Errorf("mapping proxy = %q, first registration should win", got)
	}
}

func TestClient_ProxyConnectFailed(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	deadAddr := l.Addr().String()
	l.Close()

	var logs bytes.Buffer
	sel := proxy.NewSelector(nil, proxy.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	ep := settings.NewBuilder("http://inventory.invalid/").Proxy("http://" + deadAddr).MustBuild()
	c, err := New(ep, WithSelector(sel))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer c.Close()

	target, _ := c.EndpointTarget()
	if _, err := target.Get(context.Background()); err == nil {
		t.Fatal("expected proxy connection error")
	}
	if !strings.Contains(logs.String(), "failed to connect through proxy") {
		t.Errorf("connect failure not reported, logs: %s", logs.String())
	}
}

func TestClient_Close(t *testing.T) {
	srv := echoServer(t)
	c := newClient(t, nil)
	target, _ := c.Target(srv.URL)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() failed: %v", err)
	}
	if _, err := target.Get(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Get() after Close = %v, want ErrClosed", err)
	}
}

func TestTarget_Immutable(t *testing.T) {
	srv := echoServer(t)
	c := newClient(t, nil)

	base, _ := c.Target(srv.URL + "/api")
	derived := base.Path("items", "42").Query("expand", "owner", "tags").Header("X-Trace", "abc")

	if base.URL().Path != "/api" {
		t.Errorf("base path changed to %q", base.URL().Path)
	}
	if derived.URL().Path != "/api/items/42" {
		t.Errorf("derived path = %q", derived.URL().Path)
	}
	if derived.Client() != c {
		t.Error("derived target should share the client")
	}

	resp, err := derived.Send(context.Background(), http.MethodPost, item{ID: "42", Name: "widget"})
	if err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	got, err := GetResponse[echo](resp)
	if err != nil {
		t.Fatalf("GetResponse() failed: %v", err)
	}

	if got.Method != http.MethodPost {
		t.Errorf("method = %q", got.Method)
	}
	if got.Query != "expand=owner&expand=tags" {
		t.Errorf("query = %q", got.Query)
	}
	if got.header("X-Trace") != "abc" {
		t.Errorf("X-Trace = %q", got.header("X-Trace"))
	}
	if got.header("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", got.header("Content-Type"))
	}
	var sent item
	if err := json.Unmarshal([]byte(got.Body), &sent); err != nil || sent.Name != "widget" {
		t.Errorf("body = %q", got.Body)
	}

	resp, err = base.Header("X-Other", "1").Delete(context.Background())
	if err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	got, _ = GetResponse[echo](resp)
	if got.header("X-Trace") != "" {
		t.Error("header leaked from derived target into base")
	}
}

func TestTarget_SendYAML(t *testing.T) {
	srv := echoServer(t)
	c := newClient(t, nil, WithCodec(YAMLCodec))
	target, _ := c.Target(srv.URL)

	resp, err := target.Send(context.Background(), http.MethodPut, item{ID: "7", Name: "bolt"})
	if err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	got, _ := GetResponse[echo](resp)
	if got.header("Content-Type") != "application/yaml" {
		t.Errorf("Content-Type = %q", got.header("Content-Type"))
	}
	if !strings.Contains(got.Body, "name: bolt") {
		t.Errorf("body = %q", got.Body)
	}
}
