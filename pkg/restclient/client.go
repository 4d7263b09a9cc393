package restclient

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"mercator-hq/courier/pkg/proxy"
	sectls "mercator-hq/courier/pkg/security/tls"
	"mercator-hq/courier/pkg/settings"
)

// Transport pool defaults.
const (
	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 10
	DefaultIdleConnTimeout     = 90 * time.Second
)

// Option configures a Client.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	selector   *proxy.Selector
	extensions []settings.Extension
	codec      Codec
	label      string
}

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSelector routes the client through sel instead of proxy.Default().
func WithSelector(sel *proxy.Selector) Option {
	return func(o *options) {
		if sel != nil {
			o.selector = sel
		}
	}
}

// WithExtensions adds extensions that run after the built-in ones and before
// the extensions of the endpoint settings.
func WithExtensions(ext ...settings.Extension) Option {
	return func(o *options) {
		o.extensions = append(o.extensions, ext...)
	}
}

// WithCodec sets the codec used by Target.Send. The default is JSON.
func WithCodec(c Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithLabel names the client in logs, usually after its service.
func WithLabel(label string) Option {
	return func(o *options) { o.label = label }
}

// Client is an HTTP client configured from endpoint settings.
//
// Client is safe for concurrent use.
type Client struct {
	settings  *settings.EndpointSettings
	http      *http.Client
	transport *http.Transport
	selector  *proxy.Selector
	codec     Codec
	label     string
	logger    *slog.Logger
	closed    atomic.Bool
}

// New builds a client for s. A nil s builds a client with default timeouts,
// no credentials and platform TLS, suitable for ad hoc URLs.
func New(s *settings.EndpointSettings, opts ...Option) (*Client, error) {
	o := &options{
		logger: slog.Default(),
		codec:  JSONCodec,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.selector == nil {
		o.selector = proxy.Default()
	}

	logger := o.logger.With("component", "restclient")
	if o.label != "" {
		logger = logger.With("client", o.label)
	}

	connectTimeout := time.Duration(settings.DefaultConnectTimeout) * time.Second
	requestTimeout := time.Duration(settings.DefaultRequestTimeout) * time.Second
	var properties map[string]string
	if s != nil {
		connectTimeout = s.ConnectTimeoutDuration()
		requestTimeout = s.RequestTimeoutDuration()
		properties = s.Properties()
	}

	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: requestTimeout,
		MaxIdleConns:          DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
		// The compression extension negotiates encodings itself.
		DisableCompression: true,
	}

	if s != nil && s.TLS() != nil {
		tlsConfig, err := sectls.CreateContext(s.TLS())
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS context for %s: %w", s.URL().Redacted(), err)
		}
		sectls.ApplyHostnameVerification(tlsConfig, s.TLS().VerifyHostname())
		transport.TLSClientConfig = tlsConfig
	}

	if s != nil && s.Proxy() != nil {
		if _, err := o.selector.Register(s.URL().String(), s.Proxy()); err != nil {
			return nil, &settings.ConfigurationError{Field: "proxy", Message: "invalid proxy mapping", Cause: err}
		}
	}

	builder := settings.NewTransportBuilder(transport, properties)
	for _, ext := range extensionChain(s, o.extensions) {
		if err := ext.Configure(builder); err != nil {
			transport.CloseIdleConnections()
			return nil, fmt.Errorf("extension %s: %w", ext.Name(), err)
		}
		logger.Debug("extension configured", "extension", ext.Name())
	}

	// Installed last so a failed build leaves nothing behind in the selector.
	o.selector.Install(transport)

	c := &Client{
		settings:  s,
		transport: transport,
		selector:  o.selector,
		codec:     o.codec,
		label:     o.label,
		logger:    logger,
		http: &http.Client{
			Transport: builder.RoundTripper(),
		},
	}

	if s != nil {
		logger.Info("client created", "settings", s.String())
	} else {
		logger.Debug("default client created")
	}

	return c, nil
}

// extensionChain returns the extensions in the order they run: compression,
// basic authentication, properties, client options, endpoint settings.
func extensionChain(s *settings.EndpointSettings, global []settings.Extension) []settings.Extension {
	chain := []settings.Extension{CompressionExtension()}
	if s != nil && s.BasicAuth() != nil {
		chain = append(chain, BasicAuthExtension(s.BasicAuth()))
	}
	chain = append(chain, PropertiesExtension())
	chain = append(chain, global...)
	if s != nil {
		chain = append(chain, s.Extensions()...)
	}
	return chain
}

// Settings returns the endpoint settings, or nil for a default client.
func (c *Client) Settings() *settings.EndpointSettings {
	return c.settings
}

// Label returns the client label.
func (c *Client) Label() string {
	return c.label
}

// Do sends req. Proxy connection failures are reported to the selector.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "proxyconnect" {
			addr := ""
			if opErr.Addr != nil {
				addr = opErr.Addr.String()
			}
			c.selector.ConnectFailed(req.URL, addr, err)
		}
		return nil, err
	}
	return resp, nil
}

// Target returns a target for an absolute URL.
func (c *Client) Target(rawURL string) (*Target, error) {
	u, err := parseTargetURL(rawURL)
	if err != nil {
		return nil, err
	}
	return newTarget(c, u), nil
}

// EndpointTarget returns a target for the endpoint URL of the settings.
func (c *Client) EndpointTarget() (*Target, error) {
	if c.settings == nil {
		return nil, errors.New("default client has no endpoint")
	}
	return newTarget(c, c.settings.URL()), nil
}

// Close releases idle connections. Requests after Close fail with ErrClosed.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.transport.CloseIdleConnections()
	c.selector.Release(c.transport)
	c.logger.Debug("client closed")
	return nil
}
