package settings

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	sectls "mercator-hq/courier/pkg/security/tls"
)

// Default timeouts in seconds.
const (
	DefaultConnectTimeout = 3
	DefaultRequestTimeout = 5
)

// EndpointSettings describes one physical endpoint of a service.
// Values are immutable; build them with NewBuilder.
type EndpointSettings struct {
	target         *url.URL
	connectTimeout int
	requestTimeout int
	proxy          *url.URL
	basicAuth      *BasicAuth
	tls            *sectls.Config
	properties     map[string]string
	extensions     []Extension
}

// URL returns a copy of the target URL.
func (s *EndpointSettings) URL() *url.URL {
	u := *s.target
	return &u
}

// ConnectTimeout returns the connect timeout in seconds.
func (s *EndpointSettings) ConnectTimeout() int { return s.connectTimeout }

// RequestTimeout returns the request timeout in seconds.
func (s *EndpointSettings) RequestTimeout() int { return s.requestTimeout }

// ConnectTimeoutDuration returns the connect timeout as a duration.
func (s *EndpointSettings) ConnectTimeoutDuration() time.Duration {
	return time.Duration(s.connectTimeout*1000) * time.Millisecond
}

// RequestTimeoutDuration returns the request timeout as a duration.
func (s *EndpointSettings) RequestTimeoutDuration() time.Duration {
	return time.Duration(s.requestTimeout*1000) * time.Millisecond
}

// Proxy returns a copy of the proxy URL, or nil when the endpoint has none.
func (s *EndpointSettings) Proxy() *url.URL {
	if s.proxy == nil {
		return nil
	}
	u := *s.proxy
	return &u
}

// BasicAuth returns the credential, or nil.
func (s *EndpointSettings) BasicAuth() *BasicAuth { return s.basicAuth }

// TLS returns the TLS configuration, or nil.
func (s *EndpointSettings) TLS() *sectls.Config { return s.tls }

// IsHTTPS reports whether the target uses the https scheme.
func (s *EndpointSettings) IsHTTPS() bool {
	return strings.EqualFold(s.target.Scheme, "https")
}

// Properties returns a copy of the free-form properties.
func (s *EndpointSettings) Properties() map[string]string {
	out := make(map[string]string, len(s.properties))
	for k, v := range s.properties {
		out[k] = v
	}
	return out
}

// Extensions returns a copy of the ordered extension list.
func (s *EndpointSettings) Extensions() []Extension {
	return append([]Extension(nil), s.extensions...)
}

// String summarises the settings without secrets.
func (s *EndpointSettings) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "EndpointSettings{url=%s, connectTimeout=%ds, requestTimeout=%ds",
		s.target.Redacted(), s.connectTimeout, s.requestTimeout)
	if s.proxy != nil {
		fmt.Fprintf(&b, ", proxy=%s", s.proxy.Redacted())
	}
	if s.basicAuth != nil {
		fmt.Fprintf(&b, ", auth=%s", s.basicAuth)
	}
	if s.tls != nil {
		fmt.Fprintf(&b, ", tls=%s", s.tls)
	}
	if len(s.extensions) > 0 {
		names := make([]string, len(s.extensions))
		for i, e := range s.extensions {
			names[i] = e.Name()
		}
		fmt.Fprintf(&b, ", extensions=[%s]", strings.Join(names, ","))
	}
	b.WriteString("}")
	return b.String()
}

// Builder assembles EndpointSettings.
// Errors are collected and reported by Build.
type Builder struct {
	rawURL         string
	connectTimeout int
	requestTimeout int
	proxy          string
	basicAuth      *BasicAuth
	tls            *sectls.Config
	properties     map[string]string
	extensions     []Extension
	errs           []error
}

// NewBuilder starts building settings for the target URL.
func NewBuilder(rawURL string) *Builder {
	return &Builder{
		rawURL:         rawURL,
		connectTimeout: DefaultConnectTimeout,
		requestTimeout: DefaultRequestTimeout,
		properties:     make(map[string]string),
	}
}

// ConnectTimeout sets the connect timeout in seconds.
func (b *Builder) ConnectTimeout(seconds int) *Builder {
	b.connectTimeout = seconds
	return b
}

// RequestTimeout sets the request timeout in seconds.
func (b *Builder) RequestTimeout(seconds int) *Builder {
	b.requestTimeout = seconds
	return b
}

// Proxy routes requests for this endpoint through proxyURL.
func (b *Builder) Proxy(proxyURL string) *Builder {
	b.proxy = proxyURL
	return b
}

// BasicAuth attaches a Basic credential.
func (b *Builder) BasicAuth(username, password string) *Builder {
	auth, err := NewBasicAuth(username, password)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.basicAuth = auth
	return b
}

// Credential attaches an existing credential.
func (b *Builder) Credential(auth *BasicAuth) *Builder {
	if auth == nil {
		b.errs = append(b.errs, &ConfigurationError{Field: "basic_auth", Message: "credential is nil", Cause: ErrNilArgument})
		return b
	}
	b.basicAuth = auth
	return b
}

// TLS attaches TLS material and verification policy.
func (b *Builder) TLS(cfg *sectls.Config) *Builder {
	b.tls = cfg
	return b
}

// Property sets one free-form property.
func (b *Builder) Property(key, value string) *Builder {
	b.properties[key] = value
	return b
}

// Properties merges free-form properties.
func (b *Builder) Properties(props map[string]string) *Builder {
	for k, v := range props {
		b.properties[k] = v
	}
	return b
}

// Extension appends a transport extension.
func (b *Builder) Extension(ext ...Extension) *Builder {
	for _, e := range ext {
		if e == nil {
			b.errs = append(b.errs, &ConfigurationError{Field: "extensions", Message: "extension is nil", Cause: ErrNilArgument})
			continue
		}
		b.extensions = append(b.extensions, e)
	}
	return b
}

// Build validates the accumulated values and returns frozen settings.
func (b *Builder) Build() (*EndpointSettings, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}

	if strings.TrimSpace(b.rawURL) == "" {
		return nil, &ConfigurationError{Field: "url", Message: "target url is required", Cause: ErrNilArgument}
	}
	target, err := parseAbsolute(b.rawURL)
	if err != nil {
		return nil, &ConfigurationError{Field: "url", Message: "invalid target url", Cause: err}
	}

	if b.connectTimeout <= 0 {
		return nil, &ConfigurationError{Field: "connect_timeout", Message: fmt.Sprintf("must be positive, got %d", b.connectTimeout)}
	}
	if b.requestTimeout <= 0 {
		return nil, &ConfigurationError{Field: "request_timeout", Message: fmt.Sprintf("must be positive, got %d", b.requestTimeout)}
	}

	s := &EndpointSettings{
		target:         target,
		connectTimeout: b.connectTimeout,
		requestTimeout: b.requestTimeout,
		basicAuth:      b.basicAuth,
		tls:            b.tls,
		properties:     make(map[string]string, len(b.properties)),
		extensions:     append([]Extension(nil), b.extensions...),
	}
	for k, v := range b.properties {
		s.properties[k] = v
	}

	if b.proxy != "" {
		p, err := parseAbsolute(b.proxy)
		if err != nil {
			return nil, &ConfigurationError{Field: "proxy", Message: "invalid proxy url", Cause: err}
		}
		s.proxy = p
	}

	if s.tls != nil && !s.IsHTTPS() {
		return nil, &ConfigurationError{Field: "tls", Message: fmt.Sprintf("tls settings require an https url, got %q", target.Scheme)}
	}

	return s, nil
}

// MustBuild is like Build but panics on error. Intended for tests and
// static initialisation.
func (b *Builder) MustBuild() *EndpointSettings {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

func parseAbsolute(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("url %q must be absolute", raw)
	}
	return u, nil
}
