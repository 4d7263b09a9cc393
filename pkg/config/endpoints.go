package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"

	"mercator-hq/courier/pkg/proxy"
	"mercator-hq/courier/pkg/registry"
	"mercator-hq/courier/pkg/restclient"
	sectls "mercator-hq/courier/pkg/security/tls"
	"mercator-hq/courier/pkg/service"
	"mercator-hq/courier/pkg/settings"
)

// SettingsOption customizes the conversion of endpoint configuration into
// endpoint settings.
type SettingsOption func(*settingsOptions)

type settingsOptions struct {
	extensions    func(svc service.Service) []settings.Extension
	trafficLogger *slog.Logger
}

// WithServiceExtensions attaches the extensions returned by fn to every
// endpoint of a service.
func WithServiceExtensions(fn func(svc service.Service) []settings.Extension) SettingsOption {
	return func(o *settingsOptions) {
		o.extensions = fn
	}
}

// WithTrafficLogger sets the logger used by endpoints with log_traffic.
func WithTrafficLogger(logger *slog.Logger) SettingsOption {
	return func(o *settingsOptions) {
		o.trafficLogger = logger
	}
}

// Service returns the service identity of the entry named name.
func (s ServiceConfig) Service(name string) service.Service {
	return service.NewWithDiscriminator(name, s.Discriminator)
}

// Settings converts the endpoint into immutable endpoint settings. Keystores
// are loaded from disk.
func (e EndpointConfig) Settings(opts ...SettingsOption) (*settings.EndpointSettings, error) {
	o := settingsOptions{trafficLogger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return e.settings(o, nil)
}

func (e EndpointConfig) settings(o settingsOptions, extra []settings.Extension) (*settings.EndpointSettings, error) {
	b := settings.NewBuilder(e.URL).
		ConnectTimeout(orDefault(e.ConnectTimeout, DefaultConnectTimeout)).
		RequestTimeout(orDefault(e.RequestTimeout, DefaultRequestTimeout)).
		Properties(e.Properties)

	if e.Proxy != "" {
		b.Proxy(e.Proxy)
	}
	if e.BasicAuth != nil {
		b.BasicAuth(e.BasicAuth.Username, e.BasicAuth.Password)
	}
	if e.Compression != nil && !*e.Compression {
		b.Property(restclient.PropertyCompressionEnabled, strconv.FormatBool(false))
	}
	if e.TLS != nil {
		tlsCfg, err := e.TLS.Config()
		if err != nil {
			return nil, err
		}
		b.TLS(tlsCfg)
	}
	if e.LogTraffic {
		b.Extension(restclient.LoggingExtension(o.trafficLogger))
	}
	b.Extension(extra...)

	return b.Build()
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// Config loads the keystores and builds the TLS configuration.
func (t *TLSConfig) Config() (*sectls.Config, error) {
	var opts []sectls.Option

	if t.Keystore != nil {
		ks, err := t.Keystore.Load()
		if err != nil {
			return nil, err
		}
		opts = append(opts, sectls.WithKeystore(ks))
	}
	if t.Truststore != nil {
		ts, err := t.Truststore.Load()
		if err != nil {
			return nil, err
		}
		opts = append(opts, sectls.WithTruststore(ts))
	}
	if t.Protocol != "" {
		p, err := sectls.ParseProtocol(t.Protocol)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sectls.WithProtocol(p))
	}
	if t.KeyAlias != "" {
		opts = append(opts, sectls.WithKeyAlias(t.KeyAlias))
	}
	if t.VerifyCertificate != nil {
		opts = append(opts, sectls.WithVerifyCertificate(*t.VerifyCertificate))
	}
	if t.VerifyHostname != nil {
		opts = append(opts, sectls.WithVerifyHostname(*t.VerifyHostname))
	}

	return sectls.NewConfig(opts...), nil
}

// Load reads the keystore file.
func (s *StoreConfig) Load() (*sectls.Keystore, error) {
	storeType, err := sectls.ParseStoreType(s.Type)
	if err != nil {
		return nil, err
	}
	return sectls.LoadKeystore(s.Path, s.Password, storeType)
}

// EndpointSettings converts every service into its ordered endpoint settings.
// The first failing endpoint aborts the conversion.
func (c *Config) EndpointSettings(opts ...SettingsOption) (map[service.Service][]*settings.EndpointSettings, error) {
	o := settingsOptions{trafficLogger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	out := make(map[service.Service][]*settings.EndpointSettings, len(c.Services))
	for _, name := range c.ServiceNames() {
		sc := c.Services[name]
		svc := sc.Service(name)

		var extra []settings.Extension
		if o.extensions != nil {
			extra = o.extensions(svc)
		}

		endpoints := make([]*settings.EndpointSettings, 0, len(sc.Endpoints))
		for i, e := range sc.Endpoints {
			s, err := e.settings(o, extra)
			if err != nil {
				return nil, fmt.Errorf("services[%s].endpoints[%d]: %w", name, i, err)
			}
			endpoints = append(endpoints, s)
		}
		out[svc] = endpoints
	}
	return out, nil
}

// ServiceNames returns the configured service names, sorted.
func (c *Config) ServiceNames() []string {
	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterInto registers every service with reg. Services already present
// keep their settings. It returns the services that were added.
func (c *Config) RegisterInto(reg *registry.Registry, opts ...SettingsOption) ([]service.Service, error) {
	all, err := c.EndpointSettings(opts...)
	if err != nil {
		return nil, err
	}

	var added []service.Service
	for _, name := range c.ServiceNames() {
		svc := c.Services[name].Service(name)
		ok, err := reg.RegisterEndpoints(svc, all[svc])
		if err != nil {
			return added, err
		}
		if ok {
			added = append(added, svc)
		}
	}
	return added, nil
}

// RegisterProxies adds the global proxy routes to sel. Prefixes already
// routed keep their proxies. It returns the number of routes added.
func (c *Config) RegisterProxies(sel *proxy.Selector) (int, error) {
	added := 0
	for i, route := range c.Proxies {
		proxies := make([]*url.URL, 0, len(route.Proxies))
		for _, raw := range route.Proxies {
			u, err := url.Parse(raw)
			if err != nil {
				return added, fmt.Errorf("proxies[%d]: invalid proxy url %q: %w", i, raw, err)
			}
			proxies = append(proxies, u)
		}

		ok, err := sel.Register(route.Prefix, proxies...)
		if err != nil {
			return added, fmt.Errorf("proxies[%d]: %w", i, err)
		}
		if ok {
			added++
		}
	}
	return added, nil
}
