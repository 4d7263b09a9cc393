package config

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Services = map[string]ServiceConfig{
		"billing": {Endpoints: []EndpointConfig{{URL: "https://billing.internal/api"}}},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantField string
	}{
		{
			name:   "valid",
			modify: func(c *Config) {},
		},
		{
			name:      "no services",
			modify:    func(c *Config) { c.Services = nil },
			wantField: "services",
		},
		{
			name: "no endpoints",
			modify: func(c *Config) {
				c.Services["billing"] = ServiceConfig{}
			},
			wantField: "services[billing].endpoints",
		},
		{
			name: "invalid url",
			modify: func(c *Config) {
				c.Services["billing"].Endpoints[0].URL = "billing.internal"
			},
			wantField: "services[billing].endpoints[0].url",
		},
		{
			name: "unsupported scheme",
			modify: func(c *Config) {
				c.Services["billing"].Endpoints[0].URL = "ftp://billing.internal"
			},
			wantField: "services[billing].endpoints[0].url",
		},
		{
			name: "negative timeout",
			modify: func(c *Config) {
				c.Services["billing"].Endpoints[0].ConnectTimeout = -1
			},
			wantField: "services[billing].endpoints[0].connect_timeout",
		},
		{
			name: "colon in username",
			modify: func(c *Config) {
				c.Services["billing"].Endpoints[0].BasicAuth = &BasicAuthConfig{Username: "a:b"}
			},
			wantField: "services[billing].endpoints[0].basic_auth.username",
		},
		{
			name: "tls over http",
			modify: func(c *Config) {
				c.Services["billing"].Endpoints[0].URL = "http://billing.internal"
				c.Services["billing"].Endpoints[0].TLS = &TLSConfig{}
			},
			wantField: "services[billing].endpoints[0].tls",
		},
		{
			name: "unknown protocol",
			modify: func(c *Config) {
				c.Services["billing"].Endpoints[0].TLS = &TLSConfig{Protocol: "SSLv3"}
			},
			wantField: "services[billing].endpoints[0].tls.protocol",
		},
		{
			name: "unknown store type",
			modify: func(c *Config) {
				c.Services["billing"].Endpoints[0].TLS = &TLSConfig{Keystore: &StoreConfig{Path: "k", Type: "BKS"}}
			},
			wantField: "services[billing].endpoints[0].tls.keystore.type",
		},
		{
			name: "key alias without keystore",
			modify: func(c *Config) {
				c.Services["billing"].Endpoints[0].TLS = &TLSConfig{KeyAlias: "client"}
			},
			wantField: "services[billing].endpoints[0].tls.key_alias",
		},
		{
			name: "proxy route without proxies",
			modify: func(c *Config) {
				c.Proxies = []ProxyRouteConfig{{Prefix: "https://partner/"}}
			},
			wantField: "proxies[0].proxies",
		},
		{
			name:      "bad schedule",
			modify:    func(c *Config) { c.Monitor.Schedule = "every minute" },
			wantField: "monitor.schedule",
		},
		{
			name:      "bad listen address",
			modify:    func(c *Config) { c.Monitor.ListenAddress = "localhost" },
			wantField: "monitor.listen_address",
		},
		{
			name:      "bad history driver",
			modify:    func(c *Config) { c.Monitor.History.Driver = "postgres" },
			wantField: "monitor.history.driver",
		},
		{
			name:      "bad sample ratio",
			modify:    func(c *Config) { c.Telemetry.Tracing.SampleRatio = 2 },
			wantField: "telemetry.tracing.sample_ratio",
		},
		{
			name:      "bad log level",
			modify:    func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			wantField: "telemetry.logging.level",
		},
		{
			name: "bad redact pattern",
			modify: func(c *Config) {
				c.Telemetry.Logging.RedactPatterns = []RedactPattern{{Name: "x", Pattern: "("}}
			},
			wantField: "telemetry.logging.redact_patterns[0].pattern",
		},
		{
			name: "tracing without endpoint",
			modify: func(c *Config) {
				c.Telemetry.Tracing.Enabled = true
				c.Telemetry.Tracing.Endpoint = ""
			},
			wantField: "telemetry.tracing.endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := Validate(cfg)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() failed: %v", err)
				}
				return
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() = %v, want ValidationError", err)
			}
			if !verr.HasField(tt.wantField) {
				t.Errorf("errors = %v, want field %q", verr.Errors, tt.wantField)
			}
		})
	}
}

func TestValidate_ServiceName(t *testing.T) {
	cfg := validConfig()
	cfg.Services["bad name"] = ServiceConfig{Endpoints: []EndpointConfig{{URL: "https://x"}}}

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "alphanumeric") {
		t.Errorf("Validate() = %v, want service name error", err)
	}
}

func TestValidate_Nil(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestValidationError_Error(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if got := single.Error(); got != "configuration validation failed: a: bad" {
		t.Errorf("Error() = %q", got)
	}

	multi := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}}
	if got := multi.Error(); !strings.Contains(got, "2 errors") || !strings.Contains(got, "  - b: worse") {
		t.Errorf("Error() = %q", got)
	}
}

func TestParseSchedule(t *testing.T) {
	for _, spec := range []string{"@every 30s", "@hourly", "*/5 * * * *", "0 3 * * *"} {
		if _, err := ParseSchedule(spec); err != nil {
			t.Errorf("ParseSchedule(%q) failed: %v", spec, err)
		}
	}
	if _, err := ParseSchedule("* * *"); err == nil {
		t.Error("expected error for short expression")
	}
}
