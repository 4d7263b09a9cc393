package config

import "time"

// Config is the root configuration of courier. It lists the services and
// their endpoints, global proxy routes, telemetry and the probe monitor.
type Config struct {
	// Services maps a service name to its endpoints. The map key is the
	// service name; the discriminator is set inside the entry.
	Services map[string]ServiceConfig `yaml:"services" validate:"required,min=1,dive,keys,service_name,endkeys"`

	// Proxies are global proxy routes, matched by URL prefix.
	Proxies []ProxyRouteConfig `yaml:"proxies" validate:"dive"`

	// Telemetry contains logging, metrics and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Monitor contains the scheduled failover probe configuration.
	Monitor MonitorConfig `yaml:"monitor"`

	// Secrets configures how ${secret:name} references are resolved.
	Secrets SecretsConfig `yaml:"secrets"`
}

// ServiceConfig describes one logical service.
type ServiceConfig struct {
	// Discriminator distinguishes variants of the same service name
	// (e.g. a region). Optional.
	Discriminator string `yaml:"discriminator"`

	// Endpoints are tried in order by the failover probe; the first one is
	// the primary target.
	Endpoints []EndpointConfig `yaml:"endpoints" validate:"required,min=1,dive"`
}

// EndpointConfig describes one physical endpoint.
type EndpointConfig struct {
	// URL is the absolute base URL of the endpoint.
	URL string `yaml:"url" validate:"required,url"`

	// ConnectTimeout is the connect timeout in seconds.
	// Default: 3
	ConnectTimeout int `yaml:"connect_timeout" validate:"gte=0"`

	// RequestTimeout is the response header timeout in seconds.
	// Default: 5
	RequestTimeout int `yaml:"request_timeout" validate:"gte=0"`

	// Proxy routes requests for this endpoint through a forward proxy.
	Proxy string `yaml:"proxy" validate:"omitempty,url"`

	// BasicAuth attaches a Basic credential to every request.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth"`

	// TLS configures keystores and verification for https endpoints.
	TLS *TLSConfig `yaml:"tls"`

	// Properties are free-form transport properties (http.*, header.*,
	// compression.*).
	Properties map[string]string `yaml:"properties"`

	// Compression negotiates gzip, deflate and zstd responses.
	// Default: true
	Compression *bool `yaml:"compression"`

	// LogTraffic logs every request and response of this endpoint.
	// Default: false
	LogTraffic bool `yaml:"log_traffic"`
}

// BasicAuthConfig is a Basic credential.
type BasicAuthConfig struct {
	// Username must not contain a colon.
	Username string `yaml:"username" validate:"required,excludes=:"`

	// Password may be supplied through COURIER_SERVICES_<NAME>_PASSWORD.
	Password string `yaml:"password"`
}

// TLSConfig describes the TLS material of an endpoint.
type TLSConfig struct {
	// Keystore holds the client key material.
	Keystore *StoreConfig `yaml:"keystore"`

	// Truststore holds the trusted certificates; platform roots when unset.
	Truststore *StoreConfig `yaml:"truststore"`

	// Protocol is TLS, TLSv1, TLSv1.1, TLSv1.2 or TLSv1.3.
	// Default: TLSv1.2
	Protocol string `yaml:"protocol" validate:"omitempty,tls_protocol"`

	// KeyAlias pins the client key entry presented to the server.
	KeyAlias string `yaml:"key_alias"`

	// VerifyCertificate validates the server chain.
	// Default: true
	VerifyCertificate *bool `yaml:"verify_certificate"`

	// VerifyHostname matches the server certificate against the host name.
	// Default: true
	VerifyHostname *bool `yaml:"verify_hostname"`
}

// StoreConfig locates a keystore file.
type StoreConfig struct {
	// Path is the keystore file.
	Path string `yaml:"path" validate:"required"`

	// Password unlocks the keystore and its keys.
	Password string `yaml:"password"`

	// Type is PEM, PKCS12 or JKS.
	// Default: PEM
	Type string `yaml:"type" validate:"omitempty,store_type"`
}

// ProxyRouteConfig routes every URL starting with Prefix through Proxies,
// tried in order.
type ProxyRouteConfig struct {
	// Prefix is matched against the request URL.
	Prefix string `yaml:"prefix" validate:"required"`

	// Proxies are forward proxy URLs.
	Proxies []string `yaml:"proxies" validate:"required,min=1,dive,url"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format" validate:"oneof=json text console"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks credentials in log records.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets"`

	// RedactPatterns are additional redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns" validate:"dive"`
}

// RedactPattern defines a custom redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name" validate:"required"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern" validate:"required"`

	// Replacement replaces matches; "****" when empty.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are recorded.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path of the Prometheus endpoint on the monitor.
	// Default: "/metrics"
	Path string `yaml:"path" validate:"startswith=/"`

	// Namespace is the metric name prefix.
	// Default: "courier"
	Namespace string `yaml:"namespace"`

	// RequestDurationBuckets are the client request histogram buckets.
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets" validate:"dive,gt=0"`

	// MaxCardinality bounds distinct service and route label values.
	// Default: 1000
	MaxCardinality int `yaml:"max_cardinality" validate:"gte=0"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are recorded.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler is "always", "never" or "ratio".
	// Default: "always"
	Sampler string `yaml:"sampler" validate:"oneof=always never ratio"`

	// SampleRatio is the fraction of traces sampled by the ratio sampler.
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`

	// Exporter is "otlp" or "none".
	// Default: "otlp"
	Exporter string `yaml:"exporter" validate:"oneof=otlp none"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	// ServiceName is the service name in traces.
	// Default: "courier"
	ServiceName string `yaml:"service_name"`
}

// MonitorConfig configures the scheduled probe monitor.
type MonitorConfig struct {
	// Schedule is a cron expression or descriptor for probe runs.
	// Default: "@every 30s"
	Schedule string `yaml:"schedule" validate:"cron_spec"`

	// HealthPath is the path probed on every endpoint.
	// Default: "/application.wadl"
	HealthPath string `yaml:"health_path" validate:"startswith=/"`

	// ListenAddress serves /metrics and the health endpoints.
	// Default: "127.0.0.1:9464"
	ListenAddress string `yaml:"listen_address" validate:"required,hostname_port"`

	// Concurrency bounds the services probed at once.
	// Default: 8
	Concurrency int `yaml:"concurrency" validate:"gte=1"`

	// StaleAfter marks services unhealthy when no probe finished within it.
	// Default: 5m
	StaleAfter time.Duration `yaml:"stale_after" validate:"gte=0"`

	// ShutdownTimeout bounds the graceful shutdown of the monitor server.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`

	// History configures the probe history store.
	History HistoryConfig `yaml:"history"`

	// APIKeys protect /metrics and /version. Health endpoints stay open.
	// Keys may be ${secret:name} references. Empty disables authentication.
	APIKeys []APIKeyConfig `yaml:"api_keys" validate:"dive"`
}

// APIKeyConfig is one key accepted by the monitor server.
type APIKeyConfig struct {
	// Name identifies the key holder in logs.
	Name string `yaml:"name" validate:"required"`

	// Key is the secret value.
	Key string `yaml:"key" validate:"required"`
}

// HistoryConfig configures the SQLite probe history store.
type HistoryConfig struct {
	// Enabled records every probe result.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	// Default: "sqlite"
	Driver string `yaml:"driver" validate:"oneof=sqlite sqlite3"`

	// Path is the database file; ":memory:" keeps history in memory.
	// Default: "data/courier-history.db"
	Path string `yaml:"path"`

	// Retention is how long probe results are kept; zero keeps them forever.
	// Default: 168h
	Retention time.Duration `yaml:"retention" validate:"gte=0"`

	// RetentionSchedule is the cron expression of the retention sweep.
	// Default: "0 3 * * *"
	RetentionSchedule string `yaml:"retention_schedule" validate:"cron_spec"`
}

// SecretsConfig configures secret reference resolution.
type SecretsConfig struct {
	// EnvPrefix prefixes the environment variable of every secret.
	// Default: "COURIER_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Directory holds one file per secret, consulted after the
	// environment. Optional.
	Directory string `yaml:"directory"`

	// Watch invalidates cached file secrets when Directory changes.
	Watch bool `yaml:"watch"`

	// CacheTTL keeps resolved values; zero disables caching.
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"gte=0"`
}
