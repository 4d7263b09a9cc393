package config

import (
	"time"

	"mercator-hq/courier/pkg/settings"
)

// Default values for configuration fields.
const (
	// Endpoint defaults
	DefaultConnectTimeout = settings.DefaultConnectTimeout
	DefaultRequestTimeout = settings.DefaultRequestTimeout
	DefaultCompression    = true

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultLoggingRedact      = true
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "courier"
	DefaultMetricsCardinality = 1000
	DefaultTracingEnabled     = false
	DefaultTracingSampler     = "always"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingExporter    = "otlp"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingTimeout     = 10 * time.Second
	DefaultTracingServiceName = "courier"

	// Monitor defaults
	DefaultMonitorSchedule          = "@every 30s"
	DefaultMonitorHealthPath        = "/application.wadl"
	DefaultMonitorListenAddress     = "127.0.0.1:9464"
	DefaultMonitorConcurrency       = 8
	DefaultMonitorStaleAfter        = 5 * time.Minute
	DefaultMonitorShutdownTimeout   = 10 * time.Second
	DefaultHistoryEnabled           = true
	DefaultHistoryDriver            = "sqlite"
	DefaultHistoryPath              = "data/courier-history.db"
	DefaultHistoryRetention         = 7 * 24 * time.Hour
	DefaultHistoryRetentionSchedule = "0 3 * * *"

	// Secrets defaults
	DefaultSecretsEnvPrefix = "COURIER_SECRET_"
)

// Default returns a configuration holding every default. Booleans that
// default to true are set here, so a file that omits them keeps them on.
func Default() *Config {
	cfg := &Config{}
	cfg.Telemetry.Logging.RedactSecrets = DefaultLoggingRedact
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Tracing.Enabled = DefaultTracingEnabled
	cfg.Monitor.History.Enabled = DefaultHistoryEnabled
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in zero-valued fields. It is idempotent.
func ApplyDefaults(cfg *Config) {
	for name, svc := range cfg.Services {
		for i := range svc.Endpoints {
			applyEndpointDefaults(&svc.Endpoints[i])
		}
		cfg.Services[name] = svc
	}

	applyLoggingDefaults(&cfg.Telemetry.Logging)
	applyMetricsDefaults(&cfg.Telemetry.Metrics)
	applyTracingDefaults(&cfg.Telemetry.Tracing)
	applyMonitorDefaults(&cfg.Monitor)

	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}
}

func applyEndpointDefaults(e *EndpointConfig) {
	if e.ConnectTimeout == 0 {
		e.ConnectTimeout = DefaultConnectTimeout
	}
	if e.RequestTimeout == 0 {
		e.RequestTimeout = DefaultRequestTimeout
	}
	if e.TLS != nil && e.TLS.Keystore != nil && e.TLS.Keystore.Type == "" {
		e.TLS.Keystore.Type = "PEM"
	}
	if e.TLS != nil && e.TLS.Truststore != nil && e.TLS.Truststore.Type == "" {
		e.TLS.Truststore.Type = "PEM"
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = DefaultLoggingLevel
	}
	if cfg.Format == "" {
		cfg.Format = DefaultLoggingFormat
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Path == "" {
		cfg.Path = DefaultMetricsPath
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultMetricsNamespace
	}
	if cfg.MaxCardinality == 0 {
		cfg.MaxCardinality = DefaultMetricsCardinality
	}
}

func applyTracingDefaults(cfg *TracingConfig) {
	if cfg.Sampler == "" {
		cfg.Sampler = DefaultTracingSampler
	}
	if cfg.Sampler != "ratio" && cfg.SampleRatio == 0 {
		cfg.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Exporter == "" {
		cfg.Exporter = DefaultTracingExporter
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTracingTimeout
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultTracingServiceName
	}
}

func applyMonitorDefaults(cfg *MonitorConfig) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultMonitorSchedule
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = DefaultMonitorHealthPath
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultMonitorListenAddress
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultMonitorConcurrency
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = DefaultMonitorStaleAfter
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultMonitorShutdownTimeout
	}
	if cfg.History.Driver == "" {
		cfg.History.Driver = DefaultHistoryDriver
	}
	if cfg.History.Path == "" {
		cfg.History.Path = DefaultHistoryPath
	}
	if cfg.History.Retention == 0 {
		cfg.History.Retention = DefaultHistoryRetention
	}
	if cfg.History.RetentionSchedule == "" {
		cfg.History.RetentionSchedule = DefaultHistoryRetentionSchedule
	}
}
