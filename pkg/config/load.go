package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "COURIER_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("configuration file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes, defaults and validates a YAML document. Unknown fields are
// rejected.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention COURIER_SECTION_FIELD (e.g., COURIER_MONITOR_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("configuration file %q: %w", path, err)
	}

	applyEnvOverrides(cfg, os.LookupEnv)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration file %q: %w", path, err)
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

// applyEnvOverrides applies environment variable overrides to the configuration.
// Unparseable booleans and numbers are ignored.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) {
	get := func(key string) (string, bool) {
		val, ok := lookup(EnvPrefix + key)
		return val, ok && val != ""
	}
	setString := func(key string, dst *string) {
		if val, ok := get(key); ok {
			*dst = val
		}
	}
	setBool := func(key string, dst *bool) {
		if val, ok := get(key); ok {
			if b, err := strconv.ParseBool(val); err == nil {
				*dst = b
			}
		}
	}

	// Telemetry overrides
	setString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	setString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	setBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	setString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	setBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	setString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	if val, ok := get("TELEMETRY_TRACING_SAMPLE_RATIO"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}

	// Monitor overrides
	setString("MONITOR_SCHEDULE", &cfg.Monitor.Schedule)
	setString("MONITOR_LISTEN_ADDRESS", &cfg.Monitor.ListenAddress)
	setString("MONITOR_HEALTH_PATH", &cfg.Monitor.HealthPath)
	setString("MONITOR_HISTORY_DRIVER", &cfg.Monitor.History.Driver)
	setString("MONITOR_HISTORY_PATH", &cfg.Monitor.History.Path)

	// Credentials: COURIER_SERVICES_<NAME>_PASSWORD replaces the password of
	// every endpoint of that service that uses basic auth.
	for name, svc := range cfg.Services {
		password, ok := get("SERVICES_" + EnvName(name) + "_PASSWORD")
		if !ok {
			continue
		}
		for i := range svc.Endpoints {
			if auth := svc.Endpoints[i].BasicAuth; auth != nil {
				auth.Password = password
			}
		}
	}
}

// EnvName converts a service name to its environment variable form:
// upper case with every character other than letters and digits replaced
// by an underscore.
func EnvName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}
