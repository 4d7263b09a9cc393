package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	sectls "mercator-hq/courier/pkg/security/tls"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g., "services[billing].endpoints[0].url").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// HasField reports whether field failed validation.
func (e ValidationError) HasField(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

var (
	serviceNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

	cronParser = cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)

	structValidator = newValidator()
)

// ParseSchedule parses a five-field cron expression or a descriptor such as
// "@every 30s" or "@hourly".
func ParseSchedule(spec string) (cron.Schedule, error) {
	return cronParser.Parse(spec)
}

// ScheduleParser returns the parser behind ParseSchedule, for cron.WithParser.
func ScheduleParser() cron.ScheduleParser {
	return cronParser
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report yaml names in field paths.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("service_name", func(fl validator.FieldLevel) bool {
		return serviceNamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("tls_protocol", func(fl validator.FieldLevel) bool {
		_, err := sectls.ParseProtocol(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("store_type", func(fl validator.FieldLevel) bool {
		_, err := sectls.ParseStoreType(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("cron_spec", func(fl validator.FieldLevel) bool {
		_, err := ParseSchedule(fl.Field().String())
		return err == nil
	})

	return v
}

// Validate validates the entire configuration and returns a ValidationError
// if any rule fails. Struct tag rules run first, then the rules that span
// several fields. All errors are collected and returned together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return ValidationError{Errors: []FieldError{{Field: "config", Message: "configuration is nil"}}}
	}

	var errs []FieldError

	if err := structValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("failed to validate configuration: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, FieldError{
				Field:   fieldPath(fe),
				Message: fieldMessage(fe),
			})
		}
	}

	errs = append(errs, validateServices(cfg.Services)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateAPIKeys(cfg.Monitor.APIKeys)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// validateServices checks the rules tags cannot express: TLS needs an https
// URL and a key alias needs a keystore.
func validateServices(services map[string]ServiceConfig) []FieldError {
	var errs []FieldError

	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for i, e := range services[name].Endpoints {
			prefix := fmt.Sprintf("services[%s].endpoints[%d]", name, i)

			u, err := url.Parse(e.URL)
			if err == nil && e.URL != "" && u.Scheme != "http" && u.Scheme != "https" {
				errs = append(errs, FieldError{
					Field:   prefix + ".url",
					Message: fmt.Sprintf("unsupported scheme %q: must be http or https", u.Scheme),
				})
			}

			if e.TLS == nil {
				continue
			}
			if err == nil && u.Scheme == "http" {
				errs = append(errs, FieldError{
					Field:   prefix + ".tls",
					Message: "tls settings require an https url",
				})
			}
			if e.TLS.KeyAlias != "" && e.TLS.Keystore == nil {
				errs = append(errs, FieldError{
					Field:   prefix + ".tls.key_alias",
					Message: "key alias requires a keystore",
				})
			}
		}
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	if cfg.Tracing.Enabled && cfg.Tracing.Exporter == "otlp" && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "endpoint is required when the otlp exporter is enabled",
		})
	}

	for i, p := range cfg.Logging.RedactPatterns {
		if p.Pattern == "" {
			continue
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d].pattern", i),
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			})
		}
	}

	return errs
}

// fieldPath strips the root type from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	case "excludes":
		return fmt.Sprintf("must not contain %q", fe.Param())
	case "hostname_port":
		return "must be a host:port address"
	case "service_name":
		return "must contain only alphanumeric characters, dots, hyphens and underscores"
	case "tls_protocol":
		return "must be one of: TLS TLSv1 TLSv1.1 TLSv1.2 TLSv1.3"
	case "store_type":
		return "must be one of: PEM PKCS12 JKS"
	case "cron_spec":
		return "must be a cron expression or descriptor (e.g. \"@every 30s\")"
	default:
		return fmt.Sprintf("validation failed for tag '%s'", fe.Tag())
	}
}

func validateAPIKeys(keys []APIKeyConfig) []FieldError {
	var errs []FieldError
	seen := make(map[string]bool, len(keys))
	for i, k := range keys {
		if seen[k.Name] {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("monitor.api_keys[%d].name", i),
				Message: fmt.Sprintf("duplicate key name %q", k.Name),
			})
		}
		seen[k.Name] = true
	}
	return errs
}
