// Package telemetry groups the observability of courier clients and the
// probe monitor.
//
// # Components
//
//   - logging: slog loggers with a runtime level and credential redaction
//   - metrics: Prometheus collectors for client calls, probes, the client
//     cache and proxy selection
//   - tracing: OpenTelemetry spans around client requests and probe runs
//   - health: liveness, readiness and version endpoints fed by probe results
//
// Every component is wired by cmd/courier from the telemetry section of the
// configuration:
//
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
//	  metrics:
//	    enabled: true
//	  tracing:
//	    enabled: true
//	    endpoint: otel-collector:4317
package telemetry
