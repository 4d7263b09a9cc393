// Package server serves the metrics and health endpoints of a running
// monitor.
//
// Routes:
//   - /metrics (configurable): Prometheus exposition of the collector
//   - /health/live, /health/ready: liveness and readiness
//   - /version: build information
//
// Every request passes through recovery, logging, request ID and (when a
// tracer is configured) tracing middleware, outermost first.
//
//	srv := server.New(server.Config{ListenAddress: "127.0.0.1:9464"},
//	    server.WithMetrics(collector),
//	    server.WithHealth(checker, health.NewVersionInfo(version, commit, date)),
//	)
//	err := srv.Start(ctx) // blocks until ctx is cancelled
package server
