// Package monitor runs the failover probe on a schedule.
//
// A Monitor asks its ServiceLister for the current services on every run,
// probes them concurrently and passes each result to the metrics collector,
// the readiness checker and the SQLite history. Every run gets a UUID that
// is logged as the request ID, stored with its records and, with a tracer,
// attached to the run span.
//
// History uses modernc.org/sqlite (driver "sqlite") by default; the cgo
// driver github.com/mattn/go-sqlite3 is available as "sqlite3".
package monitor
