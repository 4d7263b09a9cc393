package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // registers "sqlite3" (cgo)
	_ "modernc.org/sqlite"          // registers "sqlite" (pure Go)

	"mercator-hq/courier/pkg/restclient"
	"mercator-hq/courier/pkg/service"
)

// History drivers.
const (
	DriverSQLite  = "sqlite"
	DriverSQLite3 = "sqlite3"
)

// MemoryPath keeps the history in memory.
const MemoryPath = ":memory:"

// DefaultQueryLimit bounds Query when no limit is given.
const DefaultQueryLimit = 100

const historySchema = `
CREATE TABLE IF NOT EXISTS probe_results (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	service TEXT NOT NULL,
	name TEXT NOT NULL,
	discriminator TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL,
	healthy BOOLEAN NOT NULL,
	endpoint TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL,
	error TEXT,
	started_at INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	endpoints TEXT
);

CREATE INDEX IF NOT EXISTS idx_probe_results_service ON probe_results(service, started_at);
CREATE INDEX IF NOT EXISTS idx_probe_results_name ON probe_results(name, started_at);
CREATE INDEX IF NOT EXISTS idx_probe_results_started ON probe_results(started_at);
`

// HistoryConfig configures the probe history store.
type HistoryConfig struct {
	// Driver is DriverSQLite (default) or DriverSQLite3
	Driver string

	// Path is the database file, or MemoryPath
	Path string

	// BusyTimeout is how long to wait for locks (default 5s)
	BusyTimeout time.Duration
}

// EndpointRecord is one endpoint attempt of a stored probe.
type EndpointRecord struct {
	URL        string `json:"url"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Record is a stored probe result.
type Record struct {
	ID        string           `json:"id"`
	RunID     string           `json:"run_id"`
	Service   service.Service  `json:"-"`
	Label     string           `json:"service"`
	Path      string           `json:"path"`
	Healthy   bool             `json:"healthy"`
	Endpoint  string           `json:"endpoint,omitempty"`
	Attempts  int              `json:"attempts"`
	Error     string           `json:"error,omitempty"`
	Started   time.Time        `json:"started"`
	Duration  time.Duration    `json:"duration"`
	Endpoints []EndpointRecord `json:"endpoints,omitempty"`
}

// NewRecord converts a probe result into a record of run runID.
func NewRecord(runID string, r restclient.ProbeResult) Record {
	rec := Record{
		ID:       uuid.NewString(),
		RunID:    runID,
		Service:  r.Service,
		Label:    r.Service.String(),
		Path:     r.Path,
		Healthy:  r.Healthy(),
		Endpoint: r.Endpoint(),
		Attempts: len(r.Endpoints),
		Started:  r.Started,
		Duration: r.Duration,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	for _, e := range r.Endpoints {
		er := EndpointRecord{URL: e.URL, DurationMS: e.Duration.Milliseconds()}
		if e.Err != nil {
			er.Error = e.Err.Error()
		}
		rec.Endpoints = append(rec.Endpoints, er)
	}
	return rec
}

// Query selects stored records, newest first.
type Query struct {
	// Service matches the service name or its full label (name#discriminator)
	Service string

	// Since excludes older records
	Since time.Time

	// Limit bounds the number of records (default DefaultQueryLimit)
	Limit int
}

// History stores probe results in SQLite.
type History struct {
	db         *sql.DB
	driver     string
	path       string
	insertStmt *sql.Stmt
	logger     *slog.Logger
	closeOnce  sync.Once
}

// OpenHistory opens (and creates) the history database.
func OpenHistory(cfg HistoryConfig, logger *slog.Logger) (*History, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if cfg.Driver != DriverSQLite && cfg.Driver != DriverSQLite3 {
		return nil, fmt.Errorf("unsupported history driver %q", cfg.Driver)
	}
	if cfg.Path == "" {
		return nil, errors.New("history path cannot be empty")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	if cfg.Path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite only supports a single writer; one connection also keeps an
	// in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	h := &History{
		db:     db,
		driver: cfg.Driver,
		path:   cfg.Path,
		logger: logger.With("component", "monitor.history"),
	}

	if err := h.initialize(cfg.BusyTimeout); err != nil {
		db.Close()
		return nil, err
	}

	h.logger.Info("probe history opened", "driver", cfg.Driver, "path", cfg.Path)
	return h, nil
}

func (h *History) initialize(busyTimeout time.Duration) error {
	if _, err := h.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if h.path != MemoryPath {
		if _, err := h.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable WAL: %w", err)
		}
	}
	if _, err := h.db.Exec(historySchema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}

	stmt, err := h.db.Prepare(`
		INSERT INTO probe_results (
			id, run_id, service, name, discriminator, path, healthy,
			endpoint, attempts, error, started_at, duration_ms, endpoints
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	h.insertStmt = stmt
	return nil
}

// Driver returns the database driver name.
func (h *History) Driver() string {
	return h.driver
}

// Record stores the result of one service probe.
func (h *History) Record(ctx context.Context, runID string, r restclient.ProbeResult) error {
	return h.Insert(ctx, NewRecord(runID, r))
}

// Insert stores rec.
func (h *History) Insert(ctx context.Context, rec Record) error {
	endpoints, err := json.Marshal(rec.Endpoints)
	if err != nil {
		return fmt.Errorf("failed to encode endpoints: %w", err)
	}

	var errVal any
	if rec.Error != "" {
		errVal = rec.Error
	}

	_, err = h.insertStmt.ExecContext(ctx,
		rec.ID, rec.RunID, rec.Service.String(), rec.Service.Name, rec.Service.Discriminator, rec.Path, rec.Healthy,
		rec.Endpoint, rec.Attempts, errVal, rec.Started.UnixNano(), rec.Duration.Milliseconds(), string(endpoints),
	)
	if err != nil {
		return fmt.Errorf("failed to store probe result for %s: %w", rec.Service, err)
	}
	return nil
}

// Query returns stored records matching q, newest first.
func (h *History) Query(ctx context.Context, q Query) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if q.Service != "" {
		where = append(where, "(service = ? OR name = ?)")
		args = append(args, q.Service, q.Service)
	}
	if !q.Since.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, q.Since.UnixNano())
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	query := `SELECT id, run_id, name, discriminator, path, healthy, endpoint, attempts,
		error, started_at, duration_ms, endpoints FROM probe_results`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query probe history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec                 Record
			name, discriminator string
			errVal, endpoints   sql.NullString
			startedAt, duration int64
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &name, &discriminator, &rec.Path, &rec.Healthy,
			&rec.Endpoint, &rec.Attempts, &errVal, &startedAt, &duration, &endpoints); err != nil {
			return nil, fmt.Errorf("failed to scan probe history: %w", err)
		}

		rec.Service = service.NewWithDiscriminator(name, discriminator)
		rec.Label = rec.Service.String()
		rec.Error = errVal.String
		rec.Started = time.Unix(0, startedAt)
		rec.Duration = time.Duration(duration) * time.Millisecond
		if endpoints.Valid && endpoints.String != "" && endpoints.String != "null" {
			if err := json.Unmarshal([]byte(endpoints.String), &rec.Endpoints); err != nil {
				return nil, fmt.Errorf("failed to decode endpoints of %s: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune deletes records started before cutoff and returns how many were
// removed.
func (h *History) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, "DELETE FROM probe_results WHERE started_at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune probe history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned records: %w", err)
	}
	return n, nil
}

// Ping checks the database connection. It is registered as a readiness
// check by the monitor.
func (h *History) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// Close closes the database.
func (h *History) Close() error {
	var err error
	h.closeOnce.Do(func() {
		if h.insertStmt != nil {
			h.insertStmt.Close()
		}
		err = h.db.Close()
	})
	return err
}
