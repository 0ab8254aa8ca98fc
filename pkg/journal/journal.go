// Package journal provides SQLite-based storage for finished tool invocations.
//
// The journal is a write-only audit trail: it is fed by the dispatcher as an
// Observer and never consulted when answering a request.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/RobinCoderZhao/biobroker/pkg/mcpserver"
)

// Schema is the SQLite schema for the journal.
const Schema = `
CREATE TABLE IF NOT EXISTS invocations (
    id           TEXT PRIMARY KEY,
    server       TEXT NOT NULL,
    tool         TEXT NOT NULL,
    state        TEXT NOT NULL,
    kind         TEXT,
    message      TEXT,
    status       INTEGER DEFAULT 0,
    retryable    INTEGER DEFAULT 0,
    result_bytes INTEGER DEFAULT 0,
    started_at   INTEGER NOT NULL,
    duration_ms  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invocations_started ON invocations(started_at);
CREATE INDEX IF NOT EXISTS idx_invocations_tool ON invocations(server, tool);
`

// Entry is one journaled invocation.
type Entry struct {
	ID          string
	Server      string
	Tool        string
	State       mcpserver.State
	Kind        string
	Message     string
	Status      int
	Retryable   bool
	ResultBytes int
	StartedAt   time.Time
	Duration    time.Duration
}

// Journal persists invocation outcomes.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the journal at path and initializes the schema.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Journal{db: db, logger: logger}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Observe records a finished invocation. Failures are logged, never returned:
// the journal must not affect the outcome it records.
func (j *Journal) Observe(ctx context.Context, o mcpserver.Outcome) {
	if err := j.Record(ctx, o); err != nil {
		j.logger.Warn("journal write failed", "invocation_id", o.ID, "error", err)
	}
}

// Record stores an outcome.
func (j *Journal) Record(ctx context.Context, o mcpserver.Outcome) error {
	var (
		kind, message string
		status        int
		retryable     bool
	)
	if o.Envelope != nil {
		kind = string(o.Envelope.Kind)
		message = o.Envelope.Message
		status = o.Envelope.Status
		retryable = o.Envelope.Retryable
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO invocations
			(id, server, tool, state, kind, message, status, retryable, result_bytes, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.Server, o.Tool, string(o.State), kind, message, status, retryable, len(o.Result),
		o.Started.UnixMilli(), o.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	return nil
}

// Recent returns the latest entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, server, tool, state, kind, message, status, retryable, result_bytes, started_at, duration_ms
		FROM invocations ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			state      string
			kind, msg  sql.NullString
			startedMs  int64
			durationMs int64
		)
		if err := rows.Scan(&e.ID, &e.Server, &e.Tool, &state, &kind, &msg, &e.Status, &e.Retryable,
			&e.ResultBytes, &startedMs, &durationMs); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		e.State = mcpserver.State(state)
		e.Kind = kind.String
		e.Message = msg.String
		e.StartedAt = time.UnixMilli(startedMs)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats summarizes the journal per tool.
type Stats struct {
	Server   string
	Tool     string
	Total    int
	Failures int
}

// Summary returns per-tool invocation counts.
func (j *Journal) Summary(ctx context.Context) ([]Stats, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT server, tool, COUNT(*), SUM(CASE WHEN state = ? THEN 1 ELSE 0 END)
		FROM invocations GROUP BY server, tool ORDER BY server, tool
	`, string(mcpserver.StateFailed))
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var stats []Stats
	for rows.Next() {
		var s Stats
		if err := rows.Scan(&s.Server, &s.Tool, &s.Total, &s.Failures); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
