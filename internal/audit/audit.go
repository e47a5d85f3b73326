// Package audit persists one record per execution to a local sqlite
// database. Recording is best-effort and never blocks or fails a run.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sandrun/internal/config"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMP NOT NULL,
	mode        TEXT NOT NULL,
	script      TEXT NOT NULL,
	status      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	exit_code   INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_started_at ON executions(started_at);
`

// Entry is one recorded execution.
type Entry struct {
	ID        string
	StartedAt time.Time
	Mode      string
	Script    string
	Status    string
	Detail    string
	ExitCode  int
	Duration  time.Duration
}

// Recorder writes execution entries. The zero value and a nil Recorder are
// both valid and record nothing, so callers never branch on whether
// auditing is enabled.
type Recorder struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open creates a Recorder backed by the sqlite file at path. The parent
// directory is created when missing.
func Open(path string, logger zerolog.Logger) (*Recorder, error) {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(expanded), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := sql.Open("sqlite", expanded)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Recorder{db: db, logger: logger}, nil
}

// Record persists one entry. A missing ID is filled in; failures are
// logged, not returned, so a broken audit store never fails the run.
func (r *Recorder) Record(e Entry) {
	if r == nil || r.db == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO executions (id, started_at, mode, script, status, detail, exit_code, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.StartedAt.UTC(), e.Mode, e.Script, e.Status, e.Detail, e.ExitCode, e.Duration.Milliseconds(),
	)
	if err != nil {
		r.logger.Warn().Err(err).Str("id", e.ID).Msg("audit record failed")
	}
}

// Recent returns up to n entries, newest first.
func (r *Recorder) Recent(n int) ([]Entry, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}

	rows, err := r.db.Query(
		`SELECT id, started_at, mode, script, status, detail, exit_code, duration_ms
		 FROM executions ORDER BY started_at DESC, id LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.ID, &e.StartedAt, &e.Mode, &e.Script, &e.Status, &e.Detail, &e.ExitCode, &ms); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying database.
func (r *Recorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
