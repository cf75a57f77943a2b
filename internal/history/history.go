// Package history records finished macro runs in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"hkmacro/internal/executor"
)

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id               TEXT PRIMARY KEY,
	macro_id         TEXT NOT NULL,
	macro_name       TEXT NOT NULL,
	status           TEXT NOT NULL,
	started_at       TEXT NOT NULL,
	finished_at      TEXT NOT NULL,
	actions_executed INTEGER NOT NULL DEFAULT 0,
	error            TEXT
);
CREATE INDEX IF NOT EXISTS idx_executions_macro ON executions (macro_id, finished_at);
`

// timeLayout has a fixed width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one finished run.
type Entry struct {
	ID              string    `json:"id"`
	MacroID         string    `json:"macro_id"`
	MacroName       string    `json:"macro_name"`
	Status          string    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	ActionsExecuted int       `json:"actions_executed"`
	Error           string    `json:"error,omitempty"`
}

// FromInfo builds an entry from a finished run.
func FromInfo(info executor.Info) Entry {
	e := Entry{
		ID:              info.RunID,
		MacroID:         info.MacroID,
		MacroName:       info.MacroName,
		Status:          info.Status.String(),
		StartedAt:       info.StartedAt,
		FinishedAt:      info.FinishedAt,
		ActionsExecuted: info.Executed,
	}
	if info.Err != nil && info.Status == executor.Failed {
		e.Error = info.Err.Error()
	}
	return e
}

// Repository stores entries.
type Repository struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(path string) (*Repository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps an in-memory database alive and serialises writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Repository{db: db}, nil
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Record stores a finished run.
func (r *Repository) Record(ctx context.Context, e Entry) error {
	var errStr sql.NullString
	if e.Error != "" {
		errStr = sql.NullString{String: e.Error, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO executions (id, macro_id, macro_name, status, started_at, finished_at, actions_executed, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.MacroID,
		e.MacroName,
		e.Status,
		e.StartedAt.UTC().Format(timeLayout),
		e.FinishedAt.UTC().Format(timeLayout),
		e.ActionsExecuted,
		errStr,
	)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	return nil
}

// Recent returns the latest entries, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return r.query(ctx,
		`SELECT id, macro_id, macro_name, status, started_at, finished_at, actions_executed, error FROM executions ORDER BY finished_at DESC LIMIT ?`,
		limit)
}

// ForMacro returns the latest entries of one macro, newest first.
func (r *Repository) ForMacro(ctx context.Context, macroID string, limit int) ([]Entry, error) {
	return r.query(ctx,
		`SELECT id, macro_id, macro_name, status, started_at, finished_at, actions_executed, error FROM executions WHERE macro_id = ? ORDER BY finished_at DESC LIMIT ?`,
		macroID, limit)
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                 Entry
			started, finished string
			errStr            sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.MacroID, &e.MacroName, &e.Status, &started, &finished, &e.ActionsExecuted, &errStr); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		if e.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("execution %s: started_at: %w", e.ID, err)
		}
		if e.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("execution %s: finished_at: %w", e.ID, err)
		}
		e.Error = errStr.String
		out = append(out, e)
	}
	return out, rows.Err()
}
