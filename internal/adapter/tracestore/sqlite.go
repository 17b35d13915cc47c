// Package tracestore persists pipeline execution traces to SQLite so past
// runs can be inspected after the process exits.
package tracestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"ragchat/internal/domain"
)

// timeLayout keeps a fixed-width fraction so stored UTC timestamps sort
// lexically in chronological order (List orders by the start_at column).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore persists domain.PipelineTrace records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs the
// schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate trace db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pipeline_traces (
			id       TEXT PRIMARY KEY,
			query    TEXT NOT NULL,
			stages   TEXT NOT NULL DEFAULT '[]',
			tokens   INTEGER NOT NULL DEFAULT 0,
			cost     REAL NOT NULL DEFAULT 0,
			success  INTEGER NOT NULL DEFAULT 0,
			start_at TEXT NOT NULL,
			end_at   TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save persists one pipeline trace. The aggregate columns are denormalized
// so listing does not have to decode every stage payload.
func (s *SQLiteStore) Save(_ context.Context, t *domain.PipelineTrace) error {
	stagesJSON, err := json.Marshal(t.Stages)
	if err != nil {
		return domain.WrapOp("trace_store.save", fmt.Errorf("marshal stages: %w", err))
	}
	success := 0
	if t.Success() {
		success = 1
	}
	_, err = s.db.Exec(
		"INSERT INTO pipeline_traces (id, query, stages, tokens, cost, success, start_at, end_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		t.ID, t.Query, string(stagesJSON), t.TotalTokens(), t.TotalCost(), success,
		t.Start.UTC().Format(timeLayout), t.End.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("%w: save %s: %w", domain.ErrTraceStore, t.ID, err)
	}
	return nil
}

// Get returns the trace with the given id.
func (s *SQLiteStore) Get(_ context.Context, id string) (*domain.PipelineTrace, error) {
	row := s.db.QueryRow(
		"SELECT id, query, stages, start_at, end_at FROM pipeline_traces WHERE id = ?", id,
	)
	t, err := scanTrace(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: trace %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: get %s: %w", domain.ErrTraceStore, id, err)
	}
	return t, nil
}

// List returns the most recent traces, newest first, capped at limit.
func (s *SQLiteStore) List(_ context.Context, limit int) ([]*domain.PipelineTrace, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		"SELECT id, query, stages, start_at, end_at FROM pipeline_traces ORDER BY start_at DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", domain.ErrTraceStore, err)
	}
	defer rows.Close()

	var traces []*domain.PipelineTrace
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: list: %w", domain.ErrTraceStore, err)
		}
		traces = append(traces, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list: %w", domain.ErrTraceStore, err)
	}
	return traces, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrace(row scanner) (*domain.PipelineTrace, error) {
	var t domain.PipelineTrace
	var stagesStr, startStr, endStr string
	if err := row.Scan(&t.ID, &t.Query, &stagesStr, &startStr, &endStr); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(stagesStr), &t.Stages); err != nil {
		return nil, fmt.Errorf("unmarshal stages: %w", err)
	}
	t.Start, _ = time.Parse(timeLayout, startStr)
	t.End, _ = time.Parse(timeLayout, endStr)
	return &t, nil
}
