// Package history is a supplemental build-history log, additive to
// the core package/environment lifecycle: it records one row per
// build attempt so `cub package history NAME` can answer "what
// happened the last few times this was built" across invocations.
// Grounded in floegence-redeven-agent's internal/ai/threadstore: an
// embedded modernc.org/sqlite database opened once per process, WAL
// journaling for concurrent readers, and a single held connection
// since sqlite serializes writers anyway.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome is the result of one build attempt.
type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Failed    Outcome = "failed"
	TestFailed Outcome = "test-failed"
)

// Store is the build-history log.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the history database at path,
// e.g. <data>/cubicle/history.db.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=3000;`,
		`CREATE TABLE IF NOT EXISTS build_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			identity TEXT NOT NULL,
			outcome TEXT NOT NULL,
			source_hash TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			started_at_unix_ms INTEGER NOT NULL,
			detail TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS build_attempts_identity_idx ON build_attempts(identity, started_at_unix_ms);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("history: schema: %w", err)
		}
	}
	return nil
}

// Attempt is one recorded build attempt.
type Attempt struct {
	Identity   string
	Outcome    Outcome
	SourceHash string
	Duration   time.Duration
	StartedAt  time.Time
	Detail     string
}

// Record inserts one build attempt.
func (s *Store) Record(ctx context.Context, a Attempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO build_attempts (identity, outcome, source_hash, duration_ms, started_at_unix_ms, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.Identity, string(a.Outcome), a.SourceHash, a.Duration.Milliseconds(), a.StartedAt.UnixMilli(), a.Detail)
	if err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// Recent returns up to limit attempts for identity, most recent first.
func (s *Store) Recent(ctx context.Context, identity string, limit int) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, source_hash, duration_ms, started_at_unix_ms, detail
		 FROM build_attempts WHERE identity = ?
		 ORDER BY started_at_unix_ms DESC LIMIT ?`, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var outcome string
		var durationMs, startedAtMs int64
		var sourceHash, detail string
		if err := rows.Scan(&outcome, &sourceHash, &durationMs, &startedAtMs, &detail); err != nil {
			return nil, fmt.Errorf("history: recent: %w", err)
		}
		out = append(out, Attempt{
			Identity:   identity,
			Outcome:    Outcome(outcome),
			SourceHash: sourceHash,
			Duration:   time.Duration(durationMs) * time.Millisecond,
			StartedAt:  time.UnixMilli(startedAtMs),
			Detail:     detail,
		})
	}
	return out, rows.Err()
}
