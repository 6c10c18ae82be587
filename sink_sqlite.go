package convogen

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ──────────────────────────────────────────────
// SQLite sink — queryable dataset mirror
// ──────────────────────────────────────────────
//
// One row per conversation plus a run row, upserted on every snapshot.
// Useful when downstream consumers want SQL over the generated data
// instead of walking a large JSON document.

// SQLiteSink mirrors dataset snapshots into a SQLite database.
type SQLiteSink struct {
	db    *sql.DB
	runID string
}

// NewSQLiteSink opens (or creates) the database and runs migrations.
func NewSQLiteSink(path, runID string) (*SQLiteSink, error) {
	if runID == "" {
		return nil, configErrorf("sqlite sink requires a run id")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Single connection avoids write contention for our scale
	db.SetMaxOpenConns(1)

	s := &SQLiteSink{db: db, runID: runID}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id     TEXT PRIMARY KEY,
			metadata   TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id            TEXT PRIMARY KEY,
			run_id        TEXT NOT NULL REFERENCES runs(run_id),
			category      TEXT NOT NULL,
			topic         TEXT NOT NULL,
			persona       TEXT NOT NULL,
			ending_reason TEXT NOT NULL,
			turns         INTEGER NOT NULL,
			body          TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_run    ON conversations(run_id);
		CREATE INDEX IF NOT EXISTS idx_conversations_reason ON conversations(ending_reason);
	`)
	return err
}

func (s *SQLiteSink) Persist(ctx context.Context, ds *Dataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	meta, err := json.Marshal(ds.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, metadata, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(run_id) DO UPDATE SET metadata = excluded.metadata, updated_at = excluded.updated_at
	`, s.runID, string(meta)); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	for _, conv := range ds.Conversations {
		body, err := json.Marshal(conv)
		if err != nil {
			return fmt.Errorf("marshal conversation %s: %w", conv.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, run_id, category, topic, persona, ending_reason, turns, body)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				ending_reason = excluded.ending_reason,
				turns         = excluded.turns,
				body          = excluded.body
		`, conv.ID, s.runID, conv.Category, conv.Topic, conv.Persona.Type, conv.EndingReason, conv.Turns, string(body)); err != nil {
			return fmt.Errorf("upsert conversation %s: %w", conv.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
