package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. Failing to migrate to it is fatal.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS runs (
					id TEXT PRIMARY KEY,
					query_mapping TEXT NOT NULL DEFAULT '{}',
					candidate_mapping TEXT NOT NULL DEFAULT '{}',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS records (
					run_id TEXT NOT NULL,
					kind TEXT NOT NULL,
					row_index INTEGER NOT NULL,
					columns TEXT NOT NULL,
					fields TEXT NOT NULL,
					PRIMARY KEY (run_id, kind, row_index),
					FOREIGN KEY (run_id) REFERENCES runs(id)
				)`,

				`CREATE TABLE IF NOT EXISTS match_results (
					run_id TEXT NOT NULL,
					query_index INTEGER NOT NULL,
					candidate_index INTEGER,
					vendor_score INTEGER NOT NULL DEFAULT 0,
					product_score INTEGER NOT NULL DEFAULT 0,
					overall INTEGER NOT NULL DEFAULT 0,
					exact INTEGER NOT NULL DEFAULT 0,
					decision TEXT NOT NULL,
					reason TEXT,
					escalation TEXT NOT NULL DEFAULT '',
					candidate_fields TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (run_id, query_index),
					FOREIGN KEY (run_id) REFERENCES runs(id)
				)`,
				`CREATE INDEX idx_match_results_decision ON match_results(run_id, decision)`,

				`CREATE TABLE IF NOT EXISTS escalation_tasks (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id TEXT NOT NULL,
					query_index INTEGER NOT NULL,
					status TEXT NOT NULL DEFAULT 'queued',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (run_id, query_index),
					FOREIGN KEY (run_id) REFERENCES runs(id)
				)`,
				`CREATE INDEX idx_escalation_tasks_status ON escalation_tasks(run_id, status)`,
			}
			for _, q := range queries {
				if _, err := tx.Exec(q); err != nil {
					return fmt.Errorf("migration 1 failed: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Suggestions table",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS suggestions (
					run_id TEXT NOT NULL,
					query_index INTEGER NOT NULL,
					position INTEGER NOT NULL,
					candidate_index INTEGER NOT NULL,
					candidate_fields TEXT NOT NULL,
					confidence REAL NOT NULL,
					rationale TEXT,
					heuristic INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (run_id, query_index, position),
					FOREIGN KEY (run_id) REFERENCES runs(id)
				)`,
			}
			for _, q := range queries {
				if _, err := tx.Exec(q); err != nil {
					return fmt.Errorf("migration 2 failed: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies any pending schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		slog.Info("Applying migration", "version", m.Version, "description", m.Description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return err
		}

		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`, m.Version, m.Description); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
