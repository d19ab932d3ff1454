package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// migration represents a single schema migration.
type migration struct {
	version     int
	description string
	apply       func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// New migrations are appended at the end; never modify existing entries.
var migrations = []migration{
	{
		version:     1,
		description: "initial schema (applied via schemaSQL)",
		apply:       func(tx *sql.Tx) error { return nil }, // base schema applied separately
	},
	{
		version:     2,
		description: "add anomaly ratio to health_reports",
		apply: func(tx *sql.Tx) error {
			if _, err := tx.Exec("ALTER TABLE health_reports ADD COLUMN anomaly_ratio REAL DEFAULT 0"); err != nil {
				// Column likely already exists.
				slog.Debug("store: migration 2: column may already exist", "error", err)
			}
			_, err := tx.Exec(`UPDATE health_reports SET anomaly_ratio =
				CASE WHEN node_count > 0 THEN CAST(anomaly_count AS REAL) / node_count ELSE 0 END`)
			return err
		},
	},
	{
		version:     3,
		description: "add cross_refs table",
		apply: func(tx *sql.Tx) error {
			_, err := tx.Exec(crossRefsSQL)
			return err
		},
	},
	{
		version:     4,
		description: "add context text and printed citation to chunks",
		apply: func(tx *sql.Tx) error {
			for _, col := range []string{"context_text", "citation"} {
				if _, err := tx.Exec("ALTER TABLE chunks ADD COLUMN " + col + " TEXT"); err != nil {
					// Column likely already exists.
					slog.Debug("store: migration 4: column may already exist", "column", col, "error", err)
				}
			}
			return nil
		},
	},
}

// Migrate runs all pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		s.logger.Info("store: applying migration", "version", m.version, "description", m.description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}

		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_version (version, description) VALUES (?, ?)",
			m.version, m.description); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v)
	return v, err
}
