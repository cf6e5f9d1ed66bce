package history

import (
	"fmt"
	"log/slog"
)

// Migration represents a schema migration.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations contains all schema migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_schema_version_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER PRIMARY KEY,
				applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
		`,
	},
	{
		Version: 2,
		Name:    "create_history_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS history (
				document_key TEXT PRIMARY KEY,
				site TEXT NOT NULL,
				score INTEGER NOT NULL,
				rating TEXT NOT NULL,
				critical INTEGER NOT NULL,
				concern INTEGER NOT NULL,
				safe INTEGER NOT NULL,
				content_hash TEXT NOT NULL,
				analyzed_at TIMESTAMP NOT NULL,
				changed INTEGER NOT NULL DEFAULT 0,
				position INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_history_position ON history(position);
		`,
	},
}

// Migrate runs all pending migrations.
func (db *DB) Migrate() error {
	if _, err := db.conn.Exec(migrations[0].SQL); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var currentVersion int
	err := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d (%s): %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		slog.Info("applied migration", "version", migration.Version, "name", migration.Name)
	}

	return nil
}
