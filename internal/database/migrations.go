package database

import (
	"fmt"
	"log"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations contains all database migrations in order
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
		Name:    "create_results_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS results (
				id TEXT PRIMARY KEY,
				source TEXT NOT NULL DEFAULT '',
				result TEXT NOT NULL,
				partial INTEGER NOT NULL DEFAULT 0,
				entity_count INTEGER NOT NULL DEFAULT 0,
				triple_count INTEGER NOT NULL DEFAULT 0,
				node_count INTEGER NOT NULL DEFAULT 0,
				edge_count INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_results_created_at ON results(created_at);
		`,
	},
	{
		Version: 3,
		Name:    "create_result_entities_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS result_entities (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				result_id TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				label TEXT NOT NULL,
				type TEXT NOT NULL,
				mention_count INTEGER NOT NULL,
				FOREIGN KEY (result_id) REFERENCES results(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_result_entities_result_id ON result_entities(result_id);
			CREATE INDEX IF NOT EXISTS idx_result_entities_label ON result_entities(label);
		`,
	},
}

// Migrate runs all pending migrations
func (db *DB) Migrate() error {
	// Ensure schema_version table exists
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

		log.Printf("Applying migration %d: %s", migration.Version, migration.Name)
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
	}

	return nil
}
