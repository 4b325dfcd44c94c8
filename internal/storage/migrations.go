package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

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
				`CREATE TABLE IF NOT EXISTS verticals (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT UNIQUE NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS runs (
					id TEXT PRIMARY KEY,
					vertical_id INTEGER NOT NULL,
					status TEXT NOT NULL DEFAULT 'PENDING',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					completed_at DATETIME,
					FOREIGN KEY (vertical_id) REFERENCES verticals(id)
				)`,
				`CREATE INDEX idx_runs_vertical ON runs(vertical_id)`,

				`CREATE TABLE IF NOT EXISTS answers (
					id TEXT PRIMARY KEY,
					run_id TEXT NOT NULL,
					text TEXT NOT NULL,
					model TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (run_id) REFERENCES runs(id)
				)`,
				`CREATE INDEX idx_answers_run ON answers(run_id)`,

				`CREATE TABLE IF NOT EXISTS extraction_results (
					answer_id TEXT PRIMARY KEY,
					brands TEXT NOT NULL DEFAULT '{}',
					products TEXT NOT NULL DEFAULT '{}',
					relationships TEXT NOT NULL DEFAULT '{}',
					debug TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (answer_id) REFERENCES answers(id)
				)`,

				// Canonical entities are keyed by knowledge vertical so they
				// survive across runs.
				`CREATE TABLE IF NOT EXISTS knowledge_verticals (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT UNIQUE NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS vertical_aliases (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					vertical_id INTEGER NOT NULL,
					alias TEXT NOT NULL,
					alias_key TEXT UNIQUE NOT NULL,
					source TEXT NOT NULL DEFAULT 'auto',
					FOREIGN KEY (vertical_id) REFERENCES knowledge_verticals(id)
				)`,

				`CREATE TABLE IF NOT EXISTS canonical_entities (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					vertical_id INTEGER NOT NULL,
					entity_type TEXT NOT NULL,
					canonical_name TEXT NOT NULL,
					display_name TEXT NOT NULL DEFAULT '',
					name_key TEXT NOT NULL,
					mention_count INTEGER NOT NULL DEFAULT 0,
					is_validated INTEGER NOT NULL DEFAULT 0,
					validation_source TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (vertical_id, entity_type, name_key),
					FOREIGN KEY (vertical_id) REFERENCES knowledge_verticals(id)
				)`,
				`CREATE INDEX idx_entities_lookup ON canonical_entities(vertical_id, entity_type)`,

				`CREATE TABLE IF NOT EXISTS entity_aliases (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					canonical_id INTEGER NOT NULL,
					alias TEXT NOT NULL,
					alias_key TEXT NOT NULL,
					UNIQUE (canonical_id, alias_key),
					FOREIGN KEY (canonical_id) REFERENCES canonical_entities(id)
				)`,
				`CREATE INDEX idx_entity_aliases_key ON entity_aliases(alias_key)`,

				`CREATE TABLE IF NOT EXISTS validation_candidates (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					vertical_id INTEGER NOT NULL,
					entity_type TEXT NOT NULL,
					name TEXT NOT NULL,
					mention_count INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'PENDING',
					reviewed_by TEXT NOT NULL DEFAULT '',
					rejection_reason TEXT NOT NULL DEFAULT '',
					reviewed_at DATETIME,
					FOREIGN KEY (vertical_id) REFERENCES knowledge_verticals(id)
				)`,
				`CREATE INDEX idx_validation_candidates_status ON validation_candidates(vertical_id, status)`,

				`CREATE TABLE IF NOT EXISTS rejected_entities (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					vertical_id INTEGER NOT NULL,
					entity_type TEXT NOT NULL,
					name TEXT NOT NULL,
					reason TEXT NOT NULL DEFAULT '',
					example_context TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (vertical_id, entity_type, name, reason),
					FOREIGN KEY (vertical_id) REFERENCES knowledge_verticals(id)
				)`,

				`CREATE TABLE IF NOT EXISTS product_brand_mappings (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					vertical_id INTEGER NOT NULL,
					product_id INTEGER NOT NULL,
					brand_id INTEGER NOT NULL,
					confidence REAL NOT NULL DEFAULT 0,
					source TEXT NOT NULL,
					is_validated INTEGER NOT NULL DEFAULT 0,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (vertical_id, product_id),
					FOREIGN KEY (product_id) REFERENCES canonical_entities(id),
					FOREIGN KEY (brand_id) REFERENCES canonical_entities(id)
				)`,

				`CREATE TABLE IF NOT EXISTS translation_overrides (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					vertical_id INTEGER NOT NULL,
					entity_type TEXT NOT NULL,
					canonical_name TEXT NOT NULL,
					language TEXT NOT NULL,
					override_text TEXT NOT NULL,
					reason TEXT NOT NULL DEFAULT '',
					UNIQUE (vertical_id, entity_type, canonical_name, language),
					FOREIGN KEY (vertical_id) REFERENCES knowledge_verticals(id)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add mention records with rank and sentiment",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS mentions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					answer_id TEXT NOT NULL,
					entity_id INTEGER NOT NULL,
					entity_type TEXT NOT NULL,
					mentioned INTEGER NOT NULL DEFAULT 0,
					rank INTEGER,
					sentiment TEXT NOT NULL DEFAULT 'neutral',
					evidence TEXT NOT NULL DEFAULT '[]',
					FOREIGN KEY (answer_id) REFERENCES answers(id),
					FOREIGN KEY (entity_id) REFERENCES canonical_entities(id)
				)`,
				`CREATE INDEX idx_mentions_answer ON mentions(answer_id)`,
				`CREATE INDEX idx_mentions_entity ON mentions(entity_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Add feedback event archive",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS feedback_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id TEXT NOT NULL,
					vertical_id INTEGER NOT NULL,
					reviewer TEXT NOT NULL DEFAULT '',
					reviewer_model TEXT NOT NULL DEFAULT '',
					payload TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (run_id) REFERENCES runs(id)
				)
			`)
			return err
		},
	},
}

// Migrate applies any pending schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
