package migration

import (
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Run executes all database migrations
func Run(db *sql.DB, log *logrus.Entry) error {
	if err := createTables(db); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	// Incremental migrations (idempotent)
	migrateEvaluationConfigName(db, log)

	return nil
}

// Schema is the full DDL, shared with the test helpers.
const Schema = `
CREATE TABLE IF NOT EXISTS symbols (
    name TEXT PRIMARY KEY,
    value TEXT NOT NULL DEFAULT '',
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    config_name TEXT NOT NULL DEFAULT 'default',
    expression TEXT NOT NULL,
    outcome TEXT NOT NULL,
    result TEXT,
    error TEXT,
    optimization INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_evaluations_created ON evaluations(created_at DESC);
`

func createTables(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// migrateEvaluationConfigName upgrades history tables created before
// evaluations were tagged with their configuration name.
func migrateEvaluationConfigName(db *sql.DB, log *logrus.Entry) {
	db.Exec("ALTER TABLE evaluations ADD COLUMN config_name TEXT NOT NULL DEFAULT 'default'") // Ignore "duplicate column" errors

	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_evaluations_config ON evaluations(config_name)"); err != nil {
		log.WithError(err).Warn("evaluations config index")
	}
}
