package testutil

import (
	"database/sql"
	"testing"

	"scriptbridge/internal/migration"
	"scriptbridge/internal/repository"

	_ "modernc.org/sqlite"
)

// SetupTestDB creates an in-memory SQLite database with all tables and returns a Queries instance.
func SetupTestDB(t *testing.T) *repository.Queries {
	t.Helper()
	_, q := SetupTestDBWithConn(t)
	return q
}

// SetupTestDBWithConn creates an in-memory SQLite database and returns both the raw *sql.DB and Queries.
func SetupTestDBWithConn(t *testing.T) (*sql.DB, *repository.Queries) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	// every pooled connection would get its own empty :memory: database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(migration.Schema); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db, repository.New(db)
}
