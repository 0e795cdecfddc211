package store

import (
	"database/sql"
	"testing"

	"github.com/hartwellkc/clubsite/internal/database"
)

// openTestDB opens an in-memory database with migrations applied (including
// the seeded membership types).
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
