package testutil

import (
	"testing"

	"tms-go/internal/database"
)

// NewTestDatabase creates a new in-memory SQLite database with the schema
// migrated to the latest version. The database is automatically closed when
// the test completes.
func NewTestDatabase(t *testing.T) *database.MetadataDB {
	t.Helper()

	db, err := database.Open(":memory:", database.Options{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := db.MigrateUp(); err != nil {
		db.Close()
		t.Fatalf("failed to migrate schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
