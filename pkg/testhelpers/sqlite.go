package testhelpers

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/database"
)

// NewSQLiteDB opens a migrated SQLite database in a per-test temp directory.
// It is closed when the test finishes.
func NewSQLiteDB(t *testing.T) *database.SQLiteDB {
	t.Helper()

	db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "feedback.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.RunSQLiteMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to run sqlite migrations: %v", err)
	}
	return db
}
