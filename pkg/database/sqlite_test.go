package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunSQLiteMigrations_Idempotent(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "nested", "feedback.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunSQLiteMigrations(db, zap.NewNop()))
	require.NoError(t, RunSQLiteMigrations(db, zap.NewNop()))

	var count int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('feedback_items', 'user_profiles')`).
		Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
