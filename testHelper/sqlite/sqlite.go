package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"go.uber.org/zap/zaptest"

	jobqueue "github.com/TimKotowski/pg-jobqueue"
	"github.com/TimKotowski/pg-jobqueue/migrations"
)

// SetUp returns a migrated SQLite database living in the test's temp dir.
func SetUp(t *testing.T) *bun.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "jobqueue.db")
	db, err := jobqueue.GetSQLiteConnection(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	err = migrations.Migrate(context.Background(), db, zaptest.NewLogger(t))
	require.NoError(t, err)

	return db
}
