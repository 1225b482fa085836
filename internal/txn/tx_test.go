package txn_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/TimKotowski/pg-jobqueue/internal/txn"
	"github.com/TimKotowski/pg-jobqueue/testHelper/sqlite"
)

func insertClassification(ctx context.Context, t *testing.T, db *bun.DB, id string) {
	t.Helper()
	_, err := txn.Conn(ctx, db).ExecContext(ctx,
		`INSERT INTO classification (id, "key", priority, service_level) VALUES (?, ?, 0, '')`, id, id)
	require.NoError(t, err)
}

func count(t *testing.T, db *bun.DB) int {
	t.Helper()
	n, err := db.NewSelect().Table("classification").Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestStandalone(t *testing.T) {
	ctx := context.Background()

	t.Run("commits when fn succeeds", func(t *testing.T) {
		db := sqlite.SetUp(t)
		p := txn.NewStandalone(db)

		err := p.RunInTx(ctx, func(ctx context.Context) error {
			_, ok := txn.FromContext(ctx)
			assert.True(t, ok)
			insertClassification(ctx, t, db, "CLI-1")
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count(t, db))
	})

	t.Run("rolls back and returns the error as is", func(t *testing.T) {
		db := sqlite.SetUp(t)
		p := txn.NewStandalone(db)

		err := p.RunInTx(ctx, func(ctx context.Context) error {
			insertClassification(ctx, t, db, "CLI-1")
			return assert.AnError
		})
		assert.Same(t, assert.AnError, err)
		assert.Zero(t, count(t, db))
	})

	t.Run("opens its own transaction inside another", func(t *testing.T) {
		db := sqlite.SetUp(t)
		p := txn.NewStandalone(db)

		err := p.RunInTx(ctx, func(outer context.Context) error {
			outerTx, _ := txn.FromContext(outer)

			require.NoError(t, p.RunInTx(outer, func(inner context.Context) error {
				innerTx, _ := txn.FromContext(inner)
				assert.NotEqual(t, outerTx, innerTx)
				insertClassification(inner, t, db, "CLI-inner")
				return nil
			}))
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, 1, count(t, db), "inner commit survives the outer rollback")
	})
}

func TestNested(t *testing.T) {
	ctx := context.Background()

	t.Run("joins the transaction in the context", func(t *testing.T) {
		db := sqlite.SetUp(t)
		standalone := txn.NewStandalone(db)
		nested := txn.NewNested(standalone)

		err := standalone.RunInTx(ctx, func(outer context.Context) error {
			outerTx, _ := txn.FromContext(outer)

			nestedErr := nested.RunInTx(outer, func(inner context.Context) error {
				innerTx, ok := txn.FromContext(inner)
				assert.True(t, ok)
				assert.Equal(t, outerTx, innerTx)
				insertClassification(inner, t, db, "CLI-1")
				return assert.AnError
			})
			assert.ErrorIs(t, nestedErr, assert.AnError)

			insertClassification(outer, t, db, "CLI-2")
			return nestedErr
		})
		require.ErrorIs(t, err, assert.AnError)
		assert.Zero(t, count(t, db), "the owner rolls back the joined work")
	})

	t.Run("falls back to a new transaction", func(t *testing.T) {
		db := sqlite.SetUp(t)
		nested := txn.NewNested(txn.NewStandalone(db))

		err := nested.RunInTx(ctx, func(ctx context.Context) error {
			_, ok := txn.FromContext(ctx)
			assert.True(t, ok)
			insertClassification(ctx, t, db, "CLI-1")
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count(t, db))
	})
}

func TestRunWithResult(t *testing.T) {
	ctx := context.Background()
	db := sqlite.SetUp(t)
	p := txn.NewStandalone(db)

	n, err := txn.RunWithResult(ctx, p, func(ctx context.Context) (int, error) {
		insertClassification(ctx, t, db, "CLI-1")
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = txn.RunWithResult(ctx, p, func(ctx context.Context) (int, error) {
		return 7, assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, n)
}
