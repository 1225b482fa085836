package migrations

import (
	"context"
	"embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

var Migrations = migrate.NewMigrations()

//go:embed schema/*.sql
var sqlMigrations embed.FS

func init() {
	if err := Migrations.Discover(sqlMigrations); err != nil {
		panic(err)
	}
}

// Migrate applies every pending migration. The schema is portable between
// Postgres and SQLite.
func Migrate(ctx context.Context, db *bun.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := migrate.NewMigrator(db, Migrations)
	if err := m.Init(ctx); err != nil {
		return err
	}

	if err := m.Lock(ctx); err != nil {
		return err
	}
	defer m.Unlock(ctx) //nolint:errcheck

	group, err := m.Migrate(ctx)
	if err != nil {
		return err
	}

	if group.IsZero() {
		logger.Info("no new migrations were applied")
	} else {
		logger.Info("applied migration group", zap.String("group", group.String()), zap.Int("migrations", len(group.Migrations)))
	}

	applied, err := m.AppliedMigrations(ctx)
	if err != nil {
		return err
	}
	logger.Debug("total applied migrations", zap.Int("count", len(applied)))

	return nil
}
