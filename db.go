package jobqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/extra/bundebug"

	_ "modernc.org/sqlite"
)

const sqliteMaxOpenConns = 4

// OpenDB connects to the store selected by config.Driver.
func OpenDB(config *Config) (*bun.DB, error) {
	switch config.Driver {
	case "", DriverPostgres:
		return GetDBConnection(config)
	case DriverSQLite:
		return GetSQLiteConnection(config.DSN)
	default:
		return nil, fmt.Errorf("unsupported driver %q", config.Driver)
	}
}

func GetDBConnection(config *Config) (*bun.DB, error) {
	if config.DSN == "" {
		return nil, errors.New("connection string is empty, unable to establish connection")
	}

	pgxCfg, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection due to %w", err)
	}
	if config.TLSConfig != nil {
		pgxCfg.ConnConfig.TLSConfig = config.TLSConfig
	}
	if config.Schema != "" {
		pgxCfg.ConnConfig.RuntimeParams["search_path"] = config.Schema
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), pgxCfg)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(stdlib.OpenDBFromPool(pool), pgdialect.New())
	db.AddQueryHook(bundebug.NewQueryHook(bundebug.FromEnv("BUNDEBUG")))
	if err = db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}

// GetSQLiteConnection opens a SQLite database file in WAL mode. Several
// connections share the file, so an in-memory database cannot be used.
func GetSQLiteConnection(path string) (*bun.DB, error) {
	if path == "" || path == ":memory:" {
		return nil, errors.New("sqlite needs a database file path")
	}

	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(1)")

	sqldb, err := sql.Open("sqlite", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	sqldb.SetMaxOpenConns(sqliteMaxOpenConns)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	db.AddQueryHook(bundebug.NewQueryHook(bundebug.FromEnv("BUNDEBUG")))
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
