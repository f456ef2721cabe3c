// Package persistence opens the bun database the repositories run on
// and bootstraps its schema.
package persistence

import (
	"context"
	"database/sql"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-taskman"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// Open connects using the configured driver, applies pool settings and
// pings the database
func Open(ctx context.Context, cfg taskman.Config, logger taskman.Logger) (*bun.DB, error) {
	if logger == nil {
		logger = taskman.DefaultLogger()
	}

	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch cfg.DatabaseDriver {
	case taskman.DriverPostgres, "":
		sqldb, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open postgres")
		}
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db = bun.NewDB(sqldb, pgdialect.New())

	case taskman.DriverSQLite:
		sqldb, err = sql.Open(sqliteshim.ShimName, cfg.DatabaseURL)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite")
		}
		// a single connection keeps in-memory databases alive and
		// matches SQLite's one writer model
		sqldb.SetMaxOpenConns(1)
		sqldb.SetMaxIdleConns(1)
		sqldb.SetConnMaxLifetime(0)
		db = bun.NewDB(sqldb, sqlitedialect.New())

	default:
		return nil, goerrors.New(
			fmt.Sprintf("unsupported database driver %q", cfg.DatabaseDriver),
			goerrors.CategoryBadInput,
		).WithCode(goerrors.CodeBadRequest)
	}

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = taskman.DefaultConfig().PingTimeout
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "database ping failed")
	}

	if cfg.DatabaseDriver == taskman.DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to enable foreign keys")
		}
	}

	logger.Info("connected to %s database", db.Dialect().Name())

	return db, nil
}
