package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/dentalclinic/records/internal/config"
	"github.com/dentalclinic/records/internal/domain/visit"
	"github.com/dentalclinic/records/internal/platform/db"
	"github.com/dentalclinic/records/migrations"
)

// store is the opened visit repository plus what it holds open.
type store struct {
	repo  visit.Repository
	shape visit.Shape
	// pool is nil for the sqlite driver.
	pool  *pgxpool.Pool
	close func()
}

// openStore connects the configured driver and returns the repository for
// the configured shape. Postgres applies pending migrations when
// MIGRATIONS_AUTO is set; sqlite always auto-migrates.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*store, error) {
	shape := visit.Shape(cfg.SchemaShape)

	switch cfg.StoreDriver {
	case config.DriverSQLite:
		gdb, err := db.OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		if err := visit.AutoMigrate(gdb); err != nil {
			return nil, fmt.Errorf("migrate sqlite store: %w", err)
		}
		logger.Info().Str("path", cfg.SQLitePath).Str("shape", string(shape)).Msg("opened sqlite store")
		return &store{
			repo:  visit.NewGormRepo(gdb, shape),
			shape: shape,
			close: func() {
				if sqlDB, err := gdb.DB(); err == nil {
					sqlDB.Close()
				}
			},
		}, nil

	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if cfg.MigrationsAuto {
			n, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("migration failed: %w", err)
			}
			logger.Info().Int("applied", n).Msg("migrations applied")
		}
		logger.Info().Str("shape", string(shape)).Msg("connected to database")
		return &store{
			repo:  visit.NewRepo(pool, shape),
			shape: shape,
			pool:  pool,
			close: pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
