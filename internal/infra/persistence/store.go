// Package persistence exposes shared wiring for the database-backed
// ledger store. Concrete implementations live in subpackages
// (postgres, migrations).
package persistence

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agoralabs/agora/internal/infra/config"
	"github.com/agoralabs/agora/internal/infra/persistence/migrations"
	"github.com/agoralabs/agora/internal/infra/persistence/postgres"
)

// NewPool builds a pgx pool from the database configuration and verifies
// connectivity before returning it.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Open wires the full persistence stack for a host process: it applies
// pending migrations when the configuration asks for it, builds the
// connection pool, registers pool gauges, and returns the
// postgres-backed ledger store alongside the pool it owns. Callers close
// the pool when done.
func Open(ctx context.Context, cfg config.AppConfig, migrationsDir string, logger *log.Logger) (*postgres.MarketStore, *pgxpool.Pool, error) {
	if cfg.Database.RunMigrations {
		if err := migrations.Apply(ctx, cfg.Database.DSN, migrationsDir, logger); err != nil {
			return nil, nil, fmt.Errorf("run startup migrations: %w", err)
		}
	}

	pool, err := NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Telemetry.EnableMetrics {
		postgres.ObservePoolMetrics(pool, cfg.Telemetry.ServiceName)
	}
	return postgres.NewMarketStore(pool), pool, nil
}
