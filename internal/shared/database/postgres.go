// Package database owns the Postgres side of the platform: the pooled
// connection used by the incident projection, profiles, custom roles,
// and the notification inbox, plus the embedded schema migrations.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/safetrack/platform/internal/shared/config"
)

// DB holds the shared pgx pool. Repositories take the pool directly;
// the wrapper exists for lifecycle and health checks.
type DB struct {
	Pool *pgxpool.Pool
}

// New opens the connection pool and verifies it with a ping. The
// projection and inbox repositories all share this one pool.
func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Health pings the database; the readiness endpoint reports the result.
func (db *DB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
