package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ghostbeacon/internal/server/config"
	"ghostbeacon/internal/server/logger"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 3 * time.Second
)

// DB bundles the pgx connection pool with the controller logger. A nil Pool
// means PostgreSQL was never reached and the controller runs in-memory.
type DB struct {
	Pool   *pgxpool.Pool
	logger *logger.Logger
}

// Connect opens a pool against the configured PostgreSQL instance and
// verifies it with a ping before handing it out.
func Connect(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	tunePool(poolConfig, cfg)

	log.Info(logger.CategoryDatabase, "Connecting to PostgreSQL at %s:%s/%s...",
		cfg.Host, cfg.Port, cfg.Name)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info(logger.CategorySuccess, "Database connected (pool: %d-%d connections)",
		cfg.MinConns, cfg.MaxConns)

	return &DB{Pool: pool, logger: log}, nil
}

// tunePool applies pool sizing from config on top of fixed lifetime limits.
func tunePool(pc *pgxpool.Config, cfg *config.DatabaseConfig) {
	pc.MaxConns = int32(cfg.MaxConns)
	pc.MinConns = int32(cfg.MinConns)
	pc.MaxConnLifetime = time.Hour
	pc.MaxConnIdleTime = 30 * time.Minute
	pc.HealthCheckPeriod = time.Minute
}

// Close releases the connection pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.logger.Info(logger.CategoryDatabase, "Closing database connection pool...")
		db.Pool.Close()
	}
}

// IsHealthy reports whether the beacon store is reachable right now. The
// ping runs under a short deadline so storage health checks cannot stall
// an in-flight check-in.
func (db *DB) IsHealthy() bool {
	if db.Pool == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	return db.Pool.Ping(ctx) == nil
}

// GetStatus reports "connected" or "disconnected" for the stats API.
func (db *DB) GetStatus() string {
	if db.IsHealthy() {
		return "connected"
	}
	return "disconnected"
}

// Stats summarizes pool usage for logs.
func (db *DB) Stats() string {
	if db.Pool == nil {
		return "Pool: not connected"
	}
	stat := db.Pool.Stat()
	return fmt.Sprintf("Pool: total=%d idle=%d acquired=%d",
		stat.TotalConns(), stat.IdleConns(), stat.AcquiredConns())
}
