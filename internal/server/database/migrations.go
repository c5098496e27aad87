package database

import (
	"context"
	"fmt"

	"ghostbeacon/internal/server/logger"
)

const createBeaconsTable = `
CREATE TABLE IF NOT EXISTS beacons (
    id SERIAL PRIMARY KEY,
    beacon_id VARCHAR(255) UNIQUE NOT NULL,
    hostname VARCHAR(255) NOT NULL DEFAULT '',
    username VARCHAR(255) NOT NULL DEFAULT '',
    os_name VARCHAR(50) NOT NULL DEFAULT '',
    os_version VARCHAR(255) NOT NULL DEFAULT '',
    architecture VARCHAR(50) NOT NULL DEFAULT '',
    pid INTEGER NOT NULL DEFAULT 0,
    cwd TEXT NOT NULL DEFAULT '',
    ip_addresses TEXT NOT NULL DEFAULT '',
    first_seen TIMESTAMP NOT NULL DEFAULT NOW(),
    last_seen TIMESTAMP NOT NULL DEFAULT NOW(),
    is_active BOOLEAN DEFAULT true,
    created_at TIMESTAMP DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_beacons_beacon_id ON beacons(beacon_id);
CREATE INDEX IF NOT EXISTS idx_beacons_last_seen ON beacons(last_seen);
CREATE INDEX IF NOT EXISTS idx_beacons_is_active ON beacons(is_active);
`

const createQueuedCommandsTable = `
CREATE TABLE IF NOT EXISTS queued_commands (
    id SERIAL PRIMARY KEY,
    command_id VARCHAR(255) UNIQUE NOT NULL,
    beacon_id VARCHAR(255) NOT NULL,
    command VARCHAR(100) NOT NULL,
    args TEXT NOT NULL DEFAULT '',
    queued_at TIMESTAMP NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_queued_commands_beacon_id ON queued_commands(beacon_id);
CREATE INDEX IF NOT EXISTS idx_queued_commands_queued_at ON queued_commands(queued_at);
`

const createResultsTable = `
CREATE TABLE IF NOT EXISTS command_results (
    id SERIAL PRIMARY KEY,
    beacon_id VARCHAR(255) NOT NULL,
    command_id VARCHAR(255) NOT NULL,
    command VARCHAR(100) NOT NULL DEFAULT '',
    args TEXT NOT NULL DEFAULT '',
    success BOOLEAN NOT NULL DEFAULT false,
    output TEXT,
    completed_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_results_beacon_id ON command_results(beacon_id);
CREATE INDEX IF NOT EXISTS idx_results_completed_at ON command_results(completed_at);
CREATE INDEX IF NOT EXISTS idx_results_created_at ON command_results(created_at);
`

// RunMigrations executes all database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info(logger.CategoryDatabase, "Running database migrations...")

	if _, err := db.Pool.Exec(ctx, createBeaconsTable); err != nil {
		return fmt.Errorf("failed to create beacons table: %w", err)
	}
	db.logger.Info(logger.CategorySuccess, "Table 'beacons' created/verified")

	if _, err := db.Pool.Exec(ctx, createQueuedCommandsTable); err != nil {
		return fmt.Errorf("failed to create queued_commands table: %w", err)
	}
	db.logger.Info(logger.CategorySuccess, "Table 'queued_commands' created/verified")

	if _, err := db.Pool.Exec(ctx, createResultsTable); err != nil {
		return fmt.Errorf("failed to create command_results table: %w", err)
	}
	db.logger.Info(logger.CategorySuccess, "Table 'command_results' created/verified")

	db.logger.Info(logger.CategorySuccess, "Migrations complete")
	return nil
}
