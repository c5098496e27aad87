package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"ghostbeacon/internal/server/database"
	"ghostbeacon/internal/server/logger"
	"ghostbeacon/pkg/shared"
)

// PostgresStorage implements Storage interface using PostgreSQL
type PostgresStorage struct {
	db     *database.DB
	logger *logger.Logger
}

// NewPostgresStorage creates a new PostgreSQL storage
func NewPostgresStorage(db *database.DB, log *logger.Logger) *PostgresStorage {
	return &PostgresStorage{
		db:     db,
		logger: log,
	}
}

// UpsertBeacon inserts or updates a beacon from a full snapshot
func (s *PostgresStorage) UpsertBeacon(ctx context.Context, beacon *Beacon) error {
	query := `
		INSERT INTO beacons (beacon_id, hostname, username, os_name, os_version,
		                     architecture, pid, cwd, ip_addresses, first_seen, last_seen, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (beacon_id)
		DO UPDATE SET
			hostname = EXCLUDED.hostname,
			username = EXCLUDED.username,
			os_name = EXCLUDED.os_name,
			os_version = EXCLUDED.os_version,
			architecture = EXCLUDED.architecture,
			pid = EXCLUDED.pid,
			cwd = EXCLUDED.cwd,
			ip_addresses = EXCLUDED.ip_addresses,
			last_seen = EXCLUDED.last_seen,
			is_active = EXCLUDED.is_active
	`

	_, err := s.db.Pool.Exec(ctx, query,
		beacon.BeaconID,
		beacon.Hostname,
		beacon.Username,
		beacon.OSName,
		beacon.OSVersion,
		beacon.Architecture,
		beacon.PID,
		beacon.CWD,
		beacon.IPAddresses,
		beacon.FirstSeen,
		beacon.LastSeen,
		beacon.IsActive,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert beacon: %w", err)
	}

	return nil
}

// TouchBeacon refreshes last_seen without touching the system snapshot
func (s *PostgresStorage) TouchBeacon(ctx context.Context, beaconID string, seen time.Time) error {
	query := `
		INSERT INTO beacons (beacon_id, first_seen, last_seen, is_active)
		VALUES ($1, $2, $2, true)
		ON CONFLICT (beacon_id)
		DO UPDATE SET
			last_seen = EXCLUDED.last_seen,
			is_active = true
	`

	if _, err := s.db.Pool.Exec(ctx, query, beaconID, seen); err != nil {
		return fmt.Errorf("failed to touch beacon: %w", err)
	}

	return nil
}

// GetBeacon retrieves a beacon by ID
func (s *PostgresStorage) GetBeacon(ctx context.Context, beaconID string) (*Beacon, error) {
	query := `
		SELECT id, beacon_id, hostname, username, os_name, os_version, architecture,
		       pid, cwd, ip_addresses, first_seen, last_seen, is_active, created_at
		FROM beacons
		WHERE beacon_id = $1
	`

	beacon := &Beacon{}
	err := s.db.Pool.QueryRow(ctx, query, beaconID).Scan(
		&beacon.ID,
		&beacon.BeaconID,
		&beacon.Hostname,
		&beacon.Username,
		&beacon.OSName,
		&beacon.OSVersion,
		&beacon.Architecture,
		&beacon.PID,
		&beacon.CWD,
		&beacon.IPAddresses,
		&beacon.FirstSeen,
		&beacon.LastSeen,
		&beacon.IsActive,
		&beacon.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("beacon not found: %s", beaconID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get beacon: %w", err)
	}

	return beacon, nil
}

// ListBeacons retrieves all beacons
func (s *PostgresStorage) ListBeacons(ctx context.Context) ([]*Beacon, error) {
	query := `
		SELECT id, beacon_id, hostname, username, os_name, os_version, architecture,
		       pid, cwd, ip_addresses, first_seen, last_seen, is_active, created_at
		FROM beacons
		ORDER BY last_seen DESC
	`

	rows, err := s.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list beacons: %w", err)
	}
	defer rows.Close()

	var beacons []*Beacon
	for rows.Next() {
		beacon := &Beacon{}
		err := rows.Scan(
			&beacon.ID,
			&beacon.BeaconID,
			&beacon.Hostname,
			&beacon.Username,
			&beacon.OSName,
			&beacon.OSVersion,
			&beacon.Architecture,
			&beacon.PID,
			&beacon.CWD,
			&beacon.IPAddresses,
			&beacon.FirstSeen,
			&beacon.LastSeen,
			&beacon.IsActive,
			&beacon.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan beacon: %w", err)
		}
		beacons = append(beacons, beacon)
	}

	return beacons, nil
}

// UpdateBeaconActivityStatus marks beacons as inactive based on threshold
func (s *PostgresStorage) UpdateBeaconActivityStatus(ctx context.Context, inactiveThreshold time.Duration) (int, error) {
	query := `
		UPDATE beacons
		SET is_active = false
		WHERE is_active = true
		  AND last_seen < $1
	`

	cutoffTime := time.Now().Add(-inactiveThreshold)
	result, err := s.db.Pool.Exec(ctx, query, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to update beacon activity status: %w", err)
	}

	return int(result.RowsAffected()), nil
}

// QueueCommand appends a command to a beacon's pending queue
func (s *PostgresStorage) QueueCommand(ctx context.Context, beaconID string, cmd shared.Command) error {
	query := `
		INSERT INTO queued_commands (command_id, beacon_id, command, args)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := s.db.Pool.Exec(ctx, query, cmd.ID, beaconID, cmd.Command, cmd.Args); err != nil {
		return fmt.Errorf("failed to queue command: %w", err)
	}

	return nil
}

// DequeueCommands drains the pending queue for a beacon in FIFO order
func (s *PostgresStorage) DequeueCommands(ctx context.Context, beaconID string) ([]shared.Command, error) {
	// DELETE ... RETURNING has no guaranteed order, so sort after draining.
	query := `
		WITH drained AS (
			DELETE FROM queued_commands
			WHERE beacon_id = $1
			RETURNING command_id, command, args, queued_at
		)
		SELECT command_id, command, args FROM drained ORDER BY queued_at
	`

	rows, err := s.db.Pool.Query(ctx, query, beaconID)
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue commands: %w", err)
	}
	defer rows.Close()

	var cmds []shared.Command
	for rows.Next() {
		var cmd shared.Command
		if err := rows.Scan(&cmd.ID, &cmd.Command, &cmd.Args); err != nil {
			return nil, fmt.Errorf("failed to scan queued command: %w", err)
		}
		cmds = append(cmds, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to dequeue commands: %w", err)
	}

	return cmds, nil
}

// CountPendingCommands returns the number of queued commands across all beacons
func (s *PostgresStorage) CountPendingCommands(ctx context.Context) (int, error) {
	var count int
	if err := s.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM queued_commands`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending commands: %w", err)
	}
	return count, nil
}

// SaveResult saves a completed command result
func (s *PostgresStorage) SaveResult(ctx context.Context, res *Result) error {
	query := `
		INSERT INTO command_results (beacon_id, command_id, command, args, success, output, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := s.db.Pool.QueryRow(ctx, query,
		res.BeaconID,
		res.CommandID,
		res.Command,
		res.Args,
		res.Success,
		res.Output,
		res.CompletedAt,
	).Scan(&res.ID)

	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}

	return nil
}

// GetResultHistory retrieves result history for a beacon
func (s *PostgresStorage) GetResultHistory(ctx context.Context, beaconID string, limit, offset int) ([]*Result, int, error) {
	countQuery := `SELECT COUNT(*) FROM command_results WHERE beacon_id = $1`
	var total int
	if err := s.db.Pool.QueryRow(ctx, countQuery, beaconID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count results: %w", err)
	}

	query := `
		SELECT id, beacon_id, command_id, command, args, success, output, completed_at, created_at
		FROM command_results
		WHERE beacon_id = $1
		ORDER BY completed_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Pool.Query(ctx, query, beaconID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get result history: %w", err)
	}
	defer rows.Close()

	results, err := scanResults(rows)
	if err != nil {
		return nil, 0, err
	}

	return results, total, nil
}

// ListResults retrieves results with filters
func (s *PostgresStorage) ListResults(ctx context.Context, filters ResultFilters) ([]*Result, int, error) {
	baseQuery := `SELECT id, beacon_id, command_id, command, args, success, output, completed_at, created_at FROM command_results`
	countQuery := `SELECT COUNT(*) FROM command_results`
	whereClause := ""
	args := []interface{}{}
	argNum := 1

	if filters.BeaconID != "" {
		whereClause += fmt.Sprintf(" WHERE beacon_id = $%d", argNum)
		args = append(args, filters.BeaconID)
		argNum++
	}

	if filters.Command != "" {
		if whereClause == "" {
			whereClause += " WHERE"
		} else {
			whereClause += " AND"
		}
		whereClause += fmt.Sprintf(" command = $%d", argNum)
		args = append(args, filters.Command)
		argNum++
	}

	var total int
	if err := s.db.Pool.QueryRow(ctx, countQuery+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count results: %w", err)
	}

	query := baseQuery + whereClause + fmt.Sprintf(" ORDER BY completed_at DESC LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filters.Limit, filters.Offset)

	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	results, err := scanResults(rows)
	if err != nil {
		return nil, 0, err
	}

	return results, total, nil
}

func scanResults(rows pgx.Rows) ([]*Result, error) {
	var results []*Result
	for rows.Next() {
		res := &Result{}
		err := rows.Scan(
			&res.ID,
			&res.BeaconID,
			&res.CommandID,
			&res.Command,
			&res.Args,
			&res.Success,
			&res.Output,
			&res.CompletedAt,
			&res.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, res)
	}
	return results, nil
}

// CleanupOldResults deletes results older than retention period
func (s *PostgresStorage) CleanupOldResults(ctx context.Context, retentionDays int) (int, error) {
	query := `
		DELETE FROM command_results
		WHERE created_at < NOW() - INTERVAL '1 day' * $1
	`

	result, err := s.db.Pool.Exec(ctx, query, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old results: %w", err)
	}

	return int(result.RowsAffected()), nil
}

// GetStats returns system statistics
func (s *PostgresStorage) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		DBStatus: s.GetStatus(),
	}

	if err := s.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM beacons`).Scan(&stats.TotalBeacons); err != nil {
		return nil, fmt.Errorf("failed to get total beacons: %w", err)
	}

	if err := s.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM beacons WHERE is_active = true`).Scan(&stats.ActiveBeacons); err != nil {
		return nil, fmt.Errorf("failed to get active beacons: %w", err)
	}

	if err := s.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM command_results`).Scan(&stats.TotalResults); err != nil {
		return nil, fmt.Errorf("failed to get total results: %w", err)
	}

	if err := s.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM command_results WHERE created_at > NOW() - INTERVAL '1 hour'`).Scan(&stats.ResultsLastHour); err != nil {
		return nil, fmt.Errorf("failed to get results last hour: %w", err)
	}

	if err := s.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM queued_commands`).Scan(&stats.PendingCommands); err != nil {
		return nil, fmt.Errorf("failed to get pending commands: %w", err)
	}

	return stats, nil
}

// IsAvailable checks if the database is available
func (s *PostgresStorage) IsAvailable() bool {
	return s.db.IsHealthy()
}

// GetStatus returns the database status
func (s *PostgresStorage) GetStatus() string {
	return s.db.GetStatus()
}
