package storage

import (
	"context"
	"time"

	"ghostbeacon/pkg/shared"
)

// Storage defines the interface for data persistence operations
type Storage interface {
	// Beacon operations
	UpsertBeacon(ctx context.Context, beacon *Beacon) error
	TouchBeacon(ctx context.Context, beaconID string, seen time.Time) error
	GetBeacon(ctx context.Context, beaconID string) (*Beacon, error)
	ListBeacons(ctx context.Context) ([]*Beacon, error)
	UpdateBeaconActivityStatus(ctx context.Context, inactiveThreshold time.Duration) (int, error)

	// Command queue operations
	QueueCommand(ctx context.Context, beaconID string, cmd shared.Command) error
	DequeueCommands(ctx context.Context, beaconID string) ([]shared.Command, error)
	CountPendingCommands(ctx context.Context) (int, error)

	// Result operations
	SaveResult(ctx context.Context, res *Result) error
	GetResultHistory(ctx context.Context, beaconID string, limit, offset int) ([]*Result, int, error)
	ListResults(ctx context.Context, filters ResultFilters) ([]*Result, int, error)

	// Cleanup operations
	CleanupOldResults(ctx context.Context, retentionDays int) (int, error)

	// Stats operations
	GetStats(ctx context.Context) (*Stats, error)

	// Health check
	IsAvailable() bool
	GetStatus() string
}
