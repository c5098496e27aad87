package storage

import (
	"context"
	"sync"
	"time"

	"ghostbeacon/internal/server/logger"
	"ghostbeacon/pkg/shared"
)

// ResilientStorage wraps primary (PostgreSQL) and fallback (in-memory) storage.
// It automatically switches between them when database health changes.
type ResilientStorage struct {
	primary       Storage
	fallback      Storage
	currentMode   string // "primary" or "fallback"
	logger        *logger.Logger
	mu            sync.RWMutex
	healthChecker *time.Ticker
	stopChan      chan struct{}
}

// NewResilientStorage creates a resilient storage with automatic fallback
func NewResilientStorage(primary, fallback Storage, log *logger.Logger) *ResilientStorage {
	mode := "fallback"
	if primary.IsAvailable() {
		mode = "primary"
	} else {
		log.Warn(logger.CategoryWarning, "PostgreSQL unavailable, using in-memory storage")
	}

	rs := &ResilientStorage{
		primary:     primary,
		fallback:    fallback,
		currentMode: mode,
		logger:      log,
		stopChan:    make(chan struct{}),
	}

	rs.startHealthChecker()

	return rs
}

// startHealthChecker periodically checks database health and switches modes
func (rs *ResilientStorage) startHealthChecker() {
	rs.healthChecker = time.NewTicker(30 * time.Second)

	go func() {
		for {
			select {
			case <-rs.healthChecker.C:
				rs.checkAndSwitch()
			case <-rs.stopChan:
				rs.healthChecker.Stop()
				return
			}
		}
	}()
}

// checkAndSwitch checks primary storage health and switches modes if necessary
func (rs *ResilientStorage) checkAndSwitch() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	primaryAvailable := rs.primary.IsAvailable()

	if rs.currentMode == "fallback" && primaryAvailable {
		rs.logger.Info(logger.CategorySuccess, "PostgreSQL connection restored")
		rs.logger.Info(logger.CategorySync, "Switching to primary storage")
		rs.currentMode = "primary"
	}

	if rs.currentMode == "primary" && !primaryAvailable {
		rs.logger.Warn(logger.CategoryWarning, "PostgreSQL connection lost")
		rs.logger.Info(logger.CategorySync, "Switching to in-memory storage")
		rs.currentMode = "fallback"
	}
}

// getActiveStorage returns the currently active storage based on mode
func (rs *ResilientStorage) getActiveStorage() Storage {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	if rs.currentMode == "primary" {
		return rs.primary
	}
	return rs.fallback
}

// demote flips to fallback mode after a primary write failure
func (rs *ResilientStorage) demote(op string, err error) {
	rs.logger.Error(logger.CategoryError, "Primary storage failed on %s, switching to fallback: %v", op, err)
	rs.mu.Lock()
	rs.currentMode = "fallback"
	rs.mu.Unlock()
}

// Stop stops the health checker
func (rs *ResilientStorage) Stop() {
	close(rs.stopChan)
}

// Implementation of Storage interface - delegates to active storage

func (rs *ResilientStorage) UpsertBeacon(ctx context.Context, beacon *Beacon) error {
	storage := rs.getActiveStorage()
	err := storage.UpsertBeacon(ctx, beacon)

	if err != nil && storage == rs.primary {
		rs.demote("upsert beacon", err)
		return rs.fallback.UpsertBeacon(ctx, beacon)
	}

	return err
}

func (rs *ResilientStorage) TouchBeacon(ctx context.Context, beaconID string, seen time.Time) error {
	storage := rs.getActiveStorage()
	err := storage.TouchBeacon(ctx, beaconID, seen)

	if err != nil && storage == rs.primary {
		rs.demote("touch beacon", err)
		return rs.fallback.TouchBeacon(ctx, beaconID, seen)
	}

	return err
}

func (rs *ResilientStorage) GetBeacon(ctx context.Context, beaconID string) (*Beacon, error) {
	storage := rs.getActiveStorage()
	beacon, err := storage.GetBeacon(ctx, beaconID)

	if err != nil && storage == rs.primary {
		return rs.fallback.GetBeacon(ctx, beaconID)
	}

	return beacon, err
}

func (rs *ResilientStorage) ListBeacons(ctx context.Context) ([]*Beacon, error) {
	storage := rs.getActiveStorage()
	beacons, err := storage.ListBeacons(ctx)

	if err != nil && storage == rs.primary {
		return rs.fallback.ListBeacons(ctx)
	}

	return beacons, err
}

func (rs *ResilientStorage) UpdateBeaconActivityStatus(ctx context.Context, inactiveThreshold time.Duration) (int, error) {
	storage := rs.getActiveStorage()
	count, err := storage.UpdateBeaconActivityStatus(ctx, inactiveThreshold)

	if err != nil && storage == rs.primary {
		return rs.fallback.UpdateBeaconActivityStatus(ctx, inactiveThreshold)
	}

	return count, err
}

func (rs *ResilientStorage) QueueCommand(ctx context.Context, beaconID string, cmd shared.Command) error {
	storage := rs.getActiveStorage()
	err := storage.QueueCommand(ctx, beaconID, cmd)

	if err != nil && storage == rs.primary {
		rs.demote("queue command", err)
		return rs.fallback.QueueCommand(ctx, beaconID, cmd)
	}

	return err
}

func (rs *ResilientStorage) DequeueCommands(ctx context.Context, beaconID string) ([]shared.Command, error) {
	storage := rs.getActiveStorage()
	cmds, err := storage.DequeueCommands(ctx, beaconID)

	if err != nil && storage == rs.primary {
		return rs.fallback.DequeueCommands(ctx, beaconID)
	}

	return cmds, err
}

func (rs *ResilientStorage) CountPendingCommands(ctx context.Context) (int, error) {
	storage := rs.getActiveStorage()
	count, err := storage.CountPendingCommands(ctx)

	if err != nil && storage == rs.primary {
		return rs.fallback.CountPendingCommands(ctx)
	}

	return count, err
}

func (rs *ResilientStorage) SaveResult(ctx context.Context, res *Result) error {
	storage := rs.getActiveStorage()
	err := storage.SaveResult(ctx, res)

	if err != nil && storage == rs.primary {
		rs.demote("save result", err)
		return rs.fallback.SaveResult(ctx, res)
	}

	return err
}

func (rs *ResilientStorage) GetResultHistory(ctx context.Context, beaconID string, limit, offset int) ([]*Result, int, error) {
	storage := rs.getActiveStorage()
	results, total, err := storage.GetResultHistory(ctx, beaconID, limit, offset)

	if err != nil && storage == rs.primary {
		return rs.fallback.GetResultHistory(ctx, beaconID, limit, offset)
	}

	return results, total, err
}

func (rs *ResilientStorage) ListResults(ctx context.Context, filters ResultFilters) ([]*Result, int, error) {
	storage := rs.getActiveStorage()
	results, total, err := storage.ListResults(ctx, filters)

	if err != nil && storage == rs.primary {
		return rs.fallback.ListResults(ctx, filters)
	}

	return results, total, err
}

func (rs *ResilientStorage) CleanupOldResults(ctx context.Context, retentionDays int) (int, error) {
	storage := rs.getActiveStorage()
	count, err := storage.CleanupOldResults(ctx, retentionDays)

	if err != nil && storage == rs.primary {
		return rs.fallback.CleanupOldResults(ctx, retentionDays)
	}

	return count, err
}

func (rs *ResilientStorage) GetStats(ctx context.Context) (*Stats, error) {
	storage := rs.getActiveStorage()
	stats, err := storage.GetStats(ctx)

	if err != nil && storage == rs.primary {
		stats, err = rs.fallback.GetStats(ctx)
	}
	if err != nil {
		return nil, err
	}

	if rs.GetCurrentMode() == "fallback" {
		if memStorage, ok := rs.fallback.(*MemoryStorage); ok {
			stats.InMemoryQueueSize = memStorage.GetQueueSize()
		}
	}

	return stats, nil
}

func (rs *ResilientStorage) IsAvailable() bool {
	return rs.getActiveStorage().IsAvailable()
}

func (rs *ResilientStorage) GetStatus() string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	if rs.currentMode == "primary" {
		return "connected"
	}
	return "in-memory"
}

// GetCurrentMode returns the current storage mode (for monitoring)
func (rs *ResilientStorage) GetCurrentMode() string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.currentMode
}
