package tasks

import (
	"context"
	"time"

	"ghostbeacon/internal/server/logger"
	"ghostbeacon/internal/server/storage"
)

// ActivityChecker periodically checks beacon activity and marks inactive beacons
type ActivityChecker struct {
	storage           storage.Storage
	logger            *logger.Logger
	inactiveThreshold time.Duration
	checkInterval     time.Duration
	ticker            *time.Ticker
	stopChan          chan struct{}
}

// NewActivityChecker creates a new activity checker
func NewActivityChecker(store storage.Storage, log *logger.Logger, thresholdMinutes int) *ActivityChecker {
	return &ActivityChecker{
		storage:           store,
		logger:            log,
		inactiveThreshold: time.Duration(thresholdMinutes) * time.Minute,
		checkInterval:     30 * time.Second,
		stopChan:          make(chan struct{}),
	}
}

// Start begins the activity checking background task
func (ac *ActivityChecker) Start() {
	ac.logger.Info(logger.CategoryBackground, "Starting activity checker (threshold: %v, interval: %v)",
		ac.inactiveThreshold, ac.checkInterval)

	ac.ticker = time.NewTicker(ac.checkInterval)

	go func() {
		for {
			select {
			case <-ac.ticker.C:
				ac.checkBeaconActivity()
			case <-ac.stopChan:
				ac.ticker.Stop()
				ac.logger.Info(logger.CategoryBackground, "Activity checker stopped")
				return
			}
		}
	}()
}

// checkBeaconActivity checks and updates beacon activity status
func (ac *ActivityChecker) checkBeaconActivity() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := ac.storage.UpdateBeaconActivityStatus(ctx, ac.inactiveThreshold)
	if err != nil {
		ac.logger.Error(logger.CategoryError, "Failed to update beacon activity: %v", err)
		return
	}

	if count > 0 {
		ac.logger.Info(logger.CategoryBackground, "Activity check: %d beacon(s) marked inactive", count)
	}

	stats, err := ac.storage.GetStats(ctx)
	if err != nil {
		ac.logger.Error(logger.CategoryError, "Failed to get stats: %v", err)
		return
	}

	ac.logger.Debug(logger.CategoryBackground, "Active beacons: %d/%d", stats.ActiveBeacons, stats.TotalBeacons)
}

// Stop stops the activity checker
func (ac *ActivityChecker) Stop() {
	close(ac.stopChan)
}
