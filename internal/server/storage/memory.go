package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ghostbeacon/internal/server/logger"
	"ghostbeacon/pkg/shared"
)

// MemoryStorage implements Storage interface using in-memory data structures
type MemoryStorage struct {
	beacons     map[string]*Beacon
	queues      map[string][]shared.Command
	results     []*Result
	mu          sync.RWMutex
	logger      *logger.Logger
	resultIDSeq int
	beaconIDSeq int
}

// NewMemoryStorage creates a new in-memory storage
func NewMemoryStorage(log *logger.Logger) *MemoryStorage {
	return &MemoryStorage{
		beacons: make(map[string]*Beacon),
		queues:  make(map[string][]shared.Command),
		results: make([]*Result, 0),
		logger:  log,
	}
}

// UpsertBeacon inserts or updates a beacon from a full snapshot
func (s *MemoryStorage) UpsertBeacon(ctx context.Context, beacon *Beacon) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.beacons[beacon.BeaconID]
	if exists {
		existing.Hostname = beacon.Hostname
		existing.Username = beacon.Username
		existing.OSName = beacon.OSName
		existing.OSVersion = beacon.OSVersion
		existing.Architecture = beacon.Architecture
		existing.PID = beacon.PID
		existing.CWD = beacon.CWD
		existing.IPAddresses = beacon.IPAddresses
		existing.LastSeen = beacon.LastSeen
		existing.IsActive = beacon.IsActive
	} else {
		s.beaconIDSeq++
		beacon.ID = s.beaconIDSeq
		beacon.CreatedAt = time.Now()
		beacon.FirstSeen = beacon.LastSeen
		s.beacons[beacon.BeaconID] = beacon
	}

	return nil
}

// TouchBeacon refreshes last_seen for an identity-only check-in. Unknown
// beacons get a minimal row so they still show up in listings.
func (s *MemoryStorage) TouchBeacon(ctx context.Context, beaconID string, seen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.beacons[beaconID]; exists {
		existing.LastSeen = seen
		existing.IsActive = true
		return nil
	}

	s.beaconIDSeq++
	s.beacons[beaconID] = &Beacon{
		ID:        s.beaconIDSeq,
		BeaconID:  beaconID,
		FirstSeen: seen,
		LastSeen:  seen,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	return nil
}

// GetBeacon retrieves a beacon by ID
func (s *MemoryStorage) GetBeacon(ctx context.Context, beaconID string) (*Beacon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	beacon, exists := s.beacons[beaconID]
	if !exists {
		return nil, fmt.Errorf("beacon not found: %s", beaconID)
	}

	return beacon, nil
}

// ListBeacons retrieves all beacons
func (s *MemoryStorage) ListBeacons(ctx context.Context) ([]*Beacon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	beacons := make([]*Beacon, 0, len(s.beacons))
	for _, beacon := range s.beacons {
		beacons = append(beacons, beacon)
	}

	// Sort by last_seen descending
	sort.Slice(beacons, func(i, j int) bool {
		return beacons[i].LastSeen.After(beacons[j].LastSeen)
	})

	return beacons, nil
}

// UpdateBeaconActivityStatus marks beacons as inactive based on threshold
func (s *MemoryStorage) UpdateBeaconActivityStatus(ctx context.Context, inactiveThreshold time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoffTime := time.Now().Add(-inactiveThreshold)
	count := 0

	for _, beacon := range s.beacons {
		if beacon.IsActive && beacon.LastSeen.Before(cutoffTime) {
			beacon.IsActive = false
			count++
		}
	}

	return count, nil
}

// QueueCommand appends a command to a beacon's pending queue
func (s *MemoryStorage) QueueCommand(ctx context.Context, beaconID string, cmd shared.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queues[beaconID] = append(s.queues[beaconID], cmd)
	return nil
}

// DequeueCommands drains the pending queue for a beacon in FIFO order
func (s *MemoryStorage) DequeueCommands(ctx context.Context, beaconID string) ([]shared.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmds := s.queues[beaconID]
	if len(cmds) == 0 {
		return nil, nil
	}

	delete(s.queues, beaconID)
	return cmds, nil
}

// CountPendingCommands returns the number of queued commands across all beacons
func (s *MemoryStorage) CountPendingCommands(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, q := range s.queues {
		count += len(q)
	}
	return count, nil
}

// SaveResult saves a completed command result
func (s *MemoryStorage) SaveResult(ctx context.Context, res *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resultIDSeq++
	res.ID = s.resultIDSeq
	res.CreatedAt = time.Now()
	s.results = append(s.results, res)

	return nil
}

// GetResultHistory retrieves result history for a beacon
func (s *MemoryStorage) GetResultHistory(ctx context.Context, beaconID string, limit, offset int) ([]*Result, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]*Result, 0)
	for _, res := range s.results {
		if res.BeaconID == beaconID {
			filtered = append(filtered, res)
		}
	}

	// Sort by completed_at descending
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CompletedAt.After(filtered[j].CompletedAt)
	})

	total := len(filtered)
	return paginate(filtered, limit, offset), total, nil
}

// ListResults retrieves results with filters
func (s *MemoryStorage) ListResults(ctx context.Context, filters ResultFilters) ([]*Result, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]*Result, 0)
	for _, res := range s.results {
		if filters.BeaconID != "" && res.BeaconID != filters.BeaconID {
			continue
		}
		if filters.Command != "" && res.Command != filters.Command {
			continue
		}
		filtered = append(filtered, res)
	}

	// Sort by completed_at descending
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CompletedAt.After(filtered[j].CompletedAt)
	})

	total := len(filtered)
	return paginate(filtered, filters.Limit, filters.Offset), total, nil
}

func paginate(results []*Result, limit, offset int) []*Result {
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}

	total := len(results)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return results[start:end]
}

// CleanupOldResults deletes results older than retention period
func (s *MemoryStorage) CleanupOldResults(ctx context.Context, retentionDays int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoffTime := time.Now().AddDate(0, 0, -retentionDays)
	count := 0

	kept := make([]*Result, 0)
	for _, res := range s.results {
		if res.CreatedAt.After(cutoffTime) {
			kept = append(kept, res)
		} else {
			count++
		}
	}

	s.results = kept
	return count, nil
}

// GetStats returns system statistics
func (s *MemoryStorage) GetStats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{
		DBStatus:     s.GetStatus(),
		TotalBeacons: len(s.beacons),
		TotalResults: len(s.results),
	}

	activeCount := 0
	for _, beacon := range s.beacons {
		if beacon.IsActive {
			activeCount++
		}
	}
	stats.ActiveBeacons = activeCount

	for _, q := range s.queues {
		stats.PendingCommands += len(q)
	}

	oneHourAgo := time.Now().Add(-time.Hour)
	for _, res := range s.results {
		if res.CreatedAt.After(oneHourAgo) {
			stats.ResultsLastHour++
		}
	}

	return stats, nil
}

// IsAvailable always returns true for in-memory storage
func (s *MemoryStorage) IsAvailable() bool {
	return true
}

// GetStatus returns the status
func (s *MemoryStorage) GetStatus() string {
	return "in-memory"
}

// GetQueueSize returns the number of items stored in memory (for resilient wrapper)
func (s *MemoryStorage) GetQueueSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.beacons) + len(s.results)
}
