package storage

import "time"

// Beacon represents a beacon known to the controller
type Beacon struct {
	ID           int       `json:"id"`
	BeaconID     string    `json:"beacon_id"`
	Hostname     string    `json:"hostname"`
	Username     string    `json:"username"`
	OSName       string    `json:"os_name"`
	OSVersion    string    `json:"os_version"`
	Architecture string    `json:"architecture"`
	PID          int       `json:"pid"`
	CWD          string    `json:"cwd"`
	IPAddresses  string    `json:"ip_addresses"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Result represents a completed command reported back by a beacon
type Result struct {
	ID          int       `json:"id"`
	BeaconID    string    `json:"beacon_id"`
	CommandID   string    `json:"command_id"`
	Command     string    `json:"command"`
	Args        string    `json:"args,omitempty"`
	Success     bool      `json:"success"`
	Output      string    `json:"output"`
	CompletedAt time.Time `json:"completed_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Stats represents system statistics
type Stats struct {
	TotalBeacons      int    `json:"total_beacons"`
	ActiveBeacons     int    `json:"active_beacons"`
	TotalResults      int    `json:"total_results"`
	ResultsLastHour   int    `json:"results_last_hour"`
	PendingCommands   int    `json:"pending_commands"`
	DBStatus          string `json:"db_status"`
	InMemoryQueueSize int    `json:"in_memory_queue_size,omitempty"`
}

// ResultFilters holds filters for querying results
type ResultFilters struct {
	BeaconID string
	Command  string
	Limit    int
	Offset   int
}
