package database

import "testing"

// TestHealthReporting_NoPool tests status reporting before any connection
// was established
func TestHealthReporting_NoPool(t *testing.T) {
	db := &DB{}

	if db.IsHealthy() {
		t.Error("Expected unhealthy with no pool")
	}
	if got := db.GetStatus(); got != "disconnected" {
		t.Errorf("Expected disconnected, got: %s", got)
	}
	if got := db.Stats(); got != "Pool: not connected" {
		t.Errorf("Unexpected stats: %s", got)
	}
}
