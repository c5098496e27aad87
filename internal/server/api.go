package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ghostbeacon/internal/server/logger"
	"ghostbeacon/internal/server/storage"
)

func (s *Server) handleAPIBeacons(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	beacons, err := s.store.ListBeacons(ctx)
	if err != nil {
		s.logger.Error(logger.CategoryError, "failed to list beacons: %v", err)
		http.Error(w, "failed to retrieve beacons", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"beacons": beacons,
		"total":   len(beacons),
	}

	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) handleAPIBeaconDetails(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	// Path is /api/beacons/{id} or /api/beacons/{id}/results
	remainder := strings.TrimPrefix(r.URL.Path, "/api/beacons/")
	beaconID := remainder
	isResults := false
	if strings.HasSuffix(remainder, "/results") {
		beaconID = strings.TrimSuffix(remainder, "/results")
		isResults = true
	}

	if beaconID == "" || strings.Contains(beaconID, "/") {
		http.Error(w, "beacon ID required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if isResults {
		limit := 50
		offset := 0

		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			fmt.Sscanf(limitStr, "%d", &limit)
		}
		if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
			fmt.Sscanf(offsetStr, "%d", &offset)
		}
		if limit < 0 {
			limit = 50
		}
		if offset < 0 {
			offset = 0
		}

		results, total, err := s.store.GetResultHistory(ctx, beaconID, limit, offset)
		if err != nil {
			s.logger.Error(logger.CategoryError, "failed to get result history: %v", err)
			http.Error(w, "failed to retrieve results", http.StatusInternalServerError)
			return
		}
		if results == nil {
			results = []*storage.Result{}
		}

		response := map[string]interface{}{
			"beacon_id": beaconID,
			"results":   results,
			"total":     total,
			"limit":     limit,
			"offset":    offset,
		}

		_ = json.NewEncoder(w).Encode(response)
		return
	}

	beacon, err := s.store.GetBeacon(ctx, beaconID)
	if err != nil {
		s.logger.Error(logger.CategoryError, "failed to get beacon: %v", err)
		http.Error(w, "beacon not found", http.StatusNotFound)
		return
	}

	_, total, err := s.store.GetResultHistory(ctx, beaconID, 0, 0)
	if err != nil {
		total = 0
	}

	response := map[string]interface{}{
		"beacon_id":     beacon.BeaconID,
		"hostname":      beacon.Hostname,
		"username":      beacon.Username,
		"os_name":       beacon.OSName,
		"os_version":    beacon.OSVersion,
		"architecture":  beacon.Architecture,
		"pid":           beacon.PID,
		"cwd":           beacon.CWD,
		"ip_addresses":  beacon.IPAddresses,
		"first_seen":    beacon.FirstSeen,
		"last_seen":     beacon.LastSeen,
		"is_active":     beacon.IsActive,
		"total_results": total,
	}

	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) handleAPIResults(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	filters := storage.ResultFilters{
		BeaconID: r.URL.Query().Get("beacon_id"),
		Command:  r.URL.Query().Get("command"),
		Limit:    100,
		Offset:   0,
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		fmt.Sscanf(limitStr, "%d", &filters.Limit)
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		fmt.Sscanf(offsetStr, "%d", &filters.Offset)
	}
	if filters.Limit < 0 {
		filters.Limit = 100
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	results, total, err := s.store.ListResults(ctx, filters)
	if err != nil {
		s.logger.Error(logger.CategoryError, "failed to list results: %v", err)
		http.Error(w, "failed to retrieve results", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []*storage.Result{}
	}

	response := map[string]interface{}{
		"results": results,
		"total":   total,
		"limit":   filters.Limit,
		"offset":  filters.Offset,
	}

	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, err := s.store.GetStats(ctx)
	if err != nil {
		s.logger.Error(logger.CategoryError, "failed to get stats: %v", err)
		http.Error(w, "failed to retrieve statistics", http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(stats)
}
