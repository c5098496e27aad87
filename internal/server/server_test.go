package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ghostbeacon/internal/server/logger"
	"ghostbeacon/internal/server/storage"
	"ghostbeacon/pkg/shared"
)

func newTestServer() (*Server, *storage.MemoryStorage) {
	store := storage.NewMemoryStorage(logger.New("error"))
	return newServer(store, logger.New("error")), store
}

func postJSON(t *testing.T, mux *http.ServeMux, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

// TestHandleCheckin_FirstContact tests that a snapshot check-in registers the
// beacon and replies with an empty command list
func TestHandleCheckin_FirstContact(t *testing.T) {
	s, store := newTestServer()
	mux := s.routes()

	rec := postJSON(t, mux, "/checkin", shared.CheckinRequest{
		BeaconID:  "b-1",
		Timestamp: "2024-06-01T12:00:00Z",
		SystemInfo: &shared.SystemInfo{
			Hostname: "host-1", Username: "op", OSName: "linux",
			Architecture: "amd64", PID: 1234, CWD: "/tmp",
		},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got: %d", rec.Code)
	}

	var resp shared.CheckinResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Response is not valid JSON: %v", err)
	}
	if resp.Commands == nil || len(resp.Commands) != 0 {
		t.Errorf("Expected empty commands array, got: %+v", resp.Commands)
	}

	beacon, err := store.GetBeacon(context.Background(), "b-1")
	if err != nil {
		t.Fatalf("Beacon not registered: %v", err)
	}
	if beacon.Hostname != "host-1" || beacon.PID != 1234 {
		t.Errorf("Unexpected beacon record: %+v", beacon)
	}
	if !beacon.IsActive {
		t.Error("Expected beacon marked active")
	}
}

// TestHandleCheckin_BareDoesNotClobberSnapshot tests that identity-only
// check-ins refresh last_seen but keep the stored system info
func TestHandleCheckin_BareDoesNotClobberSnapshot(t *testing.T) {
	s, store := newTestServer()
	mux := s.routes()

	postJSON(t, mux, "/checkin", shared.CheckinRequest{
		BeaconID:   "b-1",
		Timestamp:  "2024-06-01T12:00:00Z",
		SystemInfo: &shared.SystemInfo{Hostname: "host-1", Username: "op"},
	})

	rec := postJSON(t, mux, "/checkin", shared.CheckinRequest{
		BeaconID:  "b-1",
		Timestamp: "2024-06-01T12:01:00Z",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got: %d", rec.Code)
	}

	beacon, _ := store.GetBeacon(context.Background(), "b-1")
	if beacon.Hostname != "host-1" || beacon.Username != "op" {
		t.Errorf("Bare check-in clobbered snapshot: %+v", beacon)
	}
}

// TestCommandRoundTrip tests queue via /command, delivery via /checkin, and
// result persistence with the verb recovered from the sent command
func TestCommandRoundTrip(t *testing.T) {
	s, store := newTestServer()
	mux := s.routes()

	// Register the beacon.
	postJSON(t, mux, "/checkin", shared.CheckinRequest{
		BeaconID:   "b-1",
		Timestamp:  "2024-06-01T12:00:00Z",
		SystemInfo: &shared.SystemInfo{Hostname: "host-1"},
	})

	// Queue a command.
	rec := postJSON(t, mux, "/command", map[string]string{
		"beacon_id": "b-1",
		"command":   "shell",
		"args":      "whoami",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 queuing command, got: %d", rec.Code)
	}
	var queued struct {
		Status    string `json:"status"`
		CommandID string `json:"command_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &queued); err != nil {
		t.Fatalf("Bad queue response: %v", err)
	}
	if queued.Status != "ok" || queued.CommandID == "" {
		t.Fatalf("Unexpected queue response: %+v", queued)
	}

	// Next check-in drains the queue.
	rec = postJSON(t, mux, "/checkin", shared.CheckinRequest{
		BeaconID:  "b-1",
		Timestamp: "2024-06-01T12:01:00Z",
	})
	var resp shared.CheckinResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Bad check-in response: %v", err)
	}
	if len(resp.Commands) != 1 {
		t.Fatalf("Expected 1 delivered command, got: %d", len(resp.Commands))
	}
	cmd := resp.Commands[0]
	if cmd.ID != queued.CommandID || cmd.Command != "shell" || cmd.Args != "whoami" {
		t.Errorf("Unexpected delivered command: %+v", cmd)
	}

	// A second check-in gets nothing: the queue drained.
	rec = postJSON(t, mux, "/checkin", shared.CheckinRequest{
		BeaconID:  "b-1",
		Timestamp: "2024-06-01T12:02:00Z",
	})
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Commands) != 0 {
		t.Errorf("Expected drained queue, got: %+v", resp.Commands)
	}

	// Report the result; the stored row recovers verb and args.
	rec = postJSON(t, mux, "/checkin", shared.CheckinRequest{
		BeaconID:  "b-1",
		Timestamp: "2024-06-01T12:03:00Z",
		CommandResults: []shared.CommandResult{
			{CommandID: cmd.ID, Success: true, Output: "root\n", Timestamp: "2024-06-01T12:02:30Z"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 reporting result, got: %d", rec.Code)
	}

	results, total, err := store.GetResultHistory(context.Background(), "b-1", 10, 0)
	if err != nil {
		t.Fatalf("GetResultHistory failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("Expected 1 stored result, got: %d", total)
	}
	res := results[0]
	if res.Command != "shell" || res.Args != "whoami" {
		t.Errorf("Expected verb/args recovered from sent command, got: %+v", res)
	}
	if !res.Success || res.Output != "root\n" {
		t.Errorf("Unexpected result content: %+v", res)
	}
	want := time.Date(2024, 6, 1, 12, 2, 30, 0, time.UTC)
	if !res.CompletedAt.Equal(want) {
		t.Errorf("Expected completed_at %v, got: %v", want, res.CompletedAt)
	}
}

// TestHandleCheckin_SnapshotHoldsQueuedCommands tests that commands queued
// while a beacon was away are not spent on the snapshot check-in, whose
// response the beacon does not act on
func TestHandleCheckin_SnapshotHoldsQueuedCommands(t *testing.T) {
	s, store := newTestServer()
	mux := s.routes()

	_ = store.QueueCommand(context.Background(), "b-1", shared.Command{ID: "c-1", Command: "pwd"})

	rec := postJSON(t, mux, "/checkin", shared.CheckinRequest{
		BeaconID:   "b-1",
		Timestamp:  "2024-06-01T12:00:00Z",
		SystemInfo: &shared.SystemInfo{Hostname: "host-1"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got: %d", rec.Code)
	}
	var resp shared.CheckinResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Bad check-in response: %v", err)
	}
	if len(resp.Commands) != 0 {
		t.Fatalf("Expected no commands on snapshot check-in, got: %+v", resp.Commands)
	}

	// The held command arrives on the first regular cycle.
	rec = postJSON(t, mux, "/checkin", shared.CheckinRequest{
		BeaconID:  "b-1",
		Timestamp: "2024-06-01T12:01:00Z",
	})
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Bad check-in response: %v", err)
	}
	if len(resp.Commands) != 1 || resp.Commands[0].ID != "c-1" {
		t.Fatalf("Expected held command delivered on next check-in, got: %+v", resp.Commands)
	}
}

// TestHandleCheckin_BadRequests tests rejection of malformed check-ins
func TestHandleCheckin_BadRequests(t *testing.T) {
	s, _ := newTestServer()
	mux := s.routes()

	// Wrong method.
	req := httptest.NewRequest(http.MethodGet, "/checkin", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET, got: %d", rec.Code)
	}

	// Invalid JSON.
	req = httptest.NewRequest(http.MethodPost, "/checkin", bytes.NewReader([]byte("{broken")))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for broken JSON, got: %d", rec.Code)
	}

	// Missing beacon_id.
	rec = postJSON(t, mux, "/checkin", shared.CheckinRequest{Timestamp: "2024-06-01T12:00:00Z"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing beacon_id, got: %d", rec.Code)
	}
}

// TestHandleSendCommand_Validation tests required fields on /command
func TestHandleSendCommand_Validation(t *testing.T) {
	s, _ := newTestServer()
	mux := s.routes()

	rec := postJSON(t, mux, "/command", map[string]string{"command": "pwd"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing beacon_id, got: %d", rec.Code)
	}

	rec = postJSON(t, mux, "/command", map[string]string{"beacon_id": "b-1"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing command, got: %d", rec.Code)
	}
}

// TestWebSocket_ReplacementKeepsStream tests that a newer operator socket
// for the same beacon displaces the old one and the live stream follows it
func TestWebSocket_ReplacementKeepsStream(t *testing.T) {
	s, _ := newTestServer()
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/websocket?beacon=b-1"

	first, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("First dial failed: %v", err)
	}
	defer first.Close()

	second, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Second dial failed: %v", err)
	}
	defer second.Close()

	// The displaced socket is closed server-side; its read unblocks with an
	// error once the replacement is registered.
	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := first.ReadMessage(); err == nil {
		t.Fatal("Expected first socket closed after replacement")
	}

	s.pushOutput("b-1", "uid=0(root)\n")

	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := second.ReadMessage()
	if err != nil {
		t.Fatalf("Second socket read failed: %v", err)
	}
	if string(msg) != "uid=0(root)\n" {
		t.Errorf("Unexpected message: %q", msg)
	}
}

// TestAPIEndpoints tests the operator read API against seeded storage
func TestAPIEndpoints(t *testing.T) {
	s, store := newTestServer()
	mux := s.routes()
	ctx := context.Background()

	now := time.Now().UTC()
	_ = store.UpsertBeacon(ctx, &storage.Beacon{
		BeaconID: "b-1", Hostname: "host-1", OSName: "linux",
		LastSeen: now, IsActive: true,
	})
	_ = store.SaveResult(ctx, &storage.Result{
		BeaconID: "b-1", CommandID: "c-1", Command: "pwd",
		Success: true, Output: "/root\n", CompletedAt: now,
	})

	t.Run("list beacons", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/beacons", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got: %d", rec.Code)
		}
		var resp struct {
			Beacons []*storage.Beacon `json:"beacons"`
			Total   int               `json:"total"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Bad response: %v", err)
		}
		if resp.Total != 1 || resp.Beacons[0].BeaconID != "b-1" {
			t.Errorf("Unexpected beacons response: %+v", resp)
		}
	})

	t.Run("beacon details", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/beacons/b-1", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got: %d", rec.Code)
		}
		var resp map[string]interface{}
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp["hostname"] != "host-1" {
			t.Errorf("Unexpected details: %+v", resp)
		}
		if resp["total_results"] != float64(1) {
			t.Errorf("Expected total_results 1, got: %v", resp["total_results"])
		}
	})

	t.Run("beacon details not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/beacons/nope", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got: %d", rec.Code)
		}
	})

	t.Run("beacon result history", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/beacons/b-1/results?limit=10", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got: %d", rec.Code)
		}
		var resp struct {
			Results []*storage.Result `json:"results"`
			Total   int               `json:"total"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Total != 1 || resp.Results[0].Output != "/root\n" {
			t.Errorf("Unexpected history: %+v", resp)
		}
	})

	t.Run("results with filter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/results?command=pwd", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got: %d", rec.Code)
		}
		var resp struct {
			Total int `json:"total"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Total != 1 {
			t.Errorf("Expected 1 result, got: %d", resp.Total)
		}
	})

	t.Run("negative paging values", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/results?limit=-5&offset=-3", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200 with negative paging, got: %d", rec.Code)
		}
		var resp struct {
			Total  int `json:"total"`
			Limit  int `json:"limit"`
			Offset int `json:"offset"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Total != 1 || resp.Limit != 100 || resp.Offset != 0 {
			t.Errorf("Expected default paging restored, got: %+v", resp)
		}

		req = httptest.NewRequest(http.MethodGet, "/api/beacons/b-1/results?limit=-1&offset=-1", nil)
		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("Expected 200 with negative history paging, got: %d", rec.Code)
		}
	})

	t.Run("stats", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got: %d", rec.Code)
		}
		var stats storage.Stats
		_ = json.Unmarshal(rec.Body.Bytes(), &stats)
		if stats.TotalBeacons != 1 || stats.TotalResults != 1 {
			t.Errorf("Unexpected stats: %+v", stats)
		}
	})
}
