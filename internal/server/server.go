package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ghostbeacon/internal/server/logger"
	"ghostbeacon/internal/server/storage"
	"ghostbeacon/pkg/shared"
)

// Server handles beacon check-ins and the operator API
type Server struct {
	store  storage.Storage
	logger *logger.Logger

	// Commands delivered to beacons, kept until the result comes back so
	// the saved result carries the verb and args.
	sentMu       sync.Mutex
	sentCommands map[string]shared.Command

	upgrader  websocket.Upgrader
	wsMu      sync.RWMutex
	wsClients map[string]*websocket.Conn
}

func newServer(store storage.Storage, log *logger.Logger) *Server {
	return &Server{
		store:        store,
		logger:       log,
		sentCommands: make(map[string]shared.Command),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		wsClients: make(map[string]*websocket.Conn),
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/checkin", s.handleCheckin)
	mux.HandleFunc("/command", s.handleSendCommand)
	mux.HandleFunc("/websocket", s.handleWebSocket)
	mux.HandleFunc("/api/beacons", s.handleAPIBeacons)
	mux.HandleFunc("/api/beacons/", s.handleAPIBeaconDetails)
	mux.HandleFunc("/api/results", s.handleAPIResults)
	mux.HandleFunc("/api/stats", s.handleAPIStats)
	return mux
}

// New builds the controller HTTP server
func New(addr string, store storage.Storage, log *logger.Logger) *http.Server {
	s := newServer(store, log)

	return &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
