package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/luxfi/log"

	"github.com/MikeLuu99/auction-arena/internal/arena"
	"github.com/MikeLuu99/auction-arena/internal/protocol"
	"github.com/MikeLuu99/auction-arena/internal/session"
)

const defaultAuctionsLimit = 20

// Server exposes the arena over HTTP: the websocket entry into the lobby
// plus a few read-only JSON endpoints.
type Server struct {
	arena    *arena.Arena
	metrics  http.Handler
	logger   log.Logger
	upgrader websocket.Upgrader
}

// NewServer wires the routes; metrics may be nil when no registry is kept
func NewServer(a *arena.Arena, metrics http.Handler, logger log.Logger) *Server {
	return &Server{
		arena:   a,
		metrics: metrics,
		logger:  logger.New("module", "server"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // bots connect from anywhere
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/standings", s.handleStandings)
	mux.HandleFunc("/auctions", s.handleAuctions)
	mux.HandleFunc("/auctions/{id}", s.handleAuction)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	return mux
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "username query parameter is required", http.StatusBadRequest)
		return
	}

	encoding := r.URL.Query().Get("encoding")
	if encoding == "" {
		encoding = protocol.JSON.Name()
	}
	codec, err := protocol.CodecFor(encoding)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade error", "error", err)
		return
	}

	sess := session.New(s.arena.NextID(), username, conn, codec, s.logger)
	s.logger.Info("Client connected",
		"participant", int(sess.ID()),
		"name", username,
		"encoding", codec.Name(),
		"remote", r.RemoteAddr)

	// The session owns the connection from here on
	if err := s.arena.Join(sess); err != nil {
		s.logger.Info("Client rejected", "participant", int(sess.ID()), "error", err)
		sess.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"standings": s.arena.Standings(),
		"series":    s.arena.RecentSeries(),
	})
}

func (s *Server) handleAuctions(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuctionsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := s.arena.Store().Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to load auctions", "error", err)
		http.Error(w, "Failed to load auctions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

func (s *Server) handleAuction(w http.ResponseWriter, r *http.Request) {
	record, err := s.arena.Store().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("Failed to load auction", "auction", r.PathValue("id"), "error", err)
		http.Error(w, "Failed to load auction", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "auction not found", http.StatusNotFound)
		return
	}
	writeJSON(w, record)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
