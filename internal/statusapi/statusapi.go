// Package statusapi is the node's operational HTTP/WS surface: a thin
// diagnostics and runtime-reconfiguration plane built on the teacher's own
// chi + rs/cors + gorilla/websocket stack (cmd/server/main.go in the
// teacher repo). Where the teacher exposed a GraphQL lighting-control API
// backed by a database, this package exposes read/control endpoints
// directly over the live artnetnode.Node — there is nothing to persist
// (spec.md §6: "no CLI, config file, or persisted state at this layer").
package statusapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/bbernstein/artnetnode/internal/artnetnode"
)

// PollInterval is how often the /ws/ports feed checks the node for a
// changed snapshot and, if changed, pushes it to connected clients.
const PollInterval = 250 * time.Millisecond

// Server is the node's status API: a chi router wired with the teacher's
// middleware/CORS stack, backed by a single live artnetnode.Node.
type Server struct {
	node       *artnetnode.Node
	corsOrigin string
	upgrader   websocket.Upgrader

	router chi.Router

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// New builds a Server for node, with CORS restricted to corsOrigin (plus
// the loopback origins the teacher's own main.go always allowed).
func New(node *artnetnode.Node, corsOrigin string) *Server {
	s := &Server{
		node:       node,
		corsOrigin: corsOrigin,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{s.corsOrigin, "http://localhost:3000", "http://localhost:4000"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	})
	r.Use(corsMiddleware.Handler)

	r.Get("/health", s.handleHealth)
	r.Get("/ports", s.handlePorts)
	r.Post("/ports/{id}/universe", s.handleSetUniverse)
	r.Get("/ws/ports", s.handleWSPorts)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handlePorts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Snapshot())
}

// setUniverseRequest is the body of POST /ports/{id}/universe.
type setUniverseRequest struct {
	Type     string `json:"type"` // "input" or "output"
	Universe int    `json:"universe"`
}

func (s *Server) handleSetUniverse(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid port id"})
		return
	}

	var req setUniverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Universe < 0 || req.Universe > 0xFF {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "universe must be 0..255"})
		return
	}

	var portType artnetnode.PortType
	switch req.Type {
	case "input":
		portType = artnetnode.PortInput
	case "output":
		portType = artnetnode.PortOutput
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "type must be \"input\" or \"output\""})
		return
	}

	if err := s.node.SetPortUniverse(portType, id, uint8(req.Universe)); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, s.node.Snapshot())
}

// handleWSPorts upgrades to a websocket and pushes a port-state snapshot
// whenever it changes, polling at PollInterval. This is the operational
// equivalent of the teacher's GraphQL subscriptions: there is no
// per-event callback plumbing, just "tell me when the picture changes."
func (s *Server) handleWSPorts(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	// Drain and ignore inbound frames; disconnect is detected by read error.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				_ = conn.Close()
				return
			}
		}
	}()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	var last artnetnode.Snapshot
	first := true
	for range ticker.C {
		snap := s.node.Snapshot()
		if !first && snap == last {
			continue
		}
		first = false
		last = snap

		if err := conn.WriteJSON(snap); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
