// Package api provides the HTTP API for watching villagers decide.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/talgya/decider/internal/agents"
	"github.com/talgya/decider/internal/engine"
	"github.com/talgya/decider/internal/overlay"
	"github.com/talgya/decider/internal/persistence"
)

// Server serves the simulation over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // Optional; enables snapshot and save listing.
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	// ForcesPerMinute limits force requests per client IP; 0 = unlimited.
	ForcesPerMinute int

	mu  sync.Mutex
	srv *http.Server
}

// Handler builds the API routes.
func (s *Server) Handler() http.Handler {
	forceLimiter := NewRateLimiter(s.ForcesPerMinute, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/agents", s.handleAgents)
	mux.HandleFunc("GET /api/v1/agent/{id}", s.handleAgentDetail)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/overlay", s.handleOverlay)
	mux.HandleFunc("GET /api/v1/saves", s.handleSaves)

	// Admin endpoints.
	mux.HandleFunc("POST /api/v1/force", s.adminOnly(RateLimitMiddleware(forceLimiter, s.handleForce)))
	mux.HandleFunc("POST /api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("POST /api/v1/overlay", s.adminOnly(s.handleOverlayMode))
	mux.HandleFunc("POST /api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	return mux
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no admin key set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Status()
	status := map[string]any{
		"name":       "decidersim",
		"tick":       st.Tick,
		"sim_time":   st.SimTime,
		"field_time": st.FieldTime,
		"stats":      st.Stats,
	}
	if s.Eng != nil {
		status["speed"] = s.Eng.Speed()
		status["running"] = s.Eng.Running()
	}
	writeJSON(w, status)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	rows := s.Sim.AgentList()
	if action := r.URL.Query().Get("action"); action != "" {
		filtered := rows[:0]
		for _, row := range rows {
			if row.Action == action {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}
	if r.URL.Query().Get("alive") == "true" {
		filtered := rows[:0]
		for _, row := range rows {
			if row.Alive {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}
	writeJSON(w, rows)
}

func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}
	detail, err := s.Sim.AgentDetail(agents.AgentID(id))
	if errors.Is(err, engine.ErrAgentNotFound) {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("agent detail failed", "agent", id, "error", err)
		http.Error(w, "agent detail failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, detail)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	events := s.Sim.RecentEvents(limit)
	if category := r.URL.Query().Get("category"); category != "" {
		filtered := events[:0]
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	writeJSON(w, events)
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.Sim.RenderOverlay(w); err != nil {
		slog.Error("overlay render failed", "error", err)
	}
}

func (s *Server) handleOverlayMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	mode, err := overlay.ParseDisplayMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.Sim.SetDisplayMode(mode)
	slog.Info("overlay mode changed", "mode", mode)
	writeJSON(w, map[string]string{"mode": mode.String()})
}

func (s *Server) handleForce(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Agent  uint64 `json:"agent"`
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	kind, ok := agents.ParseActionKind(req.Action)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown action %q", req.Action), http.StatusBadRequest)
		return
	}

	err := s.Sim.Force(agents.AgentID(req.Agent), kind)
	switch {
	case errors.Is(err, engine.ErrAgentNotFound):
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	case errors.Is(err, engine.ErrAgentDead):
		http.Error(w, "agent is dead", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{
		"agent":      req.Agent,
		"action":     kind.String(),
		"applies_at": s.Sim.CurrentTick() + 1,
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not available", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Speed < 0 || req.Speed > 1000 {
		http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
		return
	}
	s.Eng.SetSpeed(req.Speed)
	slog.Info("speed changed", "speed", req.Speed)
	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	ws := s.Sim.Capture()
	saveID, err := s.DB.SaveWorldState(ws)
	if err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"save":    saveID,
		"tick":    ws.Tick,
		"message": "snapshot saved",
	})
}

func (s *Server) handleSaves(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	saves, err := s.DB.Saves(20)
	if err != nil {
		slog.Error("listing saves failed", "error", err)
		http.Error(w, "listing saves failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, saves)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
