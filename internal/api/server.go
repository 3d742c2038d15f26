// Package api serves the HTTP control surface: primitive invocation,
// status reads and a scheduler refresh.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/circadiand/internal/engine"
	"github.com/dokzlo13/circadiand/internal/ledger"
)

const (
	maxBodyBytes       = 64 << 10
	defaultLedgerLimit = 50
)

// Engine is the part of the engine the API drives
type Engine interface {
	Invoke(ctx context.Context, primitive, target string, p engine.Params) (engine.Applied, error)
	LookupArea(id string) (engine.AreaStatus, bool)
	LookupZone(id string) (engine.ZoneStatus, bool)
	AreaIDs() []string
	ZoneIDs() []string
	Primitives() []string
}

// History reads the invocation ledger
type History interface {
	ByTarget(target string, limit int) ([]*ledger.Entry, error)
}

// Refresher wakes the scheduler for an immediate tick
type Refresher interface {
	Wake()
}

// Server is the HTTP API
type Server struct {
	addr      string
	engine    Engine
	history   History // optional
	refresher Refresher
	started   time.Time

	httpServer *http.Server
}

// NewServer creates an API server
func NewServer(host string, port int, eng Engine, history History, refresher Refresher) *Server {
	return &Server{
		addr:      fmt.Sprintf("%s:%d", host, port),
		engine:    eng,
		history:   history,
		refresher: refresher,
		started:   time.Now(),
	}
}

// Handler returns the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /primitives", s.handlePrimitives)
	mux.HandleFunc("POST /invoke/{primitive}/{target}", s.handleInvoke)
	mux.HandleFunc("GET /areas", s.handleAreas)
	mux.HandleFunc("GET /areas/{id}", s.handleArea)
	mux.HandleFunc("GET /zones", s.handleZones)
	mux.HandleFunc("GET /zones/{id}", s.handleZone)
	mux.HandleFunc("GET /ledger/{target}", s.handleLedger)
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	return mux
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve API: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handlePrimitives(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Primitives())
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	primitive := r.PathValue("primitive")
	target := r.PathValue("target")

	var p engine.Params
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid params: "+err.Error())
			return
		}
	}
	if p.Source == "" {
		p.Source = "api"
	}

	applied, err := s.engine.Invoke(r.Context(), primitive, target, p)
	switch {
	case errors.Is(err, engine.ErrUnknownPrimitive):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		log.Warn().Err(err).Str("primitive", primitive).Str("target", target).Msg("API invocation failed")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, applied)
}

func (s *Server) handleAreas(w http.ResponseWriter, _ *http.Request) {
	out := []engine.AreaStatus{}
	for _, id := range s.engine.AreaIDs() {
		if st, ok := s.engine.LookupArea(id); ok {
			out = append(out, st)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleArea(w http.ResponseWriter, r *http.Request) {
	st, ok := s.engine.LookupArea(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown area")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleZones(w http.ResponseWriter, _ *http.Request) {
	out := []engine.ZoneStatus{}
	for _, id := range s.engine.ZoneIDs() {
		if st, ok := s.engine.LookupZone(id); ok {
			out = append(out, st)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleZone(w http.ResponseWriter, r *http.Request) {
	st, ok := s.engine.LookupZone(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown zone")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "ledger disabled")
		return
	}
	limit := defaultLedgerLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.history.ByTarget(r.PathValue("target"), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read ledger")
		writeError(w, http.StatusInternalServerError, "failed to read ledger")
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.refresher.Wake()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
