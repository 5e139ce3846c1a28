// Package api implements the admin/observability HTTP surface (SPEC_FULL
// §4.12): health, metrics, and read-only inspection/administration
// endpoints over the command store and clock registry.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"durable-command-scheduler/internal/clockdriver"
	"durable-command-scheduler/internal/clockregistry"
	"durable-command-scheduler/internal/store"
	"durable-command-scheduler/internal/telemetry"
)

// Server wires HTTP handlers for the scheduler's admin surface.
type Server struct {
	store  store.Store
	clocks clockregistry.Registry
	driver *clockdriver.Driver
}

// New constructs the admin server.
func New(st store.Store, clocks clockregistry.Registry, driver *clockdriver.Driver) *Server {
	return &Server{store: st, clocks: clocks, driver: driver}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Get("/commands/{aggregateId}/{sequenceNumber}", s.handleGetCommand)
	r.Get("/clocks/{name}", s.handleGetClock)
	r.Post("/clocks/{name}/advance", s.handleAdvanceClock)
	r.Get("/abandoned", s.handleAbandoned)
	return r
}

func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	aggregateID := chi.URLParam(r, "aggregateId")
	seq, err := strconv.ParseInt(chi.URLParam(r, "sequenceNumber"), 10, 64)
	if err != nil {
		http.Error(w, "invalid sequenceNumber", http.StatusBadRequest)
		return
	}

	cmd, err := s.store.Load(r.Context(), aggregateID, seq)
	if err != nil {
		if err == store.ErrNotFound {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	errs, err := s.store.Errors(r.Context(), aggregateID, seq)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"command": cmd,
		"status":  cmd.Status().String(),
		"errors":  errs,
	})
}

func (s *Server) handleGetClock(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	clock, err := s.clocks.GetOrCreate(r.Context(), name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, clock)
}

type advanceRequest struct {
	Target time.Time `json:"target"`
}

func (s *Server) handleAdvanceClock(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Target.IsZero() {
		http.Error(w, "target is required", http.StatusBadRequest)
		return
	}
	if err := s.driver.Advance(r.Context(), name, req.Target); err != nil {
		if errors.Is(err, clockregistry.ErrClockMovedBackward) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "advanced"})
}

func (s *Server) handleAbandoned(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("clock")
	if name == "" {
		name = "default"
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	commands, err := s.store.Abandoned(r.Context(), name, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": commands})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
