package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/niq79/trading-bot-sub001/internal/orchestrator"
	"github.com/niq79/trading-bot-sub001/internal/runs"
	"github.com/rs/zerolog"
)

// RunHandlers provides HTTP handlers for run history and manual triggers
type RunHandlers struct {
	orch    *orchestrator.Orchestrator
	runRepo *runs.Repository
	log     zerolog.Logger
}

// NewRunHandlers creates a new runs handler
func NewRunHandlers(orch *orchestrator.Orchestrator, runRepo *runs.Repository, log zerolog.Logger) *RunHandlers {
	return &RunHandlers{
		orch:    orch,
		runRepo: runRepo,
		log:     log.With().Str("handler", "runs").Logger(),
	}
}

// RegisterRoutes registers all run routes. Flat patterns so they can
// coexist with the stream route mounted outside the timeout group.
func (h *RunHandlers) RegisterRoutes(r chi.Router) {
	r.Post("/runs/trigger", h.HandleTrigger)
	r.Get("/runs", h.HandleList)
	r.Get("/runs/{runID}", h.HandleGet)
}

// HandleTrigger handles POST /api/runs/trigger.
//
// A single-strategy request runs synchronously and returns the full
// run result. Tenant and full sweeps can outlast the request timeout,
// so they run in the background and return 202; progress arrives on
// the run stream.
func (h *RunHandlers) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.StrategyID != "" {
		result, err := h.orch.RunStrategy(r.Context(), req.TenantID, req.StrategyID, req.DryRun)
		if err != nil {
			h.log.Error().Err(err).Str("strategy_id", req.StrategyID).Msg("Triggered run failed")
			writeError(w, triggerStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	h.log.Info().
		Str("tenant_id", req.TenantID).
		Bool("force", req.Force).
		Msg("Sweep triggered")

	go func() {
		if _, err := h.orch.Run(context.Background(), req); err != nil {
			h.log.Error().Err(err).Str("tenant_id", req.TenantID).Msg("Triggered sweep failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func triggerStatus(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrRunInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// HandleList handles GET /api/runs?tenant=&strategy=&limit=
func (h *RunHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant")
	strategyID := r.URL.Query().Get("strategy")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	list, err := h.runRepo.List(tenantID, strategyID, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	writeJSON(w, http.StatusOK, list)
}

// HandleGet handles GET /api/runs/{runID}
func (h *RunHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")

	result, err := h.runRepo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to get run")
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
