// Package handlers provides HTTP handlers for strategy management.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/niq79/trading-bot-sub001/internal/modules/strategy"
	"github.com/rs/zerolog"
)

// Handler provides HTTP handlers for strategy endpoints
type Handler struct {
	repo *strategy.Repository
	log  zerolog.Logger
}

// NewHandler creates a new strategy handler
func NewHandler(repo *strategy.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "strategies").Logger(),
	}
}

// RegisterRoutes registers the strategy-scoped routes. The tenant-scoped
// collection routes (list and create under /tenants/{tenantID}) are
// mounted by the tenants handler.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/strategies", func(r chi.Router) {
		r.Get("/{strategyID}", h.HandleGet)
		r.Put("/{strategyID}", h.HandleUpdate)
		r.Delete("/{strategyID}", h.HandleDelete)
	})
}

// HandleListByTenant handles GET /api/tenants/{tenantID}/strategies
func (h *Handler) HandleListByTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	list, err := h.repo.ListByTenant(tenantID)
	if err != nil {
		h.log.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to list strategies")
		writeError(w, http.StatusInternalServerError, "failed to list strategies")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleCreate handles POST /api/tenants/{tenantID}/strategies
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var cfg domain.StrategyConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg.TenantID = tenantID

	if err := h.repo.Create(&cfg); err != nil {
		h.log.Error().Err(err).Str("tenant_id", tenantID).Str("name", cfg.Name).Msg("Failed to create strategy")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, cfg)
}

// HandleGet handles GET /api/strategies/{strategyID}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "strategyID")

	cfg, err := h.repo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Str("strategy_id", id).Msg("Failed to get strategy")
		writeError(w, http.StatusInternalServerError, "failed to get strategy")
		return
	}
	if cfg == nil {
		writeError(w, http.StatusNotFound, "strategy not found")
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// HandleUpdate handles PUT /api/strategies/{strategyID}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "strategyID")

	existing, err := h.repo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Str("strategy_id", id).Msg("Failed to get strategy")
		writeError(w, http.StatusInternalServerError, "failed to get strategy")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "strategy not found")
		return
	}

	var cfg domain.StrategyConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Identity and ownership are immutable
	cfg.ID = existing.ID
	cfg.TenantID = existing.TenantID
	cfg.CreatedAt = existing.CreatedAt

	if err := h.repo.Update(&cfg); err != nil {
		h.log.Error().Err(err).Str("strategy_id", id).Msg("Failed to update strategy")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// HandleDelete handles DELETE /api/strategies/{strategyID}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "strategyID")

	existing, err := h.repo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Str("strategy_id", id).Msg("Failed to get strategy")
		writeError(w, http.StatusInternalServerError, "failed to get strategy")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "strategy not found")
		return
	}

	if err := h.repo.Delete(id); err != nil {
		h.log.Error().Err(err).Str("strategy_id", id).Msg("Failed to delete strategy")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
