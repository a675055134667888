// Package handlers provides HTTP handlers for tenant management.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/niq79/trading-bot-sub001/internal/modules/tenants"
	"github.com/rs/zerolog"
)

// StrategyRoutes is the slice of the strategy handlers mounted under
// a tenant's subtree (list and create within one tenant).
type StrategyRoutes interface {
	HandleListByTenant(w http.ResponseWriter, r *http.Request)
	HandleCreate(w http.ResponseWriter, r *http.Request)
}

// Handler provides HTTP handlers for tenant endpoints
type Handler struct {
	repo       *tenants.Repository
	strategies StrategyRoutes
	log        zerolog.Logger
}

// NewHandler creates a new tenants handler
func NewHandler(repo *tenants.Repository, strategies StrategyRoutes, log zerolog.Logger) *Handler {
	return &Handler{
		repo:       repo,
		strategies: strategies,
		log:        log.With().Str("handler", "tenants").Logger(),
	}
}

// RegisterRoutes registers all tenant routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tenants", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)

		r.Route("/{tenantID}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Put("/", h.HandleUpdate)
			r.Delete("/", h.HandleDelete)

			if h.strategies != nil {
				r.Get("/strategies", h.strategies.HandleListByTenant)
				r.Post("/strategies", h.strategies.HandleCreate)
			}
		})
	})
}

// tenantRequest is the create/update payload. The broker secret is
// write-only: it never appears in responses, and an empty secret on
// update keeps the stored one.
type tenantRequest struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	BrokerKeyID  string `json:"broker_key_id"`
	BrokerSecret string `json:"broker_secret"`
	Paper        bool   `json:"paper"`
	Enabled      bool   `json:"enabled"`
}

// HandleList handles GET /api/tenants
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list tenants")
		writeError(w, http.StatusInternalServerError, "failed to list tenants")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleCreate handles POST /api/tenants
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req tenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tenant := &domain.Tenant{
		ID:           req.ID,
		Name:         req.Name,
		BrokerKeyID:  req.BrokerKeyID,
		BrokerSecret: req.BrokerSecret,
		Paper:        req.Paper,
		Enabled:      req.Enabled,
	}

	if err := h.repo.Create(tenant); err != nil {
		h.log.Error().Err(err).Str("name", req.Name).Msg("Failed to create tenant")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, tenant)
}

// HandleGet handles GET /api/tenants/{tenantID}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tenantID")

	tenant, err := h.repo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Str("tenant_id", id).Msg("Failed to get tenant")
		writeError(w, http.StatusInternalServerError, "failed to get tenant")
		return
	}
	if tenant == nil {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}

	writeJSON(w, http.StatusOK, tenant)
}

// HandleUpdate handles PUT /api/tenants/{tenantID}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tenantID")

	existing, err := h.repo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Str("tenant_id", id).Msg("Failed to get tenant")
		writeError(w, http.StatusInternalServerError, "failed to get tenant")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}

	var req tenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "tenant name is required")
		return
	}

	existing.Name = req.Name
	existing.BrokerKeyID = req.BrokerKeyID
	existing.Paper = req.Paper
	existing.Enabled = req.Enabled
	if req.BrokerSecret != "" {
		existing.BrokerSecret = req.BrokerSecret
	}

	if err := h.repo.Update(existing); err != nil {
		h.log.Error().Err(err).Str("tenant_id", id).Msg("Failed to update tenant")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, existing)
}

// HandleDelete handles DELETE /api/tenants/{tenantID}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tenantID")

	existing, err := h.repo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Str("tenant_id", id).Msg("Failed to get tenant")
		writeError(w, http.StatusInternalServerError, "failed to get tenant")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}

	if err := h.repo.Delete(id); err != nil {
		h.log.Error().Err(err).Str("tenant_id", id).Msg("Failed to delete tenant")
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
