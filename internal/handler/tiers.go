package handler

import (
	"encoding/json"
	"net/http"

	"github.com/andrewvu270/AgentDeck/internal/ledger"
	"github.com/andrewvu270/AgentDeck/internal/middleware"
	"github.com/andrewvu270/AgentDeck/pkg/logger"
)

// TierHandler handles tier and usage endpoints.
type TierHandler struct {
	ledger *ledger.Ledger
	logger *logger.Logger
}

// NewTierHandler creates a new tier handler.
func NewTierHandler(lg *ledger.Ledger, log *logger.Logger) *TierHandler {
	return &TierHandler{ledger: lg, logger: log}
}

// List handles GET /api/v1/tiers
func (h *TierHandler) List(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.ledger.ListTiers(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tiers": tiers})
}

// Limits handles GET /api/v1/tiers/limits
func (h *TierHandler) Limits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	limits, err := h.ledger.Limits(ctx, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, limits)
}

// Upgrade handles POST /api/v1/tiers/upgrade
func (h *TierHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req struct {
		Tier string `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Tier == "" {
		writeError(w, http.StatusBadRequest, "tier name is required")
		return
	}

	if err := h.ledger.UpgradeTier(ctx, userID, req.Tier); err != nil {
		writeAppError(w, err)
		return
	}

	limits, err := h.ledger.Limits(ctx, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, limits)
}
