package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andrewvu270/AgentDeck/internal/middleware"
	"github.com/andrewvu270/AgentDeck/internal/model"
	"github.com/andrewvu270/AgentDeck/internal/table"
	"github.com/andrewvu270/AgentDeck/pkg/logger"
)

// TableHandler handles collaboration table endpoints.
type TableHandler struct {
	tables *table.Service
	logger *logger.Logger
}

// NewTableHandler creates a new table handler.
func NewTableHandler(tables *table.Service, log *logger.Logger) *TableHandler {
	return &TableHandler{tables: tables, logger: log}
}

// Create handles POST /api/v1/tables
func (h *TableHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.CreateTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.tables.Create(ctx, userID, &req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// List handles GET /api/v1/tables
func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	status := model.TableStatus(r.URL.Query().Get("status"))

	tables, err := h.tables.List(ctx, userID, status)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tables": tables})
}

// Get handles GET /api/v1/tables/{id}
func (h *TableHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	tableID := chi.URLParam(r, "id")

	t, err := h.tables.Get(ctx, tableID, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Advance handles POST /api/v1/tables/{id}/advance. Advancing from the last
// phase completes the table.
func (h *TableHandler) Advance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	tableID := chi.URLParam(r, "id")

	t, err := h.tables.AdvancePhase(ctx, tableID, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateOutput handles PUT /api/v1/tables/{id}/output
func (h *TableHandler) UpdateOutput(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	tableID := chi.URLParam(r, "id")

	var req model.UpdateTableOutputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := h.tables.UpdateOutput(ctx, tableID, userID, &req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Cancel handles POST /api/v1/tables/{id}/cancel
func (h *TableHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	tableID := chi.URLParam(r, "id")

	t, err := h.tables.Cancel(ctx, tableID, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
