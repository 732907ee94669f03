package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andrewvu270/AgentDeck/internal/agent"
	"github.com/andrewvu270/AgentDeck/internal/middleware"
	"github.com/andrewvu270/AgentDeck/internal/model"
	"github.com/andrewvu270/AgentDeck/pkg/logger"
)

// AgentHandler handles agent directory endpoints.
type AgentHandler struct {
	directory *agent.Directory
	logger    *logger.Logger
}

// NewAgentHandler creates a new agent handler.
func NewAgentHandler(dir *agent.Directory, log *logger.Logger) *AgentHandler {
	return &AgentHandler{directory: dir, logger: log}
}

// Create handles POST /api/v1/agents
func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := h.directory.Create(ctx, userID, &req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// List handles GET /api/v1/agents
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	agents, err := h.directory.List(ctx, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}

// Get handles GET /api/v1/agents/{id}
func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	agentID := chi.URLParam(r, "id")

	a, err := h.directory.Get(ctx, agentID, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Update handles PUT /api/v1/agents/{id}
func (h *AgentHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	agentID := chi.URLParam(r, "id")

	var req model.UpdateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := h.directory.Update(ctx, agentID, userID, &req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Delete handles DELETE /api/v1/agents/{id}
func (h *AgentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	agentID := chi.URLParam(r, "id")

	if err := h.directory.Delete(ctx, agentID, userID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Roles handles GET /api/v1/agents/roles
func (h *AgentHandler) Roles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"roles": h.directory.RoleTemplates(),
	})
}
