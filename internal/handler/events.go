package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/andrewvu270/AgentDeck/internal/event"
	"github.com/andrewvu270/AgentDeck/internal/middleware"
	"github.com/andrewvu270/AgentDeck/internal/model"
	"github.com/andrewvu270/AgentDeck/pkg/logger"
)

// EventHandler handles event hook endpoints.
type EventHandler struct {
	events *event.Service
	logger *logger.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(events *event.Service, log *logger.Logger) *EventHandler {
	return &EventHandler{events: events, logger: log}
}

// Ingest handles POST /api/v1/events
func (h *EventHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.IngestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventType == "" {
		writeError(w, http.StatusBadRequest, "event_type is required")
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}

	evt, err := h.events.HandleEvent(ctx, userID, &req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, evt)
}

// History handles GET /api/v1/events
func (h *EventHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	eventType := model.EventType(r.URL.Query().Get("event_type"))

	events, err := h.events.History(ctx, userID, eventType, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// Subscribe handles POST /api/v1/agents/{id}/subscriptions
func (h *EventHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	agentID := chi.URLParam(r, "id")

	var req model.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventType == "" {
		writeError(w, http.StatusBadRequest, "event_type is required")
		return
	}

	sub, err := h.events.Subscribe(ctx, userID, agentID, &req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/v1/agents/{id}/subscriptions/{eventType}
func (h *EventHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	agentID := chi.URLParam(r, "id")
	eventType := model.EventType(chi.URLParam(r, "eventType"))

	if err := h.events.Unsubscribe(ctx, userID, agentID, eventType); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

// Subscriptions handles GET /api/v1/agents/{id}/subscriptions
func (h *EventHandler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	agentID := chi.URLParam(r, "id")

	subs, err := h.events.Subscriptions(ctx, userID, agentID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"subscriptions": subs})
}
