package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/andrewvu270/AgentDeck/internal/middleware"
	"github.com/andrewvu270/AgentDeck/internal/model"
	"github.com/andrewvu270/AgentDeck/internal/orchestrator"
	"github.com/andrewvu270/AgentDeck/internal/store"
	"github.com/andrewvu270/AgentDeck/pkg/logger"
	"github.com/andrewvu270/AgentDeck/pkg/metrics"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	store        *store.Store
	orchestrator *orchestrator.Orchestrator
	logger       *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(st *store.Store, orch *orchestrator.Orchestrator, log *logger.Logger) *MessageHandler {
	return &MessageHandler{store: st, orchestrator: orch, logger: log}
}

// Send handles POST /api/v1/conversations/{id}/messages. The user message is
// appended synchronously; the orchestration round it triggers runs in the
// background, so the response is 202 with the round's audit id.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.store.GetConversation(ctx, conversationID, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	msg, err := h.store.AppendMessage(ctx, conversationID, userID, &model.AppendMessageInput{
		SenderType: model.SenderUser,
		SenderID:   userID,
		SenderName: "You",
		Content:    req.Content,
		Mentions:   req.Mentions,
		ReplyTo:    req.ReplyTo,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	metrics.MessagesTotal.WithLabelValues(string(model.SenderUser)).Inc()

	round, err := h.orchestrator.TriggerRound(ctx, userID, conversationID, conv.Mode)
	if err != nil {
		// The message is durable; the caller learns the round could not
		// start (e.g. one is already running).
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, model.SendMessageResponse{
		Message: msg,
		RoundID: round.ID,
	})
}

// List handles GET /api/v1/conversations/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	messages, err := h.store.ListHistory(ctx, conversationID, userID, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ListMessagesResponse{
		Messages: messages,
		Total:    len(messages),
	})
}

// Search handles GET /api/v1/messages/search?q=term
func (h *MessageHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	term := r.URL.Query().Get("q")
	if term == "" {
		writeError(w, http.StatusBadRequest, "search term is required")
		return
	}

	messages, err := h.store.SearchMessages(ctx, userID, term, 50)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ListMessagesResponse{
		Messages: messages,
		Total:    len(messages),
	})
}
