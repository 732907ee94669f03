package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/andrewvu270/AgentDeck/internal/apperr"
	"github.com/andrewvu270/AgentDeck/internal/model"
)

func compactJSON(v map[string]any) string {
	if len(v) == 0 {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// WakeAgents routes a business event to each subscribed agent: the event is
// appended as a system turn to the agent's most recent active conversation,
// then the agent is invoked there. Agents with no active conversation are
// skipped. Failures are isolated per agent.
func (o *Orchestrator) WakeAgents(ctx context.Context, userID string, event *model.BusinessEvent, agentIDs []string) {
	for _, agentID := range agentIDs {
		if err := o.wakeAgent(ctx, userID, event, agentID); err != nil {
			o.log.Error("failed to wake agent for event",
				zap.String("agent_id", agentID),
				zap.String("event_type", string(event.EventType)),
				zap.Error(err),
			)
		}
	}
}

func (o *Orchestrator) wakeAgent(ctx context.Context, userID string, event *model.BusinessEvent, agentID string) error {
	conv, err := o.store.LatestActiveConversationWithAgent(ctx, userID, agentID)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			o.log.Debug("no active conversation for woken agent",
				zap.String("agent_id", agentID))
			return nil
		}
		return err
	}

	input := &model.AppendMessageInput{
		SenderType: model.SenderSystem,
		SenderID:   "event:" + event.ID,
		SenderName: "system",
		Content:    fmt.Sprintf("Business event %s from %s: %s", event.EventType, event.Source, compactJSON(event.Data)),
		Type:       model.MessageStatus,
	}
	if _, err := o.store.AppendMessage(ctx, conv.ID, userID, input); err != nil {
		return err
	}
	return o.InvokeAgent(ctx, conv.ID, agentID, userID)
}
