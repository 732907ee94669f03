// Package orchestrator coordinates multi-agent rounds: for each participant
// it builds context from the transcript, enforces the conversation's token
// budget, calls the agent's LLM backend, resolves requested tool calls, and
// appends the reply through the conversation store.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/andrewvu270/AgentDeck/internal/apperr"
	"github.com/andrewvu270/AgentDeck/internal/ledger"
	"github.com/andrewvu270/AgentDeck/internal/llm"
	"github.com/andrewvu270/AgentDeck/internal/model"
	"github.com/andrewvu270/AgentDeck/internal/store"
	"github.com/andrewvu270/AgentDeck/internal/table"
	"github.com/andrewvu270/AgentDeck/pkg/metrics"
)

// errorTurnTokens is charged against the conversation budget when a backend
// failure is persisted as an error turn instead of a reply.
const errorTurnTokens = 50

// ToolBridge resolves and executes agent tool calls.
type ToolBridge interface {
	Definitions(names []string) []model.ToolDefinition
	Invoke(ctx context.Context, agentID string, call model.ToolCallRequest) model.ToolResult
}

// Orchestrator runs agent turns and collaboration rounds. All collaborators
// are injected; the orchestrator holds no state of its own beyond them.
type Orchestrator struct {
	store   *store.Store
	ledger  *ledger.Ledger
	bridge  ToolBridge
	clients map[string]llm.Client
	tables  *table.Service

	llmTimeout      time.Duration
	perCallTokenCap int
	roundTimeout    time.Duration

	log *zap.Logger
}

// Config bundles the orchestrator's tunables.
type Config struct {
	LLMCallTimeout  time.Duration
	PerCallTokenCap int
	RoundTimeout    time.Duration
}

// New creates an orchestrator. clients maps provider names to their backend
// adapters; tables may be nil when table briefings are not needed.
func New(st *store.Store, lg *ledger.Ledger, bridge ToolBridge, clients map[string]llm.Client, tables *table.Service, cfg Config, log *zap.Logger) *Orchestrator {
	timeout := cfg.LLMCallTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	tokenCap := cfg.PerCallTokenCap
	if tokenCap <= 0 {
		tokenCap = 1000
	}
	roundDeadline := cfg.RoundTimeout
	if roundDeadline <= 0 {
		roundDeadline = defaultRoundTimeout
	}
	return &Orchestrator{
		store:           st,
		ledger:          lg,
		bridge:          bridge,
		clients:         clients,
		tables:          tables,
		llmTimeout:      timeout,
		perCallTokenCap: tokenCap,
		roundTimeout:    roundDeadline,
		log:             log,
	}
}

// InvokeAgent runs exactly one agent turn. An exhausted token budget pauses
// the conversation and returns nil; a backend or tool failure is persisted
// as an error-type turn and returned so callers can log it. Ownership and
// not-found failures abort before any side effect.
func (o *Orchestrator) InvokeAgent(ctx context.Context, conversationID, agentID, userID string) error {
	conv, err := o.store.GetConversation(ctx, conversationID, userID)
	if err != nil {
		return err
	}

	remaining := conv.TokenBudget - conv.TotalTokens
	if remaining <= 0 {
		o.log.Info("token budget exhausted, pausing conversation",
			zap.String("conversation_id", conversationID),
			zap.Int("token_budget", conv.TokenBudget),
			zap.Int("total_tokens", conv.TotalTokens),
		)
		return o.store.SetStatus(ctx, conversationID, userID, model.ConversationPaused)
	}

	agent, err := o.store.GetAgent(ctx, agentID, userID)
	if err != nil {
		return err
	}
	transcript, err := o.store.ListHistory(ctx, conversationID, userID, 0)
	if err != nil {
		return err
	}

	req := &llm.CompletionRequest{
		Model:     agent.Model,
		System:    o.buildInstructions(ctx, agent, conv, userID),
		Messages:  mapTranscript(transcript),
		MaxTokens: min(remaining, o.perCallTokenCap),
	}

	// Tool schemas ride along only for providers whose adapter understands
	// function calling.
	if len(agent.Tools) > 0 && agent.Provider == "openai" {
		req.Tools = o.bridge.Definitions(agent.Tools)
	}

	start := time.Now()
	resp, err := o.complete(ctx, agent, req)
	if err != nil {
		metrics.AgentInvocationsTotal.WithLabelValues(agent.Provider, "error").Inc()
		o.log.Error("agent invocation failed",
			zap.String("conversation_id", conversationID),
			zap.String("agent_id", agentID),
			zap.String("provider", agent.Provider),
			zap.Error(err),
		)
		// The turn record survives the failure: the transcript shows the
		// error where the reply would have been.
		input := &model.AppendMessageInput{
			SenderType: model.SenderAgent,
			SenderID:   agent.ID,
			SenderName: agent.Name,
			SenderRole: agent.RoleType,
			Content:    fmt.Sprintf("[%s] Error generating response: %v", agent.Name, err),
			Type:       model.MessageError,
			Tokens:     errorTurnTokens,
		}
		if _, appendErr := o.store.AppendMessage(ctx, conversationID, userID, input); appendErr != nil {
			o.log.Error("failed to persist error turn", zap.Error(appendErr))
		}
		return apperr.Backend(agent.Provider, err)
	}

	latency := time.Since(start)
	metrics.AgentInvocationsTotal.WithLabelValues(agent.Provider, "success").Inc()
	metrics.RecordLLMCall(agent.Provider, resp.Model, "success", latency.Seconds(), resp.TokensUsed)

	// Single round-trip: tool results are recorded but not fed back into a
	// second model call.
	content := resp.Content
	for _, call := range resp.ToolCalls {
		o.bridge.Invoke(ctx, agent.ID, call)
	}
	if content == "" && len(resp.ToolCalls) > 0 {
		content = "Tool execution completed"
	}

	latencyMs := latency.Milliseconds()
	input := &model.AppendMessageInput{
		SenderType:     model.SenderAgent,
		SenderID:       agent.ID,
		SenderName:     agent.Name,
		SenderRole:     agent.RoleType,
		Content:        content,
		Type:           model.MessageNormal,
		Tokens:         resp.TokensUsed,
		ToolCalls:      len(resp.ToolCalls),
		ResponseTimeMs: &latencyMs,
	}
	if _, err := o.store.AppendMessage(ctx, conversationID, userID, input); err != nil {
		return err
	}

	// Charge the monthly ledger after the turn is durable.
	if err := o.ledger.Adjust(ctx, userID, model.ResourceTokens, int64(resp.TokensUsed)); err != nil {
		o.log.Error("failed to charge token usage",
			zap.String("user_id", userID), zap.Error(err))
	}
	return nil
}

// complete runs the backend call under the per-call timeout.
func (o *Orchestrator) complete(ctx context.Context, agent *model.Agent, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	client, ok := o.clients[agent.Provider]
	if !ok {
		return nil, fmt.Errorf("no backend adapter for provider %q", agent.Provider)
	}
	callCtx, cancel := context.WithTimeout(ctx, o.llmTimeout)
	defer cancel()
	return client.Complete(callCtx, req)
}

// buildInstructions composes the agent's system prompt, role briefing, mode
// briefing, and (for table-backed conversations) the current phase briefing.
func (o *Orchestrator) buildInstructions(ctx context.Context, agent *model.Agent, conv *model.Conversation, userID string) string {
	instructions := agent.SystemPrompt
	if agent.RoleType != "" && agent.RoleResponsibilities != "" {
		instructions += "\n\nYour role: " + agent.RoleResponsibilities
	}
	instructions += modeBriefing(conv.Mode)

	if o.tables != nil {
		if t, err := o.tables.GetByConversation(ctx, conv.ID, userID); err == nil && t.Status == model.TableActive {
			instructions += "\n\nTopic: " + t.Topic
			if t.DesiredOutcome != "" {
				instructions += "\nDesired outcome: " + t.DesiredOutcome
			}
			if phase := table.PhaseInstructions(t.CurrentPhase); phase != "" {
				instructions += "\n\nCurrent phase: " + string(t.CurrentPhase) + ". " + phase
			}
		}
	}
	return instructions
}

// mapTranscript converts stored messages into the backend's chat shape.
// Non-user turns are tagged with the sender's display name so the model can
// tell speakers apart.
func mapTranscript(transcript []model.Message) []llm.ChatMessage {
	msgs := make([]llm.ChatMessage, len(transcript))
	for i, m := range transcript {
		if m.SenderType == model.SenderUser {
			msgs[i] = llm.ChatMessage{Role: "user", Content: m.Content}
			continue
		}
		msgs[i] = llm.ChatMessage{
			Role:    "assistant",
			Content: fmt.Sprintf("[%s]: %s", m.SenderName, m.Content),
		}
	}
	return msgs
}
