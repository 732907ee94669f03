package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andrewvu270/AgentDeck/internal/apperr"
	"github.com/andrewvu270/AgentDeck/internal/ledger"
	"github.com/andrewvu270/AgentDeck/internal/llm"
	"github.com/andrewvu270/AgentDeck/internal/model"
	"github.com/andrewvu270/AgentDeck/internal/store"
	"github.com/andrewvu270/AgentDeck/internal/table"
	"github.com/andrewvu270/AgentDeck/pkg/logger"
)

// fakeClient scripts backend replies and records every request it saw.
type fakeClient struct {
	mu    sync.Mutex
	calls []*llm.CompletionRequest
	reply func(req *llm.CompletionRequest) (*llm.CompletionResponse, error)
}

func (c *fakeClient) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	c.mu.Unlock()
	return c.reply(req)
}

func (c *fakeClient) Name() string     { return "fake" }
func (c *fakeClient) Models() []string { return []string{"fake-model"} }

func (c *fakeClient) recorded() []*llm.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*llm.CompletionRequest(nil), c.calls...)
}

// fakeToolBridge records definition lookups and invocations.
type fakeToolBridge struct {
	mu      sync.Mutex
	defs    []model.ToolDefinition
	invoked []model.ToolCallRequest
}

func (b *fakeToolBridge) Definitions(names []string) []model.ToolDefinition {
	var out []model.ToolDefinition
	for _, name := range names {
		for _, d := range b.defs {
			if d.Name == name {
				out = append(out, d)
			}
		}
	}
	return out
}

func (b *fakeToolBridge) Invoke(_ context.Context, _ string, call model.ToolCallRequest) model.ToolResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invoked = append(b.invoked, call)
	return model.Success("ok")
}

type fixture struct {
	store  *store.Store
	ledger *ledger.Ledger
	client *fakeClient
	bridge *fakeToolBridge
	tables *table.Service
	orch   *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.EnsureUser(context.Background(), "u1"))

	lg := ledger.New(st.DB(), logger.NewNop())
	client := &fakeClient{
		reply: func(req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{
				Content:    "resp-" + req.Model,
				Model:      req.Model,
				TokensUsed: 25,
			}, nil
		},
	}
	bridge := &fakeToolBridge{}
	tables := table.NewService(st, lg, zap.NewNop())
	orch := New(st, lg, bridge, map[string]llm.Client{"openai": client}, tables, Config{}, zap.NewNop())

	return &fixture{store: st, ledger: lg, client: client, bridge: bridge, tables: tables, orch: orch}
}

func (f *fixture) insertAgent(t *testing.T, name, modelName string, tools ...string) *model.Agent {
	t.Helper()
	now := time.Now().UTC()
	a := &model.Agent{
		ID:           uuid.Must(uuid.NewV7()).String(),
		UserID:       "u1",
		Name:         name,
		Model:        modelName,
		Provider:     "openai",
		SystemPrompt: "You are " + name + ".",
		Tools:        tools,
		Status:       model.AgentOnline,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.store.InsertAgent(context.Background(), a))
	return a
}

func (f *fixture) newConversation(t *testing.T, mode model.CollaborationMode, budget int, agents ...*model.Agent) *model.Conversation {
	t.Helper()
	ids := make([]string, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	conv, err := f.store.CreateConversation(context.Background(), "u1", &model.CreateConversationRequest{
		Name:                "test",
		Mode:                mode,
		TokenBudget:         budget,
		ParticipatingAgents: ids,
	})
	require.NoError(t, err)
	return conv
}

func (f *fixture) sendUserMessage(t *testing.T, conversationID, content string, tokens int) {
	t.Helper()
	_, err := f.store.AppendMessage(context.Background(), conversationID, "u1", &model.AppendMessageInput{
		SenderType: model.SenderUser,
		SenderID:   "u1",
		SenderName: "You",
		Content:    content,
		Tokens:     tokens,
	})
	require.NoError(t, err)
}

func TestSequentialRoundOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.insertAgent(t, "Alice", "model-a")
	bob := f.insertAgent(t, "Bob", "model-b")
	conv := f.newConversation(t, model.ModeSequential, 0, alice, bob)
	f.sendUserMessage(t, conv.ID, "what should we do?", 10)

	require.NoError(t, f.orch.StartCollaboration(ctx, "u1", conv.ID, model.ModeSequential))

	history, err := f.store.ListHistory(ctx, conv.ID, "u1", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "Alice", history[1].SenderName)
	assert.Equal(t, "Bob", history[2].SenderName)

	// Bob's context includes Alice's turn from this round, tagged by name.
	calls := f.client.recorded()
	require.Len(t, calls, 2)
	bobSaw := calls[1].Messages
	require.Len(t, bobSaw, 2)
	assert.Equal(t, "user", bobSaw[0].Role)
	assert.Equal(t, "assistant", bobSaw[1].Role)
	assert.Equal(t, "[Alice]: resp-model-a", bobSaw[1].Content)

	// The sequential briefing rides along in the instructions.
	assert.Contains(t, calls[0].System, "sequential mode")
	assert.Contains(t, calls[0].System, "You are Alice.")
}

func TestParallelRoundInvokesAllAgents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	agents := []*model.Agent{
		f.insertAgent(t, "A", "m1"),
		f.insertAgent(t, "B", "m2"),
		f.insertAgent(t, "C", "m3"),
	}
	conv := f.newConversation(t, model.ModeParallel, 0, agents...)
	f.sendUserMessage(t, conv.ID, "fan out", 10)

	require.NoError(t, f.orch.StartCollaboration(ctx, "u1", conv.ID, model.ModeParallel))

	history, err := f.store.ListHistory(ctx, conv.ID, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 4)
	assert.Len(t, f.client.recorded(), 3)
}

func TestBudgetExhaustedPausesConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.insertAgent(t, "Alice", "model-a")
	conv := f.newConversation(t, model.ModeSequential, 100, alice)
	f.sendUserMessage(t, conv.ID, "expensive opener", 150)

	require.NoError(t, f.orch.InvokeAgent(ctx, conv.ID, alice.ID, "u1"))

	got, err := f.store.GetConversation(ctx, conv.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.ConversationPaused, got.Status)
	// No turn was attempted: the backend never saw a call and the
	// transcript gained nothing.
	assert.Equal(t, 1, got.MessageCount)
	assert.Empty(t, f.client.recorded())
}

func TestBackendErrorPersistsErrorTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.reply = func(*llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, errors.New("rate limited")
	}
	alice := f.insertAgent(t, "Alice", "model-a")
	conv := f.newConversation(t, model.ModeSequential, 0, alice)
	f.sendUserMessage(t, conv.ID, "hello", 10)

	err := f.orch.InvokeAgent(ctx, conv.ID, alice.ID, "u1")
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeBackendError))

	history, hErr := f.store.ListHistory(ctx, conv.ID, "u1", 0)
	require.NoError(t, hErr)
	require.Len(t, history, 2)

	turn := history[1]
	assert.Equal(t, model.MessageError, turn.Type)
	assert.Contains(t, turn.Content, "[Alice] Error generating response")
	assert.Contains(t, turn.Content, "rate limited")
	assert.Equal(t, errorTurnTokens, turn.Tokens)
}

func TestMissingProviderAdapter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	a := &model.Agent{
		ID:           uuid.Must(uuid.NewV7()).String(),
		UserID:       "u1",
		Name:         "Claude",
		Model:        "claude-3-5-sonnet",
		Provider:     "anthropic",
		SystemPrompt: "You are Claude.",
		Status:       model.AgentOnline,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.store.InsertAgent(ctx, a))

	conv := f.newConversation(t, model.ModeSequential, 0, a)
	f.sendUserMessage(t, conv.ID, "hello", 10)

	err := f.orch.InvokeAgent(ctx, conv.ID, a.ID, "u1")
	assert.True(t, apperr.IsCode(err, apperr.CodeBackendError))

	history, hErr := f.store.ListHistory(ctx, conv.ID, "u1", 0)
	require.NoError(t, hErr)
	require.Len(t, history, 2)
	assert.Equal(t, model.MessageError, history[1].Type)
}

func TestToolCallsSingleRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bridge.defs = []model.ToolDefinition{{Name: "web_search", Description: "search"}}
	f.client.reply = func(req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{
			Model: req.Model,
			ToolCalls: []model.ToolCallRequest{
				{Name: "web_search", Args: map[string]any{"query": "churn"}},
			},
			TokensUsed: 40,
		}, nil
	}

	alice := f.insertAgent(t, "Alice", "model-a", "web_search")
	conv := f.newConversation(t, model.ModeSequential, 0, alice)
	f.sendUserMessage(t, conv.ID, "look this up", 10)

	require.NoError(t, f.orch.InvokeAgent(ctx, conv.ID, alice.ID, "u1"))

	// The tool schema was offered to the backend and the requested call ran.
	calls := f.client.recorded()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Tools, 1)
	assert.Equal(t, "web_search", calls[0].Tools[0].Name)
	require.Len(t, f.bridge.invoked, 1)
	assert.Equal(t, "churn", f.bridge.invoked[0].Args["query"])

	// An all-tools response still yields a visible turn.
	history, err := f.store.ListHistory(ctx, conv.ID, "u1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Tool execution completed", history[1].Content)
	assert.Equal(t, 1, history[1].ToolCalls)
}

func TestTokensChargedToLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.insertAgent(t, "Alice", "model-a")
	conv := f.newConversation(t, model.ModeSequential, 0, alice)
	f.sendUserMessage(t, conv.ID, "hello", 10)

	require.NoError(t, f.orch.InvokeAgent(ctx, conv.ID, alice.ID, "u1"))

	snap, err := f.ledger.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 25, snap.TokensUsedMonthly)

	got, err := f.store.GetConversation(ctx, conv.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 35, got.TotalTokens)
}

func TestPerCallTokenCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.insertAgent(t, "Alice", "model-a")

	// Plenty of budget left: the per-call cap applies.
	conv := f.newConversation(t, model.ModeSequential, 50000, alice)
	f.sendUserMessage(t, conv.ID, "hello", 10)
	require.NoError(t, f.orch.InvokeAgent(ctx, conv.ID, alice.ID, "u1"))

	// Nearly exhausted budget: the remainder is the cap.
	small := f.newConversation(t, model.ModeSequential, 500, alice)
	f.sendUserMessage(t, small.ID, "hello", 200)
	require.NoError(t, f.orch.InvokeAgent(ctx, small.ID, alice.ID, "u1"))

	calls := f.client.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, 1000, calls[0].MaxTokens)
	assert.Equal(t, 300, calls[1].MaxTokens)
}

func TestTriggerRoundLocksConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	release := make(chan struct{})
	f.client.reply = func(req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		<-release
		return &llm.CompletionResponse{Content: "done", Model: req.Model, TokensUsed: 5}, nil
	}

	alice := f.insertAgent(t, "Alice", "model-a")
	conv := f.newConversation(t, model.ModeSequential, 0, alice)
	f.sendUserMessage(t, conv.ID, "hello", 10)

	round, err := f.orch.TriggerRound(ctx, "u1", conv.ID, model.ModeSequential)
	require.NoError(t, err)
	assert.NotEmpty(t, round.ID)

	// While the round is in flight, a second trigger is rejected.
	_, err = f.orch.TriggerRound(ctx, "u1", conv.ID, model.ModeSequential)
	assert.True(t, apperr.IsCode(err, apperr.CodeRoundInProgress))

	close(release)

	// Once the detached round finishes, the lock is released.
	require.Eventually(t, func() bool {
		r, err := f.orch.TriggerRound(ctx, "u1", conv.ID, model.ModeSequential)
		if err != nil {
			return false
		}
		return f.store.FinishRound(ctx, r.ID, conv.ID, nil) == nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestOverrunRoundReleasesLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A round deadline far shorter than the backend's latency, so the
	// detached round always overruns before the agent turn completes.
	orch := New(f.store, f.ledger, f.bridge, map[string]llm.Client{"openai": f.client},
		f.tables, Config{RoundTimeout: 30 * time.Millisecond}, zap.NewNop())
	f.client.reply = func(req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		time.Sleep(200 * time.Millisecond)
		return &llm.CompletionResponse{Content: "late", Model: req.Model, TokensUsed: 5}, nil
	}

	alice := f.insertAgent(t, "Alice", "model-a")
	conv := f.newConversation(t, model.ModeSequential, 0, alice)
	f.sendUserMessage(t, conv.ID, "hello", 10)

	_, err := orch.TriggerRound(ctx, "u1", conv.ID, model.ModeSequential)
	require.NoError(t, err)

	// The expired round context must not wedge the conversation: the lock
	// release runs on its own context, so a fresh trigger succeeds.
	require.Eventually(t, func() bool {
		r, err := orch.TriggerRound(ctx, "u1", conv.ID, model.ModeSequential)
		if err != nil {
			return false
		}
		return f.store.FinishRound(ctx, r.ID, conv.ID, nil) == nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestTableBriefingInInstructions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.insertAgent(t, "Alice", "model-a")
	tbl, err := f.tables.Create(ctx, "u1", &model.CreateTableRequest{
		Name:                "pricing",
		Topic:               "Should we raise prices?",
		DesiredOutcome:      "A go/no-go call",
		ParticipatingAgents: []string{alice.ID},
	})
	require.NoError(t, err)

	f.sendUserMessage(t, tbl.ConversationID, "begin", 10)
	require.NoError(t, f.orch.InvokeAgent(ctx, tbl.ConversationID, alice.ID, "u1"))

	calls := f.client.recorded()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "Topic: Should we raise prices?")
	assert.Contains(t, calls[0].System, "Desired outcome: A go/no-go call")
	assert.Contains(t, calls[0].System, "data_gathering")
	assert.Contains(t, calls[0].System, "gathering relevant data")
}

func TestDebateBriefing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.insertAgent(t, "Alice", "model-a")
	conv := f.newConversation(t, model.ModeDebate, 0, alice)
	f.sendUserMessage(t, conv.ID, "argue", 10)

	require.NoError(t, f.orch.StartCollaboration(ctx, "u1", conv.ID, model.ModeDebate))

	calls := f.client.recorded()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "debate mode")
	assert.Contains(t, calls[0].System, "Challenge opposing viewpoints")
}

func TestParallelRoundIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.reply = func(req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		if req.Model == "bad" {
			return nil, errors.New("boom")
		}
		return &llm.CompletionResponse{Content: "fine", Model: req.Model, TokensUsed: 5}, nil
	}

	good := f.insertAgent(t, "Good", "good")
	bad := f.insertAgent(t, "Bad", "bad")
	conv := f.newConversation(t, model.ModeParallel, 0, good, bad)
	f.sendUserMessage(t, conv.ID, "go", 10)

	err := f.orch.StartCollaboration(ctx, "u1", conv.ID, model.ModeParallel)
	require.Error(t, err)

	// Both turns were recorded: one normal, one error.
	history, hErr := f.store.ListHistory(ctx, conv.ID, "u1", 0)
	require.NoError(t, hErr)
	require.Len(t, history, 3)

	types := map[model.MessageType]int{}
	for _, m := range history[1:] {
		types[m.Type]++
	}
	assert.Equal(t, 1, types[model.MessageNormal])
	assert.Equal(t, 1, types[model.MessageError])
}
