package tool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andrewvu270/AgentDeck/internal/model"
)

type memRecorder struct {
	mu          sync.Mutex
	invocations []*model.ToolInvocation
	err         error
}

func (r *memRecorder) RecordToolInvocation(_ context.Context, inv *model.ToolInvocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.invocations = append(r.invocations, inv)
	return nil
}

func (r *memRecorder) all() []*model.ToolInvocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.ToolInvocation(nil), r.invocations...)
}

func TestInvokeSuccess(t *testing.T) {
	rec := &memRecorder{}
	b := NewBridge(rec, 0, zap.NewNop())
	b.RegisterFunc(model.ToolDefinition{Name: "echo"}, func(_ context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	})

	result := b.Invoke(context.Background(), "agent-1", model.ToolCallRequest{
		Name: "echo",
		Args: map[string]any{"text": "hello"},
	})

	assert.True(t, result.OK)
	assert.Equal(t, "hello", result.Data)
	assert.Empty(t, result.Error)

	invs := rec.all()
	require.Len(t, invs, 1)
	assert.Equal(t, "echo", invs[0].ToolName)
	assert.Equal(t, "agent-1", invs[0].AgentID)
	assert.True(t, invs[0].Result.OK)
}

func TestInvokeUnknownTool(t *testing.T) {
	rec := &memRecorder{}
	b := NewBridge(rec, 0, zap.NewNop())

	result := b.Invoke(context.Background(), "agent-1", model.ToolCallRequest{Name: "nope"})

	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "unknown tool")

	// The failed call is still audited.
	invs := rec.all()
	require.Len(t, invs, 1)
	assert.False(t, invs[0].Result.OK)
}

func TestInvokeHandlerError(t *testing.T) {
	b := NewBridge(nil, 0, zap.NewNop())
	b.RegisterFunc(model.ToolDefinition{Name: "broken"}, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("upstream unavailable")
	})

	result := b.Invoke(context.Background(), "agent-1", model.ToolCallRequest{Name: "broken"})

	assert.False(t, result.OK)
	assert.Equal(t, "upstream unavailable", result.Error)
}

func TestInvokeTimeout(t *testing.T) {
	b := NewBridge(nil, 0, zap.NewNop())
	b.RegisterFunc(model.ToolDefinition{Name: "slow", TimeoutMs: 20}, func(ctx context.Context, _ map[string]any) (any, error) {
		select {
		case <-time.After(time.Second):
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	result := b.Invoke(context.Background(), "agent-1", model.ToolCallRequest{Name: "slow"})

	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "timed out")
}

func TestDefinitionsSkipUnregistered(t *testing.T) {
	b := NewBridge(nil, 0, zap.NewNop())
	b.Register(model.ToolDefinition{Name: "web_search", Description: "search"}, &WebSearchHandler{})

	defs := b.Definitions([]string{"web_search", "crm_lookup"})
	require.Len(t, defs, 1)
	assert.Equal(t, "web_search", defs[0].Name)

	assert.Empty(t, b.Definitions(nil))
}

func TestRegisterReplaces(t *testing.T) {
	b := NewBridge(nil, 0, zap.NewNop())
	b.RegisterFunc(model.ToolDefinition{Name: "t"}, func(context.Context, map[string]any) (any, error) {
		return "old", nil
	})
	b.RegisterFunc(model.ToolDefinition{Name: "t"}, func(context.Context, map[string]any) (any, error) {
		return "new", nil
	})

	result := b.Invoke(context.Background(), "agent-1", model.ToolCallRequest{Name: "t"})
	assert.Equal(t, "new", result.Data)
}

func TestInvokeSurvivesRecorderFailure(t *testing.T) {
	rec := &memRecorder{err: errors.New("db closed")}
	b := NewBridge(rec, 0, zap.NewNop())
	b.RegisterFunc(model.ToolDefinition{Name: "echo"}, func(_ context.Context, args map[string]any) (any, error) {
		return "ok", nil
	})

	result := b.Invoke(context.Background(), "agent-1", model.ToolCallRequest{Name: "echo"})
	assert.True(t, result.OK)
}

func TestWebSearchHandler(t *testing.T) {
	h := &WebSearchHandler{}

	data, err := h.Execute(context.Background(), map[string]any{"query": "churn benchmarks"})
	require.NoError(t, err)

	m, ok := data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "churn benchmarks", m["query"])
}
