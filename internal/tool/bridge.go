// Package tool implements the tool bridge: a registry of named tools that
// agents may invoke during a turn, with per-tool timeouts and a persisted
// audit trail for every invocation.
package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andrewvu270/AgentDeck/internal/model"
	"github.com/andrewvu270/AgentDeck/pkg/metrics"
)

// Handler executes one tool call. Implementations must honor ctx cancellation.
type Handler interface {
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, args map[string]any) (any, error) {
	return f(ctx, args)
}

// InvocationRecorder persists tool invocation audit records.
type InvocationRecorder interface {
	RecordToolInvocation(ctx context.Context, inv *model.ToolInvocation) error
}

type registeredTool struct {
	def     model.ToolDefinition
	handler Handler
}

// Bridge routes tool calls by name to their registered handlers. Results are
// always returned as a ToolResult; an unknown tool, a timeout, or a handler
// failure produces a failed result rather than an error so a bad tool call
// never aborts the agent turn that requested it.
type Bridge struct {
	mu             sync.RWMutex
	tools          map[string]*registeredTool
	recorder       InvocationRecorder
	log            *zap.Logger
	defaultTimeout time.Duration
}

// NewBridge creates a tool bridge. recorder may be nil, in which case
// invocations are not persisted.
func NewBridge(recorder InvocationRecorder, defaultTimeout time.Duration, log *zap.Logger) *Bridge {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	return &Bridge{
		tools:          make(map[string]*registeredTool),
		recorder:       recorder,
		log:            log,
		defaultTimeout: defaultTimeout,
	}
}

// Register adds a tool under its definition's name, replacing any previous
// registration.
func (b *Bridge) Register(def model.ToolDefinition, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tools[def.Name] = &registeredTool{def: def, handler: h}
}

// RegisterFunc registers a plain function as a custom tool.
func (b *Bridge) RegisterFunc(def model.ToolDefinition, f func(ctx context.Context, args map[string]any) (any, error)) {
	b.Register(def, HandlerFunc(f))
}

// Definitions resolves tool names to their schemas, skipping names with no
// registration. The result is what gets translated into the backend's
// function-calling schema.
func (b *Bridge) Definitions(names []string) []model.ToolDefinition {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var defs []model.ToolDefinition
	for _, name := range names {
		if t, ok := b.tools[name]; ok {
			defs = append(defs, t.def)
		}
	}
	return defs
}

// Invoke executes one tool call on behalf of an agent and records the
// outcome. The per-tool timeout_ms applies when set, otherwise the bridge
// default.
func (b *Bridge) Invoke(ctx context.Context, agentID string, call model.ToolCallRequest) model.ToolResult {
	b.mu.RLock()
	t, ok := b.tools[call.Name]
	b.mu.RUnlock()

	start := time.Now()

	var result model.ToolResult
	if !ok {
		result = model.Failure(fmt.Sprintf("unknown tool: %s", call.Name))
	} else {
		timeout := b.defaultTimeout
		if t.def.TimeoutMs > 0 {
			timeout = time.Duration(t.def.TimeoutMs) * time.Millisecond
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		data, err := t.handler.Execute(callCtx, call.Args)
		cancel()

		switch {
		case err != nil && callCtx.Err() == context.DeadlineExceeded:
			result = model.Failure(fmt.Sprintf("tool %s timed out after %s", call.Name, timeout))
		case err != nil:
			result = model.Failure(err.Error())
		default:
			result = model.Success(data)
		}
	}

	duration := time.Since(start)
	status := "success"
	if !result.OK {
		status = "error"
		b.log.Warn("tool invocation failed",
			zap.String("tool", call.Name),
			zap.String("agent_id", agentID),
			zap.String("error", result.Error),
		)
	}
	metrics.ToolInvocationsTotal.WithLabelValues(call.Name, status).Inc()

	if b.recorder != nil {
		inv := &model.ToolInvocation{
			ID:         uuid.Must(uuid.NewV7()).String(),
			AgentID:    agentID,
			ToolName:   call.Name,
			Args:       call.Args,
			Result:     result,
			DurationMs: duration.Milliseconds(),
			CreatedAt:  time.Now().UTC(),
		}
		if err := b.recorder.RecordToolInvocation(ctx, inv); err != nil {
			b.log.Error("failed to record tool invocation",
				zap.String("tool", call.Name),
				zap.Error(err),
			)
		}
	}

	return result
}
