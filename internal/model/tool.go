package model

import (
	"time"
)

// ToolDefinition describes a tool an agent may request, in the shape passed
// to an LLM backend as a function schema.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	TimeoutMs   int            `json:"timeout_ms,omitempty"`
}

// ToolCallRequest is a tool invocation requested by a model response.
type ToolCallRequest struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult is the tagged outcome of one tool invocation: exactly one of
// Data (success) or Error is set.
type ToolResult struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Success wraps data in a successful ToolResult.
func Success(data any) ToolResult {
	return ToolResult{OK: true, Data: data}
}

// Failure wraps an error message in a failed ToolResult.
func Failure(msg string) ToolResult {
	return ToolResult{OK: false, Error: msg}
}

// ToolInvocation is the persisted audit record of one bridge call.
type ToolInvocation struct {
	ID         string         `json:"id"`
	AgentID    string         `json:"agent_id"`
	ToolName   string         `json:"tool_name"`
	Args       map[string]any `json:"args,omitempty"`
	Result     ToolResult     `json:"result"`
	DurationMs int64          `json:"duration_ms"`
	CreatedAt  time.Time      `json:"created_at"`
}
