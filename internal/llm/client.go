// Package llm provides LLM backend adapters behind a common interface.
package llm

import (
	"context"

	"github.com/andrewvu270/AgentDeck/internal/model"
)

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	Tools       []model.ToolDefinition
	MaxTokens   int
	Temperature float64
}

// ChatMessage represents a chat message for the backend.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a completion response. TokensUsed is the
// provider-reported total (input + output); when a provider does not report
// usage a conservative estimate is substituted so budget accounting never
// sees zero for a non-empty response.
type CompletionResponse struct {
	Content    string
	Model      string
	ToolCalls  []model.ToolCallRequest
	TokensUsed int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response. A
	// provider-side failure is returned as an error, never as silently
	// empty content.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// estimateTokens is the fallback when a provider reports no usage: roughly
// four characters per token.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}
