package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedClient struct {
	reply func() (*CompletionResponse, error)
	calls int
}

func (c *scriptedClient) Complete(context.Context, *CompletionRequest) (*CompletionResponse, error) {
	c.calls++
	return c.reply()
}

func (c *scriptedClient) Name() string     { return "scripted" }
func (c *scriptedClient) Models() []string { return nil }

func TestBreakerPassesThroughSuccess(t *testing.T) {
	inner := &scriptedClient{reply: func() (*CompletionResponse, error) {
		return &CompletionResponse{Content: "ok", TokensUsed: 3}, nil
	}}
	bc := NewBreakerClient(inner, BreakerConfig{}, zap.NewNop())

	resp, err := bc.Complete(context.Background(), &CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, gobreaker.StateClosed, bc.State())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &scriptedClient{reply: func() (*CompletionResponse, error) {
		return nil, errors.New("upstream down")
	}}
	bc := NewBreakerClient(inner, BreakerConfig{MaxFailures: 3}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := bc.Complete(ctx, &CompletionRequest{})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, bc.State())

	// Calls now fail fast without touching the provider.
	before := inner.calls
	_, err := bc.Complete(ctx, &CompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, before, inner.calls)
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	fail := true
	inner := &scriptedClient{reply: func() (*CompletionResponse, error) {
		if fail {
			return nil, errors.New("flaky")
		}
		return &CompletionResponse{Content: "ok"}, nil
	}}
	bc := NewBreakerClient(inner, BreakerConfig{MaxFailures: 3}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := bc.Complete(ctx, &CompletionRequest{})
		require.Error(t, err)
	}

	fail = false
	_, err := bc.Complete(ctx, &CompletionRequest{})
	require.NoError(t, err)

	fail = true
	for i := 0; i < 2; i++ {
		_, err := bc.Complete(ctx, &CompletionRequest{})
		require.Error(t, err)
	}
	// Two failures after a success: the streak restarted, still closed.
	assert.Equal(t, gobreaker.StateClosed, bc.State())
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("hi"))
	assert.Equal(t, 25, estimateTokens(string(make([]byte, 100))))
}
