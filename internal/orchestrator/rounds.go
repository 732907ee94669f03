package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/andrewvu270/AgentDeck/internal/model"
	"github.com/andrewvu270/AgentDeck/pkg/metrics"
)

// defaultRoundTimeout bounds a detached round so an unresponsive backend
// cannot hold the conversation's round lock forever.
const defaultRoundTimeout = 5 * time.Minute

// finishRoundTimeout bounds the lock release itself.
const finishRoundTimeout = 10 * time.Second

// StartCollaboration runs one orchestration pass over all participants of a
// conversation. Per-agent failures are isolated: one agent's backend error
// never aborts the other agents' turns; all failures are joined into the
// returned error.
func (o *Orchestrator) StartCollaboration(ctx context.Context, userID, conversationID string, mode model.CollaborationMode) error {
	conv, err := o.store.GetConversation(ctx, conversationID, userID)
	if err != nil {
		return err
	}

	var roundErr error
	switch mode {
	case model.ModeParallel:
		// Fan out and join: no participant sees another's turn from this
		// round, and one rejection must not cancel siblings in flight.
		var (
			wg sync.WaitGroup
			mu sync.Mutex
		)
		for _, agentID := range conv.ParticipatingAgents {
			wg.Add(1)
			go func(agentID string) {
				defer wg.Done()
				if err := o.InvokeAgent(ctx, conversationID, agentID, userID); err != nil {
					mu.Lock()
					roundErr = multierr.Append(roundErr, err)
					mu.Unlock()
				}
			}(agentID)
		}
		wg.Wait()

	default:
		// Sequential-family: strictly ordered awaits, so every later agent
		// sees all earlier turns from this round.
		for _, agentID := range conv.ParticipatingAgents {
			if err := o.InvokeAgent(ctx, conversationID, agentID, userID); err != nil {
				roundErr = multierr.Append(roundErr, err)
			}
		}
	}

	status := "success"
	if roundErr != nil {
		status = "error"
	}
	metrics.RoundsTotal.WithLabelValues(string(mode), status).Inc()
	return roundErr
}

// TriggerRound starts an orchestration round asynchronously and returns its
// audit record immediately. The round lock is taken before the goroutine is
// launched, so a second trigger on the same conversation fails with
// ROUND_IN_PROGRESS instead of interleaving turns.
func (o *Orchestrator) TriggerRound(ctx context.Context, userID, conversationID string, mode model.CollaborationMode) (*model.Round, error) {
	round, err := o.store.BeginRound(ctx, conversationID, userID, mode)
	if err != nil {
		return nil, err
	}

	go func() {
		// Detached from the request context: the round outlives the HTTP
		// request that triggered it.
		runCtx, cancel := context.WithTimeout(context.Background(), o.roundTimeout)
		defer cancel()

		runErr := o.StartCollaboration(runCtx, userID, conversationID, mode)
		if runErr != nil {
			o.log.Error("collaboration round failed",
				zap.String("conversation_id", conversationID),
				zap.String("round_id", round.ID),
				zap.Error(runErr),
			)
		}

		// The lock release never shares the round's deadline: a round that
		// overran must still give the conversation back.
		finishCtx, cancelFinish := context.WithTimeout(context.Background(), finishRoundTimeout)
		defer cancelFinish()
		if err := o.store.FinishRound(finishCtx, round.ID, conversationID, runErr); err != nil {
			o.log.Error("failed to finish round",
				zap.String("round_id", round.ID), zap.Error(err))
		}
	}()

	return round, nil
}

// modeBriefing is the collaboration briefing appended to every agent's
// instructions in multi-agent modes.
func modeBriefing(mode model.CollaborationMode) string {
	briefing := "\n\nYou are part of a multi-agent conversation. Other agents will also respond to the user's messages." +
		"\nYou should read and respond to what other agents say, not just the user." +
		"\nEngage in dialogue with other agents - agree, disagree, build on their ideas, or ask them questions."

	switch mode {
	case model.ModeDebate:
		briefing += "\n\nYou are in debate mode. Challenge opposing viewpoints from other agents constructively."
	case model.ModeBrainstorm:
		briefing += "\n\nYou are in brainstorm mode. Build on other agents' ideas creatively."
	case model.ModeSequential:
		briefing += "\n\nYou are in sequential mode. Respond to both the user and previous agents' messages."
	}
	return briefing
}
