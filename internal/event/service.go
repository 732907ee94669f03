// Package event implements event hooks: agents subscribe to business event
// categories, and incoming events wake the subscribed agents through the
// orchestrator.
package event

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andrewvu270/AgentDeck/internal/ledger"
	"github.com/andrewvu270/AgentDeck/internal/model"
	"github.com/andrewvu270/AgentDeck/internal/nats"
	"github.com/andrewvu270/AgentDeck/internal/store"
	"github.com/andrewvu270/AgentDeck/pkg/metrics"
)

// wakeTimeout bounds the detached agent-wake pass for one event.
const wakeTimeout = 2 * time.Minute

// Waker triggers agents in response to an event.
type Waker interface {
	WakeAgents(ctx context.Context, userID string, event *model.BusinessEvent, agentIDs []string)
}

// Service manages event subscriptions and routes incoming events. Each
// subscription holds an event-hook ledger slot.
type Service struct {
	store  *store.Store
	ledger *ledger.Ledger
	stream *nats.StreamManager
	waker  Waker
	log    *zap.Logger
}

// NewService creates an event service. stream and waker may be nil; events
// are then recorded without publication or agent wakes.
func NewService(st *store.Store, lg *ledger.Ledger, stream *nats.StreamManager, waker Waker, log *zap.Logger) *Service {
	return &Service{store: st, ledger: lg, stream: stream, waker: waker, log: log}
}

// Subscribe registers an agent's interest in an event type. A fresh
// subscription claims an event-hook slot; resubscribing an existing pair
// only updates filters and does not double-count.
func (s *Service) Subscribe(ctx context.Context, userID, agentID string, req *model.SubscribeRequest) (*model.EventSubscription, error) {
	// Ownership check before any ledger mutation.
	if _, err := s.store.GetAgent(ctx, agentID, userID); err != nil {
		return nil, err
	}

	// A pair that already holds a slot must be able to update its filters
	// even when the user sits at the hook ceiling, so only a genuinely new
	// subscription claims a slot.
	exists, err := s.store.SubscriptionExists(ctx, agentID, req.EventType)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := s.ledger.Acquire(ctx, userID, model.ResourceHooks); err != nil {
			return nil, err
		}
	}

	sub, created, err := s.store.UpsertSubscription(ctx, agentID, req.EventType, req.Filters)
	if err != nil {
		if !exists {
			s.release(ctx, userID)
		}
		return nil, err
	}
	if !exists && !created {
		// Lost a race to a concurrent subscribe for the same pair; the row
		// existed by the time the upsert ran and already holds a slot.
		s.release(ctx, userID)
	}
	return sub, nil
}

// Unsubscribe removes an agent's subscription and releases its slot.
func (s *Service) Unsubscribe(ctx context.Context, userID, agentID string, eventType model.EventType) error {
	if err := s.store.DeleteSubscription(ctx, agentID, userID, eventType); err != nil {
		return err
	}
	s.release(ctx, userID)
	return nil
}

// Subscriptions lists an owned agent's active subscriptions.
func (s *Service) Subscriptions(ctx context.Context, userID, agentID string) ([]model.EventSubscription, error) {
	if _, err := s.store.GetAgent(ctx, agentID, userID); err != nil {
		return nil, err
	}
	return s.store.ListAgentSubscriptions(ctx, agentID)
}

// HandleEvent records an incoming business event, publishes it to the event
// stream, and wakes the subscribed agents asynchronously. Stream and wake
// failures are logged, never surfaced: the durable record is the contract.
func (s *Service) HandleEvent(ctx context.Context, userID string, req *model.IngestEventRequest) (*model.BusinessEvent, error) {
	triggered, err := s.store.SubscribedAgents(ctx, userID, req.EventType)
	if err != nil {
		return nil, err
	}

	event := &model.BusinessEvent{
		ID:              uuid.Must(uuid.NewV7()).String(),
		UserID:          userID,
		EventType:       req.EventType,
		Source:          req.Source,
		Data:            req.Data,
		Metadata:        req.Metadata,
		TriggeredAgents: triggered,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.InsertBusinessEvent(ctx, event); err != nil {
		return nil, err
	}
	metrics.BusinessEventsTotal.WithLabelValues(string(event.EventType)).Inc()

	if s.stream != nil {
		if _, err := s.stream.PublishEvent(ctx, event); err != nil {
			s.log.Error("failed to publish business event",
				zap.String("event_id", event.ID), zap.Error(err))
		}
	}

	if s.waker != nil && len(triggered) > 0 {
		go func() {
			wakeCtx, cancel := context.WithTimeout(context.Background(), wakeTimeout)
			defer cancel()
			s.waker.WakeAgents(wakeCtx, userID, event, triggered)
		}()
	}

	s.log.Info("business event handled",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.EventType)),
		zap.Int("triggered_agents", len(triggered)),
	)
	return event, nil
}

// History returns a user's recorded events, newest first.
func (s *Service) History(ctx context.Context, userID string, eventType model.EventType, limit int) ([]model.BusinessEvent, error) {
	return s.store.ListBusinessEvents(ctx, userID, eventType, limit)
}

func (s *Service) release(ctx context.Context, userID string) {
	if err := s.ledger.Release(ctx, userID, model.ResourceHooks); err != nil {
		s.log.Error("failed to release event hook slot",
			zap.String("user_id", userID), zap.Error(err))
	}
}
