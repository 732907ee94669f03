package event

import (
	"context"
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
	"github.com/andrewvu270/AgentDeck/internal/model"
	"github.com/andrewvu270/AgentDeck/internal/store"
	"github.com/andrewvu270/AgentDeck/pkg/logger"
)

type memWaker struct {
	mu    sync.Mutex
	calls []wakeCall
	done  chan struct{}
}

type wakeCall struct {
	userID   string
	event    *model.BusinessEvent
	agentIDs []string
}

func newMemWaker() *memWaker {
	return &memWaker{done: make(chan struct{}, 8)}
}

func (w *memWaker) WakeAgents(_ context.Context, userID string, event *model.BusinessEvent, agentIDs []string) {
	w.mu.Lock()
	w.calls = append(w.calls, wakeCall{userID: userID, event: event, agentIDs: agentIDs})
	w.mu.Unlock()
	w.done <- struct{}{}
}

func (w *memWaker) recorded() []wakeCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]wakeCall(nil), w.calls...)
}

func newTestService(t *testing.T) (*Service, *ledger.Ledger, *store.Store, *memWaker) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.EnsureUser(context.Background(), "u1"))

	lg := ledger.New(st.DB(), logger.NewNop())
	waker := newMemWaker()
	return NewService(st, lg, nil, waker, zap.NewNop()), lg, st, waker
}

func insertAgent(t *testing.T, st *store.Store, userID, name string) *model.Agent {
	t.Helper()
	now := time.Now().UTC()
	a := &model.Agent{
		ID:           uuid.Must(uuid.NewV7()).String(),
		UserID:       userID,
		Name:         name,
		Model:        "gpt-4o-mini",
		Provider:     "openai",
		SystemPrompt: "You are " + name + ".",
		Status:       model.AgentOnline,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, st.InsertAgent(context.Background(), a))
	return a
}

func TestSubscribeClaimsHookSlot(t *testing.T) {
	svc, lg, st, _ := newTestService(t)
	ctx := context.Background()

	a := insertAgent(t, st, "u1", "Watcher")

	sub, err := svc.Subscribe(ctx, "u1", a.ID, &model.SubscribeRequest{EventType: model.EventPaymentFailed})
	require.NoError(t, err)
	assert.Equal(t, model.EventPaymentFailed, sub.EventType)
	assert.True(t, sub.IsActive)

	snap, err := lg.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.EventHooksCount)
}

func TestResubscribeDoesNotDoubleCount(t *testing.T) {
	svc, lg, st, _ := newTestService(t)
	ctx := context.Background()

	a := insertAgent(t, st, "u1", "Watcher")

	_, err := svc.Subscribe(ctx, "u1", a.ID, &model.SubscribeRequest{EventType: model.EventChurnRisk})
	require.NoError(t, err)

	// Same pair again, this time with filters: an update, not a new slot.
	sub, err := svc.Subscribe(ctx, "u1", a.ID, &model.SubscribeRequest{
		EventType: model.EventChurnRisk,
		Filters:   map[string]any{"segment": "enterprise"},
	})
	require.NoError(t, err)
	assert.Equal(t, "enterprise", sub.Filters["segment"])

	snap, err := lg.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.EventHooksCount)
}

func TestUnsubscribeReleasesSlot(t *testing.T) {
	svc, lg, st, _ := newTestService(t)
	ctx := context.Background()

	a := insertAgent(t, st, "u1", "Watcher")
	_, err := svc.Subscribe(ctx, "u1", a.ID, &model.SubscribeRequest{EventType: model.EventChurnRisk})
	require.NoError(t, err)

	require.NoError(t, svc.Unsubscribe(ctx, "u1", a.ID, model.EventChurnRisk))

	snap, err := lg.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.EventHooksCount)

	subs, err := svc.Subscriptions(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestUnsubscribeUnknownPair(t *testing.T) {
	svc, _, st, _ := newTestService(t)
	ctx := context.Background()

	a := insertAgent(t, st, "u1", "Watcher")
	err := svc.Unsubscribe(ctx, "u1", a.ID, model.EventInventoryLow)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestSubscribeForeignAgentRejected(t *testing.T) {
	svc, _, st, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureUser(ctx, "u2"))

	a := insertAgent(t, st, "u2", "NotYours")
	_, err := svc.Subscribe(ctx, "u1", a.ID, &model.SubscribeRequest{EventType: model.EventChurnRisk})
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestSubscribeQuota(t *testing.T) {
	svc, _, st, _ := newTestService(t)
	ctx := context.Background()

	// Free tier allows a single event hook.
	a := insertAgent(t, st, "u1", "Watcher")
	_, err := svc.Subscribe(ctx, "u1", a.ID, &model.SubscribeRequest{EventType: model.EventChurnRisk})
	require.NoError(t, err)

	_, err = svc.Subscribe(ctx, "u1", a.ID, &model.SubscribeRequest{EventType: model.EventPaymentFailed})
	assert.True(t, apperr.IsCode(err, apperr.CodeQuotaExceeded))
}

func TestHandleEventWakesSubscribers(t *testing.T) {
	svc, _, st, waker := newTestService(t)
	ctx := context.Background()

	a := insertAgent(t, st, "u1", "Watcher")
	_, err := svc.Subscribe(ctx, "u1", a.ID, &model.SubscribeRequest{EventType: model.EventPaymentFailed})
	require.NoError(t, err)

	event, err := svc.HandleEvent(ctx, "u1", &model.IngestEventRequest{
		EventType: model.EventPaymentFailed,
		Source:    "stripe",
		Data:      map[string]any{"customer_id": "c-42"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, event.TriggeredAgents)

	select {
	case <-waker.done:
	case <-time.After(2 * time.Second):
		t.Fatal("waker was not called")
	}

	calls := waker.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "u1", calls[0].userID)
	assert.Equal(t, []string{a.ID}, calls[0].agentIDs)
	assert.Equal(t, event.ID, calls[0].event.ID)

	// The event is durable regardless of the wake outcome.
	history, err := svc.History(ctx, "u1", "", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, event.ID, history[0].ID)
}

func TestHandleEventWithoutSubscribers(t *testing.T) {
	svc, _, _, waker := newTestService(t)
	ctx := context.Background()

	event, err := svc.HandleEvent(ctx, "u1", &model.IngestEventRequest{
		EventType: model.EventProductUpdated,
		Source:    "api",
	})
	require.NoError(t, err)
	assert.Empty(t, event.TriggeredAgents)

	select {
	case <-waker.done:
		t.Fatal("waker should not run with no subscribers")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHistoryFilterByType(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.HandleEvent(ctx, "u1", &model.IngestEventRequest{EventType: model.EventNewCustomer, Source: "api"})
	require.NoError(t, err)
	_, err = svc.HandleEvent(ctx, "u1", &model.IngestEventRequest{EventType: model.EventChurnRisk, Source: "api"})
	require.NoError(t, err)

	churn, err := svc.History(ctx, "u1", model.EventChurnRisk, 0)
	require.NoError(t, err)
	require.Len(t, churn, 1)
	assert.Equal(t, model.EventChurnRisk, churn[0].EventType)

	all, err := svc.History(ctx, "u1", "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
