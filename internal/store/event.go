package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/andrewvu270/AgentDeck/internal/apperr"
	"github.com/andrewvu270/AgentDeck/internal/model"
)

// UpsertSubscription creates or reactivates an agent's subscription to an
// event type. The (agent, event type) pair is unique; resubscribing updates
// filters and reactivates. Returns true when a new row was created.
func (s *Store) UpsertSubscription(ctx context.Context, agentID string, eventType model.EventType, filters map[string]any) (*model.EventSubscription, bool, error) {
	data, err := json.Marshal(filters)
	if err != nil {
		return nil, false, fmt.Errorf("marshal filters: %w", err)
	}
	if filters == nil {
		data = []byte("{}")
	}

	sub := &model.EventSubscription{
		ID:        uuid.Must(uuid.NewV7()).String(),
		AgentID:   agentID,
		EventType: eventType,
		Filters:   filters,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO event_subscriptions (id, agent_id, event_type, filters, is_active, created_at)
		 VALUES (?, ?, ?, ?, 1, ?)
		 ON CONFLICT (agent_id, event_type)
		 DO UPDATE SET filters = excluded.filters, is_active = 1`,
		sub.ID, agentID, string(eventType), string(data), fmtTime(sub.CreatedAt))
	if err != nil {
		return nil, false, fmt.Errorf("upsert subscription: %w", err)
	}

	// On conflict the original row keeps its id; read back what is stored.
	var storedID, storedAt string
	err = s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM event_subscriptions WHERE agent_id = ? AND event_type = ?`,
		agentID, string(eventType)).Scan(&storedID, &storedAt)
	if err != nil {
		return nil, false, fmt.Errorf("read subscription: %w", err)
	}
	created := storedID == sub.ID
	sub.ID = storedID
	sub.CreatedAt = parseTime(storedAt)
	return sub, created, nil
}

// SubscriptionExists reports whether the (agent, event type) pair already
// holds a subscription row.
func (s *Store) SubscriptionExists(ctx context.Context, agentID string, eventType model.EventType) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_subscriptions WHERE agent_id = ? AND event_type = ?`,
		agentID, string(eventType)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check subscription: %w", err)
	}
	return n > 0, nil
}

// DeleteSubscription removes an agent's subscription, scoped to the owning
// user through the agents table.
func (s *Store) DeleteSubscription(ctx context.Context, agentID, userID string, eventType model.EventType) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM event_subscriptions
		 WHERE agent_id = ? AND event_type = ?
		 AND agent_id IN (SELECT id FROM agents WHERE user_id = ?)`,
		agentID, string(eventType), userID)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("subscription")
	}
	return nil
}

// ListAgentSubscriptions returns an agent's active subscriptions.
func (s *Store) ListAgentSubscriptions(ctx context.Context, agentID string) ([]model.EventSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, event_type, filters, is_active, created_at
		 FROM event_subscriptions WHERE agent_id = ? AND is_active = 1`,
		agentID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.EventSubscription
	for rows.Next() {
		var (
			sub       model.EventSubscription
			eventType string
			filters   string
			isActive  int
			createdAt string
		)
		if err := rows.Scan(&sub.ID, &sub.AgentID, &eventType, &filters, &isActive, &createdAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		if err := json.Unmarshal([]byte(filters), &sub.Filters); err != nil {
			return nil, fmt.Errorf("unmarshal filters: %w", err)
		}
		sub.EventType = model.EventType(eventType)
		sub.IsActive = isActive != 0
		sub.CreatedAt = parseTime(createdAt)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// SubscribedAgents returns the ids of a user's agents actively subscribed to
// an event type.
func (s *Store) SubscribedAgents(ctx context.Context, userID string, eventType model.EventType) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT es.agent_id
		 FROM event_subscriptions es
		 JOIN agents a ON a.id = es.agent_id
		 WHERE a.user_id = ? AND es.event_type = ? AND es.is_active = 1`,
		userID, string(eventType))
	if err != nil {
		return nil, fmt.Errorf("subscribed agents: %w", err)
	}
	defer rows.Close()

	var agentIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan agent id: %w", err)
		}
		agentIDs = append(agentIDs, id)
	}
	return agentIDs, rows.Err()
}

// InsertBusinessEvent persists an event occurrence and the agents it woke.
func (s *Store) InsertBusinessEvent(ctx context.Context, event *model.BusinessEvent) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	triggered, err := json.Marshal(event.TriggeredAgents)
	if err != nil {
		return fmt.Errorf("marshal triggered agents: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO business_events (id, user_id, event_type, source, data, metadata, triggered_agents, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.UserID, string(event.EventType), event.Source,
		string(data), string(metadata), string(triggered), fmtTime(event.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert business event: %w", err)
	}
	return nil
}

// ListBusinessEvents returns a user's event history, newest first.
func (s *Store) ListBusinessEvents(ctx context.Context, userID string, eventType model.EventType, limit int) ([]model.BusinessEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, user_id, event_type, source, data, metadata, triggered_agents, created_at
		 FROM business_events WHERE user_id = ?`
	args := []any{userID}
	if eventType != "" {
		q += ` AND event_type = ?`
		args = append(args, string(eventType))
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list business events: %w", err)
	}
	defer rows.Close()

	var events []model.BusinessEvent
	for rows.Next() {
		var (
			event     model.BusinessEvent
			eventType string
			data      string
			metadata  string
			triggered string
			createdAt string
		)
		if err := rows.Scan(&event.ID, &event.UserID, &eventType, &event.Source,
			&data, &metadata, &triggered, &createdAt); err != nil {
			return nil, fmt.Errorf("scan business event: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &event.Data); err != nil {
			return nil, fmt.Errorf("unmarshal data: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &event.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		if err := json.Unmarshal([]byte(triggered), &event.TriggeredAgents); err != nil {
			return nil, fmt.Errorf("unmarshal triggered agents: %w", err)
		}
		event.EventType = model.EventType(eventType)
		event.CreatedAt = parseTime(createdAt)
		events = append(events, event)
	}
	return events, rows.Err()
}

// LatestActiveConversationWithAgent finds the user's most recent active
// conversation in which the agent participates. Used to route event wakes.
func (s *Store) LatestActiveConversationWithAgent(ctx context.Context, userID, agentID string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationCols+` FROM conversations
		 WHERE user_id = ? AND status = 'active' AND participating_agents LIKE ?
		 ORDER BY updated_at DESC LIMIT 1`,
		userID, `%"`+agentID+`"%`)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("conversation")
		}
		return nil, fmt.Errorf("latest conversation with agent: %w", err)
	}
	return conv, nil
}
