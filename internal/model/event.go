package model

import (
	"time"
)

// EventType categorizes an external business event.
type EventType string

const (
	EventNewCustomer        EventType = "new_customer"
	EventPaymentFailed      EventType = "payment_failed"
	EventChurnRisk          EventType = "churn_risk"
	EventProductUpdated     EventType = "product_updated"
	EventAnalyticsThreshold EventType = "analytics_threshold"
	EventSupportTicket      EventType = "support_ticket"
	EventInventoryLow       EventType = "inventory_low"
)

// EventSubscription is an agent's standing interest in an event category.
type EventSubscription struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id"`
	EventType EventType      `json:"event_type"`
	Filters   map[string]any `json:"filters,omitempty"`
	IsActive  bool           `json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
}

// BusinessEvent records one event occurrence and the agents it woke.
type BusinessEvent struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	EventType       EventType      `json:"event_type"`
	Source          string         `json:"source"`
	Data            map[string]any `json:"data,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	TriggeredAgents []string       `json:"triggered_agents,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// SubscribeRequest is the request to subscribe an agent to an event type.
type SubscribeRequest struct {
	EventType EventType      `json:"event_type"`
	Filters   map[string]any `json:"filters,omitempty"`
}

// IngestEventRequest is the request body for an external event delivery.
type IngestEventRequest struct {
	EventType EventType      `json:"event_type"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
