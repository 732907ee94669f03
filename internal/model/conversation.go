// Package model defines data structures for the agent collaboration platform.
package model

import (
	"time"
)

// CollaborationMode is the turn-taking protocol for a conversation.
type CollaborationMode string

const (
	ModeSequential CollaborationMode = "sequential"
	ModeParallel   CollaborationMode = "parallel"
	ModeDebate     CollaborationMode = "debate"
	ModeBrainstorm CollaborationMode = "brainstorm"
	ModeReview     CollaborationMode = "review"
)

// Valid reports whether m is a known collaboration mode.
func (m CollaborationMode) Valid() bool {
	switch m {
	case ModeSequential, ModeParallel, ModeDebate, ModeBrainstorm, ModeReview:
		return true
	}
	return false
}

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "active"
	ConversationPaused    ConversationStatus = "paused"
	ConversationCompleted ConversationStatus = "completed"
	ConversationArchived  ConversationStatus = "archived"
)

// Conversation is one multi-agent collaboration session.
type Conversation struct {
	ID                  string             `json:"id"`
	UserID              string             `json:"user_id"`
	Name                string             `json:"name,omitempty"`
	Mode                CollaborationMode  `json:"mode"`
	MaxRounds           int                `json:"max_rounds"`
	TokenBudget         int                `json:"token_budget"`
	ParticipatingAgents []string           `json:"participating_agents"`
	TotalTokens         int                `json:"total_tokens"`
	TotalCost           float64            `json:"total_cost"`
	MessageCount        int                `json:"message_count"`
	ToolCallCount       int                `json:"tool_call_count"`
	Status              ConversationStatus `json:"status"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
	ArchivedAt          *time.Time         `json:"archived_at,omitempty"`
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	Name                string            `json:"name,omitempty"`
	Mode                CollaborationMode `json:"mode"`
	MaxRounds           int               `json:"max_rounds,omitempty"`
	TokenBudget         int               `json:"token_budget,omitempty"`
	ParticipatingAgents []string          `json:"participating_agents"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}

// ConversationExport bundles a conversation with its full transcript.
// Replaying Messages in order reproduces the transcript exactly.
type ConversationExport struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
	ExportedAt   time.Time    `json:"exported_at"`
}

// RoundStatus is the lifecycle state of one orchestration round.
type RoundStatus string

const (
	RoundRunning   RoundStatus = "running"
	RoundCompleted RoundStatus = "completed"
	RoundFailed    RoundStatus = "failed"
)

// Round is the durable audit record for one orchestration pass. A round is
// created when the pass starts, so a crashed pass is observable as a stale
// running row rather than silently lost.
type Round struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Mode           CollaborationMode `json:"mode"`
	Status         RoundStatus       `json:"status"`
	Error          string            `json:"error,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     *time.Time        `json:"finished_at,omitempty"`
}
