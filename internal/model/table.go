package model

import (
	"time"
)

// CollaborationPhase is one step of the table phase machine. Phases are
// strictly ordered; a table only ever moves forward one step at a time.
type CollaborationPhase string

const (
	PhaseDataGathering  CollaborationPhase = "data_gathering"
	PhaseAnalysis       CollaborationPhase = "analysis"
	PhaseDebate         CollaborationPhase = "debate"
	PhaseRecommendation CollaborationPhase = "recommendation"
)

// PhaseOrder is the fixed forward sequence of collaboration phases.
var PhaseOrder = []CollaborationPhase{
	PhaseDataGathering,
	PhaseAnalysis,
	PhaseDebate,
	PhaseRecommendation,
}

// PhaseIndex returns the position of p in PhaseOrder, or -1 if unknown.
func PhaseIndex(p CollaborationPhase) int {
	for i, phase := range PhaseOrder {
		if phase == p {
			return i
		}
	}
	return -1
}

// TableStatus is the lifecycle state of a collaboration table.
type TableStatus string

const (
	TableActive    TableStatus = "active"
	TablePaused    TableStatus = "paused"
	TableCompleted TableStatus = "completed"
	TableCancelled TableStatus = "cancelled"
)

// TableOutput is the structured end-of-session bundle. Updates are partial
// merges: only provided fields overwrite stored values.
type TableOutput struct {
	Summary            string   `json:"summary,omitempty"`
	Recommendations    []string `json:"recommendations,omitempty"`
	ActionItems        []string `json:"action_items,omitempty"`
	DissentingOpinions []string `json:"dissenting_opinions,omitempty"`
}

// CollaborationTable is a structured, phase-gated session wrapping one
// conversation.
type CollaborationTable struct {
	ID                  string             `json:"id"`
	UserID              string             `json:"user_id"`
	Name                string             `json:"name"`
	Topic               string             `json:"topic"`
	DesiredOutcome      string             `json:"desired_outcome"`
	ParticipatingAgents []string           `json:"participating_agents"`
	CurrentPhase        CollaborationPhase `json:"current_phase"`
	TokenBudget         int                `json:"token_budget"`
	TimeLimitMinutes    int                `json:"time_limit_minutes,omitempty"`
	Status              TableStatus        `json:"status"`
	ConversationID      string             `json:"conversation_id"`
	Output              TableOutput        `json:"output"`
	CreatedAt           time.Time          `json:"created_at"`
	CompletedAt         *time.Time         `json:"completed_at,omitempty"`
}

// CreateTableRequest is the request to create a collaboration table.
type CreateTableRequest struct {
	Name                string   `json:"name"`
	Topic               string   `json:"topic"`
	DesiredOutcome      string   `json:"desired_outcome"`
	ParticipatingAgents []string `json:"participating_agents"`
	TokenBudget         int      `json:"token_budget,omitempty"`
	TimeLimitMinutes    int      `json:"time_limit_minutes,omitempty"`
}

// UpdateTableOutputRequest carries a partial output merge. Pointer fields
// distinguish "leave untouched" from "overwrite with empty".
type UpdateTableOutputRequest struct {
	Summary            *string   `json:"summary,omitempty"`
	Recommendations    *[]string `json:"recommendations,omitempty"`
	ActionItems        *[]string `json:"action_items,omitempty"`
	DissentingOpinions *[]string `json:"dissenting_opinions,omitempty"`
}
