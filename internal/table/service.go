// Package table implements the collaboration table phase machine: a
// structured session that walks data_gathering, analysis, debate and
// recommendation phases over a backing conversation.
package table

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andrewvu270/AgentDeck/internal/apperr"
	"github.com/andrewvu270/AgentDeck/internal/ledger"
	"github.com/andrewvu270/AgentDeck/internal/model"
	"github.com/andrewvu270/AgentDeck/internal/store"
)

const defaultTableBudget = 10000

// Service manages collaboration tables. Creation claims an active-table
// ledger slot; completion and cancellation release it.
type Service struct {
	store  *store.Store
	ledger *ledger.Ledger
	log    *zap.Logger
}

// NewService creates a table service.
func NewService(st *store.Store, lg *ledger.Ledger, log *zap.Logger) *Service {
	return &Service{store: st, ledger: lg, log: log}
}

// Create claims a table slot, creates the backing sequential conversation
// (one round per phase), and persists the table in its initial phase.
func (s *Service) Create(ctx context.Context, userID string, req *model.CreateTableRequest) (*model.CollaborationTable, error) {
	if req.Name == "" {
		return nil, apperr.Validation("table name is required")
	}
	if req.Topic == "" {
		return nil, apperr.Validation("table topic is required")
	}
	if len(req.ParticipatingAgents) == 0 {
		return nil, apperr.Validation("at least one participating agent is required")
	}

	budget := req.TokenBudget
	if budget <= 0 {
		budget = defaultTableBudget
	}

	if err := s.ledger.Acquire(ctx, userID, model.ResourceTables); err != nil {
		return nil, err
	}

	conv, err := s.store.CreateConversation(ctx, userID, &model.CreateConversationRequest{
		Name:                "Table: " + req.Name,
		Mode:                model.ModeSequential,
		MaxRounds:           len(model.PhaseOrder), // one round per phase
		TokenBudget:         budget,
		ParticipatingAgents: req.ParticipatingAgents,
	})
	if err != nil {
		s.releaseSlot(ctx, userID)
		return nil, err
	}

	t := &model.CollaborationTable{
		ID:                  uuid.Must(uuid.NewV7()).String(),
		UserID:              userID,
		Name:                req.Name,
		Topic:               req.Topic,
		DesiredOutcome:      req.DesiredOutcome,
		ParticipatingAgents: req.ParticipatingAgents,
		CurrentPhase:        model.PhaseDataGathering,
		TokenBudget:         budget,
		TimeLimitMinutes:    req.TimeLimitMinutes,
		Status:              model.TableActive,
		ConversationID:      conv.ID,
		CreatedAt:           time.Now().UTC(),
	}
	if err := s.store.InsertTable(ctx, t); err != nil {
		s.releaseSlot(ctx, userID)
		return nil, err
	}

	s.log.Info("collaboration table created",
		zap.String("table_id", t.ID),
		zap.String("user_id", userID),
		zap.String("conversation_id", conv.ID),
		zap.Int("participants", len(t.ParticipatingAgents)),
	)
	return t, nil
}

// Get returns an owned table.
func (s *Service) Get(ctx context.Context, tableID, userID string) (*model.CollaborationTable, error) {
	return s.store.GetTable(ctx, tableID, userID)
}

// GetByConversation returns the table wrapping a conversation, if any.
func (s *Service) GetByConversation(ctx context.Context, conversationID, userID string) (*model.CollaborationTable, error) {
	return s.store.GetTableByConversation(ctx, conversationID, userID)
}

// List returns the user's tables, optionally filtered by status.
func (s *Service) List(ctx context.Context, userID string, status model.TableStatus) ([]model.CollaborationTable, error) {
	return s.store.ListTables(ctx, userID, status)
}

// AdvancePhase moves a table one step forward. Advancing from the last
// phase completes the table instead of erroring.
func (s *Service) AdvancePhase(ctx context.Context, tableID, userID string) (*model.CollaborationTable, error) {
	t, err := s.store.GetTable(ctx, tableID, userID)
	if err != nil {
		return nil, err
	}
	if t.Status != model.TableActive {
		return nil, apperr.Validation("table is not active")
	}

	idx := model.PhaseIndex(t.CurrentPhase)
	if idx < 0 {
		return nil, apperr.Validation("table has an unknown phase: " + string(t.CurrentPhase))
	}
	if idx == len(model.PhaseOrder)-1 {
		return s.Complete(ctx, tableID, userID)
	}

	next := model.PhaseOrder[idx+1]
	if err := s.store.SetTablePhase(ctx, tableID, userID, next); err != nil {
		return nil, err
	}
	t.CurrentPhase = next

	s.log.Info("table phase advanced",
		zap.String("table_id", tableID),
		zap.String("phase", string(next)),
	)
	return t, nil
}

// SetPhase moves a table directly to the given phase. Only the immediate
// next phase is legal; anything else is a PhaseOrderViolation.
func (s *Service) SetPhase(ctx context.Context, tableID, userID string, phase model.CollaborationPhase) (*model.CollaborationTable, error) {
	t, err := s.store.GetTable(ctx, tableID, userID)
	if err != nil {
		return nil, err
	}
	if model.PhaseIndex(phase) != model.PhaseIndex(t.CurrentPhase)+1 {
		return nil, apperr.PhaseOrderViolation(t.CurrentPhase, phase)
	}
	return s.AdvancePhase(ctx, tableID, userID)
}

// Complete marks a table completed and releases its ledger slot.
func (s *Service) Complete(ctx context.Context, tableID, userID string) (*model.CollaborationTable, error) {
	if err := s.store.SetTableStatus(ctx, tableID, userID, model.TableCompleted); err != nil {
		return nil, err
	}
	s.releaseSlot(ctx, userID)

	s.log.Info("collaboration table completed", zap.String("table_id", tableID))
	return s.store.GetTable(ctx, tableID, userID)
}

// Cancel marks a table cancelled and releases its ledger slot.
func (s *Service) Cancel(ctx context.Context, tableID, userID string) (*model.CollaborationTable, error) {
	t, err := s.store.GetTable(ctx, tableID, userID)
	if err != nil {
		return nil, err
	}
	if t.Status == model.TableCompleted || t.Status == model.TableCancelled {
		return nil, apperr.Validation("table is already finished")
	}
	if err := s.store.SetTableStatus(ctx, tableID, userID, model.TableCancelled); err != nil {
		return nil, err
	}
	s.releaseSlot(ctx, userID)
	return s.store.GetTable(ctx, tableID, userID)
}

// UpdateOutput merges the provided fields into the table's output bundle.
// Omitted fields keep their stored values.
func (s *Service) UpdateOutput(ctx context.Context, tableID, userID string, req *model.UpdateTableOutputRequest) (*model.CollaborationTable, error) {
	t, err := s.store.GetTable(ctx, tableID, userID)
	if err != nil {
		return nil, err
	}

	if req.Summary != nil {
		t.Output.Summary = *req.Summary
	}
	if req.Recommendations != nil {
		t.Output.Recommendations = *req.Recommendations
	}
	if req.ActionItems != nil {
		t.Output.ActionItems = *req.ActionItems
	}
	if req.DissentingOpinions != nil {
		t.Output.DissentingOpinions = *req.DissentingOpinions
	}

	if err := s.store.SetTableOutput(ctx, tableID, userID, t.Output); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) releaseSlot(ctx context.Context, userID string) {
	if err := s.ledger.Release(ctx, userID, model.ResourceTables); err != nil {
		s.log.Error("failed to release table slot",
			zap.String("user_id", userID), zap.Error(err))
	}
}

// PhaseInstructions is the briefing prepended to agent context while a table
// sits in the given phase.
func PhaseInstructions(phase model.CollaborationPhase) string {
	switch phase {
	case model.PhaseDataGathering:
		return "Focus on gathering relevant data using your tools. Share what you find with the team."
	case model.PhaseAnalysis:
		return "Analyze the data gathered in the previous phase. Identify patterns, insights, and key findings."
	case model.PhaseDebate:
		return "Discuss different perspectives and approaches. Challenge assumptions and explore alternatives."
	case model.PhaseRecommendation:
		return "Synthesize the discussion into clear recommendations. Provide actionable next steps."
	default:
		return ""
	}
}
