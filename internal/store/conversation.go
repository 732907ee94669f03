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

const (
	defaultMaxRounds   = 3
	defaultTokenBudget = 10000
)

// CreateConversation inserts a new active conversation.
func (s *Store) CreateConversation(ctx context.Context, userID string, req *model.CreateConversationRequest) (*model.Conversation, error) {
	maxRounds := req.MaxRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}
	budget := req.TokenBudget
	if budget <= 0 {
		budget = defaultTokenBudget
	}

	conv := &model.Conversation{
		ID:                  uuid.Must(uuid.NewV7()).String(),
		UserID:              userID,
		Name:                req.Name,
		Mode:                req.Mode,
		MaxRounds:           maxRounds,
		TokenBudget:         budget,
		ParticipatingAgents: req.ParticipatingAgents,
		Status:              model.ConversationActive,
		CreatedAt:           time.Now().UTC(),
	}
	conv.UpdatedAt = conv.CreatedAt

	agents, err := json.Marshal(conv.ParticipatingAgents)
	if err != nil {
		return nil, fmt.Errorf("marshal participants: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (
			id, user_id, name, mode, max_rounds, token_budget,
			participating_agents, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.UserID, conv.Name, string(conv.Mode), conv.MaxRounds,
		conv.TokenBudget, string(agents), string(conv.Status),
		fmtTime(conv.CreatedAt), fmtTime(conv.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	return conv, nil
}

const conversationCols = `id, user_id, name, mode, max_rounds, token_budget,
	participating_agents, total_tokens, total_cost, message_count,
	tool_call_count, status, created_at, updated_at, archived_at`

// GetConversation retrieves a conversation scoped to its owner. Absent rows
// and rows owned by another user are indistinguishable to the caller.
func (s *Store) GetConversation(ctx context.Context, conversationID, userID string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE id = ? AND user_id = ?`,
		conversationID, userID)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("conversation")
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// ListConversations lists the user's conversations, optionally filtered by
// status, most recently updated first.
func (s *Store) ListConversations(ctx context.Context, userID string, status model.ConversationStatus, limit int) ([]model.Conversation, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT ` + conversationCols + ` FROM conversations WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

// SetStatus updates a conversation's lifecycle state.
func (s *Store) SetStatus(ctx context.Context, conversationID, userID string, status model.ConversationStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		string(status), fmtTime(time.Now()), conversationID, userID)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("conversation")
	}
	return nil
}

// Archive marks a conversation archived and stamps archived_at. Archival is
// terminal: totals are never mutated afterwards.
func (s *Store) Archive(ctx context.Context, conversationID, userID string) error {
	now := fmtTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = 'archived', archived_at = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		now, now, conversationID, userID)
	if err != nil {
		return fmt.Errorf("archive conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("conversation")
	}
	return nil
}

// Reopen returns an archived conversation to active.
func (s *Store) Reopen(ctx context.Context, conversationID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = 'active', archived_at = NULL, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		fmtTime(time.Now()), conversationID, userID)
	if err != nil {
		return fmt.Errorf("reopen conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("conversation")
	}
	return nil
}

// BeginRound acquires the conversation's round lock and inserts the audit
// row for the pass. The lock is a conditional update, so two concurrent
// starts cannot both win; the loser gets RoundInProgress.
func (s *Store) BeginRound(ctx context.Context, conversationID, userID string, mode model.CollaborationMode) (*model.Round, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin round tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET round_active = 1
		 WHERE id = ? AND user_id = ? AND round_active = 0`,
		conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("acquire round lock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either the conversation is missing or a round is in flight;
		// distinguish for the caller.
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM conversations WHERE id = ? AND user_id = ?`,
			conversationID, userID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check conversation: %w", err)
		}
		if exists == 0 {
			return nil, apperr.NotFound("conversation")
		}
		return nil, apperr.RoundInProgress(conversationID)
	}

	round := &model.Round{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Mode:           mode,
		Status:         model.RoundRunning,
		StartedAt:      time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO rounds (id, conversation_id, mode, status, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		round.ID, round.ConversationID, string(round.Mode),
		string(round.Status), fmtTime(round.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("insert round: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit round: %w", err)
	}
	return round, nil
}

// FinishRound releases the round lock and closes the audit row.
func (s *Store) FinishRound(ctx context.Context, roundID, conversationID string, roundErr error) error {
	status := model.RoundCompleted
	msg := ""
	if roundErr != nil {
		status = model.RoundFailed
		msg = roundErr.Error()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("finish round tx: %w", err)
	}
	defer tx.Rollback()

	now := fmtTime(time.Now())
	if _, err := tx.ExecContext(ctx,
		`UPDATE rounds SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), msg, now, roundID); err != nil {
		return fmt.Errorf("close round: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET round_active = 0 WHERE id = ?`,
		conversationID); err != nil {
		return fmt.Errorf("release round lock: %w", err)
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var conv model.Conversation
	var mode, status, agents, created, updated string
	var archived sql.NullString

	err := row.Scan(&conv.ID, &conv.UserID, &conv.Name, &mode, &conv.MaxRounds,
		&conv.TokenBudget, &agents, &conv.TotalTokens, &conv.TotalCost,
		&conv.MessageCount, &conv.ToolCallCount, &status, &created, &updated,
		&archived)
	if err != nil {
		return nil, err
	}

	conv.Mode = model.CollaborationMode(mode)
	conv.Status = model.ConversationStatus(status)
	conv.CreatedAt = parseTime(created)
	conv.UpdatedAt = parseTime(updated)
	conv.ArchivedAt = parseTimePtr(archived)
	if err := json.Unmarshal([]byte(agents), &conv.ParticipatingAgents); err != nil {
		return nil, fmt.Errorf("unmarshal participants: %w", err)
	}
	return &conv, nil
}
