package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andrewvu270/AgentDeck/internal/apperr"
	"github.com/andrewvu270/AgentDeck/internal/model"
)

const tableCols = `id, user_id, name, topic, desired_outcome,
	participating_agents, current_phase, token_budget, time_limit_minutes,
	status, conversation_id, output, created_at, completed_at`

// InsertTable persists a new collaboration table.
func (s *Store) InsertTable(ctx context.Context, t *model.CollaborationTable) error {
	agents, err := json.Marshal(t.ParticipatingAgents)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	output, err := json.Marshal(t.Output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO collaboration_tables (`+tableCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		t.ID, t.UserID, t.Name, t.Topic, t.DesiredOutcome, string(agents),
		string(t.CurrentPhase), t.TokenBudget, t.TimeLimitMinutes,
		string(t.Status), t.ConversationID, string(output),
		fmtTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert table: %w", err)
	}
	return nil
}

// GetTable retrieves an owned collaboration table.
func (s *Store) GetTable(ctx context.Context, tableID, userID string) (*model.CollaborationTable, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tableCols+` FROM collaboration_tables WHERE id = ? AND user_id = ?`,
		tableID, userID)
	t, err := scanTable(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("collaboration table")
		}
		return nil, fmt.Errorf("get table: %w", err)
	}
	return t, nil
}

// GetTableByConversation finds the table wrapping a conversation, if any.
// A plain conversation with no table returns NotFound.
func (s *Store) GetTableByConversation(ctx context.Context, conversationID, userID string) (*model.CollaborationTable, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tableCols+` FROM collaboration_tables WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID)
	t, err := scanTable(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("collaboration table")
		}
		return nil, fmt.Errorf("get table by conversation: %w", err)
	}
	return t, nil
}

// ListTables returns the user's tables, newest first, optionally filtered by
// status.
func (s *Store) ListTables(ctx context.Context, userID string, status model.TableStatus) ([]model.CollaborationTable, error) {
	q := `SELECT ` + tableCols + ` FROM collaboration_tables WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []model.CollaborationTable
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, *t)
	}
	return tables, rows.Err()
}

// SetTablePhase moves an owned table to a new phase.
func (s *Store) SetTablePhase(ctx context.Context, tableID, userID string, phase model.CollaborationPhase) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE collaboration_tables SET current_phase = ? WHERE id = ? AND user_id = ?`,
		string(phase), tableID, userID)
	if err != nil {
		return fmt.Errorf("set table phase: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("collaboration table")
	}
	return nil
}

// SetTableStatus updates an owned table's lifecycle state, stamping
// completed_at for terminal states.
func (s *Store) SetTableStatus(ctx context.Context, tableID, userID string, status model.TableStatus) error {
	var completedAt any
	if status == model.TableCompleted || status == model.TableCancelled {
		completedAt = fmtTime(time.Now().UTC())
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE collaboration_tables SET status = ?, completed_at = ? WHERE id = ? AND user_id = ?`,
		string(status), completedAt, tableID, userID)
	if err != nil {
		return fmt.Errorf("set table status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("collaboration table")
	}
	return nil
}

// SetTableOutput replaces the stored output bundle. Merging partial updates
// into the current bundle is the caller's job; this writes the merged value.
func (s *Store) SetTableOutput(ctx context.Context, tableID, userID string, output model.TableOutput) error {
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE collaboration_tables SET output = ? WHERE id = ? AND user_id = ?`,
		string(data), tableID, userID)
	if err != nil {
		return fmt.Errorf("set table output: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("collaboration table")
	}
	return nil
}

func scanTable(row rowScanner) (*model.CollaborationTable, error) {
	var (
		t           model.CollaborationTable
		agents      string
		phase       string
		status      string
		output      string
		createdAt   string
		completedAt sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Topic, &t.DesiredOutcome,
		&agents, &phase, &t.TokenBudget, &t.TimeLimitMinutes, &status,
		&t.ConversationID, &output, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(agents), &t.ParticipatingAgents); err != nil {
		return nil, fmt.Errorf("unmarshal participants: %w", err)
	}
	if err := json.Unmarshal([]byte(output), &t.Output); err != nil {
		return nil, fmt.Errorf("unmarshal output: %w", err)
	}
	t.CurrentPhase = model.CollaborationPhase(phase)
	t.Status = model.TableStatus(status)
	t.CreatedAt = parseTime(createdAt)
	if completedAt.Valid {
		ts := parseTime(completedAt.String)
		t.CompletedAt = &ts
	}
	return &t, nil
}
