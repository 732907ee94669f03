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

const agentCols = `id, user_id, name, description, model, provider,
	system_prompt, tools, role_type, role_responsibilities,
	event_subscriptions, is_advisor, status, version, created_at, updated_at`

// InsertAgent persists a fully-populated agent record.
func (s *Store) InsertAgent(ctx context.Context, a *model.Agent) error {
	tools, err := json.Marshal(a.Tools)
	if err != nil {
		return fmt.Errorf("marshal tools: %w", err)
	}
	subs, err := json.Marshal(a.EventSubscriptions)
	if err != nil {
		return fmt.Errorf("marshal event subscriptions: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (`+agentCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, a.Description, a.Model, a.Provider,
		a.SystemPrompt, string(tools), a.RoleType, a.RoleResponsibilities,
		string(subs), boolToInt(a.IsAdvisor), string(a.Status), a.Version,
		fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent scoped to its owner.
func (s *Store) GetAgent(ctx context.Context, agentID, userID string) (*model.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentCols+` FROM agents WHERE id = ? AND user_id = ?`,
		agentID, userID)
	a, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("agent")
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

// ListAgents returns the user's agents in creation order.
func (s *Store) ListAgents(ctx context.Context, userID string) ([]model.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agentCols+` FROM agents WHERE user_id = ? ORDER BY created_at ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []model.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

// UpdateAgent applies non-empty fields of req to an owned agent and bumps
// its version.
func (s *Store) UpdateAgent(ctx context.Context, agentID, userID string, req *model.UpdateAgentRequest) (*model.Agent, error) {
	a, err := s.GetAgent(ctx, agentID, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != "" {
		a.Name = req.Name
	}
	if req.Description != "" {
		a.Description = req.Description
	}
	if req.Model != "" {
		a.Model = req.Model
	}
	if req.Provider != "" {
		a.Provider = req.Provider
	}
	if req.SystemPrompt != "" {
		a.SystemPrompt = req.SystemPrompt
	}
	if req.Tools != nil {
		a.Tools = req.Tools
	}
	if req.RoleType != "" {
		a.RoleType = req.RoleType
	}
	if req.RoleResponsibilities != "" {
		a.RoleResponsibilities = req.RoleResponsibilities
	}
	a.Version++
	a.UpdatedAt = time.Now().UTC()

	tools, err := json.Marshal(a.Tools)
	if err != nil {
		return nil, fmt.Errorf("marshal tools: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET name = ?, description = ?, model = ?, provider = ?,
			system_prompt = ?, tools = ?, role_type = ?, role_responsibilities = ?,
			version = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		a.Name, a.Description, a.Model, a.Provider, a.SystemPrompt,
		string(tools), a.RoleType, a.RoleResponsibilities, a.Version,
		fmtTime(a.UpdatedAt), agentID, userID)
	if err != nil {
		return nil, fmt.Errorf("update agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.NotFound("agent")
	}
	return a, nil
}

// SetAgentStatus updates the presence state of an owned agent.
func (s *Store) SetAgentStatus(ctx context.Context, agentID, userID string, status model.AgentStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET status = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		string(status), fmtTime(time.Now().UTC()), agentID, userID)
	if err != nil {
		return fmt.Errorf("set agent status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("agent")
	}
	return nil
}

// DeleteAgent removes an owned agent row.
func (s *Store) DeleteAgent(ctx context.Context, agentID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM agents WHERE id = ? AND user_id = ?`, agentID, userID)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("agent")
	}
	return nil
}

func scanAgent(row rowScanner) (*model.Agent, error) {
	var (
		a         model.Agent
		tools     string
		subs      string
		isAdvisor int
		status    string
		createdAt string
		updatedAt string
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Description, &a.Model,
		&a.Provider, &a.SystemPrompt, &tools, &a.RoleType,
		&a.RoleResponsibilities, &subs, &isAdvisor, &status, &a.Version,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tools), &a.Tools); err != nil {
		return nil, fmt.Errorf("unmarshal tools: %w", err)
	}
	if err := json.Unmarshal([]byte(subs), &a.EventSubscriptions); err != nil {
		return nil, fmt.Errorf("unmarshal event subscriptions: %w", err)
	}
	a.IsAdvisor = isAdvisor != 0
	a.Status = model.AgentStatus(status)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
