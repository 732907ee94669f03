// Package agent implements the agent directory: ownership-scoped CRUD over
// agent configurations, with tier entitlement checks and role template
// defaults applied at creation.
package agent

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andrewvu270/AgentDeck/internal/apperr"
	"github.com/andrewvu270/AgentDeck/internal/ledger"
	"github.com/andrewvu270/AgentDeck/internal/model"
	"github.com/andrewvu270/AgentDeck/internal/store"
)

// Directory manages agent configurations. Creation and deletion mutate the
// usage ledger's agent counter, so they are the only paths feature code may
// use to add or remove agents.
type Directory struct {
	store  *store.Store
	ledger *ledger.Ledger
	log    *zap.Logger
}

// NewDirectory creates an agent directory.
func NewDirectory(st *store.Store, lg *ledger.Ledger, log *zap.Logger) *Directory {
	return &Directory{store: st, ledger: lg, log: log}
}

// Get returns an owned agent, NotFound otherwise.
func (d *Directory) Get(ctx context.Context, agentID, userID string) (*model.Agent, error) {
	return d.store.GetAgent(ctx, agentID, userID)
}

// List returns the user's agents in creation order.
func (d *Directory) List(ctx context.Context, userID string) ([]model.Agent, error) {
	return d.store.ListAgents(ctx, userID)
}

// Create validates tier entitlements, applies role template defaults, and
// atomically claims an agent slot before inserting. The slot is released
// again if the insert fails.
func (d *Directory) Create(ctx context.Context, userID string, req *model.CreateAgentRequest) (*model.Agent, error) {
	if req.Name == "" {
		return nil, apperr.Validation("agent name is required")
	}
	if req.Provider == "" {
		return nil, apperr.Validation("agent provider is required")
	}

	if req.RoleType != "" {
		ok, err := d.ledger.HasRoleAccess(ctx, userID, req.RoleType)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.New(http.StatusForbidden, apperr.CodeRoleNotAvailable,
				"the "+req.RoleType+" role is not available in your current plan")
		}
	}

	if req.IsAdvisor {
		level, err := d.ledger.AdvisorLevel(ctx, userID)
		if err != nil {
			return nil, err
		}
		if level == model.AdvisorNone {
			return nil, apperr.New(http.StatusForbidden, apperr.CodeAdvisorNotAvailable,
				"advisor agents are not available in your current plan")
		}
	}

	applyRoleDefaults(req)

	if err := d.ledger.Acquire(ctx, userID, model.ResourceAgents); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	a := &model.Agent{
		ID:                   uuid.Must(uuid.NewV7()).String(),
		UserID:               userID,
		Name:                 req.Name,
		Description:          req.Description,
		Model:                req.Model,
		Provider:             req.Provider,
		SystemPrompt:         req.SystemPrompt,
		Tools:                req.Tools,
		RoleType:             req.RoleType,
		RoleResponsibilities: req.RoleResponsibilities,
		EventSubscriptions:   req.EventSubscriptions,
		IsAdvisor:            req.IsAdvisor,
		Status:               model.AgentOnline,
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := d.store.InsertAgent(ctx, a); err != nil {
		if relErr := d.ledger.Release(ctx, userID, model.ResourceAgents); relErr != nil {
			d.log.Error("failed to release agent slot after insert failure",
				zap.String("user_id", userID), zap.Error(relErr))
		}
		return nil, err
	}

	d.log.Info("agent created",
		zap.String("agent_id", a.ID),
		zap.String("user_id", userID),
		zap.String("provider", a.Provider),
		zap.String("role_type", a.RoleType),
	)
	return a, nil
}

// Update patches an owned agent's configuration.
func (d *Directory) Update(ctx context.Context, agentID, userID string, req *model.UpdateAgentRequest) (*model.Agent, error) {
	if req.RoleType != "" {
		ok, err := d.ledger.HasRoleAccess(ctx, userID, req.RoleType)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.New(http.StatusForbidden, apperr.CodeRoleNotAvailable,
				"the "+req.RoleType+" role is not available in your current plan")
		}
	}
	return d.store.UpdateAgent(ctx, agentID, userID, req)
}

// SetStatus updates an agent's presence state.
func (d *Directory) SetStatus(ctx context.Context, agentID, userID string, status model.AgentStatus) error {
	return d.store.SetAgentStatus(ctx, agentID, userID, status)
}

// Delete removes an owned agent and releases its ledger slot.
func (d *Directory) Delete(ctx context.Context, agentID, userID string) error {
	if err := d.store.DeleteAgent(ctx, agentID, userID); err != nil {
		return err
	}
	if err := d.ledger.Release(ctx, userID, model.ResourceAgents); err != nil {
		d.log.Error("failed to release agent slot after delete",
			zap.String("agent_id", agentID), zap.Error(err))
	}
	return nil
}

// RoleTemplates returns the built-in role catalog.
func (d *Directory) RoleTemplates() []model.RoleTemplate {
	return roleTemplates
}
