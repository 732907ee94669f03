package agent

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andrewvu270/AgentDeck/internal/apperr"
	"github.com/andrewvu270/AgentDeck/internal/ledger"
	"github.com/andrewvu270/AgentDeck/internal/model"
	"github.com/andrewvu270/AgentDeck/internal/store"
	"github.com/andrewvu270/AgentDeck/pkg/logger"
)

func newTestDirectory(t *testing.T) (*Directory, *ledger.Ledger) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.EnsureUser(context.Background(), "u1"))

	lg := ledger.New(st.DB(), logger.NewNop())
	return NewDirectory(st, lg, zap.NewNop()), lg
}

func TestCreateAgentAppliesRoleDefaults(t *testing.T) {
	dir, _ := newTestDirectory(t)

	a, err := dir.Create(context.Background(), "u1", &model.CreateAgentRequest{
		Name:     "Sales Bot",
		Model:    "gpt-4o-mini",
		Provider: "openai",
		RoleType: "sales",
	})
	require.NoError(t, err)

	assert.Contains(t, a.SystemPrompt, "sales strategist")
	assert.NotEmpty(t, a.RoleResponsibilities)
	assert.Equal(t, []string{"web_search"}, a.Tools)
	assert.Equal(t, model.AgentOnline, a.Status)
}

func TestCreateAgentExplicitPromptWins(t *testing.T) {
	dir, _ := newTestDirectory(t)

	a, err := dir.Create(context.Background(), "u1", &model.CreateAgentRequest{
		Name:         "Custom Sales Bot",
		Model:        "gpt-4o-mini",
		Provider:     "openai",
		RoleType:     "sales",
		SystemPrompt: "Always answer in haiku.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Always answer in haiku.", a.SystemPrompt)
}

func TestCreateAgentRoleGatedByTier(t *testing.T) {
	dir, _ := newTestDirectory(t)

	// cto is enterprise-only; free tier carries sales and marketing.
	_, err := dir.Create(context.Background(), "u1", &model.CreateAgentRequest{
		Name:     "Tech Bot",
		Model:    "gpt-4o-mini",
		Provider: "openai",
		RoleType: "cto",
	})
	assert.True(t, apperr.IsCode(err, apperr.CodeRoleNotAvailable))
}

func TestCreateAdvisorGatedByTier(t *testing.T) {
	dir, lg := newTestDirectory(t)
	ctx := context.Background()

	_, err := dir.Create(ctx, "u1", &model.CreateAgentRequest{
		Name:      "Advisor",
		Model:     "gpt-4o-mini",
		Provider:  "openai",
		IsAdvisor: true,
	})
	assert.True(t, apperr.IsCode(err, apperr.CodeAdvisorNotAvailable))

	require.NoError(t, lg.UpgradeTier(ctx, "u1", "starter"))

	a, err := dir.Create(ctx, "u1", &model.CreateAgentRequest{
		Name:      "Advisor",
		Model:     "gpt-4o-mini",
		Provider:  "openai",
		IsAdvisor: true,
	})
	require.NoError(t, err)
	assert.True(t, a.IsAdvisor)
}

func TestCreateAgentQuota(t *testing.T) {
	dir, lg := newTestDirectory(t)
	ctx := context.Background()

	// Free tier allows 2 agents.
	for i := 0; i < 2; i++ {
		_, err := dir.Create(ctx, "u1", &model.CreateAgentRequest{
			Name:     "Agent",
			Model:    "gpt-4o-mini",
			Provider: "openai",
		})
		require.NoError(t, err)
	}

	_, err := dir.Create(ctx, "u1", &model.CreateAgentRequest{
		Name:     "One Too Many",
		Model:    "gpt-4o-mini",
		Provider: "openai",
	})
	assert.True(t, apperr.IsCode(err, apperr.CodeQuotaExceeded))

	snap, err := lg.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.AgentsCount)
}

func TestDeleteAgentReleasesSlot(t *testing.T) {
	dir, lg := newTestDirectory(t)
	ctx := context.Background()

	a, err := dir.Create(ctx, "u1", &model.CreateAgentRequest{
		Name:     "Agent",
		Model:    "gpt-4o-mini",
		Provider: "openai",
	})
	require.NoError(t, err)

	require.NoError(t, dir.Delete(ctx, a.ID, "u1"))

	snap, err := lg.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.AgentsCount)

	_, err = dir.Get(ctx, a.ID, "u1")
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestCreateAgentValidation(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	_, err := dir.Create(ctx, "u1", &model.CreateAgentRequest{Provider: "openai"})
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))

	_, err = dir.Create(ctx, "u1", &model.CreateAgentRequest{Name: "n"})
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestUpdateAgentRoleRecheck(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	a, err := dir.Create(ctx, "u1", &model.CreateAgentRequest{
		Name:     "Agent",
		Model:    "gpt-4o-mini",
		Provider: "openai",
		RoleType: "sales",
	})
	require.NoError(t, err)

	_, err = dir.Update(ctx, a.ID, "u1", &model.UpdateAgentRequest{RoleType: "cto"})
	assert.True(t, apperr.IsCode(err, apperr.CodeRoleNotAvailable))

	got, err := dir.Update(ctx, a.ID, "u1", &model.UpdateAgentRequest{RoleType: "marketing"})
	require.NoError(t, err)
	assert.Equal(t, "marketing", got.RoleType)
}

func TestRoleTemplatesCatalog(t *testing.T) {
	dir, _ := newTestDirectory(t)

	templates := dir.RoleTemplates()
	require.Len(t, templates, 8)

	seen := map[string]bool{}
	for _, tpl := range templates {
		assert.NotEmpty(t, tpl.DefaultSystemPrompt, tpl.RoleType)
		seen[tpl.RoleType] = true
	}
	for _, role := range []string{"sales", "marketing", "cx", "data", "strategy", "operations", "product", "cto"} {
		assert.True(t, seen[role], role)
	}
}
