// Package ledger is the Usage Ledger: per-user tier ceilings and the live
// usage snapshot gating every state-changing action. All counter mutations
// go through Adjust or Acquire; feature code never writes snapshot rows
// directly.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/andrewvu270/AgentDeck/internal/apperr"
	"github.com/andrewvu270/AgentDeck/internal/model"
	"github.com/andrewvu270/AgentDeck/pkg/logger"
	"github.com/andrewvu270/AgentDeck/pkg/metrics"
)

// Ledger enforces tier ceilings against live usage counters.
type Ledger struct {
	db     *sql.DB
	logger *logger.Logger
}

// New creates a Ledger sharing the store's database handle.
func New(db *sql.DB, log *logger.Logger) *Ledger {
	return &Ledger{db: db, logger: log}
}

// counterColumn maps a resource kind to its snapshot column.
func counterColumn(kind model.ResourceKind) (string, error) {
	switch kind {
	case model.ResourceAgents:
		return "agents_count", nil
	case model.ResourceHooks:
		return "event_hooks_count", nil
	case model.ResourceTables:
		return "tables_active", nil
	case model.ResourceTokens:
		return "tokens_used_monthly", nil
	case model.ResourceMemory:
		return "memory_used_bytes", nil
	default:
		return "", fmt.Errorf("unknown resource kind %q", kind)
	}
}

// ceilingColumn maps a resource kind to its tier column.
func ceilingColumn(kind model.ResourceKind) (string, error) {
	switch kind {
	case model.ResourceAgents:
		return "max_agents", nil
	case model.ResourceHooks:
		return "max_event_hooks", nil
	case model.ResourceTables:
		return "max_tables", nil
	case model.ResourceTokens:
		return "token_budget_monthly", nil
	case model.ResourceMemory:
		return "memory_bytes", nil
	default:
		return "", fmt.Errorf("unknown resource kind %q", kind)
	}
}

// CheckAllowed reports whether one more unit of the resource fits under the
// user's tier ceiling. The comparison is current < max for every kind.
func (l *Ledger) CheckAllowed(ctx context.Context, userID string, kind model.ResourceKind) (bool, error) {
	current, max, _, err := l.counterState(ctx, userID, kind)
	if err != nil {
		return false, err
	}
	return current < max, nil
}

// Enforce fails with QuotaExceeded when the resource is at or over its
// ceiling. Callers invoke it before the action and Adjust after.
func (l *Ledger) Enforce(ctx context.Context, userID string, kind model.ResourceKind) error {
	current, max, tierName, err := l.counterState(ctx, userID, kind)
	if err != nil {
		return err
	}
	if current >= max {
		metrics.QuotaDenialsTotal.WithLabelValues(string(kind), tierName).Inc()
		return apperr.QuotaExceeded(kind, current, max, tierName)
	}
	return nil
}

// Adjust applies delta to the resource counter as a single atomic
// read-modify-write. Concurrent callers never lose updates; counters are
// floored at zero so a stray double-decrement cannot drift negative.
func (l *Ledger) Adjust(ctx context.Context, userID string, kind model.ResourceKind, delta int64) error {
	col, err := counterColumn(kind)
	if err != nil {
		return err
	}
	res, err := l.db.ExecContext(ctx,
		`UPDATE user_tier_usage
		 SET `+col+` = MAX(0, `+col+` + ?), updated_at = ?
		 WHERE user_id = ?`,
		delta, fmtTime(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("adjust %s: %w", kind, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("usage snapshot")
	}
	metrics.LedgerAdjustmentsTotal.WithLabelValues(string(kind)).Add(1)
	return nil
}

// Acquire is enforce-and-increment as one conditional update: the counter
// only advances while it is under the ceiling, so a concurrent pair of
// callers racing for the last slot cannot both win.
func (l *Ledger) Acquire(ctx context.Context, userID string, kind model.ResourceKind) error {
	col, err := counterColumn(kind)
	if err != nil {
		return err
	}
	maxCol, err := ceilingColumn(kind)
	if err != nil {
		return err
	}

	res, err := l.db.ExecContext(ctx,
		`UPDATE user_tier_usage
		 SET `+col+` = `+col+` + 1, updated_at = ?
		 WHERE user_id = ?
		   AND `+col+` < (
			SELECT t.`+maxCol+` FROM tiers t
			JOIN users u ON u.tier_id = t.id
			WHERE u.id = user_tier_usage.user_id
		   )`,
		fmtTime(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", kind, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		metrics.LedgerAdjustmentsTotal.WithLabelValues(string(kind)).Add(1)
		return nil
	}

	// Denied: report with the live numbers.
	current, max, tierName, err := l.counterState(ctx, userID, kind)
	if err != nil {
		return err
	}
	metrics.QuotaDenialsTotal.WithLabelValues(string(kind), tierName).Inc()
	return apperr.QuotaExceeded(kind, current, max, tierName)
}

// Release decrements the resource counter.
func (l *Ledger) Release(ctx context.Context, userID string, kind model.ResourceKind) error {
	return l.Adjust(ctx, userID, kind, -1)
}

// ResetMonthly zeroes the monthly token counter and stamps the reset time.
// It is the only operation that decreases tokens_used_monthly outside of
// tier migration.
func (l *Ledger) ResetMonthly(ctx context.Context, userID string) error {
	now := fmtTime(time.Now())
	res, err := l.db.ExecContext(ctx,
		`UPDATE user_tier_usage
		 SET tokens_used_monthly = 0, last_reset_at = ?, updated_at = ?
		 WHERE user_id = ?`,
		now, now, userID)
	if err != nil {
		return fmt.Errorf("reset monthly: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("usage snapshot")
	}
	return nil
}

// ResetAllMonthly resets every user's monthly token counter. Called by the
// scheduled job.
func (l *Ledger) ResetAllMonthly(ctx context.Context) (int64, error) {
	now := fmtTime(time.Now())
	res, err := l.db.ExecContext(ctx,
		`UPDATE user_tier_usage
		 SET tokens_used_monthly = 0, last_reset_at = ?, updated_at = ?`,
		now, now)
	if err != nil {
		return 0, fmt.Errorf("reset all monthly: %w", err)
	}
	n, _ := res.RowsAffected()
	l.logger.Info("monthly usage reset", zap.Int64("users", n))
	return n, nil
}

// counterState reads the live counter, its ceiling and the tier name in one
// query.
func (l *Ledger) counterState(ctx context.Context, userID string, kind model.ResourceKind) (current, max int64, tierName string, err error) {
	col, err := counterColumn(kind)
	if err != nil {
		return 0, 0, "", err
	}
	maxCol, err := ceilingColumn(kind)
	if err != nil {
		return 0, 0, "", err
	}

	err = l.db.QueryRowContext(ctx,
		`SELECT s.`+col+`, t.`+maxCol+`, t.name
		 FROM user_tier_usage s
		 JOIN users u ON u.id = s.user_id
		 JOIN tiers t ON t.id = u.tier_id
		 WHERE s.user_id = ?`, userID).Scan(&current, &max, &tierName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, "", apperr.NotFound("usage snapshot")
		}
		return 0, 0, "", fmt.Errorf("read counter state: %w", err)
	}
	return current, max, tierName, nil
}

// Snapshot returns the user's live usage counters.
func (l *Ledger) Snapshot(ctx context.Context, userID string) (*model.UsageSnapshot, error) {
	var snap model.UsageSnapshot
	var lastReset, updated string
	err := l.db.QueryRowContext(ctx,
		`SELECT user_id, agents_count, event_hooks_count, tables_active,
			memory_used_bytes, tokens_used_monthly, last_reset_at, updated_at
		 FROM user_tier_usage WHERE user_id = ?`, userID).
		Scan(&snap.UserID, &snap.AgentsCount, &snap.EventHooksCount,
			&snap.TablesActive, &snap.MemoryUsedBytes, &snap.TokensUsedMonthly,
			&lastReset, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("usage snapshot")
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	snap.LastResetAt = parseTime(lastReset)
	snap.UpdatedAt = parseTime(updated)
	return &snap, nil
}

// Tier returns the user's current tier definition.
func (l *Ledger) Tier(ctx context.Context, userID string) (*model.Tier, error) {
	var t model.Tier
	var roles, advisor, created string
	err := l.db.QueryRowContext(ctx,
		`SELECT t.id, t.name, t.display_name, t.max_agents, t.max_event_hooks,
			t.max_tables, t.available_roles, t.advisor_level, t.memory_bytes,
			t.token_budget_monthly, t.price_monthly_usd, t.created_at
		 FROM tiers t JOIN users u ON u.tier_id = t.id
		 WHERE u.id = ?`, userID).
		Scan(&t.ID, &t.Name, &t.DisplayName, &t.MaxAgents, &t.MaxEventHooks,
			&t.MaxTables, &roles, &advisor, &t.MemoryBytes,
			&t.TokenBudgetMonthly, &t.PriceMonthlyUSD, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("tier")
		}
		return nil, fmt.Errorf("read tier: %w", err)
	}
	t.AdvisorLevel = model.AdvisorLevel(advisor)
	t.CreatedAt = parseTime(created)
	if err := json.Unmarshal([]byte(roles), &t.AvailableRoles); err != nil {
		return nil, fmt.Errorf("unmarshal roles: %w", err)
	}
	return &t, nil
}

// Limits assembles the full tier + usage + per-resource limit bundle.
func (l *Ledger) Limits(ctx context.Context, userID string) (*model.TierLimits, error) {
	tier, err := l.Tier(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap, err := l.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	limit := func(current, max int64) model.ResourceLimit {
		rl := model.ResourceLimit{Current: current, Max: max}
		if max > 0 {
			rl.Percentage = float64(current) / float64(max) * 100
		}
		return rl
	}

	return &model.TierLimits{
		Tier:  *tier,
		Usage: *snap,
		Limits: map[model.ResourceKind]model.ResourceLimit{
			model.ResourceAgents: limit(int64(snap.AgentsCount), int64(tier.MaxAgents)),
			model.ResourceHooks:  limit(int64(snap.EventHooksCount), int64(tier.MaxEventHooks)),
			model.ResourceTables: limit(int64(snap.TablesActive), int64(tier.MaxTables)),
			model.ResourceMemory: limit(snap.MemoryUsedBytes, tier.MemoryBytes),
			model.ResourceTokens: limit(int64(snap.TokensUsedMonthly), int64(tier.TokenBudgetMonthly)),
		},
	}, nil
}

// HasRoleAccess reports whether the user's tier includes the role tag.
func (l *Ledger) HasRoleAccess(ctx context.Context, userID, roleType string) (bool, error) {
	tier, err := l.Tier(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, r := range tier.AvailableRoles {
		if r == roleType {
			return true, nil
		}
	}
	return false, nil
}

// AdvisorLevel returns the user's advisor entitlement.
func (l *Ledger) AdvisorLevel(ctx context.Context, userID string) (model.AdvisorLevel, error) {
	tier, err := l.Tier(ctx, userID)
	if err != nil {
		return model.AdvisorNone, err
	}
	return tier.AdvisorLevel, nil
}

// UpgradeTier repoints the user at a new plan. A data mutation only; billing
// lives elsewhere.
func (l *Ledger) UpgradeTier(ctx context.Context, userID, tierName string) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE users SET tier_id = (SELECT id FROM tiers WHERE name = ?), updated_at = ?
		 WHERE id = ? AND EXISTS (SELECT 1 FROM tiers WHERE name = ?)`,
		tierName, fmtTime(time.Now()), userID, tierName)
	if err != nil {
		return fmt.Errorf("upgrade tier: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("tier")
	}
	return nil
}

// ListTiers returns all plans ordered by price.
func (l *Ledger) ListTiers(ctx context.Context) ([]model.Tier, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, name, display_name, max_agents, max_event_hooks, max_tables,
			available_roles, advisor_level, memory_bytes, token_budget_monthly,
			price_monthly_usd, created_at
		 FROM tiers ORDER BY price_monthly_usd ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	defer rows.Close()

	var tiers []model.Tier
	for rows.Next() {
		var t model.Tier
		var roles, advisor, created string
		err := rows.Scan(&t.ID, &t.Name, &t.DisplayName, &t.MaxAgents,
			&t.MaxEventHooks, &t.MaxTables, &roles, &advisor, &t.MemoryBytes,
			&t.TokenBudgetMonthly, &t.PriceMonthlyUSD, &created)
		if err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		t.AdvisorLevel = model.AdvisorLevel(advisor)
		t.CreatedAt = parseTime(created)
		if err := json.Unmarshal([]byte(roles), &t.AvailableRoles); err != nil {
			return nil, fmt.Errorf("unmarshal roles: %w", err)
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
