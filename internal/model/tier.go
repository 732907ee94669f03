package model

import (
	"time"
)

// AdvisorLevel is the advisor-agent entitlement granted by a tier.
type AdvisorLevel string

const (
	AdvisorNone     AdvisorLevel = "none"
	AdvisorBasic    AdvisorLevel = "basic"
	AdvisorAdvanced AdvisorLevel = "advanced"
	AdvisorFull     AdvisorLevel = "full"
)

// ResourceKind names a governed resource. Countable kinds (agents, hooks,
// tables) gate on count < max; consumable kinds (tokens, memory) gate on
// used < max.
type ResourceKind string

const (
	ResourceAgents ResourceKind = "agents"
	ResourceHooks  ResourceKind = "event_hooks"
	ResourceTables ResourceKind = "collaboration_tables"
	ResourceTokens ResourceKind = "tokens"
	ResourceMemory ResourceKind = "memory"
)

// Valid reports whether k is a known resource kind.
func (k ResourceKind) Valid() bool {
	switch k {
	case ResourceAgents, ResourceHooks, ResourceTables, ResourceTokens, ResourceMemory:
		return true
	}
	return false
}

// Tier is an immutable-per-version subscription plan. One row per plan;
// referenced, not owned, by users.
type Tier struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	DisplayName        string       `json:"display_name"`
	MaxAgents          int          `json:"max_agents"`
	MaxEventHooks      int          `json:"max_event_hooks"`
	MaxTables          int          `json:"max_collaboration_tables"`
	AvailableRoles     []string     `json:"available_roles"`
	AdvisorLevel       AdvisorLevel `json:"advisor_agent_level"`
	MemoryBytes        int64        `json:"memory_size_bytes"`
	TokenBudgetMonthly int          `json:"token_budget_monthly"`
	PriceMonthlyUSD    float64      `json:"price_monthly_usd"`
	CreatedAt          time.Time    `json:"created_at"`
}

// UsageSnapshot is the live, mutable counters tracked against a tier's
// ceilings for one user. Mutated only through the ledger.
type UsageSnapshot struct {
	UserID            string    `json:"user_id"`
	AgentsCount       int       `json:"agents_count"`
	EventHooksCount   int       `json:"event_hooks_count"`
	TablesActive      int       `json:"collaboration_tables_active"`
	MemoryUsedBytes   int64     `json:"memory_used_bytes"`
	TokensUsedMonthly int       `json:"tokens_used_monthly"`
	LastResetAt       time.Time `json:"last_reset_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ResourceLimit pairs a live counter with its ceiling.
type ResourceLimit struct {
	Current    int64   `json:"current"`
	Max        int64   `json:"max"`
	Percentage float64 `json:"percentage"`
}

// TierLimits is the full tier + usage bundle served to callers.
type TierLimits struct {
	Tier   Tier                           `json:"tier"`
	Usage  UsageSnapshot                  `json:"usage"`
	Limits map[ResourceKind]ResourceLimit `json:"limits"`
}
