// Package store provides the SQLite-backed persistence layer: conversations
// and their append-only message log, collaboration tables, agents, event
// records, and the per-user usage snapshot rows consumed by the ledger.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/andrewvu270/AgentDeck/pkg/logger"
)

// Store wraps the SQLite database.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// Open opens (or creates) the database at path, applies production-safe
// pragmas, and runs the schema migration.
func Open(path string, log *logger.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// SQLite write safety: single writer. A pool of one connection also
	// keeps the per-connection pragmas below in force for every statement;
	// with a larger pool only the connection that ran them would have them.
	db.SetMaxOpenConns(1)

	ctx := context.Background()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	// WAL mode for concurrent readers; busy timeout so concurrent writers
	// queue instead of failing immediately.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db, logger: log}, nil
}

// DB exposes the underlying handle so the ledger can share the same
// database and transaction semantics.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tiers (
			id                   TEXT PRIMARY KEY,
			name                 TEXT NOT NULL UNIQUE,
			display_name         TEXT NOT NULL,
			max_agents           INTEGER NOT NULL,
			max_event_hooks      INTEGER NOT NULL,
			max_tables           INTEGER NOT NULL,
			available_roles      TEXT NOT NULL DEFAULT '[]',
			advisor_level        TEXT NOT NULL DEFAULT 'none',
			memory_bytes         INTEGER NOT NULL,
			token_budget_monthly INTEGER NOT NULL,
			price_monthly_usd    REAL NOT NULL DEFAULT 0,
			created_at           TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			tier_id    TEXT NOT NULL REFERENCES tiers(id),
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_tier_usage (
			user_id             TEXT PRIMARY KEY REFERENCES users(id),
			agents_count        INTEGER NOT NULL DEFAULT 0,
			event_hooks_count   INTEGER NOT NULL DEFAULT 0,
			tables_active       INTEGER NOT NULL DEFAULT 0,
			memory_used_bytes   INTEGER NOT NULL DEFAULT 0,
			tokens_used_monthly INTEGER NOT NULL DEFAULT 0,
			last_reset_at       TEXT NOT NULL,
			updated_at          TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agents (
			id                    TEXT PRIMARY KEY,
			user_id               TEXT NOT NULL REFERENCES users(id),
			name                  TEXT NOT NULL,
			description           TEXT NOT NULL DEFAULT '',
			model                 TEXT NOT NULL,
			provider              TEXT NOT NULL,
			system_prompt         TEXT NOT NULL,
			tools                 TEXT NOT NULL DEFAULT '[]',
			role_type             TEXT NOT NULL DEFAULT '',
			role_responsibilities TEXT NOT NULL DEFAULT '',
			event_subscriptions   TEXT NOT NULL DEFAULT '[]',
			is_advisor            INTEGER NOT NULL DEFAULT 0,
			status                TEXT NOT NULL DEFAULT 'online',
			version               INTEGER NOT NULL DEFAULT 1,
			created_at            TEXT NOT NULL,
			updated_at            TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id                   TEXT PRIMARY KEY,
			user_id              TEXT NOT NULL,
			name                 TEXT NOT NULL DEFAULT '',
			mode                 TEXT NOT NULL,
			max_rounds           INTEGER NOT NULL,
			token_budget         INTEGER NOT NULL,
			participating_agents TEXT NOT NULL DEFAULT '[]',
			total_tokens         INTEGER NOT NULL DEFAULT 0,
			total_cost           REAL NOT NULL DEFAULT 0,
			message_count        INTEGER NOT NULL DEFAULT 0,
			tool_call_count      INTEGER NOT NULL DEFAULT 0,
			status               TEXT NOT NULL DEFAULT 'active',
			round_active         INTEGER NOT NULL DEFAULT 0,
			created_at           TEXT NOT NULL,
			updated_at           TEXT NOT NULL,
			archived_at          TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			seq             INTEGER NOT NULL,
			sender_type     TEXT NOT NULL,
			sender_id       TEXT NOT NULL,
			sender_name     TEXT NOT NULL,
			sender_role     TEXT NOT NULL DEFAULT '',
			content         TEXT NOT NULL,
			message_type    TEXT NOT NULL DEFAULT 'normal',
			tokens          INTEGER NOT NULL DEFAULT 0,
			tool_calls      INTEGER NOT NULL DEFAULT 0,
			response_ms     INTEGER,
			mentions        TEXT NOT NULL DEFAULT '[]',
			reply_to        TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL,
			UNIQUE (conversation_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages (conversation_id, seq)`,
		`CREATE TABLE IF NOT EXISTS rounds (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			mode            TEXT NOT NULL,
			status          TEXT NOT NULL DEFAULT 'running',
			error           TEXT NOT NULL DEFAULT '',
			started_at      TEXT NOT NULL,
			finished_at     TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS collaboration_tables (
			id                   TEXT PRIMARY KEY,
			user_id              TEXT NOT NULL,
			name                 TEXT NOT NULL,
			topic                TEXT NOT NULL,
			desired_outcome      TEXT NOT NULL,
			participating_agents TEXT NOT NULL DEFAULT '[]',
			current_phase        TEXT NOT NULL DEFAULT 'data_gathering',
			token_budget         INTEGER NOT NULL,
			time_limit_minutes   INTEGER NOT NULL DEFAULT 0,
			status               TEXT NOT NULL DEFAULT 'active',
			conversation_id      TEXT NOT NULL REFERENCES conversations(id),
			output               TEXT NOT NULL DEFAULT '{}',
			created_at           TEXT NOT NULL,
			completed_at         TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS event_subscriptions (
			id         TEXT PRIMARY KEY,
			agent_id   TEXT NOT NULL REFERENCES agents(id),
			event_type TEXT NOT NULL,
			filters    TEXT NOT NULL DEFAULT '{}',
			is_active  INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			UNIQUE (agent_id, event_type)
		)`,
		`CREATE TABLE IF NOT EXISTS business_events (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			event_type       TEXT NOT NULL,
			source           TEXT NOT NULL,
			data             TEXT NOT NULL DEFAULT '{}',
			metadata         TEXT NOT NULL DEFAULT '{}',
			triggered_agents TEXT NOT NULL DEFAULT '[]',
			created_at       TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tool_invocations (
			id          TEXT PRIMARY KEY,
			agent_id    TEXT NOT NULL,
			tool_name   TEXT NOT NULL,
			args        TEXT NOT NULL DEFAULT '{}',
			result      TEXT NOT NULL DEFAULT '{}',
			status      TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return seedTiers(ctx, db)
}

// seedTiers inserts the built-in plans if they are not present yet.
func seedTiers(ctx context.Context, db *sql.DB) error {
	type seed struct {
		id, name, display  string
		agents, hooks      int
		tables             int
		roles              string
		advisor            string
		memory             int64
		tokens             int
		price              float64
	}
	seeds := []seed{
		{"tier-free", "free", "Free", 2, 1, 1,
			`["sales","marketing"]`, "none", 10 << 20, 50000, 0},
		{"tier-starter", "starter", "Starter", 5, 5, 2,
			`["sales","marketing","cx","data"]`, "basic", 100 << 20, 500000, 29},
		{"tier-professional", "professional", "Professional", 15, 20, 5,
			`["sales","marketing","cx","data","strategy","operations","product"]`,
			"advanced", 1 << 30, 2000000, 99},
		{"tier-enterprise", "enterprise", "Enterprise", 100, 100, 25,
			`["sales","marketing","cx","data","strategy","operations","product","cto"]`,
			"full", 10 << 30, 20000000, 499},
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, t := range seeds {
		_, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO tiers (
				id, name, display_name, max_agents, max_event_hooks, max_tables,
				available_roles, advisor_level, memory_bytes, token_budget_monthly,
				price_monthly_usd, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.id, t.name, t.display, t.agents, t.hooks, t.tables,
			t.roles, t.advisor, t.memory, t.tokens, t.price, now)
		if err != nil {
			return err
		}
	}
	return nil
}

// EnsureUser creates the user row and its usage snapshot on first touch,
// defaulting to the free tier. Safe to call on every request path.
func (s *Store) EnsureUser(ctx context.Context, userID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id, tier_id, created_at, updated_at)
		 VALUES (?, 'tier-free', ?, ?)`, userID, now, now); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_tier_usage (user_id, last_reset_at, updated_at)
		 VALUES (?, ?, ?)`, userID, now, now); err != nil {
		return fmt.Errorf("ensure usage snapshot: %w", err)
	}
	return nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
