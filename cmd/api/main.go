// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/andrewvu270/AgentDeck/internal/agent"
	"github.com/andrewvu270/AgentDeck/internal/config"
	"github.com/andrewvu270/AgentDeck/internal/event"
	"github.com/andrewvu270/AgentDeck/internal/handler"
	"github.com/andrewvu270/AgentDeck/internal/ledger"
	"github.com/andrewvu270/AgentDeck/internal/llm"
	"github.com/andrewvu270/AgentDeck/internal/middleware"
	"github.com/andrewvu270/AgentDeck/internal/model"
	natsclient "github.com/andrewvu270/AgentDeck/internal/nats"
	"github.com/andrewvu270/AgentDeck/internal/orchestrator"
	"github.com/andrewvu270/AgentDeck/internal/store"
	"github.com/andrewvu270/AgentDeck/internal/table"
	"github.com/andrewvu270/AgentDeck/internal/tool"
	"github.com/andrewvu270/AgentDeck/pkg/logger"
	"github.com/andrewvu270/AgentDeck/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "agentdeck", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing")
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open the SQLite store and run migrations
	st, err := store.Open(cfg.SQLitePath, log)
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close()

	lg := ledger.New(st.DB(), log)

	// Connect to NATS
	natsClient, err := natsclient.Connect(natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log.Logger)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	// Ensure JetStream stream exists
	streamManager := natsclient.NewStreamManager(natsClient)
	if err := streamManager.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure stream", zap.Error(err))
		os.Exit(1)
	}

	// Initialize LLM backends, one adapter per provider
	clients := make(map[string]llm.Client)
	if cfg.OpenAIAPIKey != "" {
		c, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			log.Warn("failed to create OpenAI client")
		} else {
			clients["openai"] = wrapBreaker(c, "openai", cfg, log)
		}
	}
	if cfg.AnthropicAPIKey != "" {
		c, err := llm.NewAnthropicClient(cfg.AnthropicAPIKey)
		if err != nil {
			log.Warn("failed to create Anthropic client")
		} else {
			clients["anthropic"] = wrapBreaker(c, "anthropic", cfg, log)
		}
	}
	if len(clients) == 0 {
		log.Warn("no LLM API keys configured, agent turns will fail")
	}

	// Tool bridge with the built-in search tool
	bridge := tool.NewBridge(st, cfg.ToolCallTimeout, log.Logger)
	bridge.Register(model.ToolDefinition{
		Name:        "web_search",
		Description: "Search the web for current information",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query",
				},
			},
			"required": []string{"query"},
		},
	}, &tool.WebSearchHandler{})

	// Initialize services
	directory := agent.NewDirectory(st, lg, log.Logger)
	tables := table.NewService(st, lg, log.Logger)
	orch := orchestrator.New(st, lg, bridge, clients, tables, orchestrator.Config{
		LLMCallTimeout:  cfg.LLMCallTimeout,
		PerCallTokenCap: cfg.PerCallTokenCap,
	}, log.Logger)
	events := event.NewService(st, lg, streamManager, orch, log.Logger)

	// Monthly token counter reset
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.UsageResetSchedule, func() {
		resetCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := lg.ResetAllMonthly(resetCtx)
		if err != nil {
			log.Error("monthly usage reset failed", zap.Error(err))
			return
		}
		log.Info("monthly usage reset complete", zap.Int64("users", n))
	}); err != nil {
		log.Error("invalid usage reset schedule", zap.Error(err))
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(st, natsClient)
	conversationHandler := handler.NewConversationHandler(st, log)
	messageHandler := handler.NewMessageHandler(st, orch, log)
	tableHandler := handler.NewTableHandler(tables, log)
	agentHandler := handler.NewAgentHandler(directory, log)
	tierHandler := handler.NewTierHandler(lg, log)
	eventHandler := handler.NewEventHandler(events, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Use(ensureUser(st, log))

		// Conversations and their message log
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Put("/archive", conversationHandler.Archive)
				r.Put("/reopen", conversationHandler.Reopen)
				r.Get("/export", conversationHandler.Export)

				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)
				r.Get("/messages/search", messageHandler.Search)
			})
		})

		// Collaboration tables
		r.Route("/tables", func(r chi.Router) {
			r.Post("/", tableHandler.Create)
			r.Get("/", tableHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", tableHandler.Get)
				r.Post("/advance", tableHandler.Advance)
				r.Put("/output", tableHandler.UpdateOutput)
				r.Post("/cancel", tableHandler.Cancel)
			})
		})

		// Agents and their event subscriptions
		r.Route("/agents", func(r chi.Router) {
			r.Post("/", agentHandler.Create)
			r.Get("/", agentHandler.List)
			r.Get("/roles", agentHandler.Roles)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", agentHandler.Get)
				r.Put("/", agentHandler.Update)
				r.Delete("/", agentHandler.Delete)

				r.Get("/subscriptions", eventHandler.Subscriptions)
				r.Post("/subscriptions", eventHandler.Subscribe)
				r.Delete("/subscriptions/{eventType}", eventHandler.Unsubscribe)
			})
		})

		// Tiers and usage
		r.Route("/tiers", func(r chi.Router) {
			r.Get("/", tierHandler.List)
			r.Get("/limits", tierHandler.Limits)
			r.Post("/upgrade", tierHandler.Upgrade)
		})

		// Business events
		r.Route("/events", func(r chi.Router) {
			r.Post("/", eventHandler.Ingest)
			r.Get("/", eventHandler.History)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func wrapBreaker(c llm.Client, provider string, cfg *config.Config, log *logger.Logger) llm.Client {
	if !cfg.BreakerEnabled {
		return c
	}
	return llm.NewBreakerClient(c, llm.BreakerConfig{}, log.Logger.With(zap.String("provider", provider)))
}

// ensureUser seeds the user row and its usage snapshot on first sight of an
// authenticated subject, so ledger reads never miss.
func ensureUser(st *store.Store, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := middleware.GetUserID(r.Context())
			if userID != "" {
				if err := st.EnsureUser(r.Context(), userID); err != nil {
					log.Error("failed to ensure user", zap.Error(err))
					http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
