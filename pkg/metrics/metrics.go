// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RoundsTotal tracks orchestration rounds by mode and outcome.
	RoundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_rounds_total",
			Help: "Orchestration rounds, by collaboration mode and outcome",
		},
		[]string{"mode", "status"},
	)

	// AgentInvocationsTotal tracks single agent turns by outcome.
	AgentInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_agent_invocations_total",
			Help: "Agent invocations, by provider and outcome",
		},
		[]string{"provider", "status"},
	)

	// LLMCallDuration tracks LLM backend call duration.
	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_duration_seconds",
			Help:    "LLM backend call duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"provider", "model", "status"},
	)

	// LLMTokensTotal tracks LLM tokens consumed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens consumed",
		},
		[]string{"provider", "model"},
	)

	// ToolInvocationsTotal tracks Tool Bridge calls by outcome.
	ToolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tool_invocations_total",
			Help: "Tool Bridge invocations, by tool and outcome",
		},
		[]string{"tool", "status"},
	)

	// QuotaDenialsTotal tracks Usage Ledger denials.
	QuotaDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_quota_denials_total",
			Help: "Usage Ledger quota denials, by resource kind and tier",
		},
		[]string{"resource", "tier"},
	)

	// LedgerAdjustmentsTotal tracks counter mutations applied by the ledger.
	LedgerAdjustmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_adjustments_total",
			Help: "Usage counter adjustments applied, by resource kind",
		},
		[]string{"resource"},
	)

	// ConversationsTotal tracks conversations created per mode.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"mode"},
	)

	// MessagesTotal tracks messages appended per sender type.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages appended",
		},
		[]string{"sender_type"},
	)

	// BusinessEventsTotal tracks ingested business events.
	BusinessEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "business_events_total",
			Help: "Business events ingested, by event type",
		},
		[]string{"event_type"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCall records metrics for one LLM backend call.
func RecordLLMCall(provider, model, status string, duration float64, tokens int) {
	LLMCallDuration.WithLabelValues(provider, model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(provider, model).Add(float64(tokens))
}
