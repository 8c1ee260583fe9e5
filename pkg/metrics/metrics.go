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

	// ChatExchangeDuration tracks the round trip to a backend agent.
	ChatExchangeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_exchange_duration_seconds",
			Help:    "Agent round trip duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"agent", "outcome"},
	)

	// ChatExchangesTotal counts completed sends by outcome.
	ChatExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_exchanges_total",
			Help: "Completed chat exchanges",
		},
		[]string{"agent", "outcome"},
	)

	// ChatSessionsAdopted counts backend session ids adopted.
	ChatSessionsAdopted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sessions_adopted_total",
			Help: "Backend session ids adopted by conversations",
		},
		[]string{"agent"},
	)

	// ChatClearsTotal counts conversation clears by cause.
	ChatClearsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_clears_total",
			Help: "Conversations cleared by reset or agent change",
		},
		[]string{"cause"},
	)

	// ChatViewsActive tracks chat views held by the gateway.
	ChatViewsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_views_active",
			Help: "Number of chat views held in memory",
		},
	)

	// WSConnectionsActive tracks active WebSocket connections.
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	// LLMRequestDuration tracks LLM completion duration.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM completion duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// AgentRequestsTotal counts requests served by the agent backend.
	AgentRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_requests_total",
			Help: "Chat requests served by the agent backend",
		},
		[]string{"agent", "status"},
	)

	// AuditEventsTotal counts audit events published to NATS.
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_total",
			Help: "Audit events published",
		},
		[]string{"type", "status"},
	)

	// NATSStreamMessages tracks messages in NATS stream.
	NATSStreamMessages = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_stream_messages",
			Help: "Number of messages in NATS stream",
		},
		[]string{"stream"},
	)

	// NATSStreamBytes tracks bytes in NATS stream.
	NATSStreamBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_stream_bytes",
			Help: "Bytes in NATS stream",
		},
		[]string{"stream"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLM records metrics for one LLM completion.
func RecordLLM(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMRequestDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// IncrementWSConnections increments the active WebSocket connection count.
func IncrementWSConnections() {
	WSConnectionsActive.Inc()
}

// DecrementWSConnections decrements the active WebSocket connection count.
func DecrementWSConnections() {
	WSConnectionsActive.Dec()
}
