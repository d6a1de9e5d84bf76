package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for Charlotte.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// ChatTurns counts chat turns by outcome (ok, error).
	ChatTurns *prometheus.CounterVec

	// ModelRoundTrips counts model calls by outcome
	// (final, filler, tool_call, protocol_violation, error).
	ModelRoundTrips *prometheus.CounterVec

	// LLMRequestDuration tracks language-model latency by operation.
	LLMRequestDuration *prometheus.HistogramVec

	// ToolExecutions counts tool runs by tool name and status.
	ToolExecutions *prometheus.CounterVec

	// ToolExecutionDuration tracks tool latency.
	ToolExecutionDuration *prometheus.HistogramVec

	// RetrievalDuration tracks retrieval latency by entity kind.
	RetrievalDuration *prometheus.HistogramVec

	// ActiveSessions is the number of sessions currently held.
	ActiveSessions prometheus.Gauge

	// Evictions counts messages dropped from session windows.
	Evictions prometheus.Counter
}

// NewMetrics registers the collectors with reg. A nil reg uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ChatTurns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charlotte_chat_turns_total",
				Help: "Chat turns processed by outcome",
			},
			[]string{"status"},
		),
		ModelRoundTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charlotte_model_round_trips_total",
				Help: "Language-model round trips by outcome",
			},
			[]string{"outcome"},
		),
		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "charlotte_llm_request_duration_seconds",
				Help:    "Duration of language-model requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),
		ToolExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charlotte_tool_executions_total",
				Help: "Tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "charlotte_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"tool_name"},
		),
		RetrievalDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "charlotte_retrieval_duration_seconds",
				Help:    "Duration of fused retrieval in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"kind"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "charlotte_active_sessions",
				Help: "Sessions currently held in memory",
			},
		),
		Evictions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "charlotte_evicted_messages_total",
				Help: "Messages evicted from session context windows",
			},
		),
	}
}

func (m *Metrics) ChatTurn(status string) {
	if m == nil {
		return
	}
	m.ChatTurns.WithLabelValues(status).Inc()
}

func (m *Metrics) ModelRoundTrip(outcome string) {
	if m == nil {
		return
	}
	m.ModelRoundTrips.WithLabelValues(outcome).Inc()
}

func (m *Metrics) LLMRequest(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.LLMRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) ToolExecution(name, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolExecutions.WithLabelValues(name, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) Retrieval(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.RetrievalDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) Evicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Evictions.Add(float64(n))
}
