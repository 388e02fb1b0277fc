package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// InferenceDuration observes wall-clock time of one Infer call.
	InferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "botd",
			Subsystem: "llm",
			Name:      "inference_duration_seconds",
			Help:      "Duration of LLM inference calls in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
	)

	// GeneratedTokens observes the generation length of one Infer call.
	GeneratedTokens = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "botd",
			Subsystem: "llm",
			Name:      "generated_tokens",
			Help:      "Tokens generated per inference call",
			Buckets:   []float64{8, 16, 32, 64, 128, 256, 512, 1024, 2048},
		},
	)

	// SessionLoads counts session-cache load attempts by result (hit, miss).
	SessionLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botd",
			Subsystem: "llm",
			Name:      "session_loads_total",
			Help:      "Base-prompt session cache load attempts",
		},
		[]string{"result"},
	)

	// Transitions counts lifecycle transitions by action kind and result.
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botd",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "State machine transitions by action and result",
		},
		[]string{"action", "result"},
	)

	// EffectsInflight tracks currently running effect goroutines by kind.
	EffectsInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "botd",
			Subsystem: "lifecycle",
			Name:      "effects_inflight",
			Help:      "Currently running effects",
		},
		[]string{"kind"},
	)

	// ToolRuns counts tool dispatches by tool name and status.
	ToolRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botd",
			Subsystem: "tools",
			Name:      "runs_total",
			Help:      "Tool executions by tool and status",
		},
		[]string{"tool", "status"},
	)

	// MessagesSent counts outbound sends by status.
	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botd",
			Subsystem: "chat",
			Name:      "messages_sent_total",
			Help:      "Outbound chat messages by status",
		},
		[]string{"status"},
	)

	// ActiveUsers tracks entities currently held by the kernel.
	ActiveUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "botd",
			Subsystem: "lifecycle",
			Name:      "active_users",
			Help:      "User entities currently tracked",
		},
	)
)

func init() {
	prometheus.MustRegister(
		InferenceDuration,
		GeneratedTokens,
		SessionLoads,
		Transitions,
		EffectsInflight,
		ToolRuns,
		MessagesSent,
		ActiveUsers,
	)
}

// ObserveInference records one inference call.
func ObserveInference(start time.Time, generated int) {
	InferenceDuration.Observe(time.Since(start).Seconds())
	GeneratedTokens.Observe(float64(generated))
}
