// Package metrics exposes Prometheus collectors for turn execution, tool
// calls, token usage and balance debits.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "chat",
		Name:      "turns_total",
		Help:      "Completed model turns by terminal status.",
	}, []string{"status"})

	TurnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "parley",
		Subsystem: "chat",
		Name:      "turn_duration_seconds",
		Help:      "Wall-clock duration of model turns.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"status"})

	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "tools",
		Name:      "calls_total",
		Help:      "Tool executions by tool name and outcome.",
	}, []string{"tool", "outcome"})

	ToolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "parley",
		Subsystem: "tools",
		Name:      "duration_seconds",
		Help:      "Tool execution duration.",
		Buckets:   []float64{0.01, 0.05, 0.25, 1, 5, 15, 60},
	}, []string{"tool"})

	TokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "llm",
		Name:      "tokens_total",
		Help:      "Tokens consumed by direction (prompt/completion).",
	}, []string{"direction"})

	DebitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "ledger",
		Name:      "debits_total",
		Help:      "Cumulative amount debited from the balance.",
	})

	ProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "chat",
		Name:      "probes_total",
		Help:      "A/B preference probes by outcome.",
	}, []string{"outcome"})
)
