// Package metrics holds the Prometheus collectors shared across huddle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "huddle"

var (
	// SleeperRequests counts upstream calls by endpoint template and outcome
	// (ok, network, status, parse, circuit_open).
	SleeperRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sleeper_requests_total",
		Help:      "Sleeper API requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	SleeperDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sleeper_request_duration_seconds",
		Help:      "Sleeper API request latency including retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tool_calls_total",
		Help:      "Function calls dispatched from model turns.",
	}, []string{"tool", "outcome"})

	// Turns counts completed turns. kind is "message" or "purchase".
	Turns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "turns_total",
		Help:      "Chat turns by kind and outcome.",
	}, []string{"kind", "outcome"})

	TurnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "turn_duration_seconds",
		Help:      "Wall time of a chat turn.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
	}, []string{"kind"})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_requests_total",
		Help:      "LLM chat completion requests by provider and outcome.",
	}, []string{"provider", "outcome"})
)

// Outcome maps an error to the "ok"/"error" label pair used by most counters.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
