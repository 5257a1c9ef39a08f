package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus measurements for pipeline execution.
//
// Exposed metrics (namespace "answergraph"):
//
//	step_latency_ms   histogram  node execution duration, by run/node/status
//	retries_total     counter    node retry attempts, by run/node
//	inflight_branches gauge      fan-out branches currently executing
//	llm_calls_total   counter    model invocations, by model
//	llm_tokens_total  counter    tokens consumed, by model and direction
//
// Safe for concurrent use; all updates go through the Prometheus
// client's own synchronization.
type Metrics struct {
	stepLatency      *prometheus.HistogramVec
	retries          *prometheus.CounterVec
	inflightBranches prometheus.Gauge
	llmCalls         *prometheus.CounterVec
	llmTokens        *prometheus.CounterVec
}

// NewMetrics registers the pipeline metrics with the given registry.
// Pass prometheus.DefaultRegisterer to use the global registry; a
// dedicated registry keeps tests isolated.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "answergraph",
			Name:      "step_latency_ms",
			Help:      "Node execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
		}, []string{"run_id", "node_id", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "answergraph",
			Name:      "retries_total",
			Help:      "Cumulative node retry attempts",
		}, []string{"run_id", "node_id"}),
		inflightBranches: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "answergraph",
			Name:      "inflight_branches",
			Help:      "Fan-out branches currently executing",
		}),
		llmCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "answergraph",
			Name:      "llm_calls_total",
			Help:      "Model invocations",
		}, []string{"model"}),
		llmTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "answergraph",
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by model calls",
		}, []string{"model", "direction"}),
	}
}

// StepObserved records one node execution. Status is "success",
// "error", or "timeout".
func (m *Metrics) StepObserved(runID, nodeID string, d time.Duration, status string) {
	m.stepLatency.WithLabelValues(runID, nodeID, status).Observe(float64(d.Milliseconds()))
}

// RetryRecorded counts one retry attempt for a node.
func (m *Metrics) RetryRecorded(runID, nodeID string) {
	m.retries.WithLabelValues(runID, nodeID).Inc()
}

// BranchStarted marks a fan-out branch entering execution.
func (m *Metrics) BranchStarted() {
	m.inflightBranches.Inc()
}

// BranchDone marks a fan-out branch leaving execution.
func (m *Metrics) BranchDone() {
	m.inflightBranches.Dec()
}

// LLMCallObserved records one model invocation and its token usage.
func (m *Metrics) LLMCallObserved(model string, inputTokens, outputTokens int) {
	m.llmCalls.WithLabelValues(model).Inc()
	m.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	m.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
}
