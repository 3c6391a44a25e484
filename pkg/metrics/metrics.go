// Package metrics exposes the orchestrator's Prometheus instrumentation
// (ambient observability, carried regardless of which pipeline features a
// given deployment enables): dispatch-loop throughput, step durations, LLM
// call volume, and budget breaches. Grounded on the teacher's metrics-style
// gap in pkg/queue/executor.go (a worker pool with no metrics of its own)
// filled in using kadirpekel-hector's pkg/observability/metrics.go shape —
// namespaced CounterVec/HistogramVec/GaugeVec registered against a private
// registry, nil-receiver methods so a disabled Metrics is a no-op.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orchestrator"

// Metrics holds every Prometheus collector the process exposes at
// GET /metrics. A nil *Metrics is valid and every method on it is a no-op,
// so callers never need to guard on whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	stepsTotal    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	stepsActive   *prometheus.GaugeVec
	dispatchTicks prometheus.Counter

	llmCalls        *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmTokens       *prometheus.CounterVec
	llmCost         *prometheus.CounterVec

	checkpointsTotal *prometheus.CounterVec
	budgetBreaches   *prometheus.CounterVec
	runsTotal        *prometheus.CounterVec
	runsActive       prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New builds a Metrics instance with every collector registered against a
// fresh, private registry (never the global default — so tests can build
// more than one Metrics in the same process).
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.stepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "step", Name: "total",
		Help: "Total plan steps dispatched, by kind and outcome.",
	}, []string{"kind", "outcome"})

	m.stepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "step", Name: "duration_seconds",
		Help:    "Plan step execution duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~14min
	}, []string{"kind"})

	m.stepsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "step", Name: "active",
		Help: "Plan steps currently executing, by kind.",
	}, []string{"kind"})

	m.dispatchTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "dispatch", Name: "ticks_total",
		Help: "Number of times the dispatch loop recomputed the eligible set.",
	})

	m.llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "llm", Name: "calls_total",
		Help: "Total LLM Gateway calls, by provider/model/outcome.",
	}, []string{"provider", "model", "outcome"})

	m.llmCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "llm", Name: "call_duration_seconds",
		Help:    "LLM Gateway call duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"provider", "model"})

	m.llmTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "llm", Name: "tokens_total",
		Help: "Tokens consumed, by provider/model/direction.",
	}, []string{"provider", "model", "direction"})

	m.llmCost = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "llm", Name: "cost_usd_total",
		Help: "Estimated USD cost, by provider/model.",
	}, []string{"provider", "model"})

	m.checkpointsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "checkpoint", Name: "total",
		Help: "Checkpoints resolved, by checkpoint type and choice.",
	}, []string{"checkpoint_type", "choice"})

	m.budgetBreaches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "budget", Name: "breaches_total",
		Help: "Cost-limit breaches that interrupted a run, by scope.",
	}, []string{"scope"})

	m.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "run", Name: "total",
		Help: "Pipeline runs finished, by terminal status.",
	}, []string{"status"})

	m.runsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "run", Name: "active",
		Help: "Pipeline runs currently in flight.",
	})

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_total",
		Help: "HTTP requests, by method/route/status class.",
	}, []string{"method", "route", "status"})

	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	m.registry.MustRegister(
		m.stepsTotal, m.stepDuration, m.stepsActive, m.dispatchTicks,
		m.llmCalls, m.llmCallDuration, m.llmTokens, m.llmCost,
		m.checkpointsTotal, m.budgetBreaches, m.runsTotal, m.runsActive,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Handler returns the /metrics HTTP handler (§6 ambient route).
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordStep observes one plan step's outcome and duration.
func (m *Metrics) RecordStep(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(kind, outcome).Inc()
	m.stepDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// StepStarted/StepFinished track concurrently-executing steps.
func (m *Metrics) StepStarted(kind string) {
	if m == nil {
		return
	}
	m.stepsActive.WithLabelValues(kind).Inc()
}

func (m *Metrics) StepFinished(kind string) {
	if m == nil {
		return
	}
	m.stepsActive.WithLabelValues(kind).Dec()
}

// DispatchTick records one eligible-set recomputation.
func (m *Metrics) DispatchTick() {
	if m == nil {
		return
	}
	m.dispatchTicks.Inc()
}

// RecordLLMCall observes one LLM Gateway call's outcome, duration, token
// counts, and estimated cost.
func (m *Metrics) RecordLLMCall(provider, model, outcome string, d time.Duration, inputTokens, outputTokens int, cost float64) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(provider, model, outcome).Inc()
	m.llmCallDuration.WithLabelValues(provider, model).Observe(d.Seconds())
	m.llmTokens.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	m.llmTokens.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	m.llmCost.WithLabelValues(provider, model).Add(cost)
}

// RecordCheckpoint records a resolved checkpoint's choice.
func (m *Metrics) RecordCheckpoint(checkpointType, choice string) {
	if m == nil {
		return
	}
	m.checkpointsTotal.WithLabelValues(checkpointType, choice).Inc()
}

// RecordBudgetBreach records a cost-limit interruption.
func (m *Metrics) RecordBudgetBreach(scope string) {
	if m == nil {
		return
	}
	m.budgetBreaches.WithLabelValues(scope).Inc()
}

// RunStarted/RunFinished track a pipeline run's lifecycle.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runsActive.Inc()
}

func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.runsActive.Dec()
	m.runsTotal.WithLabelValues(status).Inc()
}

// RecordHTTPRequest observes one HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
