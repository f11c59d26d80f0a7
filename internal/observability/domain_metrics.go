package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	poolLeasedConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "retailsearch_pool_leased_connections",
			Help: "Current number of database connections leased from the pool.",
		},
	)
	poolAcquireWaitMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retailsearch_pool_acquire_wait_ms",
			Help:    "Time spent waiting for a pool slot in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)
	poolExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "retailsearch_pool_exhausted_total",
			Help: "Total number of acquire attempts that timed out waiting for a slot.",
		},
	)
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailsearch_executions_total",
			Help: "Total number of statement executions by outcome.",
		},
		[]string{"outcome"},
	)
	executionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retailsearch_execution_latency_ms",
			Help:    "Statement execution latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)
	executionRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retailsearch_execution_rows",
			Help:    "Number of rows returned per successful execution.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500, 1000},
		},
	)
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailsearch_generations_total",
			Help: "Total number of SQL generations by translator and outcome.",
		},
		[]string{"translator", "outcome"},
	)
	generationLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retailsearch_generation_latency_ms",
			Help:    "SQL generation latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 20000},
		},
		[]string{"translator"},
	)
	remoteCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailsearch_remote_calls_total",
			Help: "Total number of remote pipeline calls by leg and outcome.",
		},
		[]string{"leg", "outcome"},
	)
	remoteCallLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retailsearch_remote_call_latency_ms",
			Help:    "Remote pipeline call latency in milliseconds, including retries.",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 15000, 30000},
		},
		[]string{"leg"},
	)
	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailsearch_tool_calls_total",
			Help: "Total number of search tool invocations by result status.",
		},
		[]string{"status"},
	)
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailsearch_turns_total",
			Help: "Total number of conversational turns by decision.",
		},
		[]string{"decision"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "retailsearch_active_sessions",
			Help: "Current number of live sessions held by the in-memory store.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		poolLeasedConnections,
		poolAcquireWaitMs,
		poolExhaustedTotal,
		executionsTotal,
		executionLatencyMs,
		executionRows,
		generationsTotal,
		generationLatencyMs,
		remoteCallsTotal,
		remoteCallLatencyMs,
		toolCallsTotal,
		turnsTotal,
		activeSessions,
	)
}

func ObservePoolAcquire(wait time.Duration, leased int) {
	poolAcquireWaitMs.Observe(float64(wait.Milliseconds()))
	SetPoolLeased(leased)
}

func SetPoolLeased(leased int) {
	if leased < 0 {
		leased = 0
	}
	poolLeasedConnections.Set(float64(leased))
}

func IncrementPoolExhausted() {
	poolExhaustedTotal.Inc()
}

func ObserveExecution(outcome string, rows int, elapsed time.Duration) {
	executionsTotal.WithLabelValues(outcome).Inc()
	executionLatencyMs.Observe(float64(elapsed.Milliseconds()))
	if outcome == "success" {
		executionRows.Observe(float64(rows))
	}
}

func ObserveGeneration(translator, outcome string, elapsed time.Duration) {
	generationsTotal.WithLabelValues(translator, outcome).Inc()
	generationLatencyMs.WithLabelValues(translator).Observe(float64(elapsed.Milliseconds()))
}

func ObserveRemoteCall(leg, outcome string, elapsed time.Duration) {
	remoteCallsTotal.WithLabelValues(leg, outcome).Inc()
	remoteCallLatencyMs.WithLabelValues(leg).Observe(float64(elapsed.Milliseconds()))
}

func ObserveToolCall(status string) {
	toolCallsTotal.WithLabelValues(status).Inc()
}

func ObserveTurn(usedTool bool) {
	decision := "answer"
	if usedTool {
		decision = "search"
	}
	turnsTotal.WithLabelValues(decision).Inc()
}

func SetActiveSessions(n int) {
	if n < 0 {
		n = 0
	}
	activeSessions.Set(float64(n))
}
