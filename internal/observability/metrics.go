package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the PubMed MCP service.
// Metrics are organized by subsystem: upstream NCBI requests, MCP tool
// invocations, and history sessions. All counters and histograms are
// registered via promauto for automatic registration with the default
// Prometheus registry.
type Metrics struct {
	// RequestsTotal counts HTTP requests to NCBI APIs, labeled by api and endpoint.
	RequestsTotal *prometheus.CounterVec

	// RequestsFailed counts failed NCBI requests, labeled by api, endpoint,
	// and error kind (network, server, client).
	RequestsFailed *prometheus.CounterVec

	// RequestRetries counts retry attempts against NCBI APIs, labeled by api.
	RequestRetries *prometheus.CounterVec

	// RequestDuration observes NCBI request duration in seconds.
	RequestDuration *prometheus.HistogramVec

	// RateLimited counts 429 responses from NCBI APIs, labeled by api.
	RateLimited *prometheus.CounterVec

	// LimiterWaitSeconds observes time spent waiting for a rate limiter token.
	LimiterWaitSeconds *prometheus.HistogramVec

	// ToolInvocations counts MCP tool calls, labeled by tool and status (ok, error).
	ToolInvocations *prometheus.CounterVec

	// ToolDuration observes MCP tool call duration in seconds, labeled by tool.
	ToolDuration *prometheus.HistogramVec

	// SessionsStarted counts history sessions initiated.
	SessionsStarted prometheus.Counter

	// PipelineStepsTotal counts pipeline steps executed, labeled by operation.
	PipelineStepsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized
// and registered with the default Prometheus registry. The namespace is
// used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a Metrics instance registered with a
// specific registry. Used by tests and embedders that isolate registries.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		// Upstream requests
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ncbi_requests_total",
			Help:      "Total number of requests to NCBI APIs",
		}, []string{"api", "endpoint"}),
		RequestsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ncbi_requests_failed_total",
			Help:      "Total number of failed requests to NCBI APIs",
		}, []string{"api", "endpoint", "kind"}),
		RequestRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ncbi_request_retries_total",
			Help:      "Total number of retried requests to NCBI APIs",
		}, []string{"api"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ncbi_request_duration_seconds",
			Help:      "Duration of requests to NCBI APIs in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"api", "endpoint"}),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ncbi_rate_limited_total",
			Help:      "Total number of rate limit responses from NCBI APIs",
		}, []string{"api"}),
		LimiterWaitSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ncbi_limiter_wait_seconds",
			Help:      "Time spent waiting for a rate limiter token",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"api"}),

		// MCP tools
		ToolInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Total number of MCP tool invocations by tool and status",
		}, []string{"tool", "status"}),
		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Duration of MCP tool invocations in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"tool"}),

		// History sessions
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of history sessions started",
		}),
		PipelineStepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_steps_total",
			Help:      "Total number of pipeline steps executed by operation",
		}, []string{"operation"}),
	}
}

// RecordToolInvocation records an MCP tool call outcome.
func (m *Metrics) RecordToolInvocation(tool, status string, durationSeconds float64) {
	m.ToolInvocations.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(durationSeconds)
}

// RecordSessionStarted records that a history session has started.
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
}

// RecordPipelineStep records a pipeline step execution.
func (m *Metrics) RecordPipelineStep(operation string) {
	m.PipelineStepsTotal.WithLabelValues(operation).Inc()
}
