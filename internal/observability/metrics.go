package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the agent, providers and daemon.
type Metrics struct {
	registry          *prometheus.Registry
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ProviderRequests  *prometheus.CounterVec
	ProviderDuration  *prometheus.HistogramVec
	ProviderTokens    *prometheus.CounterVec
	ScannedFiles      prometheus.Counter
	ContextTruncated  prometheus.Counter
	ActiveSession     *prometheus.GaugeVec
	TransportErrs     *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with gitgpt collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gitgpt_agent_operations_total",
		Help: "Agent operations by operation and outcome",
	}, []string{"operation", "outcome"})

	opDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gitgpt_agent_operation_duration_seconds",
		Help:    "Agent operation duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	provReqs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gitgpt_provider_requests_total",
		Help: "LLM provider calls by provider and outcome",
	}, []string{"provider", "outcome"})

	provDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gitgpt_provider_duration_seconds",
		Help:    "LLM provider call latency in seconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
	}, []string{"provider"})

	provTokens := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gitgpt_provider_tokens_total",
		Help: "Tokens reported by providers",
	}, []string{"provider"})

	scanned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gitgpt_scan_files_total",
		Help: "Files included by repository scans",
	})

	truncated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gitgpt_context_truncated_total",
		Help: "Contexts that hit the character budget",
	})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gitgpt_transport_active_sessions",
		Help: "Active streaming sessions by transport",
	}, []string{"transport"})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gitgpt_transport_errors_total",
		Help: "Transport-level errors (handler/streaming) by transport and reason",
	}, []string{"transport", "reason"})

	reg.MustRegister(ops, opDur, provReqs, provDur, provTokens, scanned, truncated, active, trErrors)

	return &Metrics{
		registry:          reg,
		Operations:        ops,
		OperationDuration: opDur,
		ProviderRequests:  provReqs,
		ProviderDuration:  provDur,
		ProviderTokens:    provTokens,
		ScannedFiles:      scanned,
		ContextTruncated:  truncated,
		ActiveSession:     active,
		TransportErrs:     trErrors,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordOperation records one agent operation.
func (m *Metrics) RecordOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveProviderCall implements llm.Recorder.
func (m *Metrics) ObserveProviderCall(provider, outcome string, elapsed time.Duration, tokens int) {
	if m == nil {
		return
	}
	if provider == "" {
		provider = "unknown"
	}
	m.ProviderRequests.WithLabelValues(provider, outcome).Inc()
	m.ProviderDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	if tokens > 0 {
		m.ProviderTokens.WithLabelValues(provider).Add(float64(tokens))
	}
}

// RecordScan counts files included by a scan.
func (m *Metrics) RecordScan(files int) {
	if m == nil {
		return
	}
	m.ScannedFiles.Add(float64(files))
}

// RecordContext notes a built context.
func (m *Metrics) RecordContext(truncated bool) {
	if m == nil || !truncated {
		return
	}
	m.ContextTruncated.Inc()
}

// IncActiveSessions increments the active session gauge.
func (m *Metrics) IncActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Inc()
}

// DecActiveSessions decrements the active session gauge.
func (m *Metrics) DecActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Dec()
}

// RecordTransportError records a transport-level error.
func (m *Metrics) RecordTransportError(transport, reason string) {
	if m == nil {
		return
	}
	if transport == "" {
		transport = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	m.TransportErrs.WithLabelValues(transport, reason).Inc()
}
