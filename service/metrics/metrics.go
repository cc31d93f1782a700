package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal    *prometheus.CounterVec
	solanaRPCCallDuration  *prometheus.HistogramVec
	solanaRPCRateLimitHits *prometheus.CounterVec

	// Paymaster Metrics
	paymasterCallsTotal   *prometheus.CounterVec
	paymasterCallDuration *prometheus.HistogramVec

	// Transfer Metrics
	transfersSubmittedTotal *prometheus.CounterVec
	transferDuration        *prometheus.HistogramVec
	transfersRejectedTotal  *prometheus.CounterVec

	// Balance Metrics
	balanceRefreshesTotal  *prometheus.CounterVec
	balanceRefreshDuration *prometheus.HistogramVec

	// Workflow Metrics
	refreshWorkflowDuration        *prometheus.HistogramVec
	refreshWorkflowExecutionsTotal *prometheus.CounterVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections *prometheus.GaugeVec
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),

		// Paymaster Metrics
		paymasterCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paymaster_calls_total",
				Help: "Total number of paymaster API calls by operation and status",
			},
			[]string{"operation", "status"},
		),
		paymasterCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paymaster_call_duration_seconds",
				Help:    "Duration of paymaster API calls in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"operation"},
		),

		// Transfer Metrics
		transfersSubmittedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfers_submitted_total",
				Help: "Total number of transfer submissions by terminal outcome",
			},
			[]string{"outcome"},
		),
		transferDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transfer_duration_seconds",
				Help:    "End-to-end duration of transfer submissions in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
		transfersRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfers_rejected_total",
				Help: "Total number of transfers rejected before any network call",
			},
			[]string{"reason"},
		),

		// Balance Metrics
		balanceRefreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "balance_refreshes_total",
				Help: "Total number of balance refreshes by trigger and status",
			},
			[]string{"trigger", "status"},
		),
		balanceRefreshDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "balance_refresh_duration_seconds",
				Help:    "Duration of balance refreshes in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"trigger"},
		),

		// Workflow Metrics
		refreshWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "refresh_workflow_duration_seconds",
				Help:    "Duration of balance refresh workflow execution in seconds",
				Buckets: []float64{0.5, 1, 5, 10, 30, 60},
			},
			[]string{"wallet_address", "status"},
		),
		refreshWorkflowExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "refresh_workflow_executions_total",
				Help: "Total number of balance refresh workflow executions",
			},
			[]string{"wallet_address", "status"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
			[]string{"wallet_address"},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"wallet_address", "event_type"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// Paymaster metric helpers

// RecordPaymasterCall records a paymaster API call with duration.
func (m *Metrics) RecordPaymasterCall(operation, status string, duration float64) {
	m.paymasterCallsTotal.WithLabelValues(operation, status).Inc()
	m.paymasterCallDuration.WithLabelValues(operation).Observe(duration)
}

// Transfer metric helpers

// RecordTransferSubmitted records a transfer reaching a terminal state.
// The outcome label is "success" or the error classification code.
func (m *Metrics) RecordTransferSubmitted(outcome string, duration float64) {
	m.transfersSubmittedTotal.WithLabelValues(outcome).Inc()
	m.transferDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordTransferRejected records a transfer rejected during validation,
// before any network call was made.
func (m *Metrics) RecordTransferRejected(reason string) {
	m.transfersRejectedTotal.WithLabelValues(reason).Inc()
}

// Balance metric helpers

// RecordBalanceRefresh records a balance refresh attempt.
// The trigger label is "poll" or "manual".
func (m *Metrics) RecordBalanceRefresh(trigger, status string, duration float64) {
	m.balanceRefreshesTotal.WithLabelValues(trigger, status).Inc()
	m.balanceRefreshDuration.WithLabelValues(trigger).Observe(duration)
}

// Workflow metric helpers

// RecordWorkflowDuration records workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(walletAddress, status string, duration float64) {
	m.refreshWorkflowDuration.WithLabelValues(walletAddress, status).Observe(duration)
	m.refreshWorkflowExecutionsTotal.WithLabelValues(walletAddress, status).Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(walletAddress string, delta float64) {
	m.sseActiveConnections.WithLabelValues(walletAddress).Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(walletAddress, eventType string) {
	m.sseEventsSent.WithLabelValues(walletAddress, eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
