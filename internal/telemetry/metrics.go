// Package telemetry holds the engine's Prometheus metrics.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobTransitions      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "skybid_job_transitions_total", Help: "Job state transitions by target status"}, []string{"status"})
	BidsSubmitted       = prometheus.NewCounter(prometheus.CounterOpts{Name: "skybid_bids_submitted_total", Help: "Bids accepted into the ledger"})
	AcceptConflicts     = prometheus.NewCounter(prometheus.CounterOpts{Name: "skybid_accept_conflicts_total", Help: "Bid acceptances that lost a race"})
	SettlementItems     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "skybid_settlement_items_total", Help: "Settlement batch items by outcome"}, []string{"outcome"})
	SettlementBatchTime = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "skybid_settlement_batch_seconds", Help: "Settlement batch duration", Buckets: prometheus.DefBuckets})
	GatewayLatency      = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "skybid_gateway_request_seconds", Help: "Funds gateway call latency", Buckets: prometheus.DefBuckets}, []string{"operation", "result"})
	OutboxDispatched    = prometheus.NewCounter(prometheus.CounterOpts{Name: "skybid_outbox_dispatched_total", Help: "Outbox events delivered to the audit sink"})
	OutboxFailures      = prometheus.NewCounter(prometheus.CounterOpts{Name: "skybid_outbox_failures_total", Help: "Outbox dispatch attempts that hit a sink error"})
	ReconciliationFlags = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "skybid_reconciliation_flags_total", Help: "Records flagged for manual reconciliation"}, []string{"entity"})
	RateLimitRejects    = prometheus.NewCounter(prometheus.CounterOpts{Name: "skybid_rate_limit_rejects_total", Help: "Requests rejected by rate limiter"})
	HTTPRequests        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "skybid_http_requests_total", Help: "HTTP requests by route pattern and status class"}, []string{"method", "route", "class"})
	HTTPDuration        = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "skybid_http_request_seconds", Help: "HTTP request latency by route pattern", Buckets: prometheus.DefBuckets}, []string{"route"})
	PanicsRecovered     = prometheus.NewCounter(prometheus.CounterOpts{Name: "skybid_http_panics_total", Help: "Handler panics caught by the recovery middleware"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobTransitions,
			BidsSubmitted,
			AcceptConflicts,
			SettlementItems,
			SettlementBatchTime,
			GatewayLatency,
			OutboxDispatched,
			OutboxFailures,
			ReconciliationFlags,
			RateLimitRejects,
			HTTPRequests,
			HTTPDuration,
			PanicsRecovered,
		)
	})
	return promhttp.Handler()
}
