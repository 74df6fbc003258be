package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartLinesAddedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_lines_added_total",
		Help: "Total number of add-to-cart operations accepted",
	}, []string{"mode"})

	CartRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_rejections_total",
		Help: "Total number of cart mutations rejected, by error code",
	}, []string{"code"})

	CartLinesPurged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_lines_purged_total",
		Help: "Total number of persisted cart lines dropped or merged during normalization",
	}, []string{"reason"})

	CartReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_reconciliations_total",
		Help: "Total number of guest-to-account cart reconciliations",
	}, []string{"outcome"})

	CartReconciledLinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_reconciled_lines_total",
		Help: "Total number of guest lines replayed into account carts",
	}, []string{"result"})

	CartReconcileLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cart_reconcile_latency_seconds",
		Help:    "Latency of a full guest-to-account reconciliation",
		Buckets: prometheus.DefBuckets,
	})

	RemoteCartRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "remote_cart_request_duration_seconds",
		Help:    "Latency of marketplace cart API calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})

	CartCacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_cache_lookups_total",
		Help: "Total number of cart view cache lookups",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
