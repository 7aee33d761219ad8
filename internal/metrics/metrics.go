package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ethnolens_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ethnolens_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ethnolens_analyses_total",
			Help: "Total number of analysis requests sent to the model.",
		},
		[]string{"kind", "status"},
	)

	QuotaDenialsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ethnolens_quota_denials_total",
			Help: "Total number of requests denied by the usage limit.",
		},
	)

	ConfirmationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ethnolens_confirmations_total",
			Help: "Total number of pending-operation confirmations.",
		},
		[]string{"status"},
	)

	PendingSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ethnolens_pending_swept_total",
			Help: "Total number of orphaned pending operations deleted by the sweeper.",
		},
	)

	PremiumInterestTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ethnolens_premium_interest_total",
			Help: "Total number of premium upsell clicks logged.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AnalysesTotal,
		QuotaDenialsTotal,
		ConfirmationsTotal,
		PendingSweptTotal,
		PremiumInterestTotal,
	)
}
