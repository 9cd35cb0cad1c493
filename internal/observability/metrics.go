package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchRequests    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "marketplace_ops", Name: "match_requests_total", Help: "Total match requests served"})
	CandidatesScored = promauto.NewCounter(prometheus.CounterOpts{Namespace: "marketplace_ops", Name: "candidates_scored_total", Help: "Total driver candidates scored"})
	Assignments      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "marketplace_ops", Name: "assignments_total", Help: "Total driver assignments recorded"})

	PriceQuotes      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "marketplace_ops", Name: "price_quotes_total", Help: "Total price quotes computed"})
	RuleApplications = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "marketplace_ops", Name: "rule_applications_total", Help: "Pricing rule applications by rule type"},
		[]string{"rule_type"},
	)

	FlagsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "marketplace_ops", Name: "anomaly_flags_total", Help: "Anomaly flags created by type and severity"},
		[]string{"flag_type", "severity"},
	)
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "marketplace_ops", Name: "sla_scan_duration_seconds",
		Help: "SLA scan duration", Buckets: prometheus.DefBuckets,
	})

	PayoutsProcessed = promauto.NewCounter(prometheus.CounterOpts{Namespace: "marketplace_ops", Name: "payouts_processed_total", Help: "Total payouts settled"})
	PayoutAmount     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "marketplace_ops", Name: "payout_amount_total", Help: "Total currency amount paid out"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "marketplace_ops", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marketplace_ops",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
