package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ride_negotiation"

var (
	MatchLatency         = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "match_latency_seconds", Help: "Candidate driver ranking latency seconds"})
	LocationUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "driver_location_updates_total", Help: "Driver location updates accepted"})

	RideTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Ride state transitions by target status"},
		[]string{"status"},
	)
	OffersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "offers_total", Help: "Price offers by outcome"},
		[]string{"outcome"},
	)
	WalletAppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "wallet_appends_total", Help: "Ledger rows appended by transaction type"},
		[]string{"type"},
	)
	WalletConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "wallet_append_conflicts_total", Help: "Ledger appends that lost the sequence race and retried"},
	)
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limited_total", Help: "Requests rejected by the rate limiter"},
		[]string{"class"},
	)
	PushFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "notification_push_failures_total", Help: "Failed notification pushes by channel"},
		[]string{"channel"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
