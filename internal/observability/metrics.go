package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nest_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nest_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// reports created, labelled by category
	ReportCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nest_reports_created_total",
			Help: "Total reports submitted",
		},
		[]string{"category"},
	)

	// reports that reached the popular-report upvote threshold
	UpvoteThresholdCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nest_upvote_threshold_crossings_total",
			Help: "Total reports that crossed the popular upvote threshold",
		},
	)

	// notification deliveries per channel and outcome
	NotificationCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nest_notifications_total",
			Help: "Notification deliveries by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	// currently connected websocket clients
	RealtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nest_realtime_connections",
			Help: "Open realtime gateway connections",
		},
	)

	// realtime events handled or emitted, labelled by event name
	RealtimeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nest_realtime_events_total",
			Help: "Realtime events processed",
		},
		[]string{"event"},
	)

	RateLimitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nest_ratelimit_requests_total",
			Help: "Total rate limited operations checked per scope",
		},
		[]string{"scope"},
	)

	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nest_ratelimit_hits_total",
			Help: "Total operations rejected by the rate limiter per scope",
		},
		[]string{"scope"},
	)

	// AI completion requests labelled by outcome
	AIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nest_ai_requests_total",
			Help: "Total AI completion requests",
		},
		[]string{"outcome"},
	)

	AILatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nest_ai_request_duration_seconds",
			Help:    "Duration of AI completion requests",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	PredictionCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nest_predictions_generated_total",
			Help: "Total predictions produced by the batch job",
		},
	)

	// analytics events recorded, labelled by type
	EventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nest_events_total",
			Help: "Total report lifecycle events recorded",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		ReportCount,
		UpvoteThresholdCount,
		NotificationCount,
		RealtimeConnections,
		RealtimeEvents,
		RateLimitRequests,
		RateLimitHits,
		AIRequests,
		AILatency,
		PredictionCount,
		EventCount,
	)
}
