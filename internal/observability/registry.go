package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// Components receive it by injection instead of touching the Prometheus
// globals directly.
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Report lifecycle metrics
	IncrementReports(category string)
	IncrementUpvoteThreshold()

	// Notification delivery metrics
	IncrementNotifications(channel, outcome string)

	// Realtime gateway metrics
	AddRealtimeConnections(delta int)
	IncrementRealtimeEvents(event string)

	// Rate limiting metrics
	IncrementRateLimitRequests(scope string)
	IncrementRateLimitHits(scope string)

	// AI collaborator metrics
	IncrementAIRequests(outcome string)
	RecordAILatency(duration time.Duration)

	IncrementPredictions(n int)
	IncrementEvent(eventType string)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementReports(category string) {
	ReportCount.WithLabelValues(category).Inc()
}

func (r *PrometheusRegistry) IncrementUpvoteThreshold() {
	UpvoteThresholdCount.Inc()
}

func (r *PrometheusRegistry) IncrementNotifications(channel, outcome string) {
	NotificationCount.WithLabelValues(channel, outcome).Inc()
}

func (r *PrometheusRegistry) AddRealtimeConnections(delta int) {
	RealtimeConnections.Add(float64(delta))
}

func (r *PrometheusRegistry) IncrementRealtimeEvents(event string) {
	RealtimeEvents.WithLabelValues(event).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitRequests(scope string) {
	RateLimitRequests.WithLabelValues(scope).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(scope string) {
	RateLimitHits.WithLabelValues(scope).Inc()
}

func (r *PrometheusRegistry) IncrementAIRequests(outcome string) {
	AIRequests.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordAILatency(duration time.Duration) {
	AILatency.Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementPredictions(n int) {
	PredictionCount.Add(float64(n))
}

func (r *PrometheusRegistry) IncrementEvent(eventType string) {
	EventCount.WithLabelValues(eventType).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementReports(category string)                                     {}
func (r *NoOpRegistry) IncrementUpvoteThreshold()                                            {}
func (r *NoOpRegistry) IncrementNotifications(channel, outcome string)                       {}
func (r *NoOpRegistry) AddRealtimeConnections(delta int)                                     {}
func (r *NoOpRegistry) IncrementRealtimeEvents(event string)                                 {}
func (r *NoOpRegistry) IncrementRateLimitRequests(scope string)                              {}
func (r *NoOpRegistry) IncrementRateLimitHits(scope string)                                  {}
func (r *NoOpRegistry) IncrementAIRequests(outcome string)                                   {}
func (r *NoOpRegistry) RecordAILatency(duration time.Duration)                               {}
func (r *NoOpRegistry) IncrementPredictions(n int)                                           {}
func (r *NoOpRegistry) IncrementEvent(eventType string)                                      {}
