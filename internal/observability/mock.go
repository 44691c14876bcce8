package observability

import (
	"sync"
	"time"
)

// MockMetricsRegistry records counter increments so tests can assert on them.
type MockMetricsRegistry struct {
	mu          sync.Mutex
	counts      map[string]int
	connections int
}

// NewMockMetricsRegistry returns an empty mock registry.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{counts: make(map[string]int)}
}

func (m *MockMetricsRegistry) inc(key string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[key] += n
}

// Count returns how many times the named counter was incremented. Keys are
// the method name without the Increment prefix joined with its labels by ':',
// e.g. "Notifications:email:failed".
func (m *MockMetricsRegistry) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

// Connections returns the current realtime connection gauge value.
func (m *MockMetricsRegistry) Connections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connections
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.inc("Requests:"+endpoint+":"+method+":"+status, 1)
}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementReports(category string)                                     { m.inc("Reports:"+category, 1) }
func (m *MockMetricsRegistry) IncrementUpvoteThreshold()                                            { m.inc("UpvoteThreshold", 1) }
func (m *MockMetricsRegistry) IncrementNotifications(channel, outcome string) {
	m.inc("Notifications:"+channel+":"+outcome, 1)
}
func (m *MockMetricsRegistry) AddRealtimeConnections(delta int) {
	m.mu.Lock()
	m.connections += delta
	m.mu.Unlock()
}
func (m *MockMetricsRegistry) IncrementRealtimeEvents(event string)     { m.inc("RealtimeEvents:"+event, 1) }
func (m *MockMetricsRegistry) IncrementRateLimitRequests(scope string) { m.inc("RateLimitRequests:"+scope, 1) }
func (m *MockMetricsRegistry) IncrementRateLimitHits(scope string)     { m.inc("RateLimitHits:"+scope, 1) }
func (m *MockMetricsRegistry) IncrementAIRequests(outcome string)      { m.inc("AIRequests:"+outcome, 1) }
func (m *MockMetricsRegistry) RecordAILatency(duration time.Duration)  {}
func (m *MockMetricsRegistry) IncrementPredictions(n int)              { m.inc("Predictions", n) }
func (m *MockMetricsRegistry) IncrementEvent(eventType string)         { m.inc("Event:"+eventType, 1) }
