package analytics

import (
	"context"
	"sync"
)

var _ Recorder = (*MockAnalytics)(nil)

// MockAnalytics collects recorded events in memory for tests.
type MockAnalytics struct {
	mu     sync.Mutex
	events []ReportEvent
	Err    error
}

func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

func (m *MockAnalytics) RecordReportEvent(ctx context.Context, ev ReportEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (m *MockAnalytics) Events() []ReportEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ReportEvent(nil), m.events...)
}

// Types returns the event types in recording order.
func (m *MockAnalytics) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Type
	}
	return out
}
