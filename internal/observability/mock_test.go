package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMockMetricsRegistryCounts(t *testing.T) {
	m := &MockMetricsRegistry{}
	m.IncrementNotifications("email", "failed")
	m.IncrementNotifications("email", "failed")
	m.IncrementNotifications("app", "sent")
	m.IncrementPredictions(3)
	m.AddRealtimeConnections(2)
	m.AddRealtimeConnections(-1)

	assert.Equal(t, 2, m.Count("Notifications:email:failed"))
	assert.Equal(t, 1, m.Count("Notifications:app:sent"))
	assert.Equal(t, 3, m.Count("Predictions"))
	assert.Equal(t, 0, m.Count("UpvoteThreshold"))
	assert.Equal(t, 1, m.Connections())
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(1).Description(), "AlwaysOn")
	assert.Contains(t, samplerFor(0).Description(), "AlwaysOff")
	assert.Contains(t, samplerFor(0.5).Description(), "TraceIDRatioBased")
}
