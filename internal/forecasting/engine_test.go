package forecasting

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/nest/internal/apperr"
	"github.com/patrickwarner/nest/internal/models"
	"github.com/patrickwarner/nest/internal/notify"
	"github.com/patrickwarner/nest/internal/observability"
)

var testNow = time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)

type countingEmitter struct {
	mu     sync.Mutex
	events map[string][]any
}

func (e *countingEmitter) EmitToUser(userID, event string, payload any) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.events == nil {
		e.events = make(map[string][]any)
	}
	e.events[event] = append(e.events[event], payload)
	return true
}

func newTestEngine(t *testing.T) (*Engine, *models.InMemoryStore, *countingEmitter, *observability.MockMetricsRegistry) {
	t.Helper()
	store := models.NewInMemoryStore()
	for _, u := range []*models.User{
		{ID: "admin", Role: models.RoleAdmin, Preferences: models.NotificationPreferences{App: true}},
		{ID: "mod", Role: models.RoleModerator, Preferences: models.NotificationPreferences{App: true}},
		{ID: "res", Role: models.RoleResident, Preferences: models.DefaultPreferences},
	} {
		_, err := store.UpsertUser(context.Background(), u)
		require.NoError(t, err)
	}
	logger := zaptest.NewLogger(t)
	metrics := observability.NewMockMetricsRegistry()
	emitter := &countingEmitter{}
	e := NewEngine(store, notify.New(store, emitter, nil, nil, logger, metrics, 0), logger, metrics)
	e.now = func() time.Time { return testNow }
	n := 0
	e.newID = func() string { n++; return fmt.Sprintf("pred-%d", n) }
	return e, store, emitter, metrics
}

func seedReports(t *testing.T, store *models.InMemoryStore, n int, cat models.Category, lng, lat float64, age time.Duration) {
	t.Helper()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-%v-%v-%d-%d", cat, lng, lat, int(age.Hours()), i)
		require.NoError(t, store.CreateReport(context.Background(), &models.Report{
			ID:        id,
			Title:     id,
			Category:  cat,
			Severity:  models.SeverityLow,
			Status:    models.StatusPending,
			Location:  models.Location{Type: "Point", Coordinates: [2]float64{lng, lat}, Address: "Elm St"},
			Reporter:  "res",
			CreatedAt: testNow.Add(-age),
			UpdatedAt: testNow.Add(-age),
		}))
	}
}

func TestProbabilityAndSeverity(t *testing.T) {
	tests := []struct {
		count    int
		p        float64
		severity models.Severity
	}{
		{3, 0.8, models.SeverityMedium},
		{4, 0.9, models.SeverityHigh},
		{5, 0.95, models.SeverityCritical},
		{40, 0.95, models.SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d reports", tt.count), func(t *testing.T) {
			p := probability(tt.count)
			assert.Equal(t, tt.p, p)
			assert.Equal(t, tt.severity, severityFor(p))
		})
	}
}

func TestGenerate(t *testing.T) {
	e, store, emitter, metrics := newTestEngine(t)
	day := 24 * time.Hour

	// four water reports within rounding distance of each other
	seedReports(t, store, 2, models.CategoryWater, -122.40001, 37.80001, 2*day)
	seedReports(t, store, 2, models.CategoryWater, -122.40002, 37.79999, 10*day)
	// same place, different category, too few
	seedReports(t, store, 2, models.CategoryNoise, -122.40001, 37.80001, day)
	// enough reports but outside the window
	seedReports(t, store, 3, models.CategoryPothole, 10, 10, 100*day)
	// three potholes elsewhere
	seedReports(t, store, 3, models.CategoryPothole, 20, 20, 5*day)

	preds, err := e.Generate(context.Background())
	require.NoError(t, err)
	require.Len(t, preds, 2)

	water := preds[0]
	assert.Equal(t, models.CategoryWater, water.Type)
	assert.Equal(t, 0.9, water.Probability)
	assert.Equal(t, 0.8, water.Confidence)
	assert.Equal(t, models.SeverityHigh, water.Severity)
	assert.Equal(t, 500.0, water.Radius)
	assert.Len(t, water.RelatedReports, 4)
	assert.Equal(t, models.HistoricalData{ReportCount: 4, TimeFrame: "last_90_days", Pattern: "recurring"}, water.HistoricalData)
	assert.Equal(t, models.TimeFrame{Start: testNow, End: testNow.Add(30 * day)}, water.PredictedTimeFrame)
	assert.Equal(t, models.PredictionActive, water.Status)
	assert.Equal(t, "Elm St", water.Location.Address)

	pothole := preds[1]
	assert.Equal(t, models.CategoryPothole, pothole.Type)
	assert.Equal(t, models.SeverityMedium, pothole.Severity)

	stored, total, err := store.ListPredictions(context.Background(), models.PredictionFilter{}, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, stored, 2)
	assert.Equal(t, 2, metrics.Count("Predictions"))

	for _, staff := range []string{"admin", "mod"} {
		ns, _, _, err := store.ListNotifications(context.Background(), models.NotificationFilter{Recipient: staff}, models.Page{})
		require.NoError(t, err)
		require.Len(t, ns, 1)
		assert.Equal(t, models.NotificationPrediction, ns[0].Type)
		assert.Equal(t, "New AI Predictions Generated", ns[0].Title)
		assert.Equal(t, "2 new predictions have been generated based on historical data.", ns[0].Message)
		assert.Equal(t, models.RelatedSystem, ns[0].RelatedTo.Model)
	}
	ns, _, _, err := store.ListNotifications(context.Background(), models.NotificationFilter{Recipient: "res"}, models.Page{})
	require.NoError(t, err)
	assert.Empty(t, ns)
	assert.Equal(t, []any{map[string]any{"count": 2}, map[string]any{"count": 2}}, emitter.events[notify.EventNewPredictions])
}

func TestGenerateNothing(t *testing.T) {
	e, store, emitter, _ := newTestEngine(t)
	seedReports(t, store, 2, models.CategoryWater, 1, 1, time.Hour)

	preds, err := e.Generate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, preds)
	assert.Empty(t, emitter.events)
}

func TestLoadHistoryPages(t *testing.T) {
	e, store, _, _ := newTestEngine(t)
	seedReports(t, store, models.MaxLimit+7, models.CategoryWater, 1, 1, time.Hour)

	reports, err := e.loadHistory(context.Background(), testNow.Add(-HistoryWindow))
	require.NoError(t, err)
	assert.Len(t, reports, models.MaxLimit+7)
}

func TestList(t *testing.T) {
	e, store, _, _ := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, store.CreatePredictions(ctx, []*models.Prediction{
		{ID: "a", Type: models.CategoryWater, Probability: 0.95, Status: models.PredictionActive},
		{ID: "b", Type: models.CategoryNoise, Probability: 0.8, Status: models.PredictionActive},
		{ID: "c", Type: models.CategoryWater, Probability: 0.4, Status: models.PredictionActive},
		{ID: "d", Type: models.CategoryWater, Probability: 0.9, Status: models.PredictionVerified},
	}))

	page, err := e.List(ctx, ListQuery{}, models.Page{})
	require.NoError(t, err)
	require.Len(t, page.Predictions, 2)
	assert.Equal(t, "a", page.Predictions[0].ID)
	assert.Equal(t, "b", page.Predictions[1].ID)

	zero := 0.0
	page, err = e.List(ctx, ListQuery{Type: models.CategoryWater, MinProbability: &zero}, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Pagination.Total)

	page, err = e.List(ctx, ListQuery{Status: models.PredictionVerified}, models.Page{})
	require.NoError(t, err)
	require.Len(t, page.Predictions, 1)
	assert.Equal(t, "d", page.Predictions[0].ID)

	_, err = e.List(ctx, ListQuery{Status: "maybe"}, models.Page{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	bad := 1.5
	_, err = e.List(ctx, ListQuery{MinProbability: &bad}, models.Page{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestUpdateStatus(t *testing.T) {
	e, store, _, _ := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, store.CreatePredictions(ctx, []*models.Prediction{{ID: "a", Status: models.PredictionActive}}))

	p, err := e.UpdateStatus(ctx, "a", models.PredictionFalsePositive)
	require.NoError(t, err)
	assert.Equal(t, models.PredictionFalsePositive, p.Status)

	_, err = e.UpdateStatus(ctx, "a", models.PredictionActive)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = e.UpdateStatus(ctx, "missing", models.PredictionVerified)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
