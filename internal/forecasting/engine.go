// Package forecasting derives predictions of recurring issues from the
// report history and manages their lifecycle.
package forecasting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patrickwarner/nest/internal/apperr"
	"github.com/patrickwarner/nest/internal/models"
	"github.com/patrickwarner/nest/internal/notify"
	"github.com/patrickwarner/nest/internal/observability"
)

// Batch parameters.
const (
	HistoryWindow   = 90 * 24 * time.Hour
	PredictedWindow = 30 * 24 * time.Hour
	MinReports      = 3
	DefaultRadius   = 500.0

	DefaultMinProbability = 0.5
)

// Store is the persistence the engine needs.
type Store interface {
	QueryReports(ctx context.Context, f models.ReportFilter, p models.Page) ([]*models.Report, int, error)
	models.PredictionStore
}

// Engine generates and serves predictions.
type Engine struct {
	Store    Store
	Notifier *notify.Dispatcher
	Logger   *zap.Logger
	Metrics  observability.MetricsRegistry

	now   func() time.Time
	newID func() string
}

// NewEngine creates a forecasting engine. notifier may be nil.
func NewEngine(store Store, notifier *notify.Dispatcher, logger *zap.Logger, metrics observability.MetricsRegistry) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Engine{
		Store:    store,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  metrics,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// probability grows with the report count and is capped at 0.95. Values
// are kept to two decimals so severity bands are not skewed by float error.
func probability(count int) float64 {
	p := math.Min(0.5+0.1*float64(count), 0.95)
	return math.Round(p*100) / 100
}

func severityFor(p float64) models.Severity {
	switch {
	case p > 0.9:
		return models.SeverityCritical
	case p > 0.8:
		return models.SeverityHigh
	default:
		return models.SeverityMedium
	}
}

func (e *Engine) predictionFor(h *Hotspot, now time.Time) *models.Prediction {
	p := probability(len(h.ReportIDs))
	return &models.Prediction{
		ID:          e.newID(),
		Type:        h.Category,
		Location:    h.Location,
		Radius:      DefaultRadius,
		Probability: p,
		Confidence:  math.Round((p-0.1)*100) / 100,
		Severity:    severityFor(p),
		Factors: []models.Factor{
			{Name: "historical_reports", Weight: 0.8},
			{Name: "frequency", Weight: 0.6},
		},
		HistoricalData: models.HistoricalData{
			ReportCount: len(h.ReportIDs),
			TimeFrame:   "last_90_days",
			Pattern:     "recurring",
		},
		PredictedTimeFrame: models.TimeFrame{Start: now, End: now.Add(PredictedWindow)},
		Status:             models.PredictionActive,
		RelatedReports:     append([]string(nil), h.ReportIDs...),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Generate runs one prediction batch over the trailing history window and
// tells staff when anything was produced.
func (e *Engine) Generate(ctx context.Context) ([]*models.Prediction, error) {
	start := time.Now()
	now := e.now().UTC()
	reports, err := e.loadHistory(ctx, now.Add(-HistoryWindow))
	if err != nil {
		return nil, fmt.Errorf("load report history: %w", err)
	}

	predictions := make([]*models.Prediction, 0)
	for _, h := range groupHotspots(reports) {
		if len(h.ReportIDs) < MinReports {
			continue
		}
		predictions = append(predictions, e.predictionFor(h, now))
	}

	logger := e.Logger.With(zap.Int("reports", len(reports)), zap.Int("predictions", len(predictions)))
	if len(predictions) == 0 {
		logger.Info("prediction batch produced nothing", zap.Duration("took", time.Since(start)))
		return predictions, nil
	}
	if err := e.Store.CreatePredictions(ctx, predictions); err != nil {
		return nil, fmt.Errorf("save predictions: %w", err)
	}
	e.Metrics.IncrementPredictions(len(predictions))
	logger.Info("prediction batch complete", zap.Duration("took", time.Since(start)))

	e.notifyStaff(ctx, len(predictions))
	return predictions, nil
}

func (e *Engine) notifyStaff(ctx context.Context, n int) {
	if e.Notifier == nil {
		return
	}
	staff, err := e.Notifier.Staff(ctx)
	if err != nil {
		e.Logger.Error("load prediction audience", zap.Error(err))
		return
	}
	_, err = e.Notifier.Notify(ctx, staff, notify.Request{
		Type:      models.NotificationPrediction,
		Title:     "New AI Predictions Generated",
		Message:   fmt.Sprintf("%d new predictions have been generated based on historical data.", n),
		RelatedTo: models.RelatedTo{Model: models.RelatedSystem, ID: "predictions"},
		Priority:  models.PriorityNormal,
	})
	if err != nil {
		e.Logger.Error("notify staff of predictions", zap.Error(err))
		return
	}
	e.Notifier.Broadcast(notify.UserIDs(staff), notify.EventNewPredictions, map[string]any{"count": n})
}

// ListQuery filters a prediction listing. An empty Status means active; a
// nil MinProbability means DefaultMinProbability.
type ListQuery struct {
	Status         models.PredictionStatus
	Type           models.Category
	MinProbability *float64
}

// PredictionPage is one page of predictions, most probable first.
type PredictionPage struct {
	Predictions []*models.Prediction `json:"data"`
	Pagination  models.Pagination    `json:"pagination"`
}

// List returns predictions matching q.
func (e *Engine) List(ctx context.Context, q ListQuery, p models.Page) (PredictionPage, error) {
	f := models.PredictionFilter{Status: q.Status, Type: q.Type, MinProbability: DefaultMinProbability}
	if f.Status == "" {
		f.Status = models.PredictionActive
	}
	if !f.Status.Valid() {
		return PredictionPage{}, apperr.Validation("unknown prediction status %q", q.Status)
	}
	if f.Type != "" && !f.Type.Valid() {
		return PredictionPage{}, apperr.Validation("unknown prediction type %q", q.Type)
	}
	if q.MinProbability != nil {
		if *q.MinProbability < 0 || *q.MinProbability > 1 {
			return PredictionPage{}, apperr.Validation("minProbability must be between 0 and 1")
		}
		f.MinProbability = *q.MinProbability
	}
	p = p.Normalize()
	items, total, err := e.Store.ListPredictions(ctx, f, p)
	if err != nil {
		return PredictionPage{}, fmt.Errorf("list predictions: %w", err)
	}
	if items == nil {
		items = []*models.Prediction{}
	}
	return PredictionPage{Predictions: items, Pagination: models.NewPagination(total, p)}, nil
}

// UpdateStatus records how a prediction turned out. Only the outcome
// statuses may be set.
func (e *Engine) UpdateStatus(ctx context.Context, id string, status models.PredictionStatus) (*models.Prediction, error) {
	if !status.Valid() || status == models.PredictionActive {
		return nil, apperr.Validation("status must be one of verified, resolved, false_positive")
	}
	p, err := e.Store.UpdatePredictionStatus(ctx, id, status)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("prediction")
	}
	if err != nil {
		return nil, fmt.Errorf("update prediction %s: %w", id, err)
	}
	e.Logger.Info("prediction status updated", zap.String("prediction_id", id), zap.String("status", string(status)))
	return p, nil
}
