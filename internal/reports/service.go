// Package reports owns the report lifecycle: creation, role-gated updates,
// status transitions, upvotes, comments and attachments, and the
// notifications each of those triggers.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patrickwarner/nest/internal/ai"
	"github.com/patrickwarner/nest/internal/analytics"
	"github.com/patrickwarner/nest/internal/apperr"
	"github.com/patrickwarner/nest/internal/models"
	"github.com/patrickwarner/nest/internal/notify"
	"github.com/patrickwarner/nest/internal/observability"
	"github.com/patrickwarner/nest/internal/storage"
)

// DefaultUpvoteThreshold is the vote count at which staff are told a report
// is popular.
const DefaultUpvoteThreshold = 5

// DefaultMaxUploadBytes bounds a single attachment.
const DefaultMaxUploadBytes = 10 << 20

// Caller identifies who performs an operation.
type Caller struct {
	ID   string
	Role models.Role
}

// IsStaff reports whether the caller holds an elevated role.
func (c Caller) IsStaff() bool { return c.Role.IsStaff() }

// Store is the persistence the service needs.
type Store interface {
	models.ReportStore
	models.UserStore
}

// ImageAnalyzer inspects an uploaded image. It never fails; problems are
// folded into the returned analysis.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, category models.Category, contentType string, image []byte) ai.Analysis
}

// EventPublisher forwards report changes to out-of-process consumers.
type EventPublisher interface {
	PublishReportEvent(ctx context.Context, payload []byte) error
}

// Service implements report operations. Objects, Analyzer, Analytics and
// Events are optional.
type Service struct {
	Store     Store
	Notifier  *notify.Dispatcher
	Objects   storage.ObjectStore
	Analyzer  ImageAnalyzer
	Analytics analytics.Recorder
	Events    EventPublisher
	Logger    *zap.Logger
	Metrics   observability.MetricsRegistry

	UpvoteThreshold int
	MaxUploadBytes  int64

	now   func() time.Time
	newID func() string
}

// New constructs a Service with default thresholds.
func New(store Store, notifier *notify.Dispatcher, logger *zap.Logger, metrics observability.MetricsRegistry) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Service{
		Store:           store,
		Notifier:        notifier,
		Logger:          logger,
		Metrics:         metrics,
		UpvoteThreshold: DefaultUpvoteThreshold,
		MaxUploadBytes:  DefaultMaxUploadBytes,
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

func (s *Service) threshold() int {
	if s.UpvoteThreshold > 0 {
		return s.UpvoteThreshold
	}
	return DefaultUpvoteThreshold
}

// load fetches a report, mapping a missing row to a NotFound error.
func (s *Service) load(ctx context.Context, id string) (*models.Report, error) {
	r, err := s.Store.GetReport(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("report")
	}
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", id, err)
	}
	return r, nil
}

// storeErr classifies an error returned by a report write.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return apperr.NotFound("report")
	case errors.Is(err, models.ErrConflict):
		return apperr.Conflict("report was modified concurrently, retry")
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// canEditContent reports whether c may change a report's content fields or
// attach files to it.
func canEditContent(r *models.Report, c Caller) bool {
	return r.Reporter == c.ID || c.IsStaff()
}

func related(r *models.Report) models.RelatedTo {
	return models.RelatedTo{Model: models.RelatedReport, ID: r.ID}
}

func priorityFor(sev models.Severity) models.Priority {
	if sev == models.SeverityCritical {
		return models.PriorityHigh
	}
	return models.PriorityNormal
}

// notifyStaff sends req to every admin and moderator with in-app
// notifications enabled, followed by a realtime event. Failures are logged.
func (s *Service) notifyStaff(ctx context.Context, req notify.Request, event string, payload any) {
	if s.Notifier == nil {
		return
	}
	logger := s.Logger.With(zap.String("report_id", req.RelatedTo.ID), zap.String("type", string(req.Type)))
	staff, err := s.Notifier.Staff(ctx)
	if err != nil {
		logger.Error("load notification audience", zap.Error(err))
		return
	}
	if _, err := s.Notifier.Notify(ctx, staff, req); err != nil {
		logger.Error("notify staff", zap.Error(err))
		return
	}
	s.Notifier.Broadcast(notify.UserIDs(staff), event, payload)
}

// notifyUser sends req to one user, followed by a realtime event.
func (s *Service) notifyUser(ctx context.Context, userID string, req notify.Request, event string, payload any) {
	if s.Notifier == nil || userID == "" {
		return
	}
	if _, err := s.Notifier.NotifyUsers(ctx, []string{userID}, req); err != nil {
		s.Logger.Error("notify user", zap.String("user_id", userID),
			zap.String("report_id", req.RelatedTo.ID), zap.String("type", string(req.Type)), zap.Error(err))
		return
	}
	s.Notifier.PushRealtime(userID, event, payload)
}

// ReportChange is the message published for every report mutation.
type ReportChange struct {
	Type     string        `json:"type"`
	ReportID string        `json:"reportId"`
	UserID   string        `json:"userId"`
	Status   models.Status `json:"status,omitempty"`
	At       time.Time     `json:"at"`
}

// record writes the analytics event and publishes the change. Both are best
// effort.
func (s *Service) record(ctx context.Context, eventType string, r *models.Report, userID string) {
	logger := s.Logger.With(zap.String("event", eventType), zap.String("report_id", r.ID))
	now := s.now().UTC()
	if s.Analytics != nil {
		ev := analytics.EventFor(eventType, r, userID, analytics.ClientFromContext(ctx))
		ev.Timestamp = now
		if err := s.Analytics.RecordReportEvent(ctx, ev); err != nil && !errors.Is(err, analytics.ErrUnavailable) {
			logger.Warn("record analytics event", zap.Error(err))
		}
	}
	if s.Events != nil {
		payload, err := json.Marshal(ReportChange{Type: eventType, ReportID: r.ID, UserID: userID, Status: r.Status, At: now})
		if err != nil {
			logger.Error("encode report change", zap.Error(err))
			return
		}
		if err := s.Events.PublishReportEvent(ctx, payload); err != nil {
			logger.Warn("publish report change", zap.Error(err))
		}
	}
}
