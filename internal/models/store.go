package models

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an entity is not found in the data store
var ErrNotFound = errors.New("entity not found")

// ErrConflict is returned when a conditional write lost a race with another
// writer, e.g. a status change applied against a stale status.
var ErrConflict = errors.New("entity modified concurrently")

// ReportStore persists reports. Implementations must make ToggleUpvote and
// the Append* operations atomic with respect to concurrent callers.
type ReportStore interface {
	CreateReport(ctx context.Context, r *Report) error
	GetReport(ctx context.Context, id string) (*Report, error)
	// UpdateReport writes the mutable scalar fields of r (title, description,
	// severity, status, assignee, resolution). The write only
	// applies while the stored status still equals expectStatus; otherwise
	// ErrConflict is returned.
	UpdateReport(ctx context.Context, r *Report, expectStatus Status) error
	DeleteReport(ctx context.Context, id string) error

	// ToggleUpvote adds userID to the upvote set or removes it when already
	// present, and returns the resulting count.
	ToggleUpvote(ctx context.Context, id, userID string) (count int, added bool, err error)
	AppendComment(ctx context.Context, id string, c Comment) (*Report, error)
	AppendImage(ctx context.Context, id string, img Image) (*Report, error)
	AppendAudio(ctx context.Context, id string, a Audio) (*Report, error)
	SetAIAnalysis(ctx context.Context, id string, a *AIAnalysis) error

	QueryReports(ctx context.Context, f ReportFilter, p Page) ([]*Report, int, error)
	NearbyReports(ctx context.Context, lng, lat, maxDistance float64, limit int) ([]NearbyReport, error)
}

// UserStore persists the local mirror of identity-provider users.
type UserStore interface {
	// UpsertUser inserts u when absent. For an existing user only name, email
	// and a non-empty FCM token are refreshed; role and preferences are kept.
	UpsertUser(ctx context.Context, u *User) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetUsers(ctx context.Context, ids []string) (map[string]*User, error)
	// UsersByRole lists users holding any of roles, optionally restricted to
	// those with in-app notifications enabled.
	UsersByRole(ctx context.Context, roles []Role, appEnabledOnly bool) ([]*User, error)
	SetPresence(ctx context.Context, id string, online bool, at time.Time) error
}

// NotificationStore persists notification records.
type NotificationStore interface {
	CreateNotifications(ctx context.Context, ns []*Notification) error
	// ListNotifications returns one page of the recipient's notifications,
	// newest first, with the filtered total and the recipient's unread count.
	ListNotifications(ctx context.Context, f NotificationFilter, p Page) (items []*Notification, total, unread int, err error)
	// MarkRead flags one notification as read. ErrNotFound is returned when it
	// does not exist or belongs to another recipient.
	MarkRead(ctx context.Context, id, recipient string) error
	MarkAllRead(ctx context.Context, recipient string) (int, error)
	DeleteNotification(ctx context.Context, id, recipient string) error
	DeleteExpiredNotifications(ctx context.Context, now time.Time) (int, error)
}

// PredictionStore persists generated predictions.
type PredictionStore interface {
	CreatePredictions(ctx context.Context, ps []*Prediction) error
	ListPredictions(ctx context.Context, f PredictionFilter, p Page) ([]*Prediction, int, error)
	UpdatePredictionStatus(ctx context.Context, id string, status PredictionStatus) (*Prediction, error)
}

// Store is the full persistence surface.
type Store interface {
	ReportStore
	UserStore
	NotificationStore
	PredictionStore
}
