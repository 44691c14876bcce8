// Package notify persists notifications and fans them out over the realtime,
// email and push channels.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patrickwarner/nest/internal/email"
	"github.com/patrickwarner/nest/internal/models"
	"github.com/patrickwarner/nest/internal/observability"
	"github.com/patrickwarner/nest/internal/push"
)

// Realtime event names emitted to user rooms.
const (
	EventNotification   = "notification"
	EventNewReport      = "new_report"
	EventReportResolved = "report_resolved"
	EventPopularReport  = "popular_report"
	EventNewComment     = "new_comment"
	EventReportAssigned = "report_assigned"
	EventNewPredictions = "new_predictions"
)

// DefaultTTL is how long a notification is kept before the sweep removes it.
const DefaultTTL = 30 * 24 * time.Hour

const pushTimeout = 10 * time.Second

// Emitter delivers an event to every connection in a user's room. It returns
// false when the user has no open connection.
type Emitter interface {
	EmitToUser(userID, event string, payload any) bool
}

// EmailQueue accepts messages for asynchronous delivery.
type EmailQueue interface {
	Enqueue(msg email.Message) bool
}

// Store is the persistence the dispatcher needs.
type Store interface {
	models.NotificationStore
	models.UserStore
}

// Request describes one notification to be sent to a set of users.
type Request struct {
	Type      models.NotificationType
	Title     string
	Message   string
	RelatedTo models.RelatedTo
	Priority  models.Priority
}

// Dispatcher groups the delivery channels. Emitter, Email and Pusher are
// optional.
type Dispatcher struct {
	Store   Store
	Emitter Emitter
	Email   EmailQueue
	Pusher  push.Pusher
	Logger  *zap.Logger
	Metrics observability.MetricsRegistry
	TTL     time.Duration

	now   func() time.Time
	newID func() string
}

// New constructs a Dispatcher. A zero ttl uses DefaultTTL.
func New(store Store, emitter Emitter, mail EmailQueue, pusher push.Pusher, logger *zap.Logger, metrics observability.MetricsRegistry, ttl time.Duration) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Dispatcher{
		Store:   store,
		Emitter: emitter,
		Email:   mail,
		Pusher:  pusher,
		Logger:  logger,
		Metrics: metrics,
		TTL:     ttl,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// NotifyUsers persists one notification per user id and delivers each over the
// channels the recipient opted into. Unknown user ids are skipped. Only the
// persistence step can fail; email, push and realtime failures are logged.
func (d *Dispatcher) NotifyUsers(ctx context.Context, userIDs []string, req Request) ([]*models.Notification, error) {
	ids := dedupe(userIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	users, err := d.Store.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}
	recipients := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := users[id]; ok {
			recipients = append(recipients, u)
			continue
		}
		d.Logger.Warn("notification recipient not found", zap.String("user_id", id), zap.String("type", string(req.Type)))
	}
	return d.Notify(ctx, recipients, req)
}

// Notify is NotifyUsers for already loaded recipients.
func (d *Dispatcher) Notify(ctx context.Context, recipients []*models.User, req Request) ([]*models.Notification, error) {
	if len(recipients) == 0 {
		return nil, nil
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	now := d.now().UTC()
	expires := now.Add(d.TTL)

	ns := make([]*models.Notification, len(recipients))
	for i, u := range recipients {
		exp := expires
		ns[i] = &models.Notification{
			ID:        d.newID(),
			Recipient: u.ID,
			Type:      req.Type,
			Title:     req.Title,
			Message:   req.Message,
			RelatedTo: req.RelatedTo,
			Priority:  req.Priority,
			SentVia:   channelsFor(u, d.Email != nil, d.Pusher != nil),
			CreatedAt: now,
			ExpiresAt: &exp,
		}
	}
	if err := d.Store.CreateNotifications(ctx, ns); err != nil {
		return nil, fmt.Errorf("persist notifications: %w", err)
	}

	for i, u := range recipients {
		d.deliver(ctx, u, ns[i])
	}
	return ns, nil
}

// channelsFor lists the channels a notification for u is sent on. The app
// channel is always included.
func channelsFor(u *models.User, emailOn, pushOn bool) []string {
	via := []string{models.ChannelApp}
	if emailOn && u.Preferences.Email && u.Email != "" {
		via = append(via, models.ChannelEmail)
	}
	if pushOn && u.Preferences.Push && u.FCMToken != "" {
		via = append(via, models.ChannelPush)
	}
	return via
}

func (d *Dispatcher) deliver(ctx context.Context, u *models.User, n *models.Notification) {
	logger := d.Logger.With(zap.String("notification_id", n.ID), zap.String("user_id", u.ID))
	d.PushRealtime(u.ID, EventNotification, n)
	d.Metrics.IncrementNotifications(models.ChannelApp, "sent")

	for _, ch := range n.SentVia {
		switch ch {
		case models.ChannelEmail:
			msg, err := email.Render(u.Email, n)
			if err != nil {
				d.Metrics.IncrementNotifications(models.ChannelEmail, "failed")
				logger.Error("render notification email", zap.Error(err))
				continue
			}
			if !d.Email.Enqueue(msg) {
				logger.Warn("email not queued", zap.String("type", string(n.Type)))
			}
		case models.ChannelPush:
			pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
			err := d.Pusher.Push(pctx, u.FCMToken, n)
			cancel()
			if err != nil {
				d.Metrics.IncrementNotifications(models.ChannelPush, "failed")
				logger.Warn("push delivery failed", zap.Error(err))
				continue
			}
			d.Metrics.IncrementNotifications(models.ChannelPush, "sent")
		}
	}
}

// PushRealtime emits an event to the user's room. Offline users are skipped
// silently; the persisted record remains the durable copy.
func (d *Dispatcher) PushRealtime(userID, event string, payload any) {
	if d.Emitter == nil {
		return
	}
	if !d.Emitter.EmitToUser(userID, event, payload) {
		d.Logger.Debug("realtime recipient offline", zap.String("user_id", userID), zap.String("event", event))
	}
}

// Broadcast emits the same event to several user rooms.
func (d *Dispatcher) Broadcast(userIDs []string, event string, payload any) {
	for _, id := range dedupe(userIDs) {
		d.PushRealtime(id, event, payload)
	}
}

// Staff returns the admins and moderators with in-app notifications enabled.
func (d *Dispatcher) Staff(ctx context.Context) ([]*models.User, error) {
	users, err := d.Store.UsersByRole(ctx, []models.Role{models.RoleAdmin, models.RoleModerator}, true)
	if err != nil {
		return nil, fmt.Errorf("load staff: %w", err)
	}
	return users, nil
}

// UserIDs extracts the ids of users.
func UserIDs(users []*models.User) []string {
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// SweepExpired removes notifications whose expiry has passed.
func (d *Dispatcher) SweepExpired(ctx context.Context) (int, error) {
	n, err := d.Store.DeleteExpiredNotifications(ctx, d.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired notifications: %w", err)
	}
	if n > 0 {
		d.Logger.Info("expired notifications removed", zap.Int("count", n))
	}
	return n, nil
}
