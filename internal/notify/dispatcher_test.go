package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/patrickwarner/nest/internal/email"
	"github.com/patrickwarner/nest/internal/models"
	"github.com/patrickwarner/nest/internal/observability"
)

type emitted struct {
	UserID  string
	Event   string
	Payload any
}

type fakeEmitter struct {
	mu     sync.Mutex
	online map[string]bool
	events []emitted
}

func (f *fakeEmitter) EmitToUser(userID, event string, payload any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online[userID] {
		return false
	}
	f.events = append(f.events, emitted{userID, event, payload})
	return true
}

type fakeQueue struct {
	msgs []email.Message
	full bool
}

func (f *fakeQueue) Enqueue(m email.Message) bool {
	if f.full {
		return false
	}
	f.msgs = append(f.msgs, m)
	return true
}

type fakePusher struct {
	tokens []string
	err    error
}

func (f *fakePusher) Push(_ context.Context, token string, _ *models.Notification) error {
	f.tokens = append(f.tokens, token)
	return f.err
}

type failingStore struct{ *models.InMemoryStore }

func (failingStore) CreateNotifications(context.Context, []*models.Notification) error {
	return errors.New("db down")
}

func seedUsers(t *testing.T, store *models.InMemoryStore, users ...*models.User) {
	t.Helper()
	for _, u := range users {
		_, err := store.UpsertUser(context.Background(), u)
		require.NoError(t, err)
	}
}

func newTestDispatcher(t *testing.T, store Store, em *fakeEmitter, q *fakeQueue, p *fakePusher) (*Dispatcher, *observability.MockMetricsRegistry) {
	t.Helper()
	metrics := observability.NewMockMetricsRegistry()
	d := New(store, nil, nil, nil, zaptest.NewLogger(t), metrics, time.Hour)
	if em != nil {
		d.Emitter = em
	}
	if q != nil {
		d.Email = q
	}
	if p != nil {
		d.Pusher = p
	}
	d.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	seq := 0
	d.newID = func() string {
		seq++
		return fmt.Sprintf("n%d", seq)
	}
	return d, metrics
}

func TestNotifyUsersChannels(t *testing.T) {
	store := models.NewInMemoryStore()
	seedUsers(t, store,
		&models.User{ID: "app-only", Email: "a@x.io", Preferences: models.NotificationPreferences{App: true}},
		&models.User{ID: "mail", Email: "m@x.io", Preferences: models.NotificationPreferences{App: true, Email: true}},
		&models.User{ID: "push", Preferences: models.NotificationPreferences{Push: true}, FCMToken: "tok"},
		&models.User{ID: "push-no-token", Preferences: models.NotificationPreferences{Push: true}},
	)
	em := &fakeEmitter{online: map[string]bool{"mail": true}}
	q := &fakeQueue{}
	p := &fakePusher{}
	d, metrics := newTestDispatcher(t, store, em, q, p)

	ns, err := d.NotifyUsers(context.Background(), []string{"app-only", "mail", "push", "push-no-token", "mail", "ghost"}, Request{
		Type:      models.NotificationComment,
		Title:     "New Comment on Your Report",
		Message:   "hi",
		RelatedTo: models.RelatedTo{Model: models.RelatedReport, ID: "r1"},
	})
	require.NoError(t, err)
	require.Len(t, ns, 4)

	via := map[string][]string{}
	for _, n := range ns {
		via[n.Recipient] = n.SentVia
		assert.Equal(t, models.PriorityNormal, n.Priority)
		require.NotNil(t, n.ExpiresAt)
		assert.Equal(t, n.CreatedAt.Add(time.Hour), *n.ExpiresAt)
	}
	assert.Equal(t, []string{"app"}, via["app-only"])
	assert.Equal(t, []string{"app", "email"}, via["mail"])
	assert.Equal(t, []string{"app", "push"}, via["push"])
	assert.Equal(t, []string{"app"}, via["push-no-token"])

	require.Len(t, q.msgs, 1)
	assert.Equal(t, "m@x.io", q.msgs[0].To)
	assert.Equal(t, []string{"tok"}, p.tokens)

	require.Len(t, em.events, 1)
	assert.Equal(t, "mail", em.events[0].UserID)
	assert.Equal(t, EventNotification, em.events[0].Event)

	items, total, unread, err := store.ListNotifications(context.Background(), models.NotificationFilter{Recipient: "push"}, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, unread)
	assert.Equal(t, "New Comment on Your Report", items[0].Title)

	assert.Equal(t, 4, metrics.Count("Notifications:app:sent"))
	assert.Equal(t, 1, metrics.Count("Notifications:push:sent"))
}

func TestPushFailureIsSwallowed(t *testing.T) {
	store := models.NewInMemoryStore()
	seedUsers(t, store, &models.User{ID: "u1", Preferences: models.NotificationPreferences{App: true, Push: true}, FCMToken: "tok"})
	d, metrics := newTestDispatcher(t, store, &fakeEmitter{}, nil, &fakePusher{err: errors.New("unregistered")})

	ns, err := d.NotifyUsers(context.Background(), []string{"u1"}, Request{Type: models.NotificationSystem, Title: "t"})
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, 1, metrics.Count("Notifications:push:failed"))
}

func TestNotifyPersistFailure(t *testing.T) {
	mem := models.NewInMemoryStore()
	seedUsers(t, mem, &models.User{ID: "u1", Preferences: models.DefaultPreferences})
	em := &fakeEmitter{online: map[string]bool{"u1": true}}
	d, _ := newTestDispatcher(t, failingStore{mem}, em, &fakeQueue{}, nil)

	_, err := d.NotifyUsers(context.Background(), []string{"u1"}, Request{Type: models.NotificationSystem})
	require.Error(t, err)
	assert.Empty(t, em.events, "nothing is delivered when the record was not stored")
}

func TestNotifyNoRecipients(t *testing.T) {
	d, _ := newTestDispatcher(t, models.NewInMemoryStore(), &fakeEmitter{}, nil, nil)
	ns, err := d.NotifyUsers(context.Background(), nil, Request{})
	require.NoError(t, err)
	assert.Nil(t, ns)
}

func TestStaff(t *testing.T) {
	store := models.NewInMemoryStore()
	seedUsers(t, store,
		&models.User{ID: "admin", Role: models.RoleAdmin, Preferences: models.NotificationPreferences{App: true}},
		&models.User{ID: "mod", Role: models.RoleModerator, Preferences: models.NotificationPreferences{App: true}},
		&models.User{ID: "mod-muted", Role: models.RoleModerator},
		&models.User{ID: "res", Role: models.RoleResident, Preferences: models.NotificationPreferences{App: true}},
	)
	d, _ := newTestDispatcher(t, store, nil, nil, nil)
	staff, err := d.Staff(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "mod"}, UserIDs(staff))
}

func TestBroadcastDedupes(t *testing.T) {
	em := &fakeEmitter{online: map[string]bool{"a": true, "b": true}}
	d, _ := newTestDispatcher(t, models.NewInMemoryStore(), em, nil, nil)
	d.Broadcast([]string{"a", "b", "a", "", "c"}, EventNewReport, map[string]string{"id": "r1"})
	require.Len(t, em.events, 2)
	assert.Equal(t, "a", em.events[0].UserID)
	assert.Equal(t, "b", em.events[1].UserID)
}

func TestSweepExpired(t *testing.T) {
	store := models.NewInMemoryStore()
	seedUsers(t, store, &models.User{ID: "u1", Preferences: models.NotificationPreferences{App: true}})
	d, _ := newTestDispatcher(t, store, nil, nil, nil)

	_, err := d.NotifyUsers(context.Background(), []string{"u1"}, Request{Type: models.NotificationSystem, Title: "old"})
	require.NoError(t, err)

	n, err := d.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	d.now = func() time.Time { return time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC) }
	n, err = d.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRejectedEmailIsLogged(t *testing.T) {
	store := models.NewInMemoryStore()
	seedUsers(t, store, &models.User{ID: "mail", Email: "m@x.io", Preferences: models.NotificationPreferences{App: true, Email: true}})
	d, _ := newTestDispatcher(t, store, nil, &fakeQueue{full: true}, nil)
	core, logs := observer.New(zapcore.WarnLevel)
	d.Logger = zap.New(core)

	ns, err := d.NotifyUsers(context.Background(), []string{"mail"}, Request{Type: models.NotificationSystem, Title: "t", Message: "m"})
	require.NoError(t, err)
	require.Len(t, ns, 1)

	entries := logs.FilterMessage("email not queued").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "n1", fields["notification_id"])
	assert.Equal(t, "mail", fields["user_id"])
}
