package push

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/nest/internal/models"
)

type fakeSender struct {
	got []*messaging.Message
	err error
}

func (f *fakeSender) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.got = append(f.got, m)
	return "projects/p/messages/1", f.err
}

func TestBuildMessage(t *testing.T) {
	n := &models.Notification{
		ID:        "n1",
		Type:      models.NotificationAssignment,
		Title:     "Report Assigned to You",
		Message:   "fix it",
		Priority:  models.PriorityHigh,
		RelatedTo: models.RelatedTo{Model: models.RelatedReport, ID: "r1"},
	}
	m := BuildMessage("device", n)
	assert.Equal(t, "device", m.Token)
	assert.Equal(t, "Report Assigned to You", m.Notification.Title)
	assert.Equal(t, "fix it", m.Notification.Body)
	assert.Equal(t, "high", m.Android.Priority)
	assert.Equal(t, map[string]string{
		"notificationId": "n1",
		"type":           "assignment",
		"relatedModel":   "Report",
		"relatedId":      "r1",
	}, m.Data)

	n.Priority = models.PriorityNormal
	assert.Equal(t, "normal", BuildMessage("d", n).Android.Priority)
}

func TestPush(t *testing.T) {
	sender := &fakeSender{}
	p := &FCMPusher{client: sender}
	n := &models.Notification{ID: "n1", Title: "t"}

	require.NoError(t, p.Push(context.Background(), "device", n))
	require.Len(t, sender.got, 1)

	assert.ErrorIs(t, p.Push(context.Background(), "", n), ErrNoToken)
	assert.Len(t, sender.got, 1)

	sender.err = errors.New("unregistered")
	assert.Error(t, p.Push(context.Background(), "device", n))
}
