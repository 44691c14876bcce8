// Package push delivers notifications to mobile devices through Firebase
// Cloud Messaging.
package push

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"

	"github.com/patrickwarner/nest/internal/models"
)

// ErrNoToken is returned when the device token is empty.
var ErrNoToken = errors.New("no device token")

// Pusher sends a notification to one device.
type Pusher interface {
	Push(ctx context.Context, deviceToken string, n *models.Notification) error
}

// messageSender is the subset of *messaging.Client used here.
type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMPusher sends through Firebase Cloud Messaging.
type FCMPusher struct {
	client messageSender
}

var _ Pusher = (*FCMPusher)(nil)

func NewFCMPusher(ctx context.Context, app *firebase.App) (*FCMPusher, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging client: %w", err)
	}
	return &FCMPusher{client: client}, nil
}

// BuildMessage renders n for deviceToken. Data keys let the app deep-link to
// the related entity.
func BuildMessage(deviceToken string, n *models.Notification) *messaging.Message {
	priority := "normal"
	if n.Priority == models.PriorityHigh || n.Priority == models.PriorityCritical {
		priority = "high"
	}
	return &messaging.Message{
		Token: deviceToken,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Message,
		},
		Data: map[string]string{
			"notificationId": n.ID,
			"type":           string(n.Type),
			"relatedModel":   n.RelatedTo.Model,
			"relatedId":      n.RelatedTo.ID,
		},
		Android: &messaging.AndroidConfig{Priority: priority},
	}
}

func (f *FCMPusher) Push(ctx context.Context, deviceToken string, n *models.Notification) error {
	if deviceToken == "" {
		return ErrNoToken
	}
	if _, err := f.client.Send(ctx, BuildMessage(deviceToken, n)); err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}
