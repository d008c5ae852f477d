package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ticket-wallet/internal/logger"
	"ticket-wallet/internal/models"
)

// ErrNotificationsUnavailable is returned by a notifier that has no
// permission or channel to deliver. The in-app reminder still fires.
var ErrNotificationsUnavailable = errors.New("notifications unavailable")

type Notification struct {
	UserID    string          `json:"userId"`
	EventID   string          `json:"eventId"`
	EventName string          `json:"eventName"`
	Location  string          `json:"location,omitempty"`
	Reminder  models.Reminder `json:"reminder"`
	StartsAt  time.Time       `json:"startsAt"`
	FiredAt   time.Time       `json:"firedAt"`
}

func (n Notification) Title() string {
	return "Upcoming event reminder"
}

func (n Notification) Body() string {
	return fmt.Sprintf("%q starts soon!", n.EventName)
}

// Notifier delivers a reminder outside the app. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes reminders to the service log.
type LogNotifier struct {
	Logger *logger.Logger
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.Logger.LogReminder(n.UserID, n.EventID, fmt.Sprintf("%s: %s", n.Title(), n.Body()))
	return nil
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// KafkaNotifier publishes reminders for a downstream push/e-mail sender,
// keyed by user.
type KafkaNotifier struct {
	Publisher Publisher
	Topic     string
}

type reminderMessage struct {
	Notification
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (k *KafkaNotifier) Notify(ctx context.Context, n Notification) error {
	if k.Publisher == nil {
		return ErrNotificationsUnavailable
	}
	value, err := json.Marshal(reminderMessage{Notification: n, Title: n.Title(), Body: n.Body()})
	if err != nil {
		return err
	}
	return k.Publisher.Publish(ctx, k.Topic, n.UserID, value)
}

// Fanout delivers to every notifier and returns the first error.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, n Notification) error {
	var firstErr error
	for _, notifier := range f {
		if err := notifier.Notify(ctx, n); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
