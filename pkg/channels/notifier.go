package channels

import (
	"context"
	"time"
)

// Notification event fields used for adapter failures.
const (
	EventAdapterError   = "adapter_error"
	RecipientAdmin      = "admin"
	PriorityUrgent      = "urgent"
	NotificationChannel = "telegram"
	NotificationLang    = "ru"
)

// NotificationEvent is handed to the admin notification sink.
type NotificationEvent struct {
	EventType     string            `json:"event_type"`
	RecipientType string            `json:"recipient_type"`
	RecipientID   string            `json:"recipient_id,omitempty"`
	Language      string            `json:"language"`
	Priority      string            `json:"priority"`
	Channels      []string          `json:"channels"`
	Data          map[string]string `json:"data"`
	CreatedAt     time.Time         `json:"created_at"`
}

// ErrorNotifier receives adapter failures once retries are exhausted.
type ErrorNotifier interface {
	NotifyAdmin(ctx context.Context, event NotificationEvent) error
}

// ErrorNotifierFunc adapts a function to ErrorNotifier.
type ErrorNotifierFunc func(ctx context.Context, event NotificationEvent) error

func (f ErrorNotifierFunc) NotifyAdmin(ctx context.Context, event NotificationEvent) error {
	return f(ctx, event)
}

// NewAdapterErrorEvent builds the urgent admin event for a failed send.
func NewAdapterErrorEvent(platform, recipientID string, err error) NotificationEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return NotificationEvent{
		EventType:     EventAdapterError,
		RecipientType: RecipientAdmin,
		Language:      NotificationLang,
		Priority:      PriorityUrgent,
		Channels:      []string{NotificationChannel},
		Data: map[string]string{
			"platform":     platform,
			"recipient_id": recipientID,
			"error":        msg,
		},
		CreatedAt: time.Now(),
	}
}
