package channels

import (
	"context"
	"time"

	"github.com/harun/medibook/internal/observability"
	"github.com/rs/zerolog/log"
)

const notifyTimeout = 10 * time.Second

type suppressAlertsKey struct{}

// SuppressAlerts marks ctx so failed sends under it do not raise admin
// notifications. The admin notifier sends under such a context so a broken
// channel cannot alert about itself forever.
func SuppressAlerts(ctx context.Context) context.Context {
	return context.WithValue(ctx, suppressAlertsKey{}, true)
}

func alertsSuppressed(ctx context.Context) bool {
	v, _ := ctx.Value(suppressAlertsKey{}).(bool)
	return v
}

// Sender wraps one outbound call with retries, metrics and the admin alert
// raised when every attempt failed. Adapters own one Sender each.
type Sender struct {
	Channel  string
	Policy   RetryPolicy
	Notifier ErrorNotifier
}

// NewSender returns a Sender using the default retry policy.
func NewSender(channel string, notifier ErrorNotifier) *Sender {
	return &Sender{
		Channel:  channel,
		Policy:   DefaultRetryPolicy(),
		Notifier: notifier,
	}
}

// Deliver runs op under the retry policy and reports success.
// On final failure the admin notifier is invoked without blocking the caller.
func (s *Sender) Deliver(ctx context.Context, recipientID, action string, op func(ctx context.Context) error) bool {
	err := s.Policy.Do(ctx, op, func(attempt int, err error) {
		observability.RecordSendRetry(s.Channel)
		log.Warn().
			Err(err).
			Str("channel", s.Channel).
			Str("recipient", recipientID).
			Str("action", action).
			Int("attempt", attempt).
			Msg("Outbound send failed, retrying")
	})
	if err == nil {
		observability.RecordSend(s.Channel, true)
		return true
	}

	observability.RecordSend(s.Channel, false)
	log.Error().
		Err(err).
		Str("channel", s.Channel).
		Str("recipient", recipientID).
		Str("action", action).
		Msg("Outbound send failed")

	if !alertsSuppressed(ctx) {
		s.alert(recipientID, err)
	}
	return false
}

func (s *Sender) alert(recipientID string, cause error) {
	if s.Notifier == nil {
		return
	}

	event := NewAdapterErrorEvent(s.Channel, recipientID, cause)
	notifier := s.Notifier
	go func() {
		ctx, cancel := context.WithTimeout(SuppressAlerts(context.Background()), notifyTimeout)
		defer cancel()
		if err := notifier.NotifyAdmin(ctx, event); err != nil {
			log.Error().Err(err).Str("channel", event.Data["platform"]).Msg("Failed to notify admin about adapter error")
		}
	}()
}
