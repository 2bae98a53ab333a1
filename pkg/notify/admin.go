// Package notify delivers operational alerts to clinic administrators over
// the registered messaging channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/harun/medibook/pkg/channels"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// UrgentTag prefixes urgent alerts.
const UrgentTag = "[❗️ СРОЧНО]"

// ErrNoRecipients is returned when no admin is configured on any of the
// event's channels.
var ErrNoRecipients = errors.New("no admin recipients for event channels")

// AdminNotifier implements channels.ErrorNotifier by sending a rendered
// alert to every admin chat configured on the event's channels.
type AdminNotifier struct {
	adapters   *channels.Registry
	recipients map[string][]string
	logger     zerolog.Logger
}

// NewAdminNotifier creates a notifier. recipients maps a channel name to the
// native ids of its admins, e.g. {"telegram": {"123456"}}.
func NewAdminNotifier(adapters *channels.Registry, recipients map[string][]string) *AdminNotifier {
	copied := make(map[string][]string, len(recipients))
	for ch, ids := range recipients {
		copied[ch] = append([]string(nil), ids...)
	}
	return &AdminNotifier{
		adapters:   adapters,
		recipients: copied,
		logger:     log.With().Str("component", "notify").Logger(),
	}
}

// NotifyAdmin sends event to the admins of each channel it lists. It fails
// only when nothing could be delivered.
func (n *AdminNotifier) NotifyAdmin(ctx context.Context, event channels.NotificationEvent) error {
	text := Render(event)
	ctx = channels.SuppressAlerts(ctx)

	attempted, delivered := 0, 0
	for _, ch := range event.Channels {
		adapter, ok := n.adapters.Get(ch)
		if !ok {
			n.logger.Warn().Str("channel", ch).Msg("No adapter for admin notification channel")
			continue
		}
		for _, id := range n.recipients[ch] {
			attempted++
			if adapter.SendMessage(ctx, id, text, channels.SendOptions{}) {
				delivered++
			}
		}
	}

	n.logger.Info().
		Str("event_type", event.EventType).
		Str("priority", event.Priority).
		Int("delivered", delivered).
		Int("attempted", attempted).
		Msg("Admin notification dispatched")

	switch {
	case attempted == 0:
		return ErrNoRecipients
	case delivered == 0:
		return fmt.Errorf("admin notification %s: all %d deliveries failed", event.EventType, attempted)
	}
	return nil
}

// Render formats an event as a plain-text alert in Russian.
func Render(event channels.NotificationEvent) string {
	var b strings.Builder

	if event.Priority == channels.PriorityUrgent {
		b.WriteString(UrgentTag)
		b.WriteString(" ")
	}

	switch event.EventType {
	case channels.EventAdapterError:
		fmt.Fprintf(&b, "Ошибка отправки через %s\n", event.Data["platform"])
		fmt.Fprintf(&b, "Получатель: %s\n", event.Data["recipient_id"])
		fmt.Fprintf(&b, "Ошибка: %s", event.Data["error"])
	default:
		b.WriteString("Событие: ")
		b.WriteString(event.EventType)
		keys := make([]string, 0, len(event.Data))
		for k := range event.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n%s: %s", k, event.Data[k])
		}
	}

	return b.String()
}
