package channels

import (
	"context"
	"net/http"
	"sync/atomic"
)

// ErrorPrefix is prepended to every user-facing error notification.
const ErrorPrefix = "⚠️ Ошибка: "

// SendOptions carries optional per-send settings. Adapters ignore fields their
// channel has no equivalent for.
type SendOptions struct {
	// ParseMode selects Telegram text formatting ("HTML", "MarkdownV2").
	ParseMode string
	// ReplyMarkup is a channel-native keyboard, e.g. tgbotapi.InlineKeyboardMarkup.
	ReplyMarkup interface{}
	// DisableNotification delivers silently where supported.
	DisableNotification bool
}

// Adapter is implemented once per messaging channel.
//
// Send methods report delivery as a bool and never return transport errors:
// transient failures are retried, and exhausted retries notify the admin
// sink. ParseWebhook returns nil for handshakes and unparseable payloads.
// ValidateWebhook returns (false, nil) when the adapter has no secret
// configured and a *SignatureError when validation ran and failed.
type Adapter interface {
	Name() string
	Available() bool

	SendMessage(ctx context.Context, nativeID, text string, opts SendOptions) bool
	SendMedia(ctx context.Context, nativeID, mediaURL, mediaKind, caption string, opts SendOptions) bool
	SendTypingIndicator(ctx context.Context, nativeID string, opts SendOptions) bool
	NotifyError(ctx context.Context, nativeID, message string) bool

	ParseWebhook(raw []byte, headers http.Header) *Message
	ValidateWebhook(raw []byte, signature string, extra map[string]string) (bool, error)
}

// Availability tracks whether an adapter may perform network calls.
// Adapters embed it.
type Availability struct {
	available atomic.Bool
}

// Available reports whether the adapter is usable.
func (a *Availability) Available() bool {
	return a.available.Load()
}

// SetAvailable marks the adapter usable or not.
func (a *Availability) SetAvailable(v bool) {
	a.available.Store(v)
}

// FormatError renders a user-facing error notification.
func FormatError(message string) string {
	return ErrorPrefix + message
}
