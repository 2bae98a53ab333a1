package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/medibook/internal/observability"
	"github.com/harun/medibook/pkg/channels"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Name is the channel name Telegram messages carry.
const Name = "telegram"

const defaultTimeout = 30 * time.Second

// botAPI is the subset of *tgbotapi.BotAPI the adapter calls.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Config holds Telegram Bot API settings.
type Config struct {
	BotToken string
	// APIEndpoint overrides tgbotapi.APIEndpoint, e.g. for a local Bot API server.
	APIEndpoint string
	Timeout     time.Duration
}

// Adapter delivers and parses Telegram Bot API traffic.
type Adapter struct {
	channels.Availability

	api    botAPI
	sender *channels.Sender
	logger zerolog.Logger
}

// New creates a Telegram adapter. An empty token yields an adapter that is
// registered but unavailable.
func New(cfg Config, notifier channels.ErrorNotifier) *Adapter {
	a := &Adapter{
		sender: channels.NewSender(Name, notifier),
		logger: log.With().Str("component", "telegram").Logger(),
	}

	if strings.TrimSpace(cfg.BotToken) == "" {
		a.logger.Warn().Msg("Telegram bot token not configured, adapter disabled")
		return a
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	// Built directly instead of tgbotapi.NewBotAPI so startup does not
	// depend on a getMe round trip.
	api := &tgbotapi.BotAPI{
		Token:  cfg.BotToken,
		Client: &http.Client{Timeout: timeout},
		Buffer: 100,
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api.SetAPIEndpoint(endpoint)

	a.api = api
	a.SetAvailable(true)
	return a
}

// newWithAPI wires a custom bot API, used by tests.
func newWithAPI(api botAPI, notifier channels.ErrorNotifier) *Adapter {
	a := &Adapter{
		api:    api,
		sender: channels.NewSender(Name, notifier),
		logger: log.With().Str("component", "telegram").Logger(),
	}
	a.SetAvailable(api != nil)
	return a
}

// Name returns the channel name.
func (a *Adapter) Name() string {
	return Name
}

// Sender exposes the retry envelope so callers can tune its policy.
func (a *Adapter) Sender() *channels.Sender {
	return a.sender
}

// SendMessage sends a text message to a chat.
func (a *Adapter) SendMessage(ctx context.Context, nativeID, text string, opts channels.SendOptions) bool {
	chatID, ok := a.chatID(nativeID)
	if !ok {
		return false
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = opts.ParseMode
	msg.ReplyMarkup = opts.ReplyMarkup
	msg.DisableNotification = opts.DisableNotification

	sent := a.sender.Deliver(ctx, nativeID, "send_message", func(context.Context) error {
		return classify(a.send(msg))
	})
	if sent {
		a.logger.Debug().Str("to", nativeID).Msg("Message sent")
	}
	return sent
}

// SendMedia sends a photo, video, document, audio or voice note. mediaURL is
// either an http(s) URL or a Telegram file_id.
func (a *Adapter) SendMedia(ctx context.Context, nativeID, mediaURL, mediaKind, caption string, opts channels.SendOptions) bool {
	chatID, ok := a.chatID(nativeID)
	if !ok {
		return false
	}

	var file tgbotapi.RequestFileData = tgbotapi.FileID(mediaURL)
	if strings.HasPrefix(mediaURL, "http://") || strings.HasPrefix(mediaURL, "https://") {
		file = tgbotapi.FileURL(mediaURL)
	}

	var cfg tgbotapi.Chattable
	switch mediaKind {
	case channels.MediaImage:
		c := tgbotapi.NewPhoto(chatID, file)
		c.Caption, c.ParseMode = caption, opts.ParseMode
		c.ReplyMarkup, c.DisableNotification = opts.ReplyMarkup, opts.DisableNotification
		cfg = c
	case channels.MediaVideo:
		c := tgbotapi.NewVideo(chatID, file)
		c.Caption, c.ParseMode = caption, opts.ParseMode
		c.ReplyMarkup, c.DisableNotification = opts.ReplyMarkup, opts.DisableNotification
		cfg = c
	case channels.MediaDocument:
		c := tgbotapi.NewDocument(chatID, file)
		c.Caption, c.ParseMode = caption, opts.ParseMode
		c.ReplyMarkup, c.DisableNotification = opts.ReplyMarkup, opts.DisableNotification
		cfg = c
	case channels.MediaAudio:
		c := tgbotapi.NewAudio(chatID, file)
		c.Caption, c.ParseMode = caption, opts.ParseMode
		c.ReplyMarkup, c.DisableNotification = opts.ReplyMarkup, opts.DisableNotification
		cfg = c
	case channels.MediaVoice:
		c := tgbotapi.NewVoice(chatID, file)
		c.Caption, c.ParseMode = caption, opts.ParseMode
		c.ReplyMarkup, c.DisableNotification = opts.ReplyMarkup, opts.DisableNotification
		cfg = c
	default:
		a.logger.Warn().Str("media_type", mediaKind).Msg("Unsupported media type")
		return false
	}

	return a.sender.Deliver(ctx, nativeID, "send_media", func(context.Context) error {
		return classify(a.send(cfg))
	})
}

// SendTypingIndicator shows the "typing" chat action. Failures are retried
// but never escalated to the admin.
func (a *Adapter) SendTypingIndicator(ctx context.Context, nativeID string, _ channels.SendOptions) bool {
	chatID, ok := a.chatID(nativeID)
	if !ok {
		return false
	}

	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	return a.sender.Deliver(channels.SuppressAlerts(ctx), nativeID, "send_typing", func(context.Context) error {
		_, err := a.api.Request(action)
		return classify(err)
	})
}

// NotifyError sends a user-facing error notice.
func (a *Adapter) NotifyError(ctx context.Context, nativeID, message string) bool {
	return a.SendMessage(ctx, nativeID, channels.FormatError(message), channels.SendOptions{})
}

// ParseWebhook decodes a Telegram Update. Messages and callback queries are
// supported; anything else yields nil.
func (a *Adapter) ParseWebhook(raw []byte, _ http.Header) *channels.Message {
	var update tgbotapi.Update
	if err := json.Unmarshal(raw, &update); err != nil {
		a.logger.Error().Err(err).Msg("Failed to parse Telegram update")
		return nil
	}

	var envelope map[string]interface{}
	_ = json.Unmarshal(raw, &envelope)

	switch {
	case update.Message != nil && update.Message.From != nil:
		msg := parseMessage(update.Message)
		msg.Raw = subObject(envelope, "message")
		return msg
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		msg := parseCallback(update.CallbackQuery)
		msg.Raw = subObject(envelope, "callback_query")
		return msg
	default:
		a.logger.Debug().Int("update_id", update.UpdateID).Msg("Unsupported update type")
		return nil
	}
}

// ValidateWebhook always succeeds: Telegram authenticity is established by
// the secret token in the webhook path, checked by the HTTP layer.
func (a *Adapter) ValidateWebhook([]byte, string, map[string]string) (bool, error) {
	return true, nil
}

func (a *Adapter) chatID(nativeID string) (int64, bool) {
	if !a.Available() || a.api == nil {
		a.logger.Error().Msg("Telegram bot not configured")
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(nativeID), 10, 64)
	if err != nil {
		a.logger.Error().Err(err).Str("to", nativeID).Msg("Invalid recipient id format")
		return 0, false
	}
	return id, true
}

func (a *Adapter) send(c tgbotapi.Chattable) error {
	_, err := a.api.Send(c)
	return err
}

// classify marks Bot API throttling and server faults as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500) {
		return channels.Transient(err)
	}
	return err
}

func parseMessage(m *tgbotapi.Message) *channels.Message {
	msg := &channels.Message{
		MessageID:    strconv.Itoa(m.MessageID),
		Channel:      Name,
		NativeUserID: strconv.FormatInt(m.From.ID, 10),
		Type:         channels.MessageText,
		Text:         m.Text,
		LanguageCode: m.From.LanguageCode,
		Username:     m.From.UserName,
		FirstName:    m.From.FirstName,
		LastName:     m.From.LastName,
		Timestamp:    time.Now().UTC(),
	}
	if m.Date != 0 {
		msg.Timestamp = time.Unix(int64(m.Date), 0).UTC()
	}

	switch {
	case m.Voice != nil:
		msg.Type = channels.MessageVoice
		msg.MediaURL = m.Voice.FileID
		msg.MediaType = channels.MediaVoice
		msg.Text = ""
	case len(m.Photo) > 0:
		msg.Type = channels.MessageImage
		msg.MediaURL = m.Photo[len(m.Photo)-1].FileID
		msg.MediaType = channels.MediaImage
		msg.Text = m.Caption
	case m.Video != nil:
		msg.Type = channels.MessageVideo
		msg.MediaURL = m.Video.FileID
		msg.MediaType = channels.MediaVideo
		msg.Text = m.Caption
	case m.Document != nil:
		msg.Type = channels.MessageDocument
		msg.MediaURL = m.Document.FileID
		msg.MediaType = channels.MediaDocument
		msg.Text = m.Caption
	case m.Location != nil:
		msg.Type = channels.MessageLocation
		msg.Text = fmt.Sprintf("Location: %s, %s",
			strconv.FormatFloat(m.Location.Latitude, 'f', -1, 64),
			strconv.FormatFloat(m.Location.Longitude, 'f', -1, 64))
	}

	observability.RecordMessageReceived(Name, string(msg.Type))
	return msg
}

func parseCallback(q *tgbotapi.CallbackQuery) *channels.Message {
	observability.RecordMessageReceived(Name, string(channels.MessageCallback))
	return &channels.Message{
		MessageID:    q.ID,
		Channel:      Name,
		NativeUserID: strconv.FormatInt(q.From.ID, 10),
		Type:         channels.MessageCallback,
		CallbackData: q.Data,
		LanguageCode: q.From.LanguageCode,
		Username:     q.From.UserName,
		FirstName:    q.From.FirstName,
		LastName:     q.From.LastName,
		Timestamp:    time.Now().UTC(),
	}
}

func subObject(envelope map[string]interface{}, key string) map[string]interface{} {
	if v, ok := envelope[key].(map[string]interface{}); ok {
		return v
	}
	return map[string]interface{}{}
}
