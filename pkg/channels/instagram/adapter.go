package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/harun/medibook/internal/observability"
	"github.com/harun/medibook/pkg/channels"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// Name is the channel name Instagram messages carry.
const Name = "instagram"

// DefaultAPIBase is the Graph API version the adapter targets.
const DefaultAPIBase = "https://graph.facebook.com/v18.0"

const defaultTimeout = 30 * time.Second

// Config holds Instagram Messaging (Graph API) settings.
type Config struct {
	PageAccessToken string
	AppSecret       string
	VerifyToken     string
	APIBase         string
	Timeout         time.Duration
}

// Adapter talks to the Instagram Messaging API through the Graph API.
type Adapter struct {
	channels.Availability

	client      *resty.Client
	accessToken string
	appSecret   string
	verifyToken string
	sender      *channels.Sender
	logger      zerolog.Logger
}

type graphRecipient struct {
	ID string `json:"id"`
}

type graphAttachment struct {
	Type    string            `json:"type"`
	Payload map[string]string `json:"payload"`
}

type graphMessage struct {
	Text       string           `json:"text,omitempty"`
	Attachment *graphAttachment `json:"attachment,omitempty"`
}

type graphSendRequest struct {
	Recipient     graphRecipient `json:"recipient"`
	Message       *graphMessage  `json:"message,omitempty"`
	SenderAction  string         `json:"sender_action,omitempty"`
	MessagingType string         `json:"messaging_type,omitempty"`
}

type graphError struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

// New creates an Instagram adapter. Both the page token and the app secret
// are required for the adapter to be available.
func New(cfg Config, notifier channels.ErrorNotifier) *Adapter {
	base := cfg.APIBase
	if base == "" {
		base = DefaultAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	a := &Adapter{
		client: resty.New().
			SetBaseURL(base).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		accessToken: cfg.PageAccessToken,
		appSecret:   cfg.AppSecret,
		verifyToken: cfg.VerifyToken,
		sender:      channels.NewSender(Name, notifier),
		logger:      log.With().Str("component", "instagram").Logger(),
	}

	if cfg.PageAccessToken == "" || cfg.AppSecret == "" {
		a.logger.Warn().Msg("Instagram adapter initialized without credentials")
		return a
	}
	a.SetAvailable(true)
	return a
}

// Name returns the channel name.
func (a *Adapter) Name() string {
	return Name
}

// Sender exposes the retry envelope.
func (a *Adapter) Sender() *channels.Sender {
	return a.sender
}

// SendMessage sends a text reply to an Instagram-scoped user id.
func (a *Adapter) SendMessage(ctx context.Context, nativeID, text string, _ channels.SendOptions) bool {
	if !a.ready() {
		return false
	}
	return a.sender.Deliver(ctx, nativeID, "send_message", func(ctx context.Context) error {
		return a.post(ctx, graphSendRequest{
			Recipient:     graphRecipient{ID: nativeID},
			Message:       &graphMessage{Text: text},
			MessagingType: "RESPONSE",
		})
	})
}

// SendMedia sends an attachment by URL. Instagram DMs have no captions, so a
// caption follows as a separate text message.
func (a *Adapter) SendMedia(ctx context.Context, nativeID, mediaURL, mediaKind, caption string, opts channels.SendOptions) bool {
	if !a.ready() {
		return false
	}

	attachmentType := "file"
	if mediaKind == channels.MediaImage {
		attachmentType = "image"
	}

	sent := a.sender.Deliver(ctx, nativeID, "send_media", func(ctx context.Context) error {
		return a.post(ctx, graphSendRequest{
			Recipient: graphRecipient{ID: nativeID},
			Message: &graphMessage{Attachment: &graphAttachment{
				Type:    attachmentType,
				Payload: map[string]string{"url": mediaURL},
			}},
			MessagingType: "RESPONSE",
		})
	})
	if !sent {
		return false
	}

	if caption != "" {
		a.SendMessage(ctx, nativeID, caption, opts)
	}
	a.logger.Debug().Str("to", nativeID).Str("media_type", mediaKind).Msg("Media sent")
	return true
}

// SendTypingIndicator turns the typing bubble on. Failures are not escalated.
func (a *Adapter) SendTypingIndicator(ctx context.Context, nativeID string, _ channels.SendOptions) bool {
	if !a.ready() {
		return false
	}
	return a.sender.Deliver(channels.SuppressAlerts(ctx), nativeID, "send_typing", func(ctx context.Context) error {
		return a.post(ctx, graphSendRequest{
			Recipient:    graphRecipient{ID: nativeID},
			SenderAction: "typing_on",
		})
	})
}

// NotifyError sends a user-facing error notice.
func (a *Adapter) NotifyError(ctx context.Context, nativeID, message string) bool {
	return a.SendMessage(ctx, nativeID, channels.FormatError(message), channels.SendOptions{})
}

// ParseWebhook extracts the first message event of a webhook delivery.
// Subscription handshakes and deliveries without a message event yield nil.
func (a *Adapter) ParseWebhook(raw []byte, _ http.Header) *channels.Message {
	if !gjson.ValidBytes(raw) {
		a.logger.Error().Msg("Failed to parse Instagram webhook: invalid JSON")
		return nil
	}

	root := gjson.ParseBytes(raw)
	if root.Get(`hub\.challenge`).Exists() {
		a.logger.Info().Msg("Received Instagram webhook verification challenge")
		return nil
	}

	var event gjson.Result
	root.Get("entry").ForEach(func(_, entry gjson.Result) bool {
		entry.Get("messaging").ForEach(func(_, ev gjson.Result) bool {
			if ev.Get("message").Exists() {
				event = ev
				return false
			}
			return true
		})
		return !event.Exists()
	})
	if !event.Exists() {
		return nil
	}

	return parseEvent(event)
}

// ValidateWebhook checks X-Hub-Signature-256 over the body exactly as received.
func (a *Adapter) ValidateWebhook(raw []byte, signature string, _ map[string]string) (bool, error) {
	if a.appSecret == "" {
		a.logger.Warn().Msg("Cannot validate webhook: app secret not configured")
		return false, nil
	}
	if !channels.VerifyHMACSHA256(raw, signature, a.appSecret) {
		return false, &channels.SignatureError{Channel: Name, Reason: "signature mismatch"}
	}
	return true, nil
}

// VerifySubscription answers the hub.mode/hub.verify_token/hub.challenge
// handshake Meta performs when the webhook is registered.
func (a *Adapter) VerifySubscription(mode, token, challenge string) (string, bool) {
	if mode == "subscribe" && a.verifyToken != "" && token == a.verifyToken {
		a.logger.Info().Msg("Instagram webhook subscription verified")
		return challenge, true
	}
	a.logger.Warn().Msg("Instagram webhook verification failed")
	return "", false
}

func (a *Adapter) ready() bool {
	if !a.Available() {
		a.logger.Error().Msg("Instagram adapter not available")
		return false
	}
	return true
}

func (a *Adapter) post(ctx context.Context, body graphSendRequest) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("access_token", a.accessToken).
		SetBody(body).
		SetError(&graphError{}).
		Post("/me/messages")
	if err != nil {
		return channels.Transient(err)
	}
	if !resp.IsError() {
		return nil
	}

	apiErr := fmt.Errorf("graph api status %d: %s", resp.StatusCode(), describe(resp))
	if resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500 {
		return channels.Transient(apiErr)
	}
	return apiErr
}

func describe(resp *resty.Response) string {
	if ge, ok := resp.Error().(*graphError); ok && ge.Error.Message != "" {
		return ge.Error.Message
	}
	return resp.String()
}

func parseEvent(event gjson.Result) *channels.Message {
	message := event.Get("message")
	msg := &channels.Message{
		MessageID:    message.Get("mid").String(),
		Channel:      Name,
		NativeUserID: event.Get("sender.id").String(),
		Type:         channels.MessageText,
		Text:         message.Get("text").String(),
		Timestamp:    time.Now().UTC(),
	}
	if ts := event.Get("timestamp").Int(); ts != 0 {
		msg.Timestamp = time.UnixMilli(ts).UTC()
	}

	if attachment := message.Get("attachments.0"); attachment.Exists() {
		msg.MediaURL = attachment.Get("payload.url").String()
		switch attachment.Get("type").String() {
		case "image":
			msg.Type, msg.MediaType = channels.MessageImage, channels.MediaImage
		case "video":
			msg.Type, msg.MediaType = channels.MessageVideo, channels.MediaVideo
		case "audio":
			msg.Type, msg.MediaType = channels.MessageVoice, channels.MediaAudio
		default:
			msg.Type, msg.MediaType = channels.MessageDocument, channels.MediaDocument
		}
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(event.Raw), &raw); err == nil {
		msg.Raw = raw
	}

	observability.RecordMessageReceived(Name, string(msg.Type))
	return msg
}
