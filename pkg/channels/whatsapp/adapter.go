package whatsapp

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harun/medibook/internal/observability"
	"github.com/harun/medibook/pkg/channels"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Name is the channel name WhatsApp messages carry.
const Name = "whatsapp"

const addressPrefix = "whatsapp:"

// messageCreator is the subset of the Twilio REST API the adapter calls.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Config holds Twilio WhatsApp credentials.
type Config struct {
	AccountSID string
	AuthToken  string
	// FromNumber is the WhatsApp-enabled sender, with or without the
	// "whatsapp:" prefix.
	FromNumber string
}

// Adapter sends through Twilio's Messages API and parses Twilio webhooks.
type Adapter struct {
	channels.Availability

	api       messageCreator
	authToken string
	from      string
	sender    *channels.Sender
	logger    zerolog.Logger
}

// New creates a WhatsApp adapter. Missing credentials yield an unavailable
// adapter.
func New(cfg Config, notifier channels.ErrorNotifier) *Adapter {
	a := &Adapter{
		authToken: cfg.AuthToken,
		from:      withPrefix(cfg.FromNumber),
		sender:    channels.NewSender(Name, notifier),
		logger:    log.With().Str("component", "whatsapp").Logger(),
	}

	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.FromNumber == "" {
		a.logger.Warn().Msg("WhatsApp adapter initialized without credentials")
		return a
	}

	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	a.api = rest.Api
	a.SetAvailable(true)
	return a
}

func newWithAPI(api messageCreator, cfg Config, notifier channels.ErrorNotifier) *Adapter {
	a := &Adapter{
		api:       api,
		authToken: cfg.AuthToken,
		from:      withPrefix(cfg.FromNumber),
		sender:    channels.NewSender(Name, notifier),
		logger:    log.With().Str("component", "whatsapp").Logger(),
	}
	a.SetAvailable(api != nil)
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

// SendMessage sends a text body to a phone number.
func (a *Adapter) SendMessage(ctx context.Context, nativeID, text string, _ channels.SendOptions) bool {
	if !a.ready() {
		return false
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(a.from)
	params.SetTo(withPrefix(nativeID))
	params.SetBody(text)

	return a.create(ctx, nativeID, "send_message", params)
}

// SendMedia sends a publicly reachable media URL, with the caption as body.
func (a *Adapter) SendMedia(ctx context.Context, nativeID, mediaURL, mediaKind, caption string, _ channels.SendOptions) bool {
	if !a.ready() {
		return false
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(a.from)
	params.SetTo(withPrefix(nativeID))
	params.SetMediaUrl([]string{mediaURL})
	if caption != "" {
		params.SetBody(caption)
	}

	sent := a.create(ctx, nativeID, "send_media", params)
	if sent {
		a.logger.Debug().Str("to", nativeID).Str("media_type", mediaKind).Msg("Media sent")
	}
	return sent
}

// SendTypingIndicator is a no-op: Twilio WhatsApp has no typing indicator.
func (a *Adapter) SendTypingIndicator(context.Context, string, channels.SendOptions) bool {
	a.logger.Debug().Msg("WhatsApp does not support typing indicators")
	return true
}

// NotifyError sends a user-facing error notice.
func (a *Adapter) NotifyError(ctx context.Context, nativeID, message string) bool {
	return a.SendMessage(ctx, nativeID, channels.FormatError(message), channels.SendOptions{})
}

// ParseWebhook decodes a Twilio form-encoded inbound message.
func (a *Adapter) ParseWebhook(raw []byte, _ http.Header) *channels.Message {
	form, err := url.ParseQuery(string(raw))
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to parse WhatsApp webhook")
		return nil
	}
	return parseForm(form)
}

// ValidateWebhook checks X-Twilio-Signature. extra["url"] must hold the full
// public URL Twilio posted to.
func (a *Adapter) ValidateWebhook(raw []byte, signature string, extra map[string]string) (bool, error) {
	if a.authToken == "" {
		a.logger.Warn().Msg("Cannot validate webhook: auth token not configured")
		return false, nil
	}

	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return false, &channels.SignatureError{Channel: Name, Reason: "malformed form body"}
	}

	if !channels.VerifyTwilioSignature(extra["url"], form, signature, a.authToken) {
		return false, &channels.SignatureError{Channel: Name, Reason: "signature mismatch"}
	}
	return true, nil
}

func (a *Adapter) ready() bool {
	if !a.Available() || a.api == nil {
		a.logger.Error().Msg("WhatsApp adapter not available")
		return false
	}
	return true
}

func (a *Adapter) create(ctx context.Context, nativeID, action string, params *twilioApi.CreateMessageParams) bool {
	return a.sender.Deliver(ctx, nativeID, action, func(context.Context) error {
		resp, err := a.api.CreateMessage(params)
		if err != nil {
			return classify(err)
		}
		if resp != nil && resp.Sid != nil {
			a.logger.Debug().Str("to", nativeID).Str("message_id", *resp.Sid).Msg("Message queued")
		}
		return nil
	})
}

// classify marks Twilio throttling and server faults as transient.
func classify(err error) error {
	var restErr *client.TwilioRestError
	if errors.As(err, &restErr) {
		if restErr.Status == http.StatusTooManyRequests || restErr.Status >= 500 {
			return channels.Transient(err)
		}
		return err
	}
	// Anything that is not an API error response is a transport failure.
	return channels.Transient(err)
}

func parseForm(form url.Values) *channels.Message {
	msg := &channels.Message{
		MessageID:    form.Get("MessageSid"),
		Channel:      Name,
		NativeUserID: strings.TrimPrefix(form.Get("From"), addressPrefix),
		Type:         channels.MessageText,
		Text:         form.Get("Body"),
		FirstName:    form.Get("ProfileName"),
		Timestamp:    time.Now().UTC(),
		Raw:          make(map[string]interface{}, len(form)),
	}
	for k := range form {
		msg.Raw[k] = form.Get(k)
	}

	if mediaURL := form.Get("MediaUrl0"); mediaURL != "" {
		msg.MediaURL = mediaURL
		contentType := form.Get("MediaContentType0")
		switch {
		case strings.HasPrefix(contentType, "image"):
			msg.Type, msg.MediaType = channels.MessageImage, channels.MediaImage
		case strings.HasPrefix(contentType, "video"):
			msg.Type, msg.MediaType = channels.MessageVideo, channels.MediaVideo
		case strings.HasPrefix(contentType, "audio"):
			msg.Type, msg.MediaType = channels.MessageVoice, channels.MediaVoice
		default:
			msg.Type, msg.MediaType = channels.MessageDocument, channels.MediaDocument
		}
	}

	observability.RecordMessageReceived(Name, string(msg.Type))
	return msg
}

func withPrefix(number string) string {
	if number == "" || strings.HasPrefix(number, addressPrefix) {
		return number
	}
	return addressPrefix + number
}
