package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/harun/medibook/internal/observability"
	"github.com/harun/medibook/internal/tracing"
	"github.com/harun/medibook/pkg/channels"
	"github.com/harun/medibook/pkg/channels/instagram"
	"github.com/harun/medibook/pkg/channels/telegram"
	"github.com/harun/medibook/pkg/channels/whatsapp"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	telegramSecretHeader  = "X-Telegram-Bot-Api-Secret-Token"
	twilioSignatureHeader = "X-Twilio-Signature"
	metaSignatureHeader   = "X-Hub-Signature-256"
)

// subscriptionVerifier answers the Meta webhook registration handshake.
type subscriptionVerifier interface {
	VerifySubscription(mode, token, challenge string) (string, bool)
}

func (s *Server) handleTelegram(w http.ResponseWriter, r *http.Request) {
	if want := s.options.TelegramPathToken; want != "" {
		got := chi.URLParam(r, "token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			s.reject(w, r, telegram.Name, &channels.SignatureError{Channel: telegram.Name, Reason: "path token mismatch"})
			return
		}
	}
	if want := s.options.TelegramSecretToken; want != "" {
		got := r.Header.Get(telegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			s.reject(w, r, telegram.Name, &channels.SignatureError{Channel: telegram.Name, Reason: "secret token mismatch"})
			return
		}
	}
	s.ingest(w, r, telegram.Name, "", nil)
}

func (s *Server) handleWhatsApp(w http.ResponseWriter, r *http.Request) {
	extra := map[string]string{"url": s.publicURL(r)}
	s.ingest(w, r, whatsapp.Name, r.Header.Get(twilioSignatureHeader), extra)
}

func (s *Server) handleInstagram(w http.ResponseWriter, r *http.Request) {
	s.ingest(w, r, instagram.Name, r.Header.Get(metaSignatureHeader), nil)
}

func (s *Server) handleInstagramVerify(w http.ResponseWriter, r *http.Request) {
	adapter, ok := s.router.Adapter(instagram.Name)
	if !ok {
		s.respond(w, instagram.Name, http.StatusNotFound, "Not Found")
		return
	}
	verifier, ok := adapter.(subscriptionVerifier)
	if !ok {
		s.respond(w, instagram.Name, http.StatusNotFound, "Not Found")
		return
	}

	q := r.URL.Query()
	challenge, ok := verifier.VerifySubscription(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
	if !ok {
		observability.RecordSecurityAudit(r.Context(), "webhook_subscription", instagram.Name, "rejected", map[string]interface{}{
			"ip": clientIP(r),
		})
		s.respond(w, instagram.Name, http.StatusForbidden, "Forbidden")
		return
	}
	s.respond(w, instagram.Name, http.StatusOK, challenge)
}

// ingest validates and routes one webhook. After validation the provider
// always gets 200 so it does not redeliver on business errors.
func (s *Server) ingest(w http.ResponseWriter, r *http.Request, channel, signature string, extra map[string]string) {
	logger := tracing.LoggerFromContext(tracing.WithChannel(r.Context(), channel), s.logger)

	adapter, ok := s.router.Adapter(channel)
	if !ok {
		logger.Warn().Msg("Webhook for unregistered channel")
		s.respond(w, channel, http.StatusNotFound, "Not Found")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.options.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respond(w, channel, http.StatusRequestEntityTooLarge, "Request Entity Too Large")
			return
		}
		logger.Error().Err(err).Msg("Failed to read request body")
		s.respond(w, channel, http.StatusBadRequest, "Bad Request")
		return
	}

	valid, err := adapter.ValidateWebhook(body, signature, extra)
	if err != nil {
		s.reject(w, r, channel, err)
		return
	}
	if !valid {
		logger.Warn().Msg("Webhook signature not validated: no secret configured")
	}

	s.dispatch(tracing.Detach(r.Context()), channel, adapter, body, r.Header)
	s.respond(w, channel, http.StatusOK, "ok")
}

// dispatch parses the payload, drops redeliveries and routes the message.
func (s *Server) dispatch(ctx context.Context, channel string, adapter channels.Adapter, body []byte, headers http.Header) {
	logger := tracing.LoggerFromContext(tracing.WithChannel(ctx, channel), s.logger)

	msg := adapter.ParseWebhook(body, headers)
	if msg == nil {
		logger.Debug().Msg("No message in webhook")
		return
	}

	if msg.MessageID == "" {
		msg.MessageID = newMessageID()
	} else if s.dedupe.Seen(channel + ":" + msg.MessageID) {
		observability.RecordDuplicateDropped(channel)
		logger.Info().Str("message_id", msg.MessageID).Msg("Dropped duplicate webhook delivery")
		return
	}

	if _, err := s.router.RouteMessage(ctx, msg, s.handler); err != nil {
		logger.Error().Err(err).Str("message_id", msg.MessageID).Msg("Failed to route message")
	}
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, channel string, err error) {
	observability.RecordSignatureFailure(channel)
	observability.RecordSecurityAudit(r.Context(), "webhook_signature", channel, "rejected", map[string]interface{}{
		"ip":    clientIP(r),
		"error": err.Error(),
	})
	logger := tracing.LoggerFromContext(r.Context(), s.logger)
	logger.Warn().
		Err(err).
		Str("channel", channel).
		Str("ip", clientIP(r)).
		Msg("Rejected webhook")
	s.respond(w, channel, http.StatusUnauthorized, "Unauthorized")
}

func (s *Server) respond(w http.ResponseWriter, channel string, code int, body string) {
	observability.RecordWebhookRequest(channel, code)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, body)
}

// publicURL is the URL Twilio signed: the configured one, or the request's
// own URL as seen through any proxy.
func (s *Server) publicURL(r *http.Request) string {
	if s.options.WhatsAppURL != "" {
		return s.options.WhatsAppURL
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func newMessageID() string {
	id, err := gonanoid.New()
	if err != nil {
		return tracing.NewTraceID()
	}
	return id
}
