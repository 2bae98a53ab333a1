package routing

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/harun/medibook/internal/observability"
	"github.com/harun/medibook/internal/tracing"
	"github.com/harun/medibook/pkg/channels"
	"github.com/harun/medibook/pkg/conversation"
	"github.com/harun/medibook/pkg/locale"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Handler processes one routed message against its session. Business logic
// (booking and admin flows) lives behind it.
type Handler func(ctx context.Context, msg *channels.Message, session *conversation.Context) error

// Router maps inbound messages onto sessions and replies through the
// adapter of the channel the user last wrote from.
type Router struct {
	store    *conversation.Store
	adapters *channels.Registry
	mapper   IdentityMapper
	logger   zerolog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithMapper replaces the default HashMapper.
func WithMapper(m IdentityMapper) Option {
	return func(r *Router) {
		if m != nil {
			r.mapper = m
		}
	}
}

// WithRegistry shares an existing adapter registry.
func WithRegistry(reg *channels.Registry) Option {
	return func(r *Router) {
		if reg != nil {
			r.adapters = reg
		}
	}
}

// NewRouter creates a router over store.
func NewRouter(store *conversation.Store, opts ...Option) *Router {
	r := &Router{
		store:    store,
		adapters: channels.NewRegistry(),
		mapper:   NewHashMapper(),
		logger:   log.With().Str("component", "router").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.logger.Info().Int("adapters", len(r.adapters.Names())).Msg("Router initialized")
	return r
}

// RegisterAdapter registers an adapter for a channel. An empty channel uses
// the adapter's own name.
func (r *Router) RegisterAdapter(channel string, a channels.Adapter) error {
	if a == nil {
		return fmt.Errorf("adapter is required")
	}
	if channel == "" {
		channel = a.Name()
	}
	if err := r.adapters.RegisterAs(channel, a); err != nil {
		return err
	}
	r.logger.Info().Str("channel", channel).Msg("Registered adapter")
	return nil
}

// Adapter returns the adapter for a channel.
func (r *Router) Adapter(channel string) (channels.Adapter, bool) {
	return r.adapters.Get(channel)
}

// Channels returns the registered channel names.
func (r *Router) Channels() []string {
	return r.adapters.Names()
}

// Store returns the session store the router writes to.
func (r *Router) Store() *conversation.Store {
	return r.store
}

// RouteMessage resolves the sender, loads or creates the session, keeps its
// channel current and hands both to h. Mapper and handler errors propagate.
func (r *Router) RouteMessage(ctx context.Context, msg *channels.Message, h Handler) (session *conversation.Context, err error) {
	if msg == nil {
		return nil, fmt.Errorf("message is required")
	}

	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "route_message",
		attribute.String("channel", msg.Channel),
		attribute.String("message_id", msg.MessageID),
	)
	defer func() {
		tracing.EndSpan(span, err)
		observability.RecordRoute(msg.Channel, time.Since(start))
	}()

	if msg.UserID == 0 {
		id, mapErr := r.mapper.Resolve(ctx, msg.Channel, msg.NativeUserID)
		if mapErr != nil {
			observability.RecordRouteError(msg.Channel, "identity")
			return nil, fmt.Errorf("%w: %s user %q: %v", ErrIdentityUnresolvable, msg.Channel, msg.NativeUserID, mapErr)
		}
		msg.UserID = id
	}
	span.SetAttributes(attribute.Int64("user_id", msg.UserID))
	ctx = tracing.WithUserID(tracing.WithChannel(ctx, msg.Channel), msg.UserID)
	logger := tracing.LoggerFromContext(ctx, r.logger)

	logger.Info().
		Str("from", msg.NativeUserID).
		Str("message_type", string(msg.Type)).
		Msg("Routing message")

	session, created := r.store.LoadOrCreate(msg.UserID, msg.Channel, locale.Detect(msg.LanguageCode, ""))
	if created {
		logger.Info().Str("language", session.Language).Msg("Created conversation session")
	}

	if session.Platform != msg.Channel {
		logger.Info().
			Str("from", session.Platform).
			Str("to", msg.Channel).
			Msg("User switched channel")
		r.store.SetPlatform(msg.UserID, msg.Channel)
		session.Platform = msg.Channel
	}

	if h != nil {
		if err = h(ctx, msg, session); err != nil {
			observability.RecordRouteError(msg.Channel, "handler")
			return session, fmt.Errorf("handle message %s: %w", msg.MessageID, err)
		}
	}

	return session, nil
}

// ParseAndRoute parses a raw webhook body with the channel's adapter and
// routes the result. Unknown channels and payloads that carry no message
// return (nil, nil).
func (r *Router) ParseAndRoute(ctx context.Context, channel string, raw []byte, headers http.Header, h Handler) (*conversation.Context, error) {
	adapter, ok := r.adapters.Get(channel)
	if !ok {
		r.logger.Error().Str("channel", channel).Msg("No adapter registered for channel")
		observability.RecordRouteError(channel, "adapter")
		return nil, nil
	}

	msg := adapter.ParseWebhook(raw, headers)
	if msg == nil {
		r.logger.Debug().Str("channel", channel).Msg("No message parsed from webhook")
		return nil, nil
	}

	return r.RouteMessage(ctx, msg, h)
}

// SendToUser replies on the channel recorded in the user's session. It
// reports false when there is no session or no adapter for its channel.
func (r *Router) SendToUser(ctx context.Context, userID int64, text string, opts channels.SendOptions) bool {
	session, ok := r.store.Load(userID)
	if !ok {
		r.logger.Error().Int64("user_id", userID).Msg("No session found for user")
		return false
	}

	adapter, ok := r.adapters.Get(session.Platform)
	if !ok {
		r.logger.Error().Str("channel", session.Platform).Msg("No adapter for channel")
		return false
	}

	return adapter.SendMessage(ctx, r.recipient(ctx, userID, session.Platform), text, opts)
}

// recipient finds the native id for userID on channel. Without a reverse
// mapping the decimal internal id is used, which is the Telegram chat id.
func (r *Router) recipient(ctx context.Context, userID int64, channel string) string {
	if lookup, ok := r.mapper.(NativeIDLookup); ok {
		native, found, err := lookup.NativeID(ctx, userID, channel)
		if err != nil {
			r.logger.Warn().Err(err).Int64("user_id", userID).Msg("Native id lookup failed")
		} else if found {
			return native
		}
	}
	return strconv.FormatInt(userID, 10)
}
