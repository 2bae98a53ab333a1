package daemon

import (
	"context"

	"github.com/harun/medibook/internal/tracing"
	"github.com/harun/medibook/pkg/channels"
	"github.com/harun/medibook/pkg/conversation"
	"github.com/harun/medibook/pkg/routing"
	"github.com/rs/zerolog"
)

// NewLogHandler returns the handler used when no booking logic is plugged
// in. It records each routed message and leaves the session untouched.
func NewLogHandler(logger zerolog.Logger) routing.Handler {
	return func(ctx context.Context, msg *channels.Message, session *conversation.Context) error {
		l := tracing.LoggerFromContext(ctx, logger)
		l.Debug().
			Str("channel", msg.Channel).
			Str("message_id", msg.MessageID).
			Int64("user_id", session.UserID).
			Str("state", session.CurrentState.String()).
			Str("type", string(msg.Type)).
			Msg("Message routed")
		return nil
	}
}
