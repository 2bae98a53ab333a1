package channels

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	events chan NotificationEvent
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(chan NotificationEvent, 4)}
}

func (n *recordingNotifier) NotifyAdmin(_ context.Context, event NotificationEvent) error {
	n.events <- event
	return nil
}

func TestSender_DeliverSuccess(t *testing.T) {
	notifier := newRecordingNotifier()
	s := NewSender("telegram", notifier)
	s.Policy = fastPolicy()

	ok := s.Deliver(context.Background(), "42", "send_message", func(context.Context) error {
		return nil
	})

	assert.True(t, ok)
	select {
	case ev := <-notifier.events:
		t.Fatalf("unexpected notification: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSender_DeliverExhaustedNotifiesAdmin(t *testing.T) {
	notifier := newRecordingNotifier()
	s := NewSender("whatsapp", notifier)
	s.Policy = fastPolicy()

	calls := 0
	ok := s.Deliver(context.Background(), "+77001234567", "send_message", func(context.Context) error {
		calls++
		return Transient(errors.New("service unavailable"))
	})

	assert.False(t, ok)
	assert.Equal(t, 3, calls)

	select {
	case ev := <-notifier.events:
		assert.Equal(t, "adapter_error", ev.EventType)
		assert.Equal(t, "admin", ev.RecipientType)
		assert.Equal(t, "urgent", ev.Priority)
		assert.Equal(t, "ru", ev.Language)
		assert.Equal(t, []string{"telegram"}, ev.Channels)
		assert.Equal(t, "whatsapp", ev.Data["platform"])
		assert.Equal(t, "+77001234567", ev.Data["recipient_id"])
		assert.Equal(t, "service unavailable", ev.Data["error"])
	case <-time.After(time.Second):
		t.Fatal("admin notification not sent")
	}
}

func TestSender_PermanentFailureStillNotifies(t *testing.T) {
	notifier := newRecordingNotifier()
	s := NewSender("instagram", notifier)
	s.Policy = fastPolicy()

	calls := 0
	ok := s.Deliver(context.Background(), "1789", "send_media", func(context.Context) error {
		calls++
		return errors.New("invalid recipient")
	})

	assert.False(t, ok)
	assert.Equal(t, 1, calls)

	select {
	case ev := <-notifier.events:
		assert.Equal(t, "instagram", ev.Data["platform"])
	case <-time.After(time.Second):
		t.Fatal("admin notification not sent")
	}
}

func TestSender_SuppressedContextSkipsAlert(t *testing.T) {
	notifier := newRecordingNotifier()
	s := NewSender("telegram", notifier)
	s.Policy = fastPolicy()

	ok := s.Deliver(SuppressAlerts(context.Background()), "1", "send_message", func(context.Context) error {
		return errors.New("bot blocked")
	})
	require.False(t, ok)

	select {
	case ev := <-notifier.events:
		t.Fatalf("unexpected notification: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSender_NilNotifier(t *testing.T) {
	s := NewSender("telegram", nil)
	s.Policy = fastPolicy()

	assert.False(t, s.Deliver(context.Background(), "1", "send_message", func(context.Context) error {
		return errors.New("boom")
	}))
}

func TestNewAdapterErrorEvent(t *testing.T) {
	ev := NewAdapterErrorEvent("telegram", "42", nil)
	assert.Equal(t, "", ev.Data["error"])
	assert.False(t, ev.CreatedAt.IsZero())
}
