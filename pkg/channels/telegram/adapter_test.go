package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/medibook/pkg/channels"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	errs     []error
}

func (f *fakeBot) nextErr() error {
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.nextErr()
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

type captureNotifier struct {
	events chan channels.NotificationEvent
}

func (n *captureNotifier) NotifyAdmin(_ context.Context, ev channels.NotificationEvent) error {
	n.events <- ev
	return nil
}

func newTestAdapter(bot *fakeBot) (*Adapter, *captureNotifier) {
	n := &captureNotifier{events: make(chan channels.NotificationEvent, 4)}
	a := newWithAPI(bot, n)
	a.Sender().Policy = channels.RetryPolicy{
		Attempts:   3,
		Multiplier: 0.001,
		MinWait:    time.Millisecond,
		MaxWait:    2 * time.Millisecond,
	}
	return a, n
}

func TestNew_WithoutTokenIsUnavailable(t *testing.T) {
	a := New(Config{}, nil)
	assert.False(t, a.Available())
	assert.Equal(t, "telegram", a.Name())
	assert.False(t, a.SendMessage(context.Background(), "42", "hi", channels.SendOptions{}))
}

func TestNew_WithTokenIsAvailable(t *testing.T) {
	a := New(Config{BotToken: "123456:ABCDEF"}, nil)
	assert.True(t, a.Available())
}

func TestSendMessage(t *testing.T) {
	bot := &fakeBot{}
	a, _ := newTestAdapter(bot)

	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Yes", "confirm")),
	)
	ok := a.SendMessage(context.Background(), "42", "<b>Hello</b>", channels.SendOptions{
		ParseMode:   tgbotapi.ModeHTML,
		ReplyMarkup: markup,
	})
	require.True(t, ok)
	require.Len(t, bot.sent, 1)

	msg, isMsg := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, isMsg)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "<b>Hello</b>", msg.Text)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	assert.Equal(t, markup, msg.ReplyMarkup)
}

func TestSendMessage_InvalidRecipient(t *testing.T) {
	bot := &fakeBot{}
	a, n := newTestAdapter(bot)

	assert.False(t, a.SendMessage(context.Background(), "not-a-number", "hi", channels.SendOptions{}))
	assert.Empty(t, bot.sent)

	select {
	case ev := <-n.events:
		t.Fatalf("unexpected admin notification: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSendMessage_RetriesServerErrors(t *testing.T) {
	bot := &fakeBot{errs: []error{
		&tgbotapi.Error{Code: 502, Message: "Bad Gateway"},
		&tgbotapi.Error{Code: 429, Message: "Too Many Requests"},
	}}
	a, _ := newTestAdapter(bot)

	assert.True(t, a.SendMessage(context.Background(), "42", "hi", channels.SendOptions{}))
	assert.Len(t, bot.sent, 3)
}

func TestSendMessage_PermanentErrorNotifiesAdmin(t *testing.T) {
	bot := &fakeBot{errs: []error{&tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}}}
	a, n := newTestAdapter(bot)

	assert.False(t, a.SendMessage(context.Background(), "42", "hi", channels.SendOptions{}))
	assert.Len(t, bot.sent, 1)

	select {
	case ev := <-n.events:
		assert.Equal(t, "adapter_error", ev.EventType)
		assert.Equal(t, "telegram", ev.Data["platform"])
		assert.Equal(t, "42", ev.Data["recipient_id"])
		assert.Contains(t, ev.Data["error"], "blocked")
	case <-time.After(time.Second):
		t.Fatal("admin not notified")
	}
}

func TestSendMedia(t *testing.T) {
	tests := []struct {
		kind  string
		check func(t *testing.T, c tgbotapi.Chattable)
	}{
		{channels.MediaImage, func(t *testing.T, c tgbotapi.Chattable) {
			p, ok := c.(tgbotapi.PhotoConfig)
			require.True(t, ok)
			assert.Equal(t, "caption", p.Caption)
			assert.Equal(t, tgbotapi.FileURL("https://cdn.example.com/a.jpg"), p.File)
		}},
		{channels.MediaVideo, func(t *testing.T, c tgbotapi.Chattable) {
			_, ok := c.(tgbotapi.VideoConfig)
			assert.True(t, ok)
		}},
		{channels.MediaDocument, func(t *testing.T, c tgbotapi.Chattable) {
			_, ok := c.(tgbotapi.DocumentConfig)
			assert.True(t, ok)
		}},
		{channels.MediaAudio, func(t *testing.T, c tgbotapi.Chattable) {
			_, ok := c.(tgbotapi.AudioConfig)
			assert.True(t, ok)
		}},
		{channels.MediaVoice, func(t *testing.T, c tgbotapi.Chattable) {
			_, ok := c.(tgbotapi.VoiceConfig)
			assert.True(t, ok)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			bot := &fakeBot{}
			a, _ := newTestAdapter(bot)

			require.True(t, a.SendMedia(context.Background(), "7", "https://cdn.example.com/a.jpg", tt.kind, "caption", channels.SendOptions{}))
			require.Len(t, bot.sent, 1)
			tt.check(t, bot.sent[0])
		})
	}
}

func TestSendMedia_FileIDAndUnsupported(t *testing.T) {
	bot := &fakeBot{}
	a, _ := newTestAdapter(bot)

	require.True(t, a.SendMedia(context.Background(), "7", "AgACAgIAAxkBAAIB", channels.MediaImage, "", channels.SendOptions{}))
	p := bot.sent[0].(tgbotapi.PhotoConfig)
	assert.Equal(t, tgbotapi.FileID("AgACAgIAAxkBAAIB"), p.File)

	assert.False(t, a.SendMedia(context.Background(), "7", "x", "sticker", "", channels.SendOptions{}))
	assert.Len(t, bot.sent, 1)
}

func TestSendTypingIndicator(t *testing.T) {
	bot := &fakeBot{}
	a, n := newTestAdapter(bot)

	require.True(t, a.SendTypingIndicator(context.Background(), "42", channels.SendOptions{}))
	require.Len(t, bot.requests, 1)
	action := bot.requests[0].(tgbotapi.ChatActionConfig)
	assert.Equal(t, tgbotapi.ChatTyping, action.Action)

	bot.errs = []error{errors.New("forbidden")}
	assert.False(t, a.SendTypingIndicator(context.Background(), "42", channels.SendOptions{}))

	select {
	case ev := <-n.events:
		t.Fatalf("typing failures must not alert: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestNotifyError(t *testing.T) {
	bot := &fakeBot{}
	a, _ := newTestAdapter(bot)

	require.True(t, a.NotifyError(context.Background(), "42", "слот занят"))
	msg := bot.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, "⚠️ Ошибка: слот занят", msg.Text)
}

func TestParseWebhook_Text(t *testing.T) {
	a, _ := newTestAdapter(&fakeBot{})

	raw := []byte(`{"update_id":1,"message":{"message_id":77,"date":1700000000,
		"from":{"id":12345,"is_bot":false,"first_name":"Aigerim","last_name":"N","username":"aika","language_code":"kk"},
		"chat":{"id":12345,"type":"private"},"text":"/start"}}`)

	msg := a.ParseWebhook(raw, nil)
	require.NotNil(t, msg)
	assert.Equal(t, "77", msg.MessageID)
	assert.Equal(t, "telegram", msg.Channel)
	assert.Equal(t, "12345", msg.NativeUserID)
	assert.Equal(t, channels.MessageText, msg.Type)
	assert.Equal(t, "/start", msg.Text)
	assert.Equal(t, "kk", msg.LanguageCode)
	assert.Equal(t, "aika", msg.Username)
	assert.Equal(t, "Aigerim N", msg.FullName())
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), msg.Timestamp)
	assert.Equal(t, float64(77), msg.Raw["message_id"])
}

func TestParseWebhook_Media(t *testing.T) {
	a, _ := newTestAdapter(&fakeBot{})
	from := `"from":{"id":5,"is_bot":false,"first_name":"A"},"chat":{"id":5,"type":"private"},"date":1700000000`

	tests := []struct {
		name      string
		body      string
		wantType  channels.MessageType
		wantMedia string
		wantKind  string
		wantText  string
	}{
		{
			name:      "voice clears text",
			body:      `{"update_id":2,"message":{"message_id":1,` + from + `,"voice":{"file_id":"VOICE1","file_unique_id":"u","duration":3}}}`,
			wantType:  channels.MessageVoice,
			wantMedia: "VOICE1",
			wantKind:  "voice",
		},
		{
			name:      "largest photo",
			body:      `{"update_id":3,"message":{"message_id":2,` + from + `,"caption":"x-ray","photo":[{"file_id":"SMALL","file_unique_id":"a","width":90,"height":90},{"file_id":"BIG","file_unique_id":"b","width":800,"height":800}]}}`,
			wantType:  channels.MessageImage,
			wantMedia: "BIG",
			wantKind:  "image",
			wantText:  "x-ray",
		},
		{
			name:      "video",
			body:      `{"update_id":4,"message":{"message_id":3,` + from + `,"caption":"clip","video":{"file_id":"VID","file_unique_id":"v","width":1,"height":1,"duration":1}}}`,
			wantType:  channels.MessageVideo,
			wantMedia: "VID",
			wantKind:  "video",
			wantText:  "clip",
		},
		{
			name:      "document",
			body:      `{"update_id":5,"message":{"message_id":4,` + from + `,"caption":"scan","document":{"file_id":"DOC","file_unique_id":"d"}}}`,
			wantType:  channels.MessageDocument,
			wantMedia: "DOC",
			wantKind:  "document",
			wantText:  "scan",
		},
		{
			name:     "location",
			body:     `{"update_id":6,"message":{"message_id":5,` + from + `,"location":{"latitude":43.2389,"longitude":76.8897}}}`,
			wantType: channels.MessageLocation,
			wantText: "Location: 43.2389, 76.8897",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := a.ParseWebhook([]byte(tt.body), nil)
			require.NotNil(t, msg)
			assert.Equal(t, tt.wantType, msg.Type)
			assert.Equal(t, tt.wantMedia, msg.MediaURL)
			assert.Equal(t, tt.wantKind, msg.MediaType)
			assert.Equal(t, tt.wantText, msg.Text)
		})
	}
}

func TestParseWebhook_Callback(t *testing.T) {
	a, _ := newTestAdapter(&fakeBot{})

	raw := []byte(`{"update_id":9,"callback_query":{"id":"cbq-1","from":{"id":99,"is_bot":false,"first_name":"B","language_code":"ru"},"data":"doctor:3","chat_instance":"x"}}`)

	before := time.Now().UTC().Add(-time.Second)
	msg := a.ParseWebhook(raw, nil)
	require.NotNil(t, msg)
	assert.Equal(t, "cbq-1", msg.MessageID)
	assert.Equal(t, "99", msg.NativeUserID)
	assert.Equal(t, channels.MessageCallback, msg.Type)
	assert.Equal(t, "doctor:3", msg.CallbackData)
	assert.True(t, msg.Timestamp.After(before))
	assert.Equal(t, "doctor:3", msg.Raw["data"])
}

func TestParseWebhook_Unsupported(t *testing.T) {
	a, _ := newTestAdapter(&fakeBot{})

	assert.Nil(t, a.ParseWebhook([]byte(`not json`), nil))
	assert.Nil(t, a.ParseWebhook([]byte(`{"update_id":10,"edited_message":{"message_id":1,"date":1,"chat":{"id":1,"type":"private"}}}`), nil))
}

func TestValidateWebhook(t *testing.T) {
	a, _ := newTestAdapter(&fakeBot{})
	ok, err := a.ValidateWebhook([]byte(`{}`), "", nil)
	assert.True(t, ok)
	assert.NoError(t, err)
}
