package channels

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_FullName(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"first and last", Message{FirstName: "Aigerim", LastName: "Nurlanova", Username: "aika"}, "Aigerim Nurlanova"},
		{"first only", Message{FirstName: "Aigerim"}, "Aigerim"},
		{"last only", Message{LastName: "Nurlanova"}, "Nurlanova"},
		{"username fallback", Message{Username: "aika"}, "aika"},
		{"native id fallback", Message{NativeUserID: "12345"}, "User 12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.FullName())
		})
	}
}

func TestMessage_HasMedia(t *testing.T) {
	assert.False(t, (&Message{Text: "hi"}).HasMedia())
	assert.True(t, (&Message{MediaURL: "https://example.com/a.jpg"}).HasMedia())
}

func TestFormatError(t *testing.T) {
	assert.Equal(t, "⚠️ Ошибка: slot taken", FormatError("slot taken"))
}

func TestAvailability(t *testing.T) {
	var a Availability
	assert.False(t, a.Available())
	a.SetAvailable(true)
	assert.True(t, a.Available())
}
