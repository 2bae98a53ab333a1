package channels

import (
	"strings"
	"time"
)

// MessageType classifies the content of an inbound message.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageVoice    MessageType = "voice"
	MessageImage    MessageType = "image"
	MessageVideo    MessageType = "video"
	MessageDocument MessageType = "document"
	MessageLocation MessageType = "location"
	MessageCallback MessageType = "callback"
)

// Media kinds accepted by Adapter.SendMedia and reported in Message.MediaType.
const (
	MediaImage    = "image"
	MediaVideo    = "video"
	MediaDocument = "document"
	MediaAudio    = "audio"
	MediaVoice    = "voice"
)

// Message is one inbound event normalized from any channel. It is built once
// by an adapter, consumed once by the router and never persisted.
type Message struct {
	MessageID    string `json:"message_id"`
	Channel      string `json:"platform"`
	NativeUserID string `json:"platform_user_id"`
	// UserID is the internal user id; zero until the router resolves it.
	UserID int64 `json:"internal_user_id,omitempty"`

	Type         MessageType `json:"message_type"`
	Text         string      `json:"text,omitempty"`
	MediaURL     string      `json:"media_url,omitempty"`
	MediaType    string      `json:"media_type,omitempty"`
	CallbackData string      `json:"callback_data,omitempty"`

	LanguageCode string `json:"language_code,omitempty"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`

	Timestamp time.Time              `json:"timestamp"`
	Raw       map[string]interface{} `json:"raw_payload,omitempty"`
}

// FullName returns a display name for the sender.
func (m *Message) FullName() string {
	var parts []string
	if m.FirstName != "" {
		parts = append(parts, m.FirstName)
	}
	if m.LastName != "" {
		parts = append(parts, m.LastName)
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	if m.Username != "" {
		return m.Username
	}
	return "User " + m.NativeUserID
}

// HasMedia reports whether the message carries an attachment.
func (m *Message) HasMedia() bool {
	return m.MediaURL != ""
}
