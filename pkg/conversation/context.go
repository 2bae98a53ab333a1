package conversation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultPlatform is the channel recorded on a fresh session.
	DefaultPlatform = "telegram"
	// DefaultLanguage is the language recorded on a fresh session.
	DefaultLanguage = "ru"
	// DefaultBookingDuration is the appointment length in minutes.
	DefaultBookingDuration = 60
)

// CollectedInfo is the booking data gathered during a conversation.
// Empty strings and a zero DoctorID mean "not collected yet".
type CollectedInfo struct {
	Name        string `json:"name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	DoctorID    int    `json:"doctor_id,omitempty"`
	DoctorName  string `json:"doctor_name,omitempty"`
	BookingDate string `json:"booking_date,omitempty"` // YYYY-MM-DD
	BookingTime string `json:"booking_time,omitempty"` // HH:MM
	Duration    int    `json:"booking_duration"`       // minutes
	Notes       string `json:"notes,omitempty"`
}

// NewCollectedInfo returns an empty record with the default duration.
func NewCollectedInfo() CollectedInfo {
	return CollectedInfo{Duration: DefaultBookingDuration}
}

// MissingForConfirmation lists the fields required to confirm a booking that
// are still empty, in the fixed order name, phone, doctor_id, booking_date,
// booking_time.
func (ci CollectedInfo) MissingForConfirmation() []string {
	var missing []string
	if ci.Name == "" {
		missing = append(missing, "name")
	}
	if ci.Phone == "" {
		missing = append(missing, "phone")
	}
	if ci.DoctorID == 0 {
		missing = append(missing, "doctor_id")
	}
	if ci.BookingDate == "" {
		missing = append(missing, "booking_date")
	}
	if ci.BookingTime == "" {
		missing = append(missing, "booking_time")
	}
	return missing
}

// Context is the per-user conversational memory.
type Context struct {
	ContextID     string        `json:"context_id"`
	UserID        int64         `json:"user_id"`
	Platform      string        `json:"platform"`
	Language      string        `json:"language"`
	CurrentState  State         `json:"current_state"`
	CollectedInfo CollectedInfo `json:"collected_info"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	LastActivity  time.Time     `json:"last_activity"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	AdminMode     bool          `json:"admin_mode"`
}

// NewContext builds a session in START with default platform and language.
func NewContext(userID int64) *Context {
	return newContextAt(userID, time.Now())
}

func newContextAt(userID int64, now time.Time) *Context {
	return &Context{
		ContextID:     uuid.NewString(),
		UserID:        userID,
		Platform:      DefaultPlatform,
		Language:      DefaultLanguage,
		CurrentState:  StateStart,
		CollectedInfo: NewCollectedInfo(),
		CreatedAt:     now,
		UpdatedAt:     now,
		LastActivity:  now,
	}
}

// Clone returns an independent copy of c.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Transition moves c to target when CheckTransition allows it. On rejection c
// is left untouched.
func (c *Context) Transition(target State) TransitionResult {
	res := CheckTransition(c, target)
	if res.Allowed {
		c.apply(target, time.Now())
	}
	return res
}

// ForceState overwrites the current state without any validation. It is
// reserved for error recovery.
func (c *Context) ForceState(target State) {
	c.apply(target, time.Now())
}

func (c *Context) apply(target State, now time.Time) {
	c.CurrentState = target
	c.ErrorMessage = ""
	c.touch(now)
}

func (c *Context) touch(now time.Time) {
	c.UpdatedAt = now
	c.LastActivity = now
}

// ToJSON encodes the session record.
func (c *Context) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// ContextFromJSON decodes a session record and rejects unknown states.
func ContextFromJSON(data []byte) (*Context, error) {
	var c Context
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode context: %w", err)
	}
	if c.CurrentState == "" {
		c.CurrentState = StateStart
	}
	state, err := ParseState(string(c.CurrentState))
	if err != nil {
		return nil, err
	}
	c.CurrentState = state
	if c.Platform == "" {
		c.Platform = DefaultPlatform
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	return &c, nil
}
