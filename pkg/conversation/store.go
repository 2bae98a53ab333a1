package conversation

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/harun/medibook/internal/observability"
	"github.com/rs/zerolog/log"
)

// Fields selects which parts of a session Update overwrites. Nil pointers
// leave the stored value as is.
type Fields struct {
	State         *State
	CollectedInfo *CollectedInfo
	ErrorMessage  *string
	AdminMode     *bool
}

// Store is an in-memory session store keyed by internal user id. One mutex
// serializes every operation, so operations for the same user never
// interleave. Callers only ever see copies of stored records.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Context
	now      func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[int64]*Context),
		now:      time.Now,
	}
}

// Load returns a copy of the session for userID.
func (s *Store) Load(userID int64) (*Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.sessions[userID]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Save stores a copy of c, replacing any session for the same user, and
// refreshes c.UpdatedAt.
func (s *Store) Save(c *Context) {
	if c == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c.UpdatedAt = s.now()
	s.sessions[c.UserID] = c.Clone()
	observability.SetActiveSessions(len(s.sessions))

	log.Debug().Int64("user_id", c.UserID).Msg("Session saved")
}

// Create builds a fresh session for userID with the given language and
// platform and stores it, replacing any existing one.
func (s *Store) Create(userID int64, platform, language string) *Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := newContextAt(userID, s.now())
	if platform != "" {
		c.Platform = platform
	}
	if language != "" {
		c.Language = language
	}
	s.sessions[userID] = c
	observability.SetActiveSessions(len(s.sessions))

	log.Info().
		Int64("user_id", userID).
		Str("platform", c.Platform).
		Str("language", c.Language).
		Msg("Session created")

	return c.Clone()
}

// LoadOrCreate returns the session for userID, creating it under the same
// lock when absent so concurrent first messages share one session.
func (s *Store) LoadOrCreate(userID int64, platform, language string) (*Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.sessions[userID]; ok {
		return c.Clone(), false
	}

	c := newContextAt(userID, s.now())
	if platform != "" {
		c.Platform = platform
	}
	if language != "" {
		c.Language = language
	}
	s.sessions[userID] = c
	observability.SetActiveSessions(len(s.sessions))

	log.Info().
		Int64("user_id", userID).
		Str("platform", c.Platform).
		Str("language", c.Language).
		Msg("Session created")

	return c.Clone(), true
}

// SetPlatform records the channel a user is writing from. Only Platform and
// the activity timestamps change. It reports false when there is no session.
func (s *Store) SetPlatform(userID int64, platform string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.sessions[userID]
	if !ok {
		return false
	}
	c.Platform = platform
	c.touch(s.now())
	return true
}

// Update merges the provided fields into the session for userID, creating a
// default session first when none exists. It never fails.
func (s *Store) Update(userID int64, f Fields) *Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.sessions[userID]
	if !ok {
		c = newContextAt(userID, now)
		log.Info().Int64("user_id", userID).Msg("Session created on update")
	}

	if f.State != nil {
		c.CurrentState = *f.State
	}
	if f.CollectedInfo != nil {
		c.CollectedInfo = *f.CollectedInfo
	}
	if f.ErrorMessage != nil {
		c.ErrorMessage = *f.ErrorMessage
	}
	if f.AdminMode != nil {
		c.AdminMode = *f.AdminMode
	}

	c.touch(now)
	s.sessions[userID] = c
	observability.SetActiveSessions(len(s.sessions))

	return c.Clone()
}

// Transition validates and applies a state change for userID. A rejected
// transition returns a *TransitionError and leaves the session untouched.
func (s *Store) Transition(userID int64, target State) (*Context, error) {
	return s.transition(userID, target, true)
}

// ForceTransition overwrites the state for userID without validation. It
// exists for error recovery; every use is written to the audit log.
func (s *Store) ForceTransition(userID int64, target State) (*Context, error) {
	return s.transition(userID, target, false)
}

func (s *Store) transition(userID int64, target State, validate bool) (*Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.sessions[userID]
	if !ok {
		log.Warn().Int64("user_id", userID).Str("to", string(target)).Msg("Transition for unknown session")
		return nil, ErrSessionNotFound
	}

	from := c.CurrentState
	if validate {
		res := CheckTransition(c, target)
		if !res.Allowed {
			observability.RecordTransition(string(from), string(target), "rejected")
			log.Warn().
				Int64("user_id", userID).
				Str("from", string(from)).
				Str("to", string(target)).
				Str("reason", string(res.Reason)).
				Strs("missing", res.Missing).
				Msg("Transition rejected")
			return nil, res.Err(userID)
		}
		observability.RecordTransition(string(from), string(target), "accepted")
	} else {
		observability.RecordTransition(string(from), string(target), "forced")
		observability.RecordStateAudit(context.Background(), "force_transition", strconv.FormatInt(userID, 10), map[string]interface{}{
			"from": string(from),
			"to":   string(target),
		})
	}

	next := c.Clone()
	next.apply(target, s.now())
	s.sessions[userID] = next

	log.Info().
		Int64("user_id", userID).
		Str("from", string(from)).
		Str("to", string(target)).
		Bool("validated", validate).
		Msg("Session transitioned")

	return next.Clone(), nil
}

// Clear removes the session for userID.
func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[userID]; ok {
		delete(s.sessions, userID)
		observability.SetActiveSessions(len(s.sessions))
		log.Info().Int64("user_id", userID).Msg("Session cleared")
	}
}

// ClearAll removes every session.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.sessions)
	s.sessions = make(map[int64]*Context)
	observability.SetActiveSessions(0)
	log.Info().Int("count", count).Msg("All sessions cleared")
}

// CleanupExpired evicts sessions whose last activity is older than maxAge
// and returns how many were removed.
func (s *Store) CleanupExpired(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for userID, c := range s.sessions {
		if now.Sub(c.LastActivity) > maxAge {
			delete(s.sessions, userID)
			removed++
		}
	}

	observability.SetActiveSessions(len(s.sessions))
	if removed > 0 {
		log.Info().Int("removed", removed).Dur("max_age", maxAge).Msg("Expired sessions removed")
	}
	return removed
}

// Size returns the number of stored sessions.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Reset drops all sessions and restores the wall clock. Intended for tests.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[int64]*Context)
	s.now = time.Now
}
