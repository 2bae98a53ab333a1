package conversation

import (
	"fmt"
	"sync"
	"time"

	"github.com/harun/medibook/internal/observability"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxAge   = 24 * time.Hour
	DefaultSchedule = "@every 1h"
)

// Sweeper periodically evicts idle sessions from a Store.
type Sweeper struct {
	store    *Store
	maxAge   time.Duration
	schedule string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSweeper creates a sweeper. Zero values fall back to DefaultMaxAge and
// DefaultSchedule. schedule accepts standard five-field cron expressions and
// descriptors such as "@every 30m".
func NewSweeper(store *Store, maxAge time.Duration, schedule string) *Sweeper {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Sweeper{
		store:    store,
		maxAge:   maxAge,
		schedule: schedule,
	}
}

// ValidateSchedule reports whether expr is a usable sweep schedule.
func ValidateSchedule(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper is already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.SweepNow() }); err != nil {
		return fmt.Errorf("failed to schedule sweeper: %w", err)
	}
	c.Start()

	s.cron = c
	s.running = true

	log.Info().
		Str("schedule", s.schedule).
		Dur("max_age", s.maxAge).
		Msg("Session sweeper started")

	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is not running")
	}
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	<-c.Stop().Done()
	log.Info().Msg("Session sweeper stopped")
	return nil
}

// SweepNow runs one eviction pass immediately.
func (s *Sweeper) SweepNow() int {
	removed := s.store.CleanupExpired(s.maxAge)
	if removed > 0 {
		observability.RecordSessionsExpired(removed)
	}
	log.Debug().
		Int("removed", removed).
		Int("remaining", s.store.Size()).
		Msg("Session sweep finished")
	return removed
}

// IsRunning reports whether the scheduler is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// MaxAge returns the idle threshold.
func (s *Sweeper) MaxAge() time.Duration {
	return s.maxAge
}
