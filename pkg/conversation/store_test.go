package conversation

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStoreLoadMissing(t *testing.T) {
	s := NewStore()
	c, ok := s.Load(1)
	assert.False(t, ok)
	assert.Nil(t, c)
}

func TestStoreCreateAndLoad(t *testing.T) {
	s := NewStore()
	created := s.Create(42, "whatsapp", "kz")

	assert.Equal(t, int64(42), created.UserID)
	assert.Equal(t, StateStart, created.CurrentState)
	assert.Equal(t, "whatsapp", created.Platform)
	assert.Equal(t, "kz", created.Language)
	assert.Equal(t, DefaultBookingDuration, created.CollectedInfo.Duration)
	assert.NotEmpty(t, created.ContextID)

	loaded, ok := s.Load(42)
	require.True(t, ok)
	assert.Equal(t, created, loaded)
}

func TestStoreReturnsCopies(t *testing.T) {
	s := NewStore()
	s.Create(1, "", "")

	c, _ := s.Load(1)
	c.CurrentState = StateDone
	c.CollectedInfo.Name = "mutated"

	again, _ := s.Load(1)
	assert.Equal(t, StateStart, again.CurrentState)
	assert.Empty(t, again.CollectedInfo.Name)
}

func TestStoreSave(t *testing.T) {
	s := NewStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = fixedClock(now)

	c := NewContext(7)
	c.CollectedInfo.Phone = "+15550001111"
	s.Save(c)

	assert.Equal(t, now, c.UpdatedAt)
	loaded, ok := s.Load(7)
	require.True(t, ok)
	assert.Equal(t, "+15550001111", loaded.CollectedInfo.Phone)
	assert.Equal(t, 1, s.Size())

	s.Save(nil)
	assert.Equal(t, 1, s.Size())
}

func TestStoreUpdate(t *testing.T) {
	t.Run("creates when absent", func(t *testing.T) {
		s := NewStore()
		c := s.Update(11, Fields{})
		assert.Equal(t, StateStart, c.CurrentState)
		assert.Equal(t, 1, s.Size())
	})

	t.Run("merges only provided fields", func(t *testing.T) {
		s := NewStore()
		admin := true
		s.Update(11, Fields{AdminMode: &admin})

		info := CollectedInfo{Name: "A", Duration: 30}
		c := s.Update(11, Fields{CollectedInfo: &info})

		assert.True(t, c.AdminMode)
		assert.Equal(t, "A", c.CollectedInfo.Name)
		assert.Equal(t, 30, c.CollectedInfo.Duration)
		assert.Equal(t, StateStart, c.CurrentState)
	})

	t.Run("refreshes timestamps", func(t *testing.T) {
		s := NewStore()
		t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		s.now = fixedClock(t0)
		s.Update(3, Fields{})

		t1 := t0.Add(time.Minute)
		s.now = fixedClock(t1)
		msg := "oops"
		c := s.Update(3, Fields{ErrorMessage: &msg})

		assert.Equal(t, t0, c.CreatedAt)
		assert.Equal(t, t1, c.UpdatedAt)
		assert.Equal(t, t1, c.LastActivity)
		assert.Equal(t, "oops", c.ErrorMessage)
	})
}

func TestStoreTransitionScenario(t *testing.T) {
	s := NewStore()
	s.Create(42, "", "")

	c, err := s.Transition(42, StateWaitingName)
	require.NoError(t, err)
	assert.Equal(t, StateWaitingName, c.CurrentState)

	_, err = s.Transition(42, StateDone)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	var terr *TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, StateWaitingName, terr.From)
	assert.Equal(t, StateDone, terr.To)

	info := CollectedInfo{Name: "A", Duration: DefaultBookingDuration}
	s.Update(42, Fields{CollectedInfo: &info})

	c, err = s.Transition(42, StateWaitingPhone)
	require.NoError(t, err)
	assert.Equal(t, StateWaitingPhone, c.CurrentState)
	assert.Equal(t, "A", c.CollectedInfo.Name)
}

func TestStoreRejectedTransitionLeavesSessionUnchanged(t *testing.T) {
	s := NewStore()
	s.now = fixedClock(time.Date(2026, 5, 5, 8, 0, 0, 0, time.UTC))
	s.Create(8, "instagram", "ru")
	msg := "bad input"
	s.Update(8, Fields{ErrorMessage: &msg})

	before, _ := s.Load(8)
	beforeJSON, err := before.ToJSON()
	require.NoError(t, err)

	s.now = fixedClock(time.Date(2026, 5, 5, 9, 0, 0, 0, time.UTC))
	_, err = s.Transition(8, StateConfirmBooking)
	require.Error(t, err)

	after, _ := s.Load(8)
	afterJSON, err := after.ToJSON()
	require.NoError(t, err)
	assert.Equal(t, string(beforeJSON), string(afterJSON))
}

func TestStoreTransitionClearsError(t *testing.T) {
	s := NewStore()
	s.Create(2, "", "")
	msg := "retry please"
	s.Update(2, Fields{ErrorMessage: &msg})

	c, err := s.Transition(2, StateErrorFallback)
	require.NoError(t, err)
	assert.Empty(t, c.ErrorMessage)
}

func TestStoreTransitionUnknownUser(t *testing.T) {
	s := NewStore()

	_, err := s.Transition(99, StateWaitingName)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = s.ForceTransition(99, StateStart)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, s.Size())
}

func TestStoreForceTransition(t *testing.T) {
	s := NewStore()
	s.Create(4, "", "")

	c, err := s.ForceTransition(4, StateDone)
	require.NoError(t, err)
	assert.Equal(t, StateDone, c.CurrentState)

	c, err = s.ForceTransition(4, StateErrorFallback)
	require.NoError(t, err)
	assert.Equal(t, StateErrorFallback, c.CurrentState)
}

func TestStoreClear(t *testing.T) {
	s := NewStore()
	s.Create(1, "", "")
	s.Create(2, "", "")

	s.Clear(1)
	s.Clear(1)
	assert.Equal(t, 1, s.Size())

	s.ClearAll()
	assert.Equal(t, 0, s.Size())
}

func TestStoreCleanupExpiredBoundary(t *testing.T) {
	s := NewStore()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	s.now = fixedClock(now)

	old := NewContext(1)
	old.LastActivity = now.Add(-(86400 + 1) * time.Second)
	s.Save(old)

	fresh := NewContext(2)
	fresh.LastActivity = now.Add(-(86400 - 1) * time.Second)
	s.Save(fresh)

	exact := NewContext(3)
	exact.LastActivity = now.Add(-86400 * time.Second)
	s.Save(exact)

	removed := s.CleanupExpired(86400 * time.Second)
	assert.Equal(t, 1, removed)

	_, ok := s.Load(1)
	assert.False(t, ok)
	_, ok = s.Load(2)
	assert.True(t, ok)
	_, ok = s.Load(3)
	assert.True(t, ok)
}

func TestStoreConcurrentUpdatesSameUser(t *testing.T) {
	s := NewStore()
	s.Create(1, "", "")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, _ := s.Load(1)
			info := c.CollectedInfo
			info.Notes = "x"
			s.Update(1, Fields{CollectedInfo: &info})
			s.Update(2, Fields{})
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, s.Size())
}

func TestStoreReset(t *testing.T) {
	s := NewStore()
	s.now = fixedClock(time.Unix(0, 0))
	s.Create(1, "", "")

	s.Reset()
	assert.Equal(t, 0, s.Size())

	c := s.Create(1, "", "")
	assert.True(t, c.CreatedAt.After(time.Unix(0, 0)))
}

func TestStoreLoadOrCreate(t *testing.T) {
	s := NewStore()

	c, created := s.LoadOrCreate(9, "whatsapp", "kz")
	require.True(t, created)
	assert.Equal(t, "whatsapp", c.Platform)
	assert.Equal(t, "kz", c.Language)
	assert.Equal(t, StateStart, c.CurrentState)

	name := "Dana"
	info := NewCollectedInfo()
	info.Name = name
	s.Update(9, Fields{CollectedInfo: &info})

	again, created := s.LoadOrCreate(9, "telegram", "ru")
	assert.False(t, created)
	assert.Equal(t, c.ContextID, again.ContextID)
	assert.Equal(t, "whatsapp", again.Platform)
	assert.Equal(t, name, again.CollectedInfo.Name)
}

func TestStoreLoadOrCreateConcurrent(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	ids := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, _ := s.LoadOrCreate(5, "instagram", "")
			ids <- c.ContextID
		}()
	}
	wg.Wait()
	close(ids)

	first := ""
	for id := range ids {
		if first == "" {
			first = id
		}
		assert.Equal(t, first, id)
	}
	assert.Equal(t, 1, s.Size())
}

func TestStoreSetPlatform(t *testing.T) {
	s := NewStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = fixedClock(now)

	assert.False(t, s.SetPlatform(1, "whatsapp"))

	state := StateWaitingPhone
	info := NewCollectedInfo()
	info.Name = "A"
	s.Update(1, Fields{State: &state, CollectedInfo: &info})
	before, _ := s.Load(1)

	s.now = fixedClock(now.Add(time.Minute))
	require.True(t, s.SetPlatform(1, "whatsapp"))

	after, _ := s.Load(1)
	assert.Equal(t, "whatsapp", after.Platform)
	assert.Equal(t, before.CurrentState, after.CurrentState)
	assert.Equal(t, before.CollectedInfo, after.CollectedInfo)
	assert.Equal(t, now.Add(time.Minute), after.UpdatedAt)
	assert.Equal(t, now.Add(time.Minute), after.LastActivity)
	assert.False(t, after.UpdatedAt.After(after.LastActivity))
	assert.True(t, after.LastActivity.After(before.LastActivity))
}
