package webhook

import (
	"sync"
	"time"
)

// DefaultDedupeTTL is how long a delivered message id is remembered.
const DefaultDedupeTTL = 5 * time.Minute

// DedupeCache remembers recently seen message keys so provider redeliveries
// are dropped.
type DedupeCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
}

// NewDedupeCache creates a cache; ttl <= 0 uses DefaultDedupeTTL.
func NewDedupeCache(ttl time.Duration) *DedupeCache {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &DedupeCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]time.Time),
		stopCh:  make(chan struct{}),
	}
}

// Seen reports whether key was marked within the TTL, and marks it.
func (c *DedupeCache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if ts, ok := c.entries[key]; ok && now.Sub(ts) <= c.ttl {
		return true
	}
	c.entries[key] = now
	return false
}

// Len returns the number of remembered keys, expired ones included.
func (c *DedupeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Start launches the expiry goroutine.
func (c *DedupeCache) Start() {
	c.startOnce.Do(func() {
		interval := c.ttl / 2
		if interval > 30*time.Second {
			interval = 30 * time.Second
		}
		if interval <= 0 {
			interval = time.Second
		}

		ticker := time.NewTicker(interval)
		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					c.cleanupExpired()
				case <-c.stopCh:
					return
				}
			}
		}()
	})
}

// Stop ends the expiry goroutine.
func (c *DedupeCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

func (c *DedupeCache) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, ts := range c.entries {
		if now.Sub(ts) > c.ttl {
			delete(c.entries, key)
		}
	}
}
