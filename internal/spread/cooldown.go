package spread

import (
	"sync"
	"time"
)

// DefaultCooldownWindow is how long a base asset stays quiet after an
// alert.
const DefaultCooldownWindow = 1800 * time.Second

// Cooldown suppresses repeat alerts for a key inside a fixed window.
// The check and the timestamp write happen atomically, so concurrent
// callers for one key get exactly one green light per window.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

// NewCooldown creates a cooldown table with the given window.
func NewCooldown(window time.Duration) *Cooldown {
	if window <= 0 {
		window = DefaultCooldownWindow
	}
	return &Cooldown{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// MayEmit reports whether an alert for key may go out at now, and
// records the emission when it may.
func (c *Cooldown) MayEmit(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.last[key]; ok && now.Sub(last) < c.window {
		return false
	}
	c.last[key] = now
	return true
}

// Len returns the number of tracked keys.
func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}

// Prune drops entries whose window has passed and returns how many
// went. Dropping them does not change MayEmit results.
func (c *Cooldown) Prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	pruned := 0
	for key, last := range c.last {
		if now.Sub(last) >= c.window {
			delete(c.last, key)
			pruned++
		}
	}
	return pruned
}
