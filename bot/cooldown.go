package bot

import (
	"sync"
	"time"
)

// Cooldown is the per-user command rate ledger: one timestamp per user,
// created on first command and updated on every allowed one. Entries
// are never deleted; the ledger is bounded by distinct-user cardinality.
type Cooldown struct {
	window time.Duration

	mu   sync.Mutex
	last map[string]time.Time

	// now is swappable so tests control the clock.
	now func() time.Time
}

// NewCooldown creates a ledger with the given window. A zero or negative
// window disables the check.
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether user may run a command now, and records the
// command time when it may. Below the window the command is dropped by
// the caller; the ledger is not updated so the window does not extend.
func (c *Cooldown) Allow(user string) bool {
	if c.window <= 0 {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if last, ok := c.last[user]; ok && now.Sub(last) < c.window {
		return false
	}
	c.last[user] = now
	return true
}

// Remaining reports how long until user may run a command again. Zero
// means immediately.
func (c *Cooldown) Remaining(user string) time.Duration {
	if c.window <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.last[user]
	if !ok {
		return 0
	}
	remaining := c.window - c.now().Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}
