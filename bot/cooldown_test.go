package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldownAllowsFirstCommand(t *testing.T) {
	c := NewCooldown(time.Minute)
	assert.True(t, c.Allow("+15550000001"))
}

func TestCooldownBlocksWithinWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := NewCooldown(time.Minute)
	c.now = func() time.Time { return now }

	assert.True(t, c.Allow("+15550000001"))

	now = now.Add(30 * time.Second)
	assert.False(t, c.Allow("+15550000001"))

	now = now.Add(31 * time.Second)
	assert.True(t, c.Allow("+15550000001"))
}

func TestCooldownDeniedCommandDoesNotExtendWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := NewCooldown(time.Minute)
	c.now = func() time.Time { return now }

	assert.True(t, c.Allow("+15550000001"))

	// Hammering during the window must not push the expiry out.
	for i := 0; i < 10; i++ {
		now = now.Add(5 * time.Second)
		assert.False(t, c.Allow("+15550000001"))
	}

	now = now.Add(15 * time.Second) // 65s after the allowed command
	assert.True(t, c.Allow("+15550000001"))
}

func TestCooldownIsPerUser(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := NewCooldown(time.Minute)
	c.now = func() time.Time { return now }

	assert.True(t, c.Allow("+15550000001"))
	assert.True(t, c.Allow("+15550000002"))
	assert.False(t, c.Allow("+15550000001"))
}

func TestCooldownDisabled(t *testing.T) {
	c := NewCooldown(0)
	for i := 0; i < 5; i++ {
		assert.True(t, c.Allow("+15550000001"))
	}
}

func TestCooldownRemaining(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := NewCooldown(time.Minute)
	c.now = func() time.Time { return now }

	assert.Zero(t, c.Remaining("+15550000001"))

	c.Allow("+15550000001")
	now = now.Add(20 * time.Second)
	assert.Equal(t, 40*time.Second, c.Remaining("+15550000001"))

	now = now.Add(2 * time.Minute)
	assert.Zero(t, c.Remaining("+15550000001"))
}
