package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{MaxPerWindow: 2, Window: time.Minute, Enabled: true})
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())
	assert.Equal(t, int64(1), rl.Stats().Dropped)

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow())
	assert.Equal(t, 1, rl.Stats().CurrentCount)
}

func TestRateLimiterRelease(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxPerWindow: 1, Window: time.Minute, Enabled: true})

	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())
	rl.Release()
	assert.True(t, rl.Allow())
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxPerWindow: 1, Window: time.Minute})
	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow())
	}
	assert.Equal(t, int64(0), rl.Stats().Dropped)
}

func TestRateLimiterDefaults(t *testing.T) {
	stats := NewRateLimiter(RateLimitConfig{Enabled: true}).Stats()
	assert.Equal(t, 20, stats.MaxPerWindow)
	assert.Equal(t, time.Minute, stats.Window)
	assert.True(t, stats.Enabled)
}
