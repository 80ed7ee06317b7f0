package ratelimit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(windows ...Window) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := New(windows...)
	l.now = clock.now
	return l, clock
}

func TestLimiterAllow(t *testing.T) {
	l, clock := newTestLimiter(Window{Limit: 2, Period: time.Minute})

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys are independent")

	clock.advance(61 * time.Second)
	assert.True(t, l.Allow("a"))
}

func TestLimiterAllEnforcedWindows(t *testing.T) {
	l, clock := newTestLimiter(
		Window{Limit: 2, Period: time.Minute},
		Window{Limit: 3, Period: time.Hour},
	)

	assert.True(t, l.Allow("k"))
	assert.True(t, l.Allow("k"))
	clock.advance(2 * time.Minute)
	assert.True(t, l.Allow("k"))
	clock.advance(2 * time.Minute)
	assert.False(t, l.Allow("k"), "hourly window is full")

	clock.advance(time.Hour)
	assert.True(t, l.Allow("k"))
}

func TestLimiterRejectedEventsAreNotRecorded(t *testing.T) {
	l, clock := newTestLimiter(Window{Limit: 1, Period: time.Minute})

	assert.True(t, l.Allow("k"))
	for range 5 {
		clock.advance(10 * time.Second)
		assert.False(t, l.Allow("k"))
	}

	clock.advance(11 * time.Second)
	assert.True(t, l.Allow("k"))
}

func TestLimiterRetryAfter(t *testing.T) {
	l, clock := newTestLimiter(Window{Limit: 2, Period: time.Minute})

	assert.Zero(t, l.RetryAfter("k"))

	l.Allow("k")
	clock.advance(20 * time.Second)
	l.Allow("k")

	assert.Equal(t, 40*time.Second, l.RetryAfter("k"))

	clock.advance(40 * time.Second)
	assert.Zero(t, l.RetryAfter("k"))
}

func TestLimiterCleanup(t *testing.T) {
	l, clock := newTestLimiter(Window{Limit: 1, Period: time.Minute})

	l.Allow("a")
	l.Allow("b")
	clock.advance(2 * time.Minute)
	l.cleanup()

	assert.Empty(t, l.requests)
}

func TestPersistentLimiterSharesBudgetAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budget", "strava_budget.json")
	window := Window{Limit: 2, Period: time.Hour}

	first, err := NewPersistent(path, window)
	require.NoError(t, err)
	assert.True(t, first.Allow("strava"))
	assert.True(t, first.Allow("strava"))

	second, err := NewPersistent(path, window)
	require.NoError(t, err)
	assert.False(t, second.Allow("strava"))
	assert.Positive(t, second.RetryAfter("strava"))
}

func TestPersistentLimiterExpiresStoredEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strava_budget.json")
	old := time.Now().Add(-2 * time.Hour).UTC().Format(time.RFC3339Nano)
	require.NoError(t, os.WriteFile(path, []byte(`{"strava":["`+old+`","`+old+`"]}`), 0644))

	l, err := NewPersistent(path, Window{Limit: 2, Period: time.Hour})
	require.NoError(t, err)
	assert.True(t, l.Allow("strava"))
}

func TestPersistentLimiterIgnoresDamagedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strava_budget.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))

	l, err := NewPersistent(path, Window{Limit: 1, Period: time.Hour})
	require.NoError(t, err)
	assert.True(t, l.Allow("strava"))
}
