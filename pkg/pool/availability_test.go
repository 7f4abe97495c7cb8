package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTracker_RegisterIsImmediatelyAvailable(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(clock.Now)

	tracker.Register("p1")
	assert.True(t, tracker.IsAvailable("p1"))
	assert.False(t, tracker.IsAvailable("unknown"))

	until, ok := tracker.Until("p1")
	require.True(t, ok)
	assert.Equal(t, clock.Now(), until)
}

func TestTracker_PauseWindow(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(clock.Now)
	tracker.Register("p1")

	const d = 3 * time.Minute
	tracker.Pause("p1", d)

	// unavailable throughout [T, T+D)
	for _, offset := range []time.Duration{0, time.Second, d / 2, d - time.Nanosecond} {
		c := *clock
		c.Advance(offset)
		shifted := &Tracker{until: tracker.until, now: c.Now}
		assert.False(t, shifted.IsAvailable("p1"), "offset %s", offset)
	}

	clock.Advance(d)
	assert.True(t, tracker.IsAvailable("p1"))
	clock.Advance(time.Hour)
	assert.True(t, tracker.IsAvailable("p1"))
}

func TestTracker_LatestPauseWins(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(clock.Now)
	tracker.Register("p1")

	tracker.Pause("p1", time.Hour)
	tracker.Pause("p1", time.Minute)

	clock.Advance(time.Minute)
	assert.True(t, tracker.IsAvailable("p1"), "shorter pause replaces the longer one")

	tracker.Pause("p1", time.Minute)
	tracker.Pause("p1", time.Hour)
	clock.Advance(30 * time.Minute)
	assert.False(t, tracker.IsAvailable("p1"))
}

func TestTracker_Exclude(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(clock.Now)
	tracker.Register("p1")

	tracker.Exclude("p1")
	clock.Advance(100 * 365 * 24 * time.Hour)
	assert.False(t, tracker.IsAvailable("p1"))

	tracker.Register("p1")
	assert.True(t, tracker.IsAvailable("p1"))
}
