package pool

import "time"

// DefaultPauseDuration is how long a provider is kept out of selection after
// a non-terminal failure.
const DefaultPauseDuration = 3 * time.Minute

// excludedUntil parks a provider until something explicitly re-registers it
var excludedUntil = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// Tracker is a time-gated admission map: a provider is available once the
// clock has reached its recorded timestamp. It holds no lock; callers
// serialize writes against reads.
type Tracker struct {
	until map[string]time.Time
	now   func() time.Time
}

// NewTracker creates a tracker reading time from now (time.Now if nil)
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		until: make(map[string]time.Time),
		now:   now,
	}
}

// Register records id as available from the current instant
func (t *Tracker) Register(id string) {
	t.until[id] = t.now()
}

// IsAvailable reports whether id is known and its pause has elapsed
func (t *Tracker) IsAvailable(id string) bool {
	until, ok := t.until[id]
	if !ok {
		return false
	}
	return !t.now().Before(until)
}

// Pause makes id unavailable for d from now. The latest pause wins, so a
// shorter pause can cut an earlier longer one short.
func (t *Tracker) Pause(id string, d time.Duration) {
	t.until[id] = t.now().Add(d)
}

// Exclude keeps id unavailable until it is registered again
func (t *Tracker) Exclude(id string) {
	t.until[id] = excludedUntil
}

// Until returns the recorded timestamp for id
func (t *Tracker) Until(id string) (time.Time, bool) {
	until, ok := t.until[id]
	return until, ok
}
