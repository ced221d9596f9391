package algo

import (
	"sync"
	"time"
)

// Clock schedules deferred callbacks for the scheduler's step timeline.
// The scheduler never blocks waiting for a step time; it re-enters
// through the clock.
type Clock interface {
	Now() time.Time
	// ScheduleAt runs fn at or after t. A time in the past runs fn
	// as soon as possible.
	ScheduleAt(t time.Time, fn func())
}

// TimerClock is the production clock backed by runtime timers.
type TimerClock struct{}

// Now returns the current wall time.
func (TimerClock) Now() time.Time {
	return time.Now()
}

// ScheduleAt arms a timer that runs fn at t.
func (TimerClock) ScheduleAt(t time.Time, fn func()) {
	d := time.Until(t)
	if d < 0 {
		d = 0
	}
	time.AfterFunc(d, fn)
}

// ManualClock is a deterministic clock for tests: callbacks fire only
// when Advance moves time past their deadline, in deadline order.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []manualEntry
}

type manualEntry struct {
	at time.Time
	fn func()
}

// NewManualClock creates a manual clock starting at the given time.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// ScheduleAt queues fn to run when the clock reaches t.
func (c *ManualClock) ScheduleAt(t time.Time, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, manualEntry{at: t, fn: fn})
}

// Advance moves the clock to t and runs all callbacks due at or before
// t, in deadline order. Time steps to each callback's deadline before
// it fires, so a callback observes Now() == its scheduled time.
// Callbacks may schedule further callbacks; those also run if they fall
// within t.
func (c *ManualClock) Advance(t time.Time) {
	for {
		c.mu.Lock()
		idx := -1
		for i, e := range c.pending {
			if !e.at.After(t) && (idx == -1 || e.at.Before(c.pending[idx].at)) {
				idx = i
			}
		}
		if idx == -1 {
			if t.After(c.now) {
				c.now = t
			}
			c.mu.Unlock()
			return
		}
		e := c.pending[idx]
		c.pending = append(c.pending[:idx], c.pending[idx+1:]...)
		if e.at.After(c.now) {
			c.now = e.at
		}
		c.mu.Unlock()
		e.fn()
	}
}

// PendingCount returns the number of callbacks not yet fired. Useful
// for testing.
func (c *ManualClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
