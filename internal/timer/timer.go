// Package timer times a performer's set while a mic is hosted live.
package timer

import (
	"sync"
	"time"
)

// State of a Timer.
type State int

const (
	Idle State = iota
	Running
	Paused
	Expired
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Expired:
		return "expired"
	}
	return "idle"
}

// Clock abstracts time so tests can drive a Timer by hand.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f once after d.  The returned func cancels it and
	// reports whether it was still pending.
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Option configures a Timer.
type Option func(*Timer)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(t *Timer) { t.clock = c } }

// WithAutoAdvance turns auto-advance on from the start.
func WithAutoAdvance(on bool) Option { return func(t *Timer) { t.auto = on } }

// OnComplete sets the callback invoked when the countdown of a tracked
// performer runs out with auto-advance on.  It runs on the clock's
// goroutine without the Timer's lock held.
func OnComplete(fn func(performerID uint64)) Option { return func(t *Timer) { t.onComplete = fn } }

// Timer counts down one set.  It is safe for concurrent use.
type Timer struct {
	clock      Clock
	onComplete func(performerID uint64)

	mu        sync.Mutex
	length    time.Duration
	state     State
	deadline  time.Time     // while Running
	remaining time.Duration // while Idle or Paused
	auto      bool
	performer uint64
	tracking  bool
	stop      func() bool
	gen       uint64 // invalidates callbacks of cancelled countdowns
}

// New returns an idle timer for sets of the given length.
func New(length time.Duration, opts ...Option) *Timer {
	t := &Timer{clock: realClock{}, length: length, remaining: length}
	for _, o := range opts {
		o(t)
	}
	return t
}

// State returns the current state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Remaining is the time left on the countdown; the full length when idle
// and zero once expired.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case Running:
		if d := t.deadline.Sub(t.clock.Now()); d > 0 {
			return d
		}
		return 0
	case Expired:
		return 0
	}
	return t.remaining
}

// Length returns the configured set length.
func (t *Timer) Length() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.length
}

// SetLength changes the set length.  It takes effect on the next Start or
// Reset.
func (t *Timer) SetLength(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.length = d
	if t.state == Idle {
		t.remaining = d
	}
}

// SetAutoAdvance turns auto-advance on or off.
func (t *Timer) SetAutoAdvance(on bool) {
	t.mu.Lock()
	t.auto = on
	t.mu.Unlock()
}

func (t *Timer) AutoAdvance() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.auto
}

// Performer returns the tracked performer.
func (t *Timer) Performer() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.performer, t.tracking
}

// Track binds the timer to a performer.  When the identity changes the
// timer goes back to idle.
func (t *Timer) Track(performerID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tracking && t.performer == performerID {
		return
	}
	t.resetLocked()
	t.performer, t.tracking = performerID, true
}

// Untrack clears the tracked performer and resets the timer, e.g. when
// nobody is up.
func (t *Timer) Untrack() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
	t.performer, t.tracking = 0, false
}

// Start arms the countdown for the full length from now, whatever the
// current state.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armLocked(t.length)
}

// Pause freezes a running countdown.  Other states are left alone.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Running {
		return
	}
	t.cancelLocked()
	t.remaining = t.deadline.Sub(t.clock.Now())
	if t.remaining < 0 {
		t.remaining = 0
	}
	t.state = Paused
}

// Resume continues a paused countdown from the time that was left.
func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Paused {
		return
	}
	t.armLocked(t.remaining)
}

// Reset returns to idle with the full length.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

func (t *Timer) resetLocked() {
	t.cancelLocked()
	t.state = Idle
	t.remaining = t.length
}

func (t *Timer) cancelLocked() {
	t.gen++
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
}

func (t *Timer) armLocked(d time.Duration) {
	t.cancelLocked()
	gen := t.gen
	t.state = Running
	t.deadline = t.clock.Now().Add(d)
	t.stop = t.clock.AfterFunc(d, func() { t.expire(gen) })
}

func (t *Timer) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.state != Running {
		t.mu.Unlock()
		return
	}
	t.stop = nil
	t.state = Expired
	t.remaining = 0
	fire := t.auto && t.tracking && t.onComplete != nil
	id := t.performer
	t.mu.Unlock()

	if fire {
		t.onComplete(id)
	}
}
