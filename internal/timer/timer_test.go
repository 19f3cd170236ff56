package timer

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock fires callbacks only when Advance passes their due time.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
}

type fakeTimer struct {
	due     time.Time
	f       func()
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 11, 5, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ft := &fakeTimer{due: c.now.Add(d), f: f}
	c.pending = append(c.pending, ft)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		was := !ft.stopped
		ft.stopped = true
		return was
	}
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	rest := c.pending[:0]
	for _, ft := range c.pending {
		switch {
		case ft.stopped:
		case !ft.due.After(c.now):
			ft.stopped = true
			due = append(due, ft)
		default:
			rest = append(rest, ft)
		}
	}
	c.pending = rest
	c.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i].due.Before(due[j].due) })
	for _, ft := range due {
		ft.f()
	}
}

func TestStartPauseResume(t *testing.T) {
	clk := newFakeClock()
	tm := New(5*time.Minute, WithClock(clk))
	assert.Equal(t, Idle, tm.State())
	assert.Equal(t, 5*time.Minute, tm.Remaining())

	tm.Start()
	assert.Equal(t, Running, tm.State())
	clk.Advance(2 * time.Minute)
	assert.Equal(t, 3*time.Minute, tm.Remaining())

	tm.Pause()
	assert.Equal(t, Paused, tm.State())
	clk.Advance(10 * time.Minute)
	assert.Equal(t, 3*time.Minute, tm.Remaining())
	assert.Equal(t, Paused, tm.State())

	tm.Resume()
	clk.Advance(3*time.Minute - time.Second)
	assert.Equal(t, Running, tm.State())
	assert.Equal(t, time.Second, tm.Remaining())
	clk.Advance(time.Second)
	assert.Equal(t, Expired, tm.State())
	assert.Zero(t, tm.Remaining())
}

func TestExpiryWithoutAutoAdvanceStaysExpired(t *testing.T) {
	clk := newFakeClock()
	called := false
	tm := New(time.Minute, WithClock(clk), OnComplete(func(uint64) { called = true }))
	tm.Track(7)
	tm.Start()
	clk.Advance(time.Hour)
	assert.Equal(t, Expired, tm.State())
	assert.False(t, called)

	tm.Resume()
	assert.Equal(t, Expired, tm.State())
	tm.Reset()
	assert.Equal(t, Idle, tm.State())
	assert.Equal(t, time.Minute, tm.Remaining())
}

func TestAutoAdvanceCompletesTrackedPerformer(t *testing.T) {
	clk := newFakeClock()
	var got []uint64
	tm := New(time.Minute, WithClock(clk), WithAutoAdvance(true), OnComplete(func(id uint64) { got = append(got, id) }))

	// Nobody tracked: nothing to complete.
	tm.Start()
	clk.Advance(time.Minute)
	assert.Empty(t, got)

	tm.Track(42)
	assert.Equal(t, Idle, tm.State())
	tm.Start()
	clk.Advance(time.Minute)
	require.Equal(t, []uint64{42}, got)
	assert.Equal(t, Expired, tm.State())
}

func TestTrackResetsOnNewPerformer(t *testing.T) {
	clk := newFakeClock()
	tm := New(time.Minute, WithClock(clk))
	tm.Track(1)
	tm.Start()
	clk.Advance(20 * time.Second)

	tm.Track(1)
	assert.Equal(t, Running, tm.State())

	tm.Track(2)
	assert.Equal(t, Idle, tm.State())
	assert.Equal(t, time.Minute, tm.Remaining())
	id, ok := tm.Performer()
	assert.True(t, ok)
	assert.Equal(t, uint64(2), id)

	// The countdown armed for performer 1 must not fire.
	clk.Advance(time.Hour)
	assert.Equal(t, Idle, tm.State())
}

func TestRestartDiscardsOldCountdown(t *testing.T) {
	clk := newFakeClock()
	fired := 0
	tm := New(time.Minute, WithClock(clk), WithAutoAdvance(true), OnComplete(func(uint64) { fired++ }))
	tm.Track(3)
	tm.Start()
	clk.Advance(50 * time.Second)
	tm.Start()
	clk.Advance(50 * time.Second)
	assert.Equal(t, Running, tm.State())
	assert.Zero(t, fired)
	clk.Advance(10 * time.Second)
	assert.Equal(t, 1, fired)
}

func TestSetLength(t *testing.T) {
	tm := New(time.Minute, WithClock(newFakeClock()))
	tm.SetLength(3 * time.Minute)
	assert.Equal(t, 3*time.Minute, tm.Remaining())
	assert.Equal(t, "idle", tm.State().String())
}
