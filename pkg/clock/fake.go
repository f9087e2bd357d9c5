package clock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/barela/flowdeck/pkg/protocol"
)

// Fake is a manually advanced clock for deterministic tests. Timers armed
// through it fire synchronously from Advance, in due order.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

// NewFake creates a fake clock starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) protocol.Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	timer := &fakeTimer{clock: f, due: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, timer)

	return timer
}

// Sleep returns immediately; simulated time only moves through Advance.
func (f *Fake) Sleep(_ context.Context, _ time.Duration) {}

// Advance moves the clock forward and fires every timer due within the
// window, in chronological order. Callbacks run without the clock lock held,
// so they may arm new timers.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		timer := f.popNextDue(target)
		if timer == nil {
			break
		}

		f.mu.Lock()
		if timer.due.After(f.now) {
			f.now = timer.due
		}
		f.mu.Unlock()

		timer.fn()
	}

	f.mu.Lock()
	f.now = target
	f.mu.Unlock()
}

func (f *Fake) popNextDue(target time.Time) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()

	sort.SliceStable(f.timers, func(i, j int) bool {
		return f.timers[i].due.Before(f.timers[j].due)
	})

	for i, timer := range f.timers {
		if timer.stopped {
			continue
		}

		if !timer.due.After(target) {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)

			return timer
		}
	}

	return nil
}

type fakeTimer struct {
	clock   *Fake
	due     time.Time
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped {
		return false
	}

	t.stopped = true

	for i, timer := range t.clock.timers {
		if timer == t {
			t.clock.timers = append(t.clock.timers[:i], t.clock.timers[i+1:]...)

			return true
		}
	}

	return false
}
