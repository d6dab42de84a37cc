// Package clock abstracts the time operations used by timed code so
// tests can drive it deterministically.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock is the subset of the time package used by the booth.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that receives once d has elapsed.
	After(d time.Duration) <-chan time.Time
	// NewTimer returns a Timer that fires once after d. Stopping it
	// releases the pending wait.
	NewTimer(d time.Duration) *Timer
}

// Timer is a single-shot timer. Read the fire time from C.
type Timer struct {
	C    <-chan time.Time
	stop func() bool
}

// Stop prevents the Timer from firing. It reports whether the call
// stopped a pending timer.
func (t *Timer) Stop() bool { return t.stop() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTimer(d time.Duration) *Timer {
	t := time.NewTimer(d)
	return &Timer{C: t.C, stop: t.Stop}
}

// Fake is a Clock whose time only moves when Advance is called.
// Safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	changed *sync.Cond
	now     time.Time
	waiters []*waiter
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewFake returns a Fake clock set to initial.
func NewFake(initial time.Time) *Fake {
	f := &Fake{now: initial}
	f.changed = sync.NewCond(&f.mu)
	return f
}

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After registers a waiter that fires when the clock passes now+d.
// If d <= 0 the channel receives immediately.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.waiters = append(f.waiters, &waiter{deadline: f.now.Add(d), ch: ch})
	f.changed.Broadcast()
	return ch
}

// NewTimer registers a stoppable waiter. Stop removes it from the
// pending set.
func (f *Fake) NewTimer(d time.Duration) *Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- f.now
		return &Timer{C: ch, stop: func() bool { return false }}
	}
	w := &waiter{deadline: f.now.Add(d), ch: ch}
	f.waiters = append(f.waiters, w)
	f.changed.Broadcast()

	return &Timer{C: ch, stop: func() bool { return f.remove(w) }}
}

func (f *Fake) remove(target *waiter) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, w := range f.waiters {
		if w == target {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			f.changed.Broadcast()
			return true
		}
	}
	return false
}

// Advance moves the clock forward and fires expired waiters in
// deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now

	var fire, keep []*waiter
	for _, w := range f.waiters {
		if w.deadline.After(now) {
			keep = append(keep, w)
		} else {
			fire = append(fire, w)
		}
	}
	f.waiters = keep
	f.changed.Broadcast()
	f.mu.Unlock()

	sort.Slice(fire, func(i, j int) bool { return fire[i].deadline.Before(fire[j].deadline) })
	for _, w := range fire {
		w.ch <- now
	}
}

// WaitForTimers blocks until at least n waiters are pending. It closes
// the race between a goroutine registering a timer and the test
// advancing the clock.
func (f *Fake) WaitForTimers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.waiters) < n {
		f.changed.Wait()
	}
}

// Pending returns the number of registered waiters.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}
