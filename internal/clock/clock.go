// Package clock provides the time source used by the submit and reap retry loops.
package clock

import (
	"sync"
	"time"
)

// Clock reports wall-clock time and sleeps.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Real is the process clock.
type Real struct{}

func (Real) Now() time.Time        { return time.Now() }
func (Real) Sleep(d time.Duration) { time.Sleep(d) }

// Fake is a manually driven clock. Sleep advances the clock instead of
// blocking, so retry budgets expire deterministically in tests.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int
}

// NewFake returns a Fake starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.sleeps++
	f.mu.Unlock()
}

// Advance moves the clock forward without counting a sleep.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Sleeps returns how many times Sleep was called.
func (f *Fake) Sleeps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sleeps
}
