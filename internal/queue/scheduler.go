package queue

import "time"

// Scheduler runs actions later. Now must not run fn on the caller's
// goroutine before returning.
type Scheduler interface {
	Now(fn func())
	After(d time.Duration, fn func())
}

// GoScheduler runs actions on new goroutines and timers.
type GoScheduler struct{}

var _ Scheduler = GoScheduler{}

// Now runs fn on a new goroutine.
func (GoScheduler) Now(fn func()) {
	go fn()
}

// After runs fn on its own goroutine once d has elapsed.
func (GoScheduler) After(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}
