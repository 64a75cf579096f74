// Package scheduler coalesces bursts of render requests into at most one run
// per time window.
package scheduler

import (
	"sync"
	"time"
)

// DefaultWindow is one animation frame.
const DefaultWindow = 16 * time.Millisecond

// Scheduler runs fn at most once per window for requests made with Request.
// The first request in an idle period runs immediately; requests made while a
// window is open collapse into a single run when it closes. A request is never
// dropped, only merged. Now bypasses the window.
type Scheduler struct {
	window time.Duration
	fn     func()

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	stopped bool
}

// New creates a scheduler. A non-positive window means DefaultWindow.
func New(window time.Duration, fn func()) *Scheduler {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Scheduler{window: window, fn: fn}
}

// Request asks for a run, coalescing with any run already due in the current window.
func (s *Scheduler) Request() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.timer = time.AfterFunc(s.window, s.tick)
	s.mu.Unlock()

	s.fn()
}

// Now runs fn synchronously, ignoring the window.
func (s *Scheduler) Now() {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}
	s.fn()
}

// Pending reports whether a trailing run is queued.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Stop cancels the open window. Further requests are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.pending = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// tick closes a window, running fn once if requests arrived during it and
// opening a new window behind that run.
func (s *Scheduler) tick() {
	s.mu.Lock()
	if s.stopped || !s.pending {
		s.timer = nil
		s.mu.Unlock()
		return
	}
	s.pending = false
	s.timer = time.AfterFunc(s.window, s.tick)
	s.mu.Unlock()

	s.fn()
}
