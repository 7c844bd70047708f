package ratelimit

import "time"

// SlowDown is the progressive throttling stage: it never rejects, it only
// makes spammy clients wait. It keeps its own window, independent of the
// global limiter's counts.
type SlowDown struct {
	win   *Window
	after int
	delay time.Duration
}

// NewSlowDown delays each request past the first `after` in a window of the
// given length by a fixed `delay`.
func NewSlowDown(after int, delay, length time.Duration) *SlowDown {
	if after < 0 {
		after = 0
	}
	// max is irrelevant here; Tally never compares against it.
	return &SlowDown{win: NewWindow(1, length), after: after, delay: delay}
}

// Delay charges one request for key and returns how long the caller should
// stall before proceeding. Zero until the post-increment count exceeds the
// threshold.
func (s *SlowDown) Delay(key string) time.Duration {
	if s.win.Tally(key) > s.after {
		return s.delay
	}
	return 0
}

// Sweep drops expired slow-down entries.
func (s *SlowDown) Sweep() { s.win.Sweep() }

// Janitor sweeps every interval until done is closed.
func (s *SlowDown) Janitor(interval time.Duration, done <-chan struct{}) {
	s.win.Janitor(interval, done)
}
