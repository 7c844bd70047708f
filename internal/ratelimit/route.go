package ratelimit

import "time"

// RouteLimiter is the stricter, route-scoped window applied to the auth
// endpoints. An attempt is charged on entry and refunded if the handler
// reports success, so a legitimate user who eventually logs in is not
// penalized for earlier typos. Attempts rejected here never reach the
// handler and are not charged.
type RouteLimiter struct {
	win *Window
	// Message is the route-specific text returned with a 429.
	Message string
}

// NewRouteLimiter admits at most max failed attempts per key per window.
func NewRouteLimiter(max int, length time.Duration, message string) *RouteLimiter {
	return &RouteLimiter{win: NewWindow(max, length), Message: message}
}

// Take charges one attempt for key.
func (l *RouteLimiter) Take(key string) Decision {
	return l.win.Allow(key)
}

// Refund un-counts a previously taken attempt after a successful outcome.
func (l *RouteLimiter) Refund(key string) {
	l.win.Refund(key)
}

// Sweep drops expired entries.
func (l *RouteLimiter) Sweep() { l.win.Sweep() }

// Janitor sweeps every interval until done is closed.
func (l *RouteLimiter) Janitor(interval time.Duration, done <-chan struct{}) {
	l.win.Janitor(interval, done)
}
