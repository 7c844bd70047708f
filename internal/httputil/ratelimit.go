package httputil

import (
	"net/http"
	"strconv"
	"time"

	"dropgate/api/internal/ratelimit"
)

// SetRateHeaders emits the standard draft rate-limit headers for a window
// decision. Reset is expressed in seconds from now, clamped at zero.
func SetRateHeaders(w http.ResponseWriter, d ratelimit.Decision, now time.Time) {
	h := w.Header()
	h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
	reset := int(d.Reset.Sub(now).Seconds())
	if reset < 0 {
		reset = 0
	}
	h.Set("RateLimit-Reset", strconv.Itoa(reset))
}

// WriteThrottled answers a rejected decision with 429, Retry-After and the
// given scope-specific message.
func WriteThrottled(w http.ResponseWriter, d ratelimit.Decision, now time.Time, message string) {
	retry := int(d.Reset.Sub(now).Seconds())
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	WriteError(w, http.StatusTooManyRequests, message)
}
