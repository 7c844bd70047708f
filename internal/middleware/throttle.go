package middleware

import (
	"net/http"
	"time"

	"dropgate/api/internal/httputil"
	"dropgate/api/internal/metrics"
	"dropgate/api/internal/ratelimit"
)

const throttledMessage = "Too many requests, please try again later."

// GlobalRateLimit applies the fixed-window limiter every request passes
// through, keyed by client IP. Rejections carry the rate-limit headers plus
// Retry-After.
func GlobalRateLimit(win *ratelimit.Window) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			d := win.Allow(httputil.ClientIP(r))
			httputil.SetRateHeaders(w, d, now)
			if !d.Allowed {
				metrics.AdmissionDecision.WithLabelValues("global", "throttled").Inc()
				httputil.WriteThrottled(w, d, now, throttledMessage)
				return
			}
			metrics.AdmissionDecision.WithLabelValues("global", "allowed").Inc()
			next.ServeHTTP(w, r)
		})
	}
}

// SlowDown injects the progressive delay stage. It runs after the global
// limiter, so a request rejected there never burns a delay slot here. The
// stall respects request cancellation.
func SlowDown(sd *ratelimit.SlowDown) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if delay := sd.Delay(httputil.ClientIP(r)); delay > 0 {
				metrics.AdmissionDecision.WithLabelValues("slowdown", "delayed").Inc()
				t := time.NewTimer(delay)
				select {
				case <-t.C:
				case <-r.Context().Done():
					t.Stop()
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
