package middleware

import (
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"dropgate/api/internal/httputil"
	"dropgate/api/internal/metrics"

	"github.com/rs/zerolog"
)

// Request wires request ID, a request-scoped logger, trusted proxies and the
// latency histogram into every request. Outermost stage after Recover.
func Request(logger zerolog.Logger, trustedProxies []*net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = httputil.GenerateRequestID()
			}
			w.Header().Set("X-Request-ID", requestID)

			reqLogger := logger.With().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Logger()

			ctx := httputil.WithRequestID(r.Context(), requestID)
			ctx = httputil.WithLogger(ctx, &reqLogger)
			ctx = httputil.WithTrustedProxies(ctx, trustedProxies)

			next.ServeHTTP(w, r.WithContext(ctx))
			metrics.RequestDuration.Observe(time.Since(start).Seconds())
		})
	}
}

// Recover is the single top-level handler for anything that panics below
// it: log with stack, answer a generic 500, never leak a trace.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger := httputil.GetLogger(r.Context())
				logger.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")
				httputil.WriteError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders applies the fixed protective header set on every
// response. Stateless.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", "default-src 'self'")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-DNS-Prefetch-Control", "off")
		h.Set("X-Download-Options", "noopen")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("X-Permitted-Cross-Domain-Policies", "none")
		h.Set("X-XSS-Protection", "0")
		next.ServeHTTP(w, r)
	})
}

// CollapseParams defuses HTTP parameter pollution: when a query or form key
// appears more than once, only the last value survives. Handlers downstream
// can then read parameters without worrying about array smuggling.
func CollapseParams(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		polluted := false
		for key, vals := range q {
			if len(vals) > 1 {
				q[key] = vals[len(vals)-1:]
				polluted = true
			}
		}
		if polluted {
			r.URL.RawQuery = q.Encode()
		}
		next.ServeHTTP(w, r)
	})
}

// MaxBody caps request bodies at limit bytes. Oversized payloads are
// refused before any JSON parsing: eagerly when Content-Length admits it,
// otherwise at read time via MaxBytesReader.
func MaxBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				metrics.AdmissionDecision.WithLabelValues("payload", "denied").Inc()
				httputil.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
