package middleware

import (
	"net/http"

	"dropgate/api/internal/metrics"
)

// OriginDecision classifies a request's Origin header against the
// configured allow-list. Derived per request, never stored.
type OriginDecision int

const (
	// Allowed: origin is a literal member of the allow-list.
	Allowed OriginDecision = iota
	// AllowedNoOrigin: no Origin header (curl, server-to-server).
	AllowedNoOrigin
	// AllowedDevFallback: empty allow-list with the permissive fallback on.
	AllowedDevFallback
	// Denied: origin present and not trusted.
	Denied
)

// Allowlist evaluates CORS trust decisions.
type Allowlist struct {
	origins           map[string]struct{}
	allowAllWhenEmpty bool
}

// NewAllowlist builds the origin allow-list. allowAllWhenEmpty is an
// explicit policy choice, not an inferred default.
func NewAllowlist(origins []string, allowAllWhenEmpty bool) *Allowlist {
	set := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		set[o] = struct{}{}
	}
	return &Allowlist{origins: set, allowAllWhenEmpty: allowAllWhenEmpty}
}

// Evaluate decides for one request's Origin header value.
func (a *Allowlist) Evaluate(origin string) OriginDecision {
	if origin == "" {
		return AllowedNoOrigin
	}
	if len(a.origins) == 0 {
		if a.allowAllWhenEmpty {
			return AllowedDevFallback
		}
		return Denied
	}
	if _, ok := a.origins[origin]; ok {
		return Allowed
	}
	return Denied
}

// CORS enforces the allow-list. Denied origins are short-circuited with a
// plain-text CORS error before any further processing; preflights for
// trusted origins are answered directly.
func (a *Allowlist) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		decision := a.Evaluate(origin)

		if decision == Denied {
			metrics.AdmissionDecision.WithLabelValues("cors", "denied").Inc()
			http.Error(w, "Not allowed by CORS", http.StatusForbidden)
			return
		}
		if decision != AllowedNoOrigin {
			h := w.Header()
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Methods", "GET,HEAD,PUT,PATCH,POST,DELETE")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
