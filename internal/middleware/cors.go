package middleware

import (
	"net/http"
)

// CORSMiddleware handles Cross-Origin Resource Sharing for the REST API and
// the websocket handshake. Credentials are always allowed because the access
// token travels in a cookie, so the allowlist must name explicit origins;
// "*" is only honoured for deployments that use bearer headers instead.
type CORSMiddleware struct {
	allowedOrigins map[string]bool
	allowAll       bool
}

// NewCORSMiddleware creates a new CORS middleware from an origin allowlist.
func NewCORSMiddleware(allowedOrigins []string) *CORSMiddleware {
	m := &CORSMiddleware{allowedOrigins: make(map[string]bool)}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			m.allowAll = true
			continue
		}
		m.allowedOrigins[origin] = true
	}
	return m
}

// OriginAllowed reports whether the given Origin header value is acceptable.
// The websocket upgrader shares this check.
func (m *CORSMiddleware) OriginAllowed(origin string) bool {
	if origin == "" || m.allowAll {
		return true
	}
	return m.allowedOrigins[origin]
}

// Handler returns the CORS middleware handler.
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && m.OriginAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Trace-ID")
			w.Header().Set("Access-Control-Expose-Headers", "X-Trace-ID")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
