package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// TraceID attaches the Trace-Id response header (spec §6) from chi's
// RequestID middleware, which already honors an inbound X-Request-Id.
// Error bodies echo the same value into their traceId field (the gateway
// package's writeError reads it from the request context).
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		w.Header().Set("Trace-Id", id)
		next.ServeHTTP(w, r)
	})
}
