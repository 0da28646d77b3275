package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// NewCORSMiddleware builds the CORS handler from AppSettings.AllowedOrigins
// (spec §6). An empty list falls back to "*" so a gateway with no
// configured origins still serves same-origin-only browser clients
// without 500ing on a missing config key.
func NewCORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
