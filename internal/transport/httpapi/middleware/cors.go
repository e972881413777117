package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS returns a CORS middleware handler
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			APIKeyHeader,
			"Idempotency-Key",
		},
		ExposedHeaders: []string{
			"X-Request-Id",
		},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	})
}
