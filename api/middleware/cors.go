package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// Used when LMS_REALTIME_ALLOWED_ORIGINS is empty.
var devOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// CORS applies the browser origin policy shared with the websocket upgrade.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = devOrigins
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		// Tokens travel in headers, never cookies.
		AllowCredentials: false,
		MaxAge:           600,
	})
}
