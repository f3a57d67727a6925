package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

const defaultWebOrigin = "http://localhost:3000"

// CORS builds the cross-origin policy for the web client. The client sends
// the refresh cookie, so credentials stay on unless a wildcard origin is
// configured; browsers refuse credentials alongside "*".
func CORS(allowedOrigins []string) cors.Options {
	origins := make([]string, 0, len(allowedOrigins))
	allowCreds := true
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if o == "*" {
			allowCreds = false
		}
		origins = append(origins, o)
	}
	if len(origins) == 0 {
		origins = []string{defaultWebOrigin}
	}

	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: allowCreds,
		MaxAge:           600,
	}
}
