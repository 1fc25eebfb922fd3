// Package auth provides API key authentication for write routes.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// Context key type for avoiding collisions
type contextKey string

const apiKeyContextKey contextKey = "apiKey"

// KeyFromContext retrieves the API key info from context.
func KeyFromContext(ctx context.Context) *Key {
	if key, ok := ctx.Value(apiKeyContextKey).(*Key); ok {
		return key
	}
	return nil
}

// KeyNameFromContext returns the name of the authenticated key, or "".
func KeyNameFromContext(ctx context.Context) string {
	if key := KeyFromContext(ctx); key != nil {
		return key.Name
	}
	return ""
}

// Middleware returns an HTTP middleware that validates API keys.
func Middleware(keys KeyValidator, writeError func(w http.ResponseWriter, status int, code, message string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := keyFromRequest(r)
			if apiKey == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
				return
			}

			key, err := keys.ValidateAPIKey(r.Context(), apiKey)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
				return
			}

			// Store API key info in context
			ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// keyFromRequest reads X-API-Key, then an Authorization bearer token.
func keyFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
