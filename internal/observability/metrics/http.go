package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Middleware returns HTTP middleware for request metrics.
func Middleware(next http.Handler) http.Handler {
	if !enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			duration := time.Since(start).Seconds()

			// Normalize path to avoid high cardinality from IDs
			path := normalizePath(r.URL.Path)

			httpRequestsTotal.WithLabelValues(
				r.Method,
				path,
				strconv.Itoa(rw.status),
			).Inc()

			httpDuration.WithLabelValues(
				r.Method,
				path,
			).Observe(duration)
		}()

		next.ServeHTTP(rw, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures status code.
func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// normalizePath converts dynamic path segments to placeholders to avoid
// high cardinality metrics:
//
//	/api/v1/plans/Market                  -> /api/v1/plans/{module}
//	/api/v1/plans/Market/sha256:ab12...   -> /api/v1/plans/{module}/{hash}
func normalizePath(path string) string {
	switch path {
	case "/health", "/healthz", "/readyz", "/metrics":
		return path
	}

	rest, ok := strings.CutPrefix(path, "/api/v1/")
	if !ok {
		return "other"
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if parts[0] != "plans" {
		return "/api/v1/" + parts[0]
	}

	normalized := []string{"/api/v1/plans"}
	for i, part := range parts[1:] {
		switch {
		case part == "":
			continue
		case i == 0 && part == "compile":
			normalized = append(normalized, part)
		case i == 0:
			normalized = append(normalized, "{module}")
		case isPlanHash(part):
			normalized = append(normalized, "{hash}")
		default:
			normalized = append(normalized, "{id}")
		}
	}
	return strings.Join(normalized, "/")
}

// isPlanHash matches "sha256:<hex>" segments
func isPlanHash(segment string) bool {
	hex, ok := strings.CutPrefix(segment, "sha256:")
	return ok && isHex(hex)
}

// isHex returns true if string is hexadecimal (supports both upper and lowercase)
func isHex(s string) bool {
	for _, c := range s {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return false
		}
	}
	return len(s) > 0
}
