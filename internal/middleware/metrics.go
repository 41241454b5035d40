package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"media-dedup/internal/metrics"
)

// MetricsConfig holds configuration for the metrics middleware
type MetricsConfig struct {
	// SkipPaths are path prefixes that are not recorded
	SkipPaths []string
}

// DefaultMetricsConfig returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		SkipPaths: []string{"/metrics", "/health", "/healthz", "/livez", "/readyz"},
	}
}

// Metrics returns a middleware that records Prometheus metrics
func Metrics(config MetricsConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range config.SkipPaths {
				if strings.HasPrefix(r.URL.Path, path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			wrapped := newResponseWriter(w)
			start := time.Now()

			next.ServeHTTP(wrapped, r)

			path := normalizePath(r.URL.Path)
			status := strconv.Itoa(wrapped.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// idCollections are /api collections whose next segment is an ID.
var idCollections = map[string]bool{
	"operations": true,
}

// normalizePath replaces IDs with placeholders to bound label cardinality.
// Paths outside /api are collapsed to their first segment.
func normalizePath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if parts[0] != "api" {
		if parts[0] == "" {
			return "/"
		}
		return "/" + parts[0]
	}

	if len(parts) > 3 {
		parts = parts[:3]
	}
	if len(parts) == 3 && idCollections[parts[1]] {
		parts[2] = "{id}"
	}
	return "/" + strings.Join(parts, "/")
}
