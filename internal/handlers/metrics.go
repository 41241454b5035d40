package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler returns the Prometheus metrics handler. It is served on
// its own port, not through RegisterRoutes.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
