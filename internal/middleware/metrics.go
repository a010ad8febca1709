package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/almatkai/woolet-sub004/internal/metrics"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware records HTTP request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK, // default status code
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		metrics.RecordHTTPRequest(
			r.Method,
			getEndpoint(r),
			wrapped.statusCode,
			duration,
		)
	})
}

// getEndpoint labels requests by their route template so path variables
// like user IDs and cache keys do not blow up metric cardinality.
func getEndpoint(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "/unknown"
}
