package middleware

import (
	"net/http"
	"time"

	"github.com/sakif/device-manager/internal/metrics"
)

// Metrics records request counts and latency per route pattern.
// The pattern is read after the handler runs, once chi has matched the route.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			m.ObserveRequest(routePattern(r), r.Method, rec.status, time.Since(start))
		})
	}
}
