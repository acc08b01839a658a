package middleware

import (
	"net/http"
	"time"

	"github.com/cloo-solutions/campaignkb/internal/telemetry"
)

// Metrics records request counts and latency per matched route.
func Metrics(m *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			m.ObserveRequest(r.Method, routePattern(r), rec.Status(), time.Since(start))
		})
	}
}
