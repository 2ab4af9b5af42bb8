package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/observability"
	"github.com/go-chi/chi/v5"
)

// unobserved paths are scraped or probed every few seconds and would drown the
// API latencies.
var unobserved = []string{"/metrics", "/health/"}

// MetricsMiddleware observes request latency per method, route pattern and status.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range unobserved {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func(start time.Time) {
			observability.ObserveHTTP(r.Method, routeLabel(r), rw.status, time.Since(start))
		}(time.Now())
		next.ServeHTTP(rw, r)
	})
}

// routeLabel keeps label cardinality bounded: user and request ids stay inside
// the chi pattern.
func routeLabel(r *http.Request) string {
	rc := chi.RouteContext(r.Context())
	if rc == nil || rc.RoutePattern() == "" {
		return "unmatched"
	}
	return rc.RoutePattern()
}
