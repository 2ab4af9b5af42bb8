package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// TraceHeader is echoed on every response and stamped on every log line.
const TraceHeader = "X-Trace-ID"

const maxTraceIDLen = 128

// TraceMiddleware adopts the caller's trace id when it is usable and mints a
// fresh one otherwise.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if !validTraceID(traceID) {
			traceID = uuid.NewString()
		}
		w.Header().Set(TraceHeader, traceID)
		ctx := context.WithValue(r.Context(), traceContextKey, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validTraceID accepts short printable ASCII ids; anything else could corrupt
// log lines or response headers.
func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
