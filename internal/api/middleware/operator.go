package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ayo6706/exchange-ledger/internal/api/problem"
	"github.com/google/uuid"
)

type contextKey string

const (
	operatorContextKey contextKey = "operator_id"
	traceContextKey    contextKey = "trace_id"
)

// OperatorHeader carries the id of the back-office operator acting on a request.
// Authentication happens upstream; this layer only parses what it is given.
const OperatorHeader = "X-Operator-ID"

// OperatorMiddleware parses the operator header when present and rejects
// malformed values.
func OperatorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(OperatorHeader))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		operatorID, err := uuid.Parse(raw)
		if err != nil {
			problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-operator-id"), http.StatusText(http.StatusBadRequest), "X-Operator-ID must be a UUID")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithOperator(r.Context(), operatorID)))
	})
}

func contextWithOperator(ctx context.Context, operatorID uuid.UUID) context.Context {
	return context.WithValue(ctx, operatorContextKey, operatorID)
}

// RequireOperator rejects admin requests that arrive without an operator id.
func RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if OperatorIDFromContext(r.Context()) == nil {
			problem.Write(w, r, http.StatusForbidden, problem.Type("auth/operator-required"), http.StatusText(http.StatusForbidden), "X-Operator-ID header is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// OperatorIDFromContext returns the acting operator or nil.
func OperatorIDFromContext(ctx context.Context) *uuid.UUID {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(operatorContextKey).(uuid.UUID); ok {
		return &v
	}
	return nil
}

// TraceIDFromContext returns the trace id for the request.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceContextKey).(string); ok {
		return v
	}
	return ""
}
