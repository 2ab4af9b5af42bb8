package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/api/middleware"
	"github.com/ayo6706/exchange-ledger/internal/api/problem"
	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/receipt"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes an RFC 7807 error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

type errorMapping struct {
	target error
	status int
	slug   string
}

var errorMappings = []errorMapping{
	{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity, "ledger/insufficient-funds"},
	{domain.ErrInvalidAmount, http.StatusBadRequest, "request/invalid-amount"},
	{domain.ErrInvalidFee, http.StatusBadRequest, "request/invalid-fee"},
	{domain.ErrInvalidDirection, http.StatusBadRequest, "request/invalid-direction"},
	{domain.ErrUnsupportedCurrency, http.StatusBadRequest, "request/unsupported-currency"},
	{domain.ErrInvalidQuote, http.StatusBadRequest, "quote/invalid"},
	{domain.ErrInvalidCategory, http.StatusBadRequest, "request/invalid-category"},
	{domain.ErrAccountNotFound, http.StatusNotFound, "account/not-found"},
	{domain.ErrRequestNotFound, http.StatusNotFound, "funding/not-found"},
	{receipt.ErrNotFound, http.StatusNotFound, "receipt/not-found"},
	{domain.ErrAccountExists, http.StatusConflict, "account/exists"},
	{domain.ErrInvalidTransition, http.StatusConflict, "funding/invalid-transition"},
	{domain.ErrQuoteUnavailable, http.StatusServiceUnavailable, "quote/unavailable"},
	{domain.ErrConcurrencyTimeout, http.StatusServiceUnavailable, "ledger/concurrency-timeout"},
}

// respondServiceError maps a service error onto a problem document. Unknown
// errors are logged and hidden behind a generic 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, fallbackSlug string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if domain.IsRetryable(err) {
				w.Header().Set("Retry-After", "1")
			}
			RespondError(w, r, m.status, m.slug, err.Error())
			return
		}
	}
	zap.L().Error("request failed",
		zap.Error(err),
		zap.String("path", r.URL.Path),
		zap.String("trace_id", middleware.TraceIDFromContext(r.Context())),
	)
	RespondError(w, r, http.StatusInternalServerError, fallbackSlug, "internal error")
}

// decodeJSON treats an empty body as an empty object.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-"+strings.ReplaceAll(name, "_", "-"), "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// parseAmount reads a decimal string. Amounts travel as strings so no float
// conversion ever touches them; sign and scale are checked by the services.
func parseAmount(w http.ResponseWriter, r *http.Request, field, raw string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "Invalid "+field)
		return decimal.Decimal{}, false
	}
	return amount, true
}

func pageParams(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	return page, pageSize
}

// timeRange parses from/to as RFC 3339 timestamps or plain dates. A plain
// "to" date covers that whole day.
func timeRange(r *http.Request) (from, to *time.Time, err error) {
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		t, _, err := parseTime(raw)
		if err != nil {
			return nil, nil, err
		}
		from = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, dateOnly, err := parseTime(raw)
		if err != nil {
			return nil, nil, err
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		to = &t
	}
	return from, to, nil
}

func parseTime(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func optionalUUIDQuery(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func operatorID(r *http.Request) *uuid.UUID {
	return middleware.OperatorIDFromContext(r.Context())
}

func parseUUID(raw string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(raw))
}
