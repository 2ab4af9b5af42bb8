package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeRange(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?from=2026-03-01&to=2026-03-31", nil)
	from, to, err := timeRange(r)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *from)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), *to, "a plain to-date covers the whole day")

	r = httptest.NewRequest(http.MethodGet, "/?to=2026-03-31T12:00:00Z", nil)
	from, to, err = timeRange(r)
	require.NoError(t, err)
	assert.Nil(t, from)
	assert.Equal(t, time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC), *to)

	r = httptest.NewRequest(http.MethodGet, "/?from=yesterday", nil)
	_, _, err = timeRange(r)
	assert.Error(t, err)
}

func TestRespondServiceError(t *testing.T) {
	cases := []struct {
		err        error
		status     int
		retryAfter string
	}{
		{fmt.Errorf("debit: %w", domain.ErrInsufficientFunds), http.StatusUnprocessableEntity, ""},
		{domain.ErrInvalidTransition, http.StatusConflict, ""},
		{fmt.Errorf("lock: %w", domain.ErrConcurrencyTimeout), http.StatusServiceUnavailable, "1"},
		{domain.ErrQuoteUnavailable, http.StatusServiceUnavailable, "1"},
		{errors.New("connection reset"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			respondServiceError(w, httptest.NewRequest(http.MethodPost, "/", nil), tc.err, "test/failed")
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.retryAfter, w.Header().Get("Retry-After"))
			if tc.status == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "connection reset")
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Reason string `json:"reason"`
	}
	w := httptest.NewRecorder()
	assert.True(t, decodeJSON(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &dst))

	w = httptest.NewRecorder()
	assert.False(t, decodeJSON(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"x","extra":1}`)), &dst))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
