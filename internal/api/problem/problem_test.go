package problem

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/v1/accounts/42/buy", nil)
	w := httptest.NewRecorder()
	w.Header().Set(traceHeader, "trace-1")
	w.Header().Set("Retry-After", "1")

	Write(w, r, http.StatusServiceUnavailable, Type("quote/unavailable"), "", "no USDT quote")

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, contentType, w.Header().Get("Content-Type"))

	var d Details
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, Details{
		Type:      "https://errors.exchange-ledger.dev/quote/unavailable",
		Title:     "Service Unavailable",
		Status:    http.StatusServiceUnavailable,
		Detail:    "no USDT quote",
		Instance:  "/v1/accounts/42/buy",
		TraceID:   "trace-1",
		Retryable: true,
	}, d)
}

func TestWrite_Defaults(t *testing.T) {
	w := httptest.NewRecorder()
	Write(w, nil, http.StatusBadRequest, "", "", "")

	var d Details
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, "about:blank", d.Type)
	assert.Equal(t, "Bad Request", d.Title)
	assert.False(t, d.Retryable)
	assert.Empty(t, d.Instance)
}
