package api_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/api"
	"github.com/ayo6706/exchange-ledger/internal/api/middleware"
	"github.com/ayo6706/exchange-ledger/internal/app"
	"github.com/ayo6706/exchange-ledger/internal/config"
	"github.com/ayo6706/exchange-ledger/internal/export"
	"github.com/ayo6706/exchange-ledger/internal/idempotency"
	"github.com/ayo6706/exchange-ledger/internal/receipt"
	"github.com/ayo6706/exchange-ledger/internal/testutil/memstore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testAPI struct {
	t        *testing.T
	handler  http.Handler
	store    *memstore.Store
	operator string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memstore.New()
	cfg := &config.Config{
		StablecoinScale:  2,
		SwapRate:         decimal.NewFromInt(1),
		SwapFeeBps:       100,
		QuoteCacheTTL:    time.Minute,
		PostingBatchSize: 10,
		RateLimitRPS:     1000,
		ReceiptPrefix:    "REC",
		IdempotencyTTL:   time.Hour,
	}
	services := app.NewServices(store, receipt.NewStore(store), nil, cfg)
	idem := idempotency.NewStore(nil, store, cfg.IdempotencyTTL)
	router := api.NewRouter(cfg, zap.NewNop(), nil, nil, idem, services)
	return &testAPI{t: t, handler: router.Routes(), store: store, operator: uuid.NewString()}
}

type request struct {
	method  string
	path    string
	body    interface{}
	key     string
	admin   bool
	headers map[string]string
}

func (a *testAPI) do(req request) *httptest.ResponseRecorder {
	a.t.Helper()
	var body bytes.Buffer
	if req.body != nil {
		require.NoError(a.t, json.NewEncoder(&body).Encode(req.body))
	}
	r := httptest.NewRequest(req.method, req.path, &body)
	r.Header.Set("Content-Type", "application/json")
	if req.method == http.MethodPost {
		key := req.key
		if key == "" {
			key = uuid.NewString()
		}
		r.Header.Set(middleware.IdempotencyHeader, key)
	}
	if req.admin {
		r.Header.Set(middleware.OperatorHeader, a.operator)
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
}

func requireDecimal(t *testing.T, want, got string) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(decimal.RequireFromString(got)), "want %s, got %s", want, got)
}

// publishUSDT publishes applied 990/1000 around a 995 reference.
func (a *testAPI) publishUSDT() {
	a.t.Helper()
	w := a.do(request{method: http.MethodPost, path: "/v1/admin/quotes", admin: true, body: map[string]interface{}{
		"currency":     "USDT",
		"applied_buy":  "990.00",
		"applied_sell": "1000.00",
		"ref_buy":      "995.00",
		"ref_sell":     "995.00",
	}})
	requireStatus(a.t, w, http.StatusCreated)
}

// fundedAccount opens an account and credits it through an operator adjustment.
func (a *testAPI) fundedAccount(currency, amount string) string {
	a.t.Helper()
	userID := uuid.NewString()
	w := a.do(request{method: http.MethodPost, path: "/v1/accounts", body: map[string]string{"user_id": userID}})
	requireStatus(a.t, w, http.StatusCreated)
	if amount != "" {
		w = a.do(request{method: http.MethodPost, path: "/v1/admin/accounts/" + userID + "/adjustments", admin: true, body: map[string]string{
			"currency": currency, "amount": amount, "reason": "opening balance",
		}})
		requireStatus(a.t, w, http.StatusCreated)
	}
	return userID
}

type balances struct {
	ARS  string `json:"ars"`
	USDT string `json:"usdt"`
	USD  string `json:"usd"`
}

func (a *testAPI) balances(userID string) balances {
	a.t.Helper()
	w := a.do(request{method: http.MethodGet, path: "/v1/accounts/" + userID})
	requireStatus(a.t, w, http.StatusOK)
	return decode[balances](a.t, w)
}

type operationBody struct {
	OperationID   string `json:"operation_id"`
	ReceiptNumber string `json:"receipt_number"`
	ReceiptError  string `json:"receipt_error"`
	Snapshot      struct {
		ToAmount string `json:"to_amount"`
		Fee      string `json:"fee"`
		FeeBps   int    `json:"fee_bps"`
	} `json:"snapshot"`
	Movements []struct {
		Currency string `json:"currency"`
		Amount   string `json:"amount"`
	} `json:"movements"`
}

func TestBuy_EndToEndWithReceipt(t *testing.T) {
	a := newTestAPI(t)
	a.publishUSDT()
	userID := a.fundedAccount("ARS", "10000")

	w := a.do(request{method: http.MethodPost, path: "/v1/accounts/" + userID + "/buy", body: map[string]string{
		"currency": "USDT", "ars_amount": "5000",
	}})
	requireStatus(t, w, http.StatusCreated)
	op := decode[operationBody](t, w)
	requireDecimal(t, "5.00", op.Snapshot.ToAmount)
	require.Len(t, op.Movements, 2)
	assert.Equal(t, "ARS", op.Movements[0].Currency)
	requireDecimal(t, "-5000", op.Movements[0].Amount)
	assert.Regexp(t, `^REC-\d{8}-[0-9A-F]{8}$`, op.ReceiptNumber)
	assert.Empty(t, op.ReceiptError)

	b := a.balances(userID)
	requireDecimal(t, "5000", b.ARS)
	requireDecimal(t, "5", b.USDT)

	w = a.do(request{method: http.MethodGet, path: "/v1/receipts/" + op.ReceiptNumber})
	requireStatus(t, w, http.StatusOK)
	rec := decode[struct {
		SHA256   string          `json:"sha256"`
		Snapshot json.RawMessage `json:"snapshot"`
	}](t, w)
	assert.Contains(t, string(rec.Snapshot), op.OperationID)

	w = a.do(request{method: http.MethodGet, path: "/v1/receipts/" + op.ReceiptNumber + "/verify?sha256=" + rec.SHA256})
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, true, decode[map[string]interface{}](t, w)["valid"])

	w = a.do(request{method: http.MethodGet, path: "/v1/receipts/" + op.ReceiptNumber + "/verify?sha256=deadbeef"})
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, false, decode[map[string]interface{}](t, w)["valid"])

	w = a.do(request{method: http.MethodGet, path: "/v1/admin/accounting/house", admin: true})
	requireStatus(t, w, http.StatusOK)
	requireDecimal(t, "25", decode[balances](t, w).ARS)
}

func TestIdempotency_ReplaysAndRejectsConflicts(t *testing.T) {
	a := newTestAPI(t)
	a.publishUSDT()
	userID := a.fundedAccount("ARS", "10000")
	body := map[string]string{"currency": "USDT", "ars_amount": "1000"}
	path := "/v1/accounts/" + userID + "/buy"

	first := a.do(request{method: http.MethodPost, path: path, key: "buy-1", body: body})
	requireStatus(t, first, http.StatusCreated)
	second := a.do(request{method: http.MethodPost, path: path, key: "buy-1", body: body})
	requireStatus(t, second, http.StatusCreated)
	assert.Equal(t, "postgres", second.Header().Get("X-Idempotent-Replay"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	requireDecimal(t, "9000", a.balances(userID).ARS)

	conflict := a.do(request{method: http.MethodPost, path: path, key: "buy-1", body: map[string]string{"currency": "USDT", "ars_amount": "2000"}})
	requireStatus(t, conflict, http.StatusConflict)
	assert.Equal(t, "application/problem+json", conflict.Header().Get("Content-Type"))
}

func TestIdempotency_MissingKey(t *testing.T) {
	a := newTestAPI(t)
	r := httptest.NewRequest(http.MethodPost, "/v1/accounts", strings.NewReader(`{"user_id":"`+uuid.NewString()+`"}`))
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, r)
	requireStatus(t, w, http.StatusBadRequest)
	assert.Contains(t, w.Body.String(), "idempotency/missing-key")
}

func TestIdempotency_RetryableFailureReleasesKey(t *testing.T) {
	a := newTestAPI(t)
	userID := a.fundedAccount("ARS", "10000")
	body := map[string]string{"currency": "USDT", "ars_amount": "1000"}
	path := "/v1/accounts/" + userID + "/buy"

	w := a.do(request{method: http.MethodPost, path: path, key: "retry-me", body: body})
	requireStatus(t, w, http.StatusServiceUnavailable)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "quote/unavailable")

	a.publishUSDT()
	w = a.do(request{method: http.MethodPost, path: path, key: "retry-me", body: body})
	requireStatus(t, w, http.StatusCreated)
	assert.Empty(t, w.Header().Get("X-Idempotent-Replay"))
}

func TestExchange_ErrorMapping(t *testing.T) {
	a := newTestAPI(t)
	a.publishUSDT()
	userID := a.fundedAccount("ARS", "100")

	cases := []struct {
		name   string
		path   string
		body   interface{}
		status int
		slug   string
	}{
		{"insufficient funds", "/buy", map[string]string{"currency": "USDT", "ars_amount": "5000"}, http.StatusUnprocessableEntity, "ledger/insufficient-funds"},
		{"zero amount", "/buy", map[string]string{"currency": "USDT", "ars_amount": "0"}, http.StatusBadRequest, "request/invalid-amount"},
		{"not a number", "/sell", map[string]string{"currency": "USDT", "amount": "ten"}, http.StatusBadRequest, "request/invalid-amount"},
		{"unknown currency", "/buy", map[string]string{"currency": "EUR", "ars_amount": "10"}, http.StatusBadRequest, "request/unsupported-currency"},
		{"bad direction", "/swap", map[string]string{"direction": "ARS_USD", "amount": "1"}, http.StatusBadRequest, "request/invalid-direction"},
		{"fee out of range", "/swap", map[string]interface{}{"direction": "USD_USDT", "amount": "1", "fee_bps": 10000}, http.StatusBadRequest, "request/invalid-fee"},
		{"unknown field", "/buy", map[string]string{"currency": "USDT", "amount": "1"}, http.StatusBadRequest, "request/invalid-body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := a.do(request{method: http.MethodPost, path: "/v1/accounts/" + userID + tc.path, body: tc.body})
			requireStatus(t, w, tc.status)
			assert.Contains(t, w.Body.String(), tc.slug)
		})
	}

	w := a.do(request{method: http.MethodGet, path: "/v1/accounts/" + uuid.NewString()})
	requireStatus(t, w, http.StatusNotFound)
	w = a.do(request{method: http.MethodGet, path: "/v1/accounts/not-a-uuid"})
	requireStatus(t, w, http.StatusBadRequest)
}

func TestSwap_UsesConfiguredFeeUnlessOverridden(t *testing.T) {
	a := newTestAPI(t)
	userID := a.fundedAccount("USD", "200")

	w := a.do(request{method: http.MethodPost, path: "/v1/accounts/" + userID + "/swap", body: map[string]string{
		"direction": "USD_USDT", "amount": "100",
	}})
	requireStatus(t, w, http.StatusCreated)
	op := decode[operationBody](t, w)
	assert.Equal(t, 100, op.Snapshot.FeeBps)
	requireDecimal(t, "99", op.Snapshot.ToAmount)
	requireDecimal(t, "1", op.Snapshot.Fee)

	w = a.do(request{method: http.MethodPost, path: "/v1/accounts/" + userID + "/swap", body: map[string]interface{}{
		"direction": "USD_USDT", "amount": "100", "fee_bps": 0,
	}})
	requireStatus(t, w, http.StatusCreated)
	op = decode[operationBody](t, w)
	requireDecimal(t, "100", op.Snapshot.ToAmount)

	b := a.balances(userID)
	requireDecimal(t, "0", b.USD)
	requireDecimal(t, "199", b.USDT)
}

func TestAdminRoutes_RequireOperator(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(request{method: http.MethodGet, path: "/v1/admin/accounting/house"})
	requireStatus(t, w, http.StatusForbidden)

	w = a.do(request{method: http.MethodGet, path: "/v1/admin/accounting/house", headers: map[string]string{middleware.OperatorHeader: "root"}})
	requireStatus(t, w, http.StatusBadRequest)
}

type fundingBody struct {
	Applied bool `json:"applied"`
	Request struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"request"`
	ReceiptNumber string `json:"receipt_number"`
}

func TestWithdrawal_Lifecycle(t *testing.T) {
	a := newTestAPI(t)
	userID := a.fundedAccount("USDT", "50")

	w := a.do(request{method: http.MethodPost, path: "/v1/accounts/" + userID + "/withdrawals", body: map[string]string{
		"currency": "USDT", "amount": "20", "destination": "TXYZ", "network": "TRC20",
	}})
	requireStatus(t, w, http.StatusCreated)
	id := decode[struct {
		ID string `json:"id"`
	}](t, w).ID

	w = a.do(request{method: http.MethodPost, path: "/v1/admin/withdrawals/" + id + "/sent", admin: true, body: map[string]string{"txid": "0xabc"}})
	requireStatus(t, w, http.StatusConflict)
	assert.Contains(t, w.Body.String(), "funding/invalid-transition")

	w = a.do(request{method: http.MethodPost, path: "/v1/admin/withdrawals/" + id + "/approve", admin: true})
	requireStatus(t, w, http.StatusOK)
	assert.True(t, decode[fundingBody](t, w).Applied)

	w = a.do(request{method: http.MethodPost, path: "/v1/admin/withdrawals/" + id + "/sent", admin: true, body: map[string]string{"txid": "0xabc"}})
	requireStatus(t, w, http.StatusOK)
	sent := decode[fundingBody](t, w)
	assert.True(t, sent.Applied)
	assert.Equal(t, "SENT", sent.Request.Status)
	assert.NotEmpty(t, sent.ReceiptNumber)
	requireDecimal(t, "30", a.balances(userID).USDT)

	w = a.do(request{method: http.MethodPost, path: "/v1/admin/withdrawals/" + id + "/sent", admin: true, body: map[string]string{"txid": "0xabc"}})
	requireStatus(t, w, http.StatusOK)
	assert.False(t, decode[fundingBody](t, w).Applied)
	requireDecimal(t, "30", a.balances(userID).USDT)

	w = a.do(request{method: http.MethodPost, path: "/v1/admin/withdrawals/" + id + "/reject", admin: true, body: map[string]string{"reason": "too late"}})
	requireStatus(t, w, http.StatusConflict)

	w = a.do(request{method: http.MethodGet, path: "/v1/admin/funding-requests/" + id + "/history", admin: true})
	requireStatus(t, w, http.StatusOK)
	history := decode[[]map[string]interface{}](t, w)
	assert.Len(t, history, 3)

	w = a.do(request{method: http.MethodGet, path: "/v1/admin/funding-requests?kind=withdrawal&status=SENT", admin: true})
	requireStatus(t, w, http.StatusOK)
	assert.Len(t, decode[[]map[string]interface{}](t, w), 1)
}

func TestDeposit_ApproveCreditsAndPostsCashIn(t *testing.T) {
	a := newTestAPI(t)
	a.publishUSDT()
	userID := a.fundedAccount("", "")

	w := a.do(request{method: http.MethodPost, path: "/v1/accounts/" + userID + "/deposits", body: map[string]string{
		"currency": "USDT", "amount": "10", "txid": "0xfeed",
	}})
	requireStatus(t, w, http.StatusCreated)
	id := decode[struct {
		ID string `json:"id"`
	}](t, w).ID

	w = a.do(request{method: http.MethodPost, path: "/v1/admin/deposits/" + id + "/approve", admin: true})
	requireStatus(t, w, http.StatusOK)
	requireDecimal(t, "10", a.balances(userID).USDT)

	w = a.do(request{method: http.MethodGet, path: "/v1/admin/accounting/entries?category=cash_in", admin: true})
	requireStatus(t, w, http.StatusOK)
	entries := decode[[]struct {
		Amount      string `json:"amount"`
		AmountLocal string `json:"amount_local"`
	}](t, w)
	require.Len(t, entries, 1)
	requireDecimal(t, "10", entries[0].Amount)
	requireDecimal(t, "9950", entries[0].AmountLocal)

	w = a.do(request{method: http.MethodPost, path: "/v1/admin/accounting/reconcile", admin: true})
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, true, decode[map[string]interface{}](t, w)["balanced"])
}

func TestMovements_ListFilterAndExport(t *testing.T) {
	a := newTestAPI(t)
	a.publishUSDT()
	userID := a.fundedAccount("ARS", "10000")
	for _, amount := range []string{"1000", "2000"} {
		w := a.do(request{method: http.MethodPost, path: "/v1/accounts/" + userID + "/buy", body: map[string]string{"currency": "USDT", "ars_amount": amount}})
		requireStatus(t, w, http.StatusCreated)
	}

	w := a.do(request{method: http.MethodGet, path: "/v1/accounts/" + userID + "/movements?currency=ARS&kind=buy&order=amount"})
	requireStatus(t, w, http.StatusOK)
	page := decode[struct {
		Items []struct {
			Amount string `json:"amount"`
		} `json:"items"`
		Count int `json:"count"`
	}](t, w)
	require.Equal(t, 2, page.Count)
	requireDecimal(t, "-2000", page.Items[0].Amount)
	requireDecimal(t, "-1000", page.Items[1].Amount)

	w = a.do(request{method: http.MethodGet, path: "/v1/accounts/" + userID + "/movements?order=sideways"})
	requireStatus(t, w, http.StatusBadRequest)

	w = a.do(request{method: http.MethodGet, path: "/v1/accounts/" + userID + "/movements/totals"})
	requireStatus(t, w, http.StatusOK)
	totals := decode[[]struct {
		Currency string `json:"currency"`
		Total    string `json:"total"`
	}](t, w)
	for _, total := range totals {
		if total.Currency == "ARS" {
			requireDecimal(t, "7000", total.Total)
		}
	}

	w = a.do(request{method: http.MethodGet, path: "/v1/accounts/" + userID + "/movements/export"})
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, export.MovementHeader, records[0])
	assert.Len(t, records, 6)
}

func TestQuotes_PublishFromMarginAndReadLatest(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(request{method: http.MethodGet, path: "/v1/quotes/USD"})
	requireStatus(t, w, http.StatusServiceUnavailable)

	w = a.do(request{method: http.MethodPost, path: "/v1/admin/quotes", admin: true, body: map[string]interface{}{
		"currency": "usd", "ref_buy": "1000", "ref_sell": "1000", "margin_bps": 100,
	}})
	requireStatus(t, w, http.StatusCreated)

	w = a.do(request{method: http.MethodGet, path: "/v1/quotes/usd"})
	requireStatus(t, w, http.StatusOK)
	quote := decode[struct {
		AppliedBuy  string `json:"applied_buy"`
		AppliedSell string `json:"applied_sell"`
	}](t, w)
	requireDecimal(t, "990", quote.AppliedBuy)
	requireDecimal(t, "1010", quote.AppliedSell)

	w = a.do(request{method: http.MethodPost, path: "/v1/admin/quotes", admin: true, body: map[string]string{
		"currency": "USD", "applied_buy": "1100", "applied_sell": "1000", "ref_buy": "1000",
	}})
	requireStatus(t, w, http.StatusBadRequest)
	assert.Contains(t, w.Body.String(), "quote/invalid")
}

func TestHealthAndDocs(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(request{method: http.MethodGet, path: "/health/live"})
	requireStatus(t, w, http.StatusOK)
	w = a.do(request{method: http.MethodGet, path: "/health/ready"})
	requireStatus(t, w, http.StatusOK)

	w = a.do(request{method: http.MethodGet, path: "/openapi.yaml"})
	requireStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), "/v1/accounts/{user_id}/swap")

	w = a.do(request{method: http.MethodGet, path: "/health/live", headers: map[string]string{middleware.TraceHeader: "trace-123"}})
	assert.Equal(t, "trace-123", w.Header().Get(middleware.TraceHeader))
}
