package handler

import (
	"net/http"

	"github.com/ayo6706/exchange-ledger/internal/service"
)

type ExchangeHandler struct {
	svc           *service.ExchangeService
	defaultFeeBps int
}

func NewExchangeHandler(svc *service.ExchangeService, defaultFeeBps int) *ExchangeHandler {
	return &ExchangeHandler{svc: svc, defaultFeeBps: defaultFeeBps}
}

type operationResponse struct {
	*service.OperationResult
	ReceiptError string `json:"receipt_error,omitempty"`
}

func respondOperation(w http.ResponseWriter, res *service.OperationResult) {
	body := operationResponse{OperationResult: res}
	if res.ReceiptError != nil {
		body.ReceiptError = res.ReceiptError.Error()
	}
	RespondJSON(w, http.StatusCreated, body)
}

func (h *ExchangeHandler) Buy(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "user_id")
	if !ok {
		return
	}
	var req struct {
		Currency  string `json:"currency"`
		ARSAmount string `json:"ars_amount"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, r, "ars_amount", req.ARSAmount)
	if !ok {
		return
	}

	res, err := h.svc.Buy(r.Context(), service.BuyInput{
		UserID:     userID,
		Currency:   req.Currency,
		ARSAmount:  amount,
		OperatorID: operatorID(r),
	})
	if err != nil {
		respondServiceError(w, r, err, "exchange/buy-failed")
		return
	}
	respondOperation(w, res)
}

func (h *ExchangeHandler) Sell(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "user_id")
	if !ok {
		return
	}
	var req struct {
		Currency string `json:"currency"`
		Amount   string `json:"amount"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, r, "amount", req.Amount)
	if !ok {
		return
	}

	res, err := h.svc.Sell(r.Context(), service.SellInput{
		UserID:     userID,
		Currency:   req.Currency,
		Amount:     amount,
		OperatorID: operatorID(r),
	})
	if err != nil {
		respondServiceError(w, r, err, "exchange/sell-failed")
		return
	}
	respondOperation(w, res)
}

// Swap uses the configured fee unless the request names one.
func (h *ExchangeHandler) Swap(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "user_id")
	if !ok {
		return
	}
	var req struct {
		Direction string `json:"direction"`
		Amount    string `json:"amount"`
		FeeBps    *int   `json:"fee_bps"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, r, "amount", req.Amount)
	if !ok {
		return
	}
	feeBps := h.defaultFeeBps
	if req.FeeBps != nil {
		feeBps = *req.FeeBps
	}

	res, err := h.svc.Swap(r.Context(), service.SwapInput{
		UserID:     userID,
		Direction:  req.Direction,
		Amount:     amount,
		FeeBps:     feeBps,
		OperatorID: operatorID(r),
	})
	if err != nil {
		respondServiceError(w, r, err, "exchange/swap-failed")
		return
	}
	respondOperation(w, res)
}
