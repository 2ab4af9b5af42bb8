package handler

import (
	"net/http"

	"github.com/ayo6706/exchange-ledger/internal/service"
)

type AccountHandler struct {
	svc *service.AccountService
}

func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	userID, err := parseUUID(req.UserID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-user-id", "Invalid user_id")
		return
	}

	account, err := h.svc.OpenAccount(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err, "account/open-failed")
		return
	}
	RespondJSON(w, http.StatusCreated, account)
}

func (h *AccountHandler) Balances(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "user_id")
	if !ok {
		return
	}
	account, err := h.svc.GetBalances(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err, "account/balance-read-failed")
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

// Adjust applies a signed operator correction to one balance.
func (h *AccountHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "user_id")
	if !ok {
		return
	}
	var req struct {
		Currency string `json:"currency"`
		Amount   string `json:"amount"`
		Reason   string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, r, "amount", req.Amount)
	if !ok {
		return
	}

	movement, err := h.svc.AdjustBalance(r.Context(), service.AdjustBalanceInput{
		UserID:     userID,
		Currency:   req.Currency,
		Amount:     amount,
		OperatorID: operatorID(r),
		Reason:     req.Reason,
	})
	if err != nil {
		respondServiceError(w, r, err, "account/adjust-failed")
		return
	}
	RespondJSON(w, http.StatusCreated, movement)
}
