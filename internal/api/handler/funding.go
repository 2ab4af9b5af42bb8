package handler

import (
	"net/http"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/ayo6706/exchange-ledger/internal/service"
	"github.com/google/uuid"
)

type FundingHandler struct {
	svc *service.FundingService
}

func NewFundingHandler(svc *service.FundingService) *FundingHandler {
	return &FundingHandler{svc: svc}
}

func (h *FundingHandler) RequestDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "user_id")
	if !ok {
		return
	}
	var req struct {
		Currency string `json:"currency"`
		Amount   string `json:"amount"`
		Network  string `json:"network"`
		TxID     string `json:"txid"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, r, "amount", req.Amount)
	if !ok {
		return
	}

	created, err := h.svc.RequestDeposit(r.Context(), service.DepositRequestInput{
		UserID:   userID,
		Currency: req.Currency,
		Amount:   amount,
		Network:  req.Network,
		TxID:     req.TxID,
	})
	if err != nil {
		respondServiceError(w, r, err, "funding/request-failed")
		return
	}
	RespondJSON(w, http.StatusCreated, created)
}

func (h *FundingHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "user_id")
	if !ok {
		return
	}
	var req struct {
		Currency    string `json:"currency"`
		Amount      string `json:"amount"`
		Destination string `json:"destination"`
		Network     string `json:"network"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, r, "amount", req.Amount)
	if !ok {
		return
	}

	created, err := h.svc.RequestWithdrawal(r.Context(), service.WithdrawalRequestInput{
		UserID:      userID,
		Currency:    req.Currency,
		Amount:      amount,
		Destination: req.Destination,
		Network:     req.Network,
	})
	if err != nil {
		respondServiceError(w, r, err, "funding/request-failed")
		return
	}
	RespondJSON(w, http.StatusCreated, created)
}

type fundingResponse struct {
	*service.FundingResult
	ReceiptError string `json:"receipt_error,omitempty"`
}

func respondFunding(w http.ResponseWriter, res *service.FundingResult) {
	body := fundingResponse{FundingResult: res}
	if res.ReceiptError != nil {
		body.ReceiptError = res.ReceiptError.Error()
	}
	RespondJSON(w, http.StatusOK, body)
}

// runTransition applies one state change. Replaying the current state answers
// 200 with applied=false.
func (h *FundingHandler) runTransition(w http.ResponseWriter, r *http.Request, fn func(id uuid.UUID, operator *uuid.UUID) (*service.FundingResult, error)) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	res, err := fn(id, operatorID(r))
	if err != nil {
		respondServiceError(w, r, err, "funding/transition-failed")
		return
	}
	respondFunding(w, res)
}

func (h *FundingHandler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, func(id uuid.UUID, operator *uuid.UUID) (*service.FundingResult, error) {
		return h.svc.ApproveDeposit(r.Context(), id, operator)
	})
}

func (h *FundingHandler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, func(id uuid.UUID, operator *uuid.UUID) (*service.FundingResult, error) {
		return h.svc.ApproveWithdrawal(r.Context(), id, operator)
	})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *FundingHandler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.runTransition(w, r, func(id uuid.UUID, operator *uuid.UUID) (*service.FundingResult, error) {
		return h.svc.RejectDeposit(r.Context(), id, operator, req.Reason)
	})
}

func (h *FundingHandler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.runTransition(w, r, func(id uuid.UUID, operator *uuid.UUID) (*service.FundingResult, error) {
		return h.svc.RejectWithdrawal(r.Context(), id, operator, req.Reason)
	})
}

// MarkWithdrawalSent debits the user; the body carries the on-chain transaction id.
func (h *FundingHandler) MarkWithdrawalSent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TxID string `json:"txid"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	h.runTransition(w, r, func(id uuid.UUID, operator *uuid.UUID) (*service.FundingResult, error) {
		return h.svc.MarkWithdrawalSent(r.Context(), id, operator, req.TxID)
	})
}

func (h *FundingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	req, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "funding/read-failed")
		return
	}
	RespondJSON(w, http.StatusOK, req)
}

func (h *FundingHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := service.FundingFilter{Kind: q.Get("kind"), Status: q.Get("status")}
	if filter.Kind != "" && filter.Kind != domain.RequestKindDeposit && filter.Kind != domain.RequestKindWithdrawal {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-filter", "kind must be deposit or withdrawal")
		return
	}
	userID, err := optionalUUIDQuery(r, "user_id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-filter", "Invalid user_id")
		return
	}
	filter.UserID = userID

	page, pageSize := pageParams(r)
	items, err := h.svc.List(r.Context(), filter, page, pageSize)
	if err != nil {
		respondServiceError(w, r, err, "funding/list-failed")
		return
	}
	if items == nil {
		items = []models.FundingRequest{}
	}
	RespondJSON(w, http.StatusOK, items)
}

func (h *FundingHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.svc.Get(r.Context(), id); err != nil {
		respondServiceError(w, r, err, "funding/read-failed")
		return
	}
	entries, err := h.svc.History(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "funding/history-failed")
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	RespondJSON(w, http.StatusOK, entries)
}
