package handler

import (
	"net/http"
	"strings"

	"github.com/ayo6706/exchange-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type QuoteHandler struct {
	svc *service.QuoteService
}

func NewQuoteHandler(svc *service.QuoteService) *QuoteHandler {
	return &QuoteHandler{svc: svc}
}

// Publish records a price pair from the external feed. Reference prices are
// optional; margin_bps derives the applied prices from them when the applied
// pair is omitted.
func (h *QuoteHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Currency    string `json:"currency"`
		AppliedBuy  string `json:"applied_buy"`
		AppliedSell string `json:"applied_sell"`
		RefBuy      string `json:"ref_buy"`
		RefSell     string `json:"ref_sell"`
		MarginBps   *int32 `json:"margin_bps"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	in := service.PublishQuoteInput{Currency: strings.ToUpper(strings.TrimSpace(req.Currency)), MarginBps: req.MarginBps}
	var ok bool
	if in.RefBuy, ok = optionalPrice(w, r, "ref_buy", req.RefBuy); !ok {
		return
	}
	if in.RefSell, ok = optionalPrice(w, r, "ref_sell", req.RefSell); !ok {
		return
	}
	if req.AppliedBuy == "" && req.AppliedSell == "" && req.MarginBps != nil && in.RefBuy.Valid && in.RefSell.Valid {
		in.AppliedBuy, _ = service.ApplySpread(in.RefBuy.Decimal, *req.MarginBps)
		_, in.AppliedSell = service.ApplySpread(in.RefSell.Decimal, *req.MarginBps)
	} else {
		if in.AppliedBuy, ok = parseAmount(w, r, "applied_buy", req.AppliedBuy); !ok {
			return
		}
		if in.AppliedSell, ok = parseAmount(w, r, "applied_sell", req.AppliedSell); !ok {
			return
		}
	}

	quote, err := h.svc.Publish(r.Context(), in)
	if err != nil {
		respondServiceError(w, r, err, "quote/publish-failed")
		return
	}
	RespondJSON(w, http.StatusCreated, quote)
}

func (h *QuoteHandler) Latest(w http.ResponseWriter, r *http.Request) {
	currency := strings.ToUpper(chi.URLParam(r, "currency"))
	quote, err := h.svc.LatestQuote(r.Context(), currency)
	if err != nil {
		respondServiceError(w, r, err, "quote/read-failed")
		return
	}
	RespondJSON(w, http.StatusOK, quote)
}

func optionalPrice(w http.ResponseWriter, r *http.Request, field, raw string) (decimal.NullDecimal, bool) {
	if raw == "" {
		return decimal.NullDecimal{}, true
	}
	price, ok := parseAmount(w, r, field, raw)
	if !ok {
		return decimal.NullDecimal{}, false
	}
	return decimal.NewNullDecimal(price), true
}
