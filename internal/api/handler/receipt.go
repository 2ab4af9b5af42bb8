package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/ayo6706/exchange-ledger/internal/receipt"
	"github.com/go-chi/chi/v5"
)

type ReceiptHandler struct {
	store *receipt.Store
}

func NewReceiptHandler(store *receipt.Store) *ReceiptHandler {
	return &ReceiptHandler{store: store}
}

type receiptView struct {
	models.Receipt
	Snapshot json.RawMessage `json:"snapshot"`
}

func (h *ReceiptHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Get(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		respondServiceError(w, r, err, "receipt/read-failed")
		return
	}
	RespondJSON(w, http.StatusOK, receiptView{Receipt: rec, Snapshot: rec.Snapshot})
}

// Verify answers whether the presented sha256 matches the stored receipt.
func (h *ReceiptHandler) Verify(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	digest := strings.TrimSpace(r.URL.Query().Get("sha256"))
	if digest == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-digest", "sha256 query parameter is required")
		return
	}
	valid, err := h.store.Verify(r.Context(), number, digest)
	if err != nil {
		respondServiceError(w, r, err, "receipt/verify-failed")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"number": number, "valid": valid})
}
