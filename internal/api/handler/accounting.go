package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/ayo6706/exchange-ledger/internal/service"
	"go.uber.org/zap"
)

type AccountingHandler struct {
	accounting     *service.AccountingService
	reconciliation *service.ReconciliationService
	export         *service.ExportService
	batchSize      int32
}

func NewAccountingHandler(accounting *service.AccountingService, reconciliation *service.ReconciliationService, export *service.ExportService, batchSize int32) *AccountingHandler {
	return &AccountingHandler{accounting: accounting, reconciliation: reconciliation, export: export, batchSize: batchSize}
}

func (h *AccountingHandler) Entries(w http.ResponseWriter, r *http.Request) {
	filter, ok := entryFilter(w, r)
	if !ok {
		return
	}
	page, pageSize := pageParams(r)
	entries, err := h.accounting.ListEntries(r.Context(), filter, page, pageSize)
	if err != nil {
		respondServiceError(w, r, err, "accounting/list-failed")
		return
	}
	if entries == nil {
		entries = []models.AccountingEntry{}
	}
	RespondJSON(w, http.StatusOK, entries)
}

func (h *AccountingHandler) Summary(w http.ResponseWriter, r *http.Request) {
	filter, ok := entryFilter(w, r)
	if !ok {
		return
	}
	summary, err := h.accounting.Summary(r.Context(), filter)
	if err != nil {
		respondServiceError(w, r, err, "accounting/summary-failed")
		return
	}
	RespondJSON(w, http.StatusOK, summary)
}

func (h *AccountingHandler) ExportEntries(w http.ResponseWriter, r *http.Request) {
	filter, ok := entryFilter(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=accounting-%s.csv", time.Now().UTC().Format("20060102")))
	written, err := h.export.ExportEntries(r.Context(), w, filter)
	if err != nil {
		zap.L().Error("accounting export failed", zap.Error(err), zap.Int("rows", written))
	}
}

func (h *AccountingHandler) House(w http.ResponseWriter, r *http.Request) {
	pos, err := h.accounting.HousePosition(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "accounting/house-read-failed")
		return
	}
	RespondJSON(w, http.StatusOK, pos)
}

// AdjustHouse posts a manual correction to the house cash position.
func (h *AccountingHandler) AdjustHouse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Currency string `json:"currency"`
		Amount   string `json:"amount"`
		Detail   string `json:"detail"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, r, "amount", req.Amount)
	if !ok {
		return
	}
	entry, err := h.accounting.PostHouseAdjustment(r.Context(), service.HouseAdjustmentInput{
		Currency:   req.Currency,
		Amount:     amount,
		OperatorID: operatorID(r),
		Detail:     req.Detail,
	})
	if err != nil {
		respondServiceError(w, r, err, "accounting/adjust-failed")
		return
	}
	RespondJSON(w, http.StatusCreated, entry)
}

func (h *AccountingHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciliation.Run(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "accounting/reconcile-failed")
		return
	}
	RespondJSON(w, http.StatusOK, struct {
		models.ReconciliationReport
		Balanced bool `json:"balanced"`
	}{report, report.Balanced()})
}

// ProcessPostings drains one batch of the posting outbox on demand.
func (h *AccountingHandler) ProcessPostings(w http.ResponseWriter, r *http.Request) {
	processed, err := h.accounting.ProcessPendingPostings(r.Context(), h.batchSize)
	if err != nil {
		respondServiceError(w, r, err, "accounting/process-failed")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]int{"processed": processed})
}

func entryFilter(w http.ResponseWriter, r *http.Request) (models.EntryFilter, bool) {
	q := r.URL.Query()
	var filter models.EntryFilter

	from, to, err := timeRange(r)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-filter", "from/to must be RFC 3339 or YYYY-MM-DD")
		return filter, false
	}
	filter.From, filter.To = from, to

	if filter.Category = q.Get("category"); filter.Category != "" && !domain.IsKnownCategory(filter.Category) {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-filter", "unknown category")
		return filter, false
	}
	if filter.Currency = q.Get("currency"); filter.Currency != "" && !domain.IsSupportedCurrency(filter.Currency) {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-filter", "unsupported currency")
		return filter, false
	}
	if filter.UserID, err = optionalUUIDQuery(r, "user_id"); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-filter", "Invalid user_id")
		return filter, false
	}
	return filter, true
}
