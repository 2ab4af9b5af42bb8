package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/ayo6706/exchange-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var errBadFilter = errors.New("invalid filter")

var movementOrders = map[string]struct{}{
	models.OrderCreatedAsc:  {},
	models.OrderCreatedDesc: {},
	models.OrderAmountAsc:   {},
	models.OrderAmountDesc:  {},
}

type MovementHandler struct {
	log    *service.MovementLog
	export *service.ExportService
}

func NewMovementHandler(log *service.MovementLog, export *service.ExportService) *MovementHandler {
	return &MovementHandler{log: log, export: export}
}

type movementPage struct {
	Items []models.Movement `json:"items"`
	Page  int               `json:"page"`
	Count int               `json:"count"`
}

func (h *MovementHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := movementFilter(r)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-filter", err.Error())
		return
	}
	page, pageSize := pageParams(r)
	items, err := h.log.List(r.Context(), filter, page, pageSize)
	if err != nil {
		respondServiceError(w, r, err, "movement/list-failed")
		return
	}
	if items == nil {
		items = []models.Movement{}
	}
	RespondJSON(w, http.StatusOK, movementPage{Items: items, Page: max(page, 1), Count: len(items)})
}

func (h *MovementHandler) Totals(w http.ResponseWriter, r *http.Request) {
	filter, err := movementFilter(r)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-filter", err.Error())
		return
	}
	totals, err := h.log.Totals(r.Context(), filter)
	if err != nil {
		respondServiceError(w, r, err, "movement/totals-failed")
		return
	}
	if totals == nil {
		totals = []models.CurrencyTotal{}
	}
	RespondJSON(w, http.StatusOK, totals)
}

// Export streams the filtered movements as CSV. Once the first row is out the
// status is committed, so later failures can only be logged.
func (h *MovementHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := movementFilter(r)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-filter", err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=movements-%s.csv", time.Now().UTC().Format("20060102")))
	written, err := h.export.ExportMovements(r.Context(), w, filter)
	if err != nil {
		zap.L().Error("movement export failed", zap.Error(err), zap.Int("rows", written))
	}
}

func movementFilter(r *http.Request) (models.MovementFilter, error) {
	q := r.URL.Query()
	var filter models.MovementFilter

	if raw := chi.URLParam(r, "user_id"); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return filter, fmt.Errorf("%w: user_id", errBadFilter)
		}
		filter.UserID = &userID
	} else {
		userID, err := optionalUUIDQuery(r, "user_id")
		if err != nil {
			return filter, fmt.Errorf("%w: user_id", errBadFilter)
		}
		filter.UserID = userID
	}

	from, to, err := timeRange(r)
	if err != nil {
		return filter, fmt.Errorf("%w: from/to must be RFC 3339 or YYYY-MM-DD", errBadFilter)
	}
	filter.From, filter.To = from, to

	if filter.Currency = q.Get("currency"); filter.Currency != "" && !domain.IsSupportedCurrency(filter.Currency) {
		return filter, fmt.Errorf("%w: currency %q", errBadFilter, filter.Currency)
	}
	if filter.Kind = q.Get("kind"); filter.Kind != "" && !domain.IsKnownMovementKind(filter.Kind) {
		return filter, fmt.Errorf("%w: kind %q", errBadFilter, filter.Kind)
	}
	filter.Search = q.Get("q")

	if filter.MinAmount, err = optionalDecimalQuery(r, "min_amount"); err != nil {
		return filter, err
	}
	if filter.MaxAmount, err = optionalDecimalQuery(r, "max_amount"); err != nil {
		return filter, err
	}

	filter.OrderBy = q.Get("order")
	if filter.OrderBy == "" {
		filter.OrderBy = models.OrderCreatedDesc
	}
	if _, ok := movementOrders[filter.OrderBy]; !ok {
		return filter, fmt.Errorf("%w: order %q", errBadFilter, filter.OrderBy)
	}
	return filter, nil
}

func optionalDecimalQuery(r *http.Request, name string) (*decimal.Decimal, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errBadFilter, name)
	}
	return &d, nil
}
