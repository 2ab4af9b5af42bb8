package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/ayo6706/exchange-ledger/internal/observability"
	"github.com/ayo6706/exchange-ledger/internal/repository"
	"github.com/ayo6706/exchange-ledger/internal/retrier"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reference price sources, in fallback order.
const (
	RefSourceLocal       = "local"
	RefSourceRefSell     = "ref_sell"
	RefSourceRefBuy      = "ref_buy"
	RefSourceAppliedSell = "applied_sell"
	RefSourceAppliedBuy  = "applied_buy"
	RefSourceNone        = "none"
)

var errMissingDedupKey = fmt.Errorf("%w: posting requires a complete dedup key", domain.ErrInvalidRecord)

// AccountingService is the house Accounting Ledger.
type AccountingService struct {
	store   QueryStore
	quotes  QuoteReader
	retrier *retrier.Retrier
}

func NewAccountingService(store QueryStore, quotes QuoteReader, r *retrier.Retrier) *AccountingService {
	if r == nil {
		r = NewPostingRetrier()
	}
	return &AccountingService{store: store, quotes: quotes, retrier: r}
}

// NewPostingRetrier retries post-commit postings on lock timeouts and
// serialization failures only.
func NewPostingRetrier(opts ...retrier.Option) *retrier.Retrier {
	return retrier.New(append(opts, retrier.WithRetryIf(domain.IsRetryable))...)
}

// Post records one accounting entry in its own transaction. It returns
// created=false with the existing entry when the dedup key was already posted.
func (s *AccountingService) Post(ctx context.Context, req models.PostingRequest) (models.AccountingEntry, bool, error) {
	var (
		entry   models.AccountingEntry
		created bool
	)
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		var err error
		entry, created, err = s.post(ctx, qtx, req)
		return err
	})
	if err != nil {
		observability.IncrementPosting(req.Category, "failed")
		return models.AccountingEntry{}, false, err
	}
	return entry, created, nil
}

func validatePosting(req models.PostingRequest) error {
	if !domain.IsKnownCategory(req.Category) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidCategory, req.Category)
	}
	if !domain.IsSupportedCurrency(req.Currency) {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, req.Currency)
	}
	if req.Key.DocClass == "" || req.Key.SourceDocType == "" || req.Key.SourceDocID == "" {
		return errMissingDedupKey
	}
	return nil
}

// post is the idempotent core of Post. The house position row is locked only
// for cash-affecting categories and always after any account lock the caller holds.
func (s *AccountingService) post(ctx context.Context, qtx repository.Querier, req models.PostingRequest) (models.AccountingEntry, bool, error) {
	if err := validatePosting(req); err != nil {
		return models.AccountingEntry{}, false, err
	}
	req.Amount = domain.Floor(req.Amount, domain.AccountingScale)
	req.AmountLocal = domain.Floor(req.AmountLocal, domain.FiatScale)

	existing, err := qtx.GetAccountingEntryByKey(ctx, req.Key)
	if err == nil {
		observability.IncrementPosting(req.Category, "duplicate")
		return existing, false, nil
	}
	if !repository.IsNotFound(err) {
		return models.AccountingEntry{}, false, fmt.Errorf("lookup accounting entry: %w", err)
	}

	affectsHouse := domain.AffectsHouseCash(req.Category)
	if affectsHouse {
		if _, err := qtx.GetHousePositionForUpdate(ctx); err != nil {
			return models.AccountingEntry{}, false, fmt.Errorf("lock house position: %w", err)
		}
	}

	entry, err := qtx.InsertAccountingEntry(ctx, repository.InsertAccountingEntryParams{ID: uuid.New(), Request: req})
	if err != nil {
		if !repository.IsNotFound(err) {
			return models.AccountingEntry{}, false, fmt.Errorf("insert accounting entry: %w", err)
		}
		// A concurrent poster committed the same key first.
		existing, err := qtx.GetAccountingEntryByKey(ctx, req.Key)
		if err != nil {
			return models.AccountingEntry{}, false, fmt.Errorf("reload accounting entry: %w", err)
		}
		observability.IncrementPosting(req.Category, "duplicate")
		return existing, false, nil
	}

	if affectsHouse {
		rows, err := qtx.AddToHousePosition(ctx, req.Currency, req.Amount)
		if err != nil {
			return models.AccountingEntry{}, false, fmt.Errorf("update house position: %w", err)
		}
		if err := requireExactlyOne(rows, "update house position"); err != nil {
			return models.AccountingEntry{}, false, err
		}
	}

	observability.IncrementPosting(req.Category, "created")
	return entry, true, nil
}

// postOrDefer posts inside the caller's transaction under a savepoint. When the
// posting itself fails the financial transaction still commits and the posting
// is queued in the outbox for the posting worker.
func (s *AccountingService) postOrDefer(ctx context.Context, qtx repository.Querier, req models.PostingRequest) error {
	err := qtx.Savepoint(ctx, func(sp repository.Querier) error {
		_, _, err := s.post(ctx, sp, req)
		return err
	})
	if err == nil {
		return nil
	}

	zap.L().Error("accounting posting failed, queued for retry",
		zap.Error(err),
		zap.String("category", req.Category),
		zap.String("doc_class", req.Key.DocClass),
		zap.String("source_doc_type", req.Key.SourceDocType),
		zap.String("source_doc_id", req.Key.SourceDocID),
	)
	if _, err := s.enqueue(ctx, qtx, req); err != nil {
		return err
	}
	observability.IncrementPosting(req.Category, "deferred")
	return nil
}

// enqueue stores req in the outbox. It returns uuid.Nil when the key is already queued.
func (s *AccountingService) enqueue(ctx context.Context, qtx repository.Querier, req models.PostingRequest) (uuid.UUID, error) {
	if err := validatePosting(req); err != nil {
		return uuid.Nil, err
	}
	pending, created, err := qtx.EnqueuePosting(ctx, repository.EnqueuePostingParams{ID: uuid.New(), Request: req})
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue posting: %w", err)
	}
	if !created {
		return uuid.Nil, nil
	}
	return pending.ID, nil
}

// ProcessPosting posts one queued outbox item. A posting already done or held
// by another worker is skipped.
func (s *AccountingService) ProcessPosting(ctx context.Context, id uuid.UUID) error {
	var category string
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		pending, err := qtx.GetPendingPostingForUpdate(ctx, id)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil
			}
			return fmt.Errorf("lock pending posting: %w", err)
		}
		category = pending.Request.Category
		if _, _, err := s.post(ctx, qtx, pending.Request); err != nil {
			return err
		}
		rows, err := qtx.MarkPostingDone(ctx, id)
		if err != nil {
			return fmt.Errorf("mark posting done: %w", err)
		}
		return requireExactlyOne(rows, "mark posting done")
	})
	if err == nil {
		return nil
	}

	if category != "" {
		observability.IncrementPosting(category, "failed")
	}
	if _, markErr := s.store.Queries().MarkPostingFailed(ctx, id, err.Error()); markErr != nil {
		zap.L().Error("failed to record posting failure", zap.Error(markErr), zap.String("posting_id", id.String()))
	}
	return err
}

// settle runs the post-commit half of a cash-in or cash-out: the queued
// posting is attempted with bounded retries and otherwise left for the worker.
func (s *AccountingService) settle(ctx context.Context, id uuid.UUID) {
	if id == uuid.Nil {
		return
	}
	ctx, cancel := detached(ctx)
	defer cancel()
	err := s.retrier.Do(ctx, func() error {
		return s.ProcessPosting(ctx, id)
	})
	if err != nil {
		zap.L().Error("post-commit accounting posting failed, left in outbox",
			zap.Error(err),
			zap.String("posting_id", id.String()),
		)
	}
}

// ProcessPendingPostings drains up to limit outbox items and returns how many
// were attempted. Failures are joined and do not stop the batch.
func (s *AccountingService) ProcessPendingPostings(ctx context.Context, limit int32) (int, error) {
	queries := s.store.Queries()
	pending, err := queries.ListPendingPostings(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending postings: %w", err)
	}

	var errs []error
	for _, p := range pending {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := s.ProcessPosting(ctx, p.ID); err != nil {
			errs = append(errs, fmt.Errorf("posting %s: %w", p.ID, err))
		}
	}

	if depth, err := queries.CountPendingPostings(ctx); err == nil {
		observability.SetPendingPostings(depth)
	}
	return len(pending), errors.Join(errs...)
}

// ReferencePrice values one unit of currency in local fiat. It never fails: an
// unknown price degrades to zero, which is logged and counted.
func (s *AccountingService) ReferencePrice(ctx context.Context, currency string) decimal.Decimal {
	if currency == domain.LocalCurrency {
		return decimal.NewFromInt(1)
	}

	var quote *models.Quote
	if s.quotes != nil {
		q, err := s.quotes.LatestQuote(ctx, currency)
		if err == nil {
			quote = &q
		} else if !errors.Is(err, domain.ErrQuoteUnavailable) {
			zap.L().Warn("reference quote lookup failed", zap.String("currency", currency), zap.Error(err))
		}
	}

	price, source := ResolveReferencePrice(currency, quote)
	if source != RefSourceRefSell && source != RefSourceLocal {
		observability.IncrementReferenceFallback(currency, source)
	}
	if source == RefSourceNone {
		zap.L().Warn("no reference price available, valuing at zero", zap.String("currency", currency))
	}
	return price
}

// ResolveReferencePrice walks reference sell, reference buy, applied sell and
// applied buy in that order and returns the first positive price with its source.
func ResolveReferencePrice(currency string, quote *models.Quote) (decimal.Decimal, string) {
	if currency == domain.LocalCurrency {
		return decimal.NewFromInt(1), RefSourceLocal
	}
	if quote == nil {
		return decimal.Zero, RefSourceNone
	}
	switch {
	case quote.RefSell.Valid && quote.RefSell.Decimal.IsPositive():
		return quote.RefSell.Decimal, RefSourceRefSell
	case quote.RefBuy.Valid && quote.RefBuy.Decimal.IsPositive():
		return quote.RefBuy.Decimal, RefSourceRefBuy
	case quote.AppliedSell.IsPositive():
		return quote.AppliedSell, RefSourceAppliedSell
	case quote.AppliedBuy.IsPositive():
		return quote.AppliedBuy, RefSourceAppliedBuy
	default:
		return decimal.Zero, RefSourceNone
	}
}

// HouseAdjustmentInput is a manual correction of the house cash position.
type HouseAdjustmentInput struct {
	Currency   string
	Amount     decimal.Decimal // signed
	OperatorID *uuid.UUID
	Detail     string
}

func (s *AccountingService) PostHouseAdjustment(ctx context.Context, in HouseAdjustmentInput) (models.AccountingEntry, error) {
	if !domain.IsSupportedCurrency(in.Currency) {
		return models.AccountingEntry{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, in.Currency)
	}
	if err := domain.ValidateAmount(in.Amount.Abs(), domain.AccountingScale); err != nil {
		return models.AccountingEntry{}, err
	}

	price := s.ReferencePrice(ctx, in.Currency)
	entry, _, err := s.Post(ctx, models.PostingRequest{
		Category:    domain.CategoryAdjustment,
		Currency:    in.Currency,
		Amount:      in.Amount,
		AmountLocal: in.Amount.Mul(price),
		OperatorID:  in.OperatorID,
		RefPrice:    positivePrice(price),
		Key: models.DedupKey{
			DocClass:      domain.DocClassAdjustment,
			SourceDocType: domain.SourceManualAdjustment,
			SourceDocID:   uuid.NewString(),
		},
		Detail: in.Detail,
	})
	return entry, err
}

func (s *AccountingService) HousePosition(ctx context.Context) (models.HousePosition, error) {
	pos, err := s.store.Queries().GetHousePosition(ctx)
	if err != nil {
		return models.HousePosition{}, fmt.Errorf("get house position: %w", err)
	}
	return pos, nil
}

func (s *AccountingService) ListEntries(ctx context.Context, filter models.EntryFilter, page, pageSize int) ([]models.AccountingEntry, error) {
	filter.Limit, filter.Offset = pageWindow(page, pageSize)
	entries, err := s.store.Queries().ListAccountingEntries(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list accounting entries: %w", err)
	}
	return entries, nil
}

// Summary aggregates revenue and flows over filter. Revenue only counts the
// cash-affecting categories; cash-in and cash-out are reported separately.
func (s *AccountingService) Summary(ctx context.Context, filter models.EntryFilter) (models.AccountingSummary, error) {
	filter.Limit, filter.Offset = 0, 0
	queries := s.store.Queries()

	byCategory, err := queries.SumEntriesByCategory(ctx, filter)
	if err != nil {
		return models.AccountingSummary{}, fmt.Errorf("sum entries by category: %w", err)
	}
	daily, err := queries.DailyRevenue(ctx, filter)
	if err != nil {
		return models.AccountingSummary{}, fmt.Errorf("daily revenue: %w", err)
	}

	summary := models.AccountingSummary{
		RevenueLocal: decimal.Zero,
		CashInLocal:  decimal.Zero,
		CashOutLocal: decimal.Zero,
		ByCategory:   byCategory,
		DailyRevenue: daily,
	}
	perCurrency := map[string]decimal.Decimal{}
	for _, t := range byCategory {
		switch {
		case domain.AffectsHouseCash(t.Category):
			summary.RevenueLocal = summary.RevenueLocal.Add(t.TotalLocal)
			perCurrency[t.Currency] = perCurrency[t.Currency].Add(t.Total)
		case t.Category == domain.CategoryCashIn:
			summary.CashInLocal = summary.CashInLocal.Add(t.TotalLocal)
		case t.Category == domain.CategoryCashOut:
			summary.CashOutLocal = summary.CashOutLocal.Add(t.TotalLocal)
		}
	}
	for _, ccy := range domain.Currencies() {
		if total, ok := perCurrency[ccy]; ok {
			summary.ByCurrency = append(summary.ByCurrency, models.CurrencyTotal{Currency: ccy, Total: total})
		}
	}
	return summary, nil
}

func positivePrice(price decimal.Decimal) decimal.NullDecimal {
	if !price.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(price)
}
