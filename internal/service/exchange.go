package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/ayo6706/exchange-ledger/internal/observability"
	"github.com/ayo6706/exchange-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExchangeConfig holds the engine's pricing parameters.
type ExchangeConfig struct {
	Scales domain.Scales
	// SwapRate is the number of USDT one USD buys.
	SwapRate decimal.Decimal
}

// ExchangeService is the Operation Engine: buy, sell and swap, each one
// all-or-nothing transaction on a single locked account.
type ExchangeService struct {
	store      QueryStore
	quotes     QuoteReader
	accounting *AccountingService
	receipts   *ReceiptIssuer
	movements  *MovementLog
	ledger     BalanceLedger
	scales     domain.Scales
	swapRate   decimal.Decimal
}

func NewExchangeService(store QueryStore, quotes QuoteReader, accounting *AccountingService, receipts *ReceiptIssuer, cfg ExchangeConfig) *ExchangeService {
	if cfg.Scales.Stablecoin == 0 {
		cfg.Scales = domain.DefaultScales()
	}
	if !cfg.SwapRate.IsPositive() {
		cfg.SwapRate = decimal.NewFromInt(1)
	}
	return &ExchangeService{
		store:      store,
		quotes:     quotes,
		accounting: accounting,
		receipts:   receipts,
		movements:  NewMovementLog(store),
		scales:     cfg.Scales,
		swapRate:   cfg.SwapRate,
	}
}

// OperationResult describes a committed operation.
type OperationResult struct {
	OperationID   uuid.UUID                `json:"operation_id"`
	OperationType string                   `json:"operation_type"`
	Movements     []models.Movement        `json:"movements"`
	Snapshot      models.OperationSnapshot `json:"snapshot"`
	ReceiptID     *uuid.UUID               `json:"receipt_id,omitempty"`
	ReceiptNumber string                   `json:"receipt_number,omitempty"`
	// ReceiptError is set when the operation committed but its receipt could not be issued.
	ReceiptError error `json:"-"`
}

// MovementRef is the movement a receipt points at: the credited leg.
func (r *OperationResult) MovementRef() *uuid.UUID {
	if len(r.Movements) == 0 {
		return nil
	}
	id := r.Movements[len(r.Movements)-1].ID
	return &id
}

type BuyInput struct {
	UserID     uuid.UUID
	Currency   string
	ARSAmount  decimal.Decimal
	OperatorID *uuid.UUID
}

type SellInput struct {
	UserID     uuid.UUID
	Currency   string
	Amount     decimal.Decimal
	OperatorID *uuid.UUID
}

// SwapInput carries the fee explicitly; callers resolve any default before calling.
type SwapInput struct {
	UserID     uuid.UUID
	Direction  string
	Amount     decimal.Decimal
	FeeBps     int
	OperatorID *uuid.UUID
}

// leg is one side of a two-currency operation.
type leg struct {
	currency    string
	amount      decimal.Decimal
	kind        string
	description string
}

type operationPlan struct {
	operationType string
	userID        uuid.UUID
	operatorID    *uuid.UUID
	debit         leg
	credit        leg
	rate          decimal.Decimal
	feeBps        int
	fee           decimal.Decimal
	posting       *models.PostingRequest
}

// Buy spends local fiat on currency at the quote's applied sell price.
func (s *ExchangeService) Buy(ctx context.Context, in BuyInput) (*OperationResult, error) {
	res, err := s.buy(ctx, in)
	observability.IncrementOperation(domain.OperationBuy, resultLabel(err))
	return res, err
}

func (s *ExchangeService) buy(ctx context.Context, in BuyInput) (*OperationResult, error) {
	if !domain.IsTradable(in.Currency) {
		return nil, fmt.Errorf("%w: cannot buy %q", domain.ErrUnsupportedCurrency, in.Currency)
	}
	if err := domain.ValidateAmount(in.ARSAmount, domain.FiatScale); err != nil {
		return nil, err
	}
	quote, err := s.latestQuote(ctx, in.Currency)
	if err != nil {
		return nil, err
	}
	if !quote.AppliedSell.IsPositive() {
		return nil, fmt.Errorf("%w: %s has no sell price", domain.ErrQuoteUnavailable, in.Currency)
	}

	received := domain.Floor(in.ARSAmount.Div(quote.AppliedSell), s.scales.Of(in.Currency))
	if !received.IsPositive() {
		return nil, fmt.Errorf("%w: %s ARS buys nothing at %s", domain.ErrInvalidAmount, in.ARSAmount, quote.AppliedSell)
	}

	refSell := quote.AppliedSell
	if quote.RefSell.Valid && quote.RefSell.Decimal.IsPositive() {
		refSell = quote.RefSell.Decimal
	}
	revenue := in.ARSAmount.Sub(received.Mul(refSell))

	plan := operationPlan{
		operationType: domain.OperationBuy,
		userID:        in.UserID,
		operatorID:    in.OperatorID,
		debit: leg{
			currency:    domain.CurrencyARS,
			amount:      in.ARSAmount,
			kind:        domain.MovementBuy,
			description: fmt.Sprintf("buy %s %s at %s", s.scales.FormatAmount(in.Currency, received), in.Currency, quote.AppliedSell),
		},
		credit: leg{
			currency:    in.Currency,
			amount:      received,
			kind:        domain.MovementBuy,
			description: fmt.Sprintf("buy %s %s at %s", s.scales.FormatAmount(in.Currency, received), in.Currency, quote.AppliedSell),
		},
		rate: quote.AppliedSell,
	}
	if !revenue.IsZero() {
		plan.posting = &models.PostingRequest{
			Category:     domain.CategorySpreadBuy,
			Currency:     domain.CurrencyARS,
			Amount:       revenue,
			AmountLocal:  revenue,
			RefPrice:     decimal.NewNullDecimal(refSell),
			AppliedPrice: decimal.NewNullDecimal(quote.AppliedSell),
			Detail:       fmt.Sprintf("spread on buy of %s %s", received, in.Currency),
		}
	}
	return s.execute(ctx, plan)
}

// Sell converts currency into local fiat at the quote's applied buy price.
func (s *ExchangeService) Sell(ctx context.Context, in SellInput) (*OperationResult, error) {
	res, err := s.sell(ctx, in)
	observability.IncrementOperation(domain.OperationSell, resultLabel(err))
	return res, err
}

func (s *ExchangeService) sell(ctx context.Context, in SellInput) (*OperationResult, error) {
	if !domain.IsTradable(in.Currency) {
		return nil, fmt.Errorf("%w: cannot sell %q", domain.ErrUnsupportedCurrency, in.Currency)
	}
	if err := domain.ValidateAmount(in.Amount, s.scales.Of(in.Currency)); err != nil {
		return nil, err
	}
	quote, err := s.latestQuote(ctx, in.Currency)
	if err != nil {
		return nil, err
	}
	if !quote.AppliedBuy.IsPositive() {
		return nil, fmt.Errorf("%w: %s has no buy price", domain.ErrQuoteUnavailable, in.Currency)
	}

	arsReceived := domain.Floor(in.Amount.Mul(quote.AppliedBuy), domain.FiatScale)
	if !arsReceived.IsPositive() {
		return nil, fmt.Errorf("%w: %s %s sells for nothing", domain.ErrInvalidAmount, in.Amount, in.Currency)
	}

	refBuy := quote.AppliedBuy
	if quote.RefBuy.Valid && quote.RefBuy.Decimal.IsPositive() {
		refBuy = quote.RefBuy.Decimal
	}
	revenue := in.Amount.Mul(refBuy.Sub(quote.AppliedBuy))

	description := fmt.Sprintf("sell %s %s at %s", s.scales.FormatAmount(in.Currency, in.Amount), in.Currency, quote.AppliedBuy)
	plan := operationPlan{
		operationType: domain.OperationSell,
		userID:        in.UserID,
		operatorID:    in.OperatorID,
		debit:         leg{currency: in.Currency, amount: in.Amount, kind: domain.MovementSell, description: description},
		credit:        leg{currency: domain.CurrencyARS, amount: arsReceived, kind: domain.MovementSell, description: description},
		rate:          quote.AppliedBuy,
	}
	if !revenue.IsZero() {
		plan.posting = &models.PostingRequest{
			Category:     domain.CategorySpreadSell,
			Currency:     domain.CurrencyARS,
			Amount:       revenue,
			AmountLocal:  revenue,
			RefPrice:     decimal.NewNullDecimal(refBuy),
			AppliedPrice: decimal.NewNullDecimal(quote.AppliedBuy),
			Detail:       fmt.Sprintf("spread on sell of %s %s", in.Amount, in.Currency),
		}
	}
	return s.execute(ctx, plan)
}

// Swap exchanges USD and USDT at the configured rate, keeping the fee in the
// destination currency.
func (s *ExchangeService) Swap(ctx context.Context, in SwapInput) (*OperationResult, error) {
	res, err := s.swap(ctx, in)
	observability.IncrementOperation(domain.OperationSwap, resultLabel(err))
	return res, err
}

func (s *ExchangeService) swap(ctx context.Context, in SwapInput) (*OperationResult, error) {
	from, to, ok := domain.SwapLegs(in.Direction)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidDirection, in.Direction)
	}
	if err := domain.ValidateFeeBps(in.FeeBps); err != nil {
		return nil, err
	}
	if err := domain.ValidateAmount(in.Amount, s.scales.Of(from)); err != nil {
		return nil, err
	}

	gross, net, fee := s.swapAmounts(from, to, in.Amount, in.FeeBps)
	if !net.IsPositive() {
		return nil, fmt.Errorf("%w: %s %s swaps to nothing", domain.ErrInvalidAmount, in.Amount, from)
	}

	description := fmt.Sprintf("swap %s %s to %s %s", s.scales.FormatAmount(from, in.Amount), from, s.scales.FormatAmount(to, net), to)
	plan := operationPlan{
		operationType: domain.OperationSwap,
		userID:        in.UserID,
		operatorID:    in.OperatorID,
		debit:         leg{currency: from, amount: in.Amount, kind: domain.MovementSell, description: description},
		credit:        leg{currency: to, amount: net, kind: domain.MovementBuy, description: description},
		rate:          s.swapRate,
		feeBps:        in.FeeBps,
		fee:           fee,
	}
	if fee.IsPositive() {
		price := s.accounting.ReferencePrice(ctx, to)
		plan.posting = &models.PostingRequest{
			Category:    domain.CategorySwapFee,
			Currency:    to,
			Amount:      fee,
			AmountLocal: fee.Mul(price),
			RefPrice:    positivePrice(price),
			Detail:      fmt.Sprintf("swap fee %d bps on %s %s gross", in.FeeBps, gross, to),
		}
	}
	return s.execute(ctx, plan)
}

// swapAmounts returns the gross destination amount, the net credited to the
// user and the fee the house keeps. The fee is measured against the exact
// converted value, so whatever flooring to the destination scale drops is
// house revenue too.
func (s *ExchangeService) swapAmounts(from, to string, amount decimal.Decimal, feeBps int) (gross, net, fee decimal.Decimal) {
	scale := s.scales.Of(to)
	var exact decimal.Decimal
	if from == domain.CurrencyUSD {
		exact = amount.Mul(s.swapRate)
	} else {
		exact = amount.Div(s.swapRate)
	}
	gross = domain.Floor(exact, scale)
	net = domain.Floor(gross.Mul(domain.FeeFactor(feeBps)), scale)
	return gross, net, domain.Floor(exact, domain.AccountingScale).Sub(net)
}

func (s *ExchangeService) latestQuote(ctx context.Context, currency string) (models.Quote, error) {
	if s.quotes == nil {
		return models.Quote{}, fmt.Errorf("%w: no quote source", domain.ErrQuoteUnavailable)
	}
	return s.quotes.LatestQuote(ctx, currency)
}

// execute runs the locked part of an operation: both legs, their movements
// and the revenue posting commit together or not at all.
func (s *ExchangeService) execute(ctx context.Context, plan operationPlan) (*OperationResult, error) {
	operationID := uuid.New()
	result := &OperationResult{OperationID: operationID, OperationType: plan.operationType}

	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		result.Movements = result.Movements[:0]

		account, err := s.ledger.Lock(ctx, qtx, plan.userID)
		if err != nil {
			return err
		}
		debit, err := s.ledger.Debit(ctx, qtx, account, plan.debit.currency, plan.debit.amount)
		if err != nil {
			return err
		}
		credit, err := s.ledger.Credit(ctx, qtx, account, plan.credit.currency, plan.credit.amount)
		if err != nil {
			return err
		}

		for _, rec := range []MovementRecord{
			{UserID: plan.userID, Kind: plan.debit.kind, Change: debit, Description: plan.debit.description, OperatorID: plan.operatorID, OperationID: &operationID},
			{UserID: plan.userID, Kind: plan.credit.kind, Change: credit, Description: plan.credit.description, OperatorID: plan.operatorID, OperationID: &operationID},
		} {
			movement, err := s.movements.Record(ctx, qtx, rec)
			if err != nil {
				return err
			}
			result.Movements = append(result.Movements, movement)
		}

		if plan.posting == nil {
			return nil
		}
		posting := *plan.posting
		posting.UserID = &plan.userID
		posting.OperatorID = plan.operatorID
		posting.MovementID = movementFor(result.Movements, posting.Currency)
		posting.Key = models.DedupKey{
			DocClass:      domain.DocClassOperation,
			SourceDocType: domain.SourceOperation,
			SourceDocID:   operationID.String(),
		}
		return s.accounting.postOrDefer(ctx, qtx, posting)
	})
	if err != nil {
		return nil, err
	}

	result.Snapshot = models.OperationSnapshot{
		OperationID:   operationID,
		OperationType: plan.operationType,
		UserID:        plan.userID,
		FromCurrency:  plan.debit.currency,
		FromAmount:    plan.debit.amount,
		ToCurrency:    plan.credit.currency,
		ToAmount:      plan.credit.amount,
		Rate:          plan.rate,
		FeeBps:        plan.feeBps,
		Fee:           plan.fee,
		OperatorID:    plan.operatorID,
		ExecutedAt:    time.Now().UTC(),
	}
	if plan.fee.IsPositive() {
		result.Snapshot.FeeCurrency = plan.credit.currency
	}

	issued := s.receipts.Issue(ctx, result.Snapshot, result.MovementRef(), nil)
	result.ReceiptID = issued.ID
	result.ReceiptNumber = issued.Number
	result.ReceiptError = issued.Err
	return result, nil
}

func movementFor(movements []models.Movement, currency string) *uuid.UUID {
	for _, m := range movements {
		if m.Currency == currency {
			id := m.ID
			return &id
		}
	}
	return nil
}
