package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/ayo6706/exchange-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceChange is the outcome of one credit or debit.
type BalanceChange struct {
	Currency string
	Amount   decimal.Decimal // signed
	Before   decimal.Decimal
	After    decimal.Decimal
}

// BalanceLedger owns the per-user balances. Every mutation happens on an
// account row locked by Lock for the rest of the surrounding transaction.
type BalanceLedger struct{}

// Lock takes the exclusive row lock on the user's account.
func (BalanceLedger) Lock(ctx context.Context, qtx repository.Querier, userID uuid.UUID) (*models.Account, error) {
	account, err := qtx.GetAccountForUpdate(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, userID)
		}
		return nil, fmt.Errorf("lock account: %w", err)
	}
	return &account, nil
}

func (l BalanceLedger) Credit(ctx context.Context, qtx repository.Querier, account *models.Account, currency string, amount decimal.Decimal) (BalanceChange, error) {
	if !amount.IsPositive() {
		return BalanceChange{}, fmt.Errorf("%w: credit of %s", domain.ErrInvalidAmount, amount)
	}
	return l.apply(ctx, qtx, account, currency, amount)
}

// Debit fails with domain.ErrInsufficientFunds when the balance does not cover amount.
func (l BalanceLedger) Debit(ctx context.Context, qtx repository.Querier, account *models.Account, currency string, amount decimal.Decimal) (BalanceChange, error) {
	if !amount.IsPositive() {
		return BalanceChange{}, fmt.Errorf("%w: debit of %s", domain.ErrInvalidAmount, amount)
	}
	if account.Balance(currency).LessThan(amount) {
		return BalanceChange{}, fmt.Errorf("%w: %s balance %s is below %s", domain.ErrInsufficientFunds, currency, account.Balance(currency), amount)
	}
	return l.apply(ctx, qtx, account, currency, amount.Neg())
}

func (BalanceLedger) apply(ctx context.Context, qtx repository.Querier, account *models.Account, currency string, delta decimal.Decimal) (BalanceChange, error) {
	if !domain.IsSupportedCurrency(currency) {
		return BalanceChange{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, currency)
	}
	before := account.Balance(currency)
	after := before.Add(delta)

	rows, err := qtx.SetAccountBalance(ctx, repository.SetAccountBalanceParams{
		UserID:   account.UserID,
		Currency: currency,
		Balance:  after,
	})
	if err != nil {
		return BalanceChange{}, fmt.Errorf("update %s balance: %w", currency, err)
	}
	if err := requireExactlyOne(rows, "update account balance"); err != nil {
		return BalanceChange{}, err
	}

	account.SetBalance(currency, after)
	return BalanceChange{Currency: currency, Amount: delta, Before: before, After: after}, nil
}

// MovementRecord describes one Movement Log append.
type MovementRecord struct {
	UserID      uuid.UUID
	Kind        string
	Change      BalanceChange
	Description string
	OperatorID  *uuid.UUID
	OperationID *uuid.UUID
}

var errMovementIncomplete = fmt.Errorf("%w: movement requires an account and a currency", domain.ErrInvalidRecord)

// MovementLog is the append-only audit trail of balance changes.
type MovementLog struct {
	store QueryStore
}

func NewMovementLog(store QueryStore) *MovementLog {
	return &MovementLog{store: store}
}

// Record appends a movement inside the caller's transaction.
func (m *MovementLog) Record(ctx context.Context, qtx repository.Querier, rec MovementRecord) (models.Movement, error) {
	if rec.UserID == uuid.Nil || rec.Change.Currency == "" {
		return models.Movement{}, errMovementIncomplete
	}
	if !domain.IsKnownMovementKind(rec.Kind) {
		return models.Movement{}, fmt.Errorf("%w: unknown movement kind %q", domain.ErrInvalidRecord, rec.Kind)
	}
	movement, err := qtx.InsertMovement(ctx, repository.InsertMovementParams{
		ID:            uuid.New(),
		UserID:        rec.UserID,
		Kind:          rec.Kind,
		Currency:      rec.Change.Currency,
		Amount:        rec.Change.Amount,
		BalanceBefore: rec.Change.Before,
		BalanceAfter:  rec.Change.After,
		OperatorID:    rec.OperatorID,
		OperationID:   rec.OperationID,
		Description:   rec.Description,
	})
	if err != nil {
		return models.Movement{}, fmt.Errorf("insert movement: %w", err)
	}
	return movement, nil
}

// List returns one page of movements matching filter.
func (m *MovementLog) List(ctx context.Context, filter models.MovementFilter, page, pageSize int) ([]models.Movement, error) {
	filter.Limit, filter.Offset = pageWindow(page, pageSize)
	items, err := m.store.Queries().ListMovements(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return items, nil
}

// Totals sums signed amounts per currency over filter, ignoring paging.
func (m *MovementLog) Totals(ctx context.Context, filter models.MovementFilter) ([]models.CurrencyTotal, error) {
	filter.Limit, filter.Offset = 0, 0
	totals, err := m.store.Queries().MovementTotals(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("movement totals: %w", err)
	}
	return totals, nil
}
