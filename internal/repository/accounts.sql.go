package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const accountColumns = `user_id, ars, usdt, usd, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.UserID, &a.ARS, &a.USDT, &a.USD, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

const createAccount = `
INSERT INTO accounts (user_id)
VALUES ($1)
RETURNING ` + accountColumns

func (q *Queries) CreateAccount(ctx context.Context, userID uuid.UUID) (models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, createAccount, userID))
}

const getAccount = `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1`

func (q *Queries) GetAccount(ctx context.Context, userID uuid.UUID) (models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, getAccount, userID))
}

const getAccountForUpdate = getAccount + ` FOR UPDATE`

// GetAccountForUpdate takes the per-account row lock held until the transaction ends.
func (q *Queries) GetAccountForUpdate(ctx context.Context, userID uuid.UUID) (models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, getAccountForUpdate, userID))
}

type SetAccountBalanceParams struct {
	UserID   uuid.UUID
	Currency string
	Balance  decimal.Decimal
}

var balanceColumns = map[string]string{
	domain.CurrencyARS:  "ars",
	domain.CurrencyUSDT: "usdt",
	domain.CurrencyUSD:  "usd",
}

// SetAccountBalance writes the new absolute balance of one currency.
// Callers compute it while holding the row lock.
func (q *Queries) SetAccountBalance(ctx context.Context, arg SetAccountBalanceParams) (int64, error) {
	column, ok := balanceColumns[arg.Currency]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, arg.Currency)
	}
	stmt := fmt.Sprintf(`UPDATE accounts SET %s = $1, updated_at = NOW() WHERE user_id = $2`, column)
	tag, err := q.db.Exec(ctx, stmt, arg.Balance, arg.UserID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
