package repository

import (
	"context"

	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/shopspring/decimal"
)

const quoteColumns = `id, currency, applied_buy, applied_sell, ref_buy, ref_sell, margin_bps, created_at`

func scanQuote(row interface{ Scan(...any) error }) (models.Quote, error) {
	var qt models.Quote
	err := row.Scan(&qt.ID, &qt.Currency, &qt.AppliedBuy, &qt.AppliedSell, &qt.RefBuy, &qt.RefSell, &qt.MarginBps, &qt.CreatedAt)
	return qt, err
}

type InsertQuoteParams struct {
	Currency    string
	AppliedBuy  decimal.Decimal
	AppliedSell decimal.Decimal
	RefBuy      decimal.NullDecimal
	RefSell     decimal.NullDecimal
	MarginBps   *int32
}

const insertQuote = `
INSERT INTO quotes (currency, applied_buy, applied_sell, ref_buy, ref_sell, margin_bps)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + quoteColumns

func (q *Queries) InsertQuote(ctx context.Context, arg InsertQuoteParams) (models.Quote, error) {
	row := q.db.QueryRow(ctx, insertQuote, arg.Currency, arg.AppliedBuy, arg.AppliedSell, arg.RefBuy, arg.RefSell, arg.MarginBps)
	return scanQuote(row)
}

const getLatestQuote = `
SELECT ` + quoteColumns + `
FROM quotes
WHERE currency = $1
ORDER BY created_at DESC, id DESC
LIMIT 1`

func (q *Queries) GetLatestQuote(ctx context.Context, currency string) (models.Quote, error) {
	return scanQuote(q.db.QueryRow(ctx, getLatestQuote, currency))
}
