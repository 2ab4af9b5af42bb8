package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const entryColumns = `id, seq, category, currency, amount, amount_local, user_id, movement_id, operator_id, ref_price, applied_price, doc_class, source_doc_type, source_doc_id, detail, created_at`

func scanEntry(row interface{ Scan(...any) error }) (models.AccountingEntry, error) {
	var (
		e          models.AccountingEntry
		userID     pgtype.UUID
		movementID pgtype.UUID
		operatorID pgtype.UUID
	)
	err := row.Scan(
		&e.ID,
		&e.Seq,
		&e.Category,
		&e.Currency,
		&e.Amount,
		&e.AmountLocal,
		&userID,
		&movementID,
		&operatorID,
		&e.RefPrice,
		&e.AppliedPrice,
		&e.Key.DocClass,
		&e.Key.SourceDocType,
		&e.Key.SourceDocID,
		&e.Detail,
		&e.CreatedAt,
	)
	e.UserID = OptionalUUID(userID)
	e.MovementID = OptionalUUID(movementID)
	e.OperatorID = OptionalUUID(operatorID)
	return e, err
}

const getAccountingEntryByKey = `
SELECT ` + entryColumns + `
FROM accounting_entries
WHERE doc_class = $1 AND source_doc_type = $2 AND source_doc_id = $3`

func (q *Queries) GetAccountingEntryByKey(ctx context.Context, key models.DedupKey) (models.AccountingEntry, error) {
	return scanEntry(q.db.QueryRow(ctx, getAccountingEntryByKey, key.DocClass, key.SourceDocType, key.SourceDocID))
}

type InsertAccountingEntryParams struct {
	ID      uuid.UUID
	Request models.PostingRequest
}

// ON CONFLICT keeps the surrounding transaction usable when a concurrent
// poster wins the dedup race; the caller sees pgx.ErrNoRows.
const insertAccountingEntry = `
INSERT INTO accounting_entries (id, category, currency, amount, amount_local, user_id, movement_id, operator_id, ref_price, applied_price, doc_class, source_doc_type, source_doc_id, detail)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (doc_class, source_doc_type, source_doc_id) DO NOTHING
RETURNING ` + entryColumns

func (q *Queries) InsertAccountingEntry(ctx context.Context, arg InsertAccountingEntryParams) (models.AccountingEntry, error) {
	r := arg.Request
	row := q.db.QueryRow(ctx, insertAccountingEntry,
		arg.ID,
		r.Category,
		r.Currency,
		r.Amount,
		r.AmountLocal,
		OptionalPgUUID(r.UserID),
		OptionalPgUUID(r.MovementID),
		OptionalPgUUID(r.OperatorID),
		r.RefPrice,
		r.AppliedPrice,
		r.Key.DocClass,
		r.Key.SourceDocType,
		r.Key.SourceDocID,
		r.Detail,
	)
	return scanEntry(row)
}

func entryWhere(filter models.EntryFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at < $%d", *filter.To)
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.Currency != "" {
		add("currency = $%d", filter.Currency)
	}
	if filter.UserID != nil {
		add("user_id = $%d", *filter.UserID)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListAccountingEntries returns entries in posting order.
func (q *Queries) ListAccountingEntries(ctx context.Context, filter models.EntryFilter) ([]models.AccountingEntry, error) {
	where, args := entryWhere(filter)
	stmt := `SELECT ` + entryColumns + ` FROM accounting_entries` + where + ` ORDER BY created_at ASC, seq ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		stmt += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := q.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.AccountingEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (q *Queries) SumEntriesByCategory(ctx context.Context, filter models.EntryFilter) ([]models.CategoryTotal, error) {
	where, args := entryWhere(filter)
	stmt := `SELECT category, currency, COALESCE(SUM(amount), 0), COALESCE(SUM(amount_local), 0)
FROM accounting_entries` + where + `
GROUP BY category, currency
ORDER BY category, currency`
	rows, err := q.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []models.CategoryTotal
	for rows.Next() {
		var t models.CategoryTotal
		if err := rows.Scan(&t.Category, &t.Currency, &t.Total, &t.TotalLocal); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// DailyRevenue sums the local-currency value of cash-affecting entries per UTC day.
func (q *Queries) DailyRevenue(ctx context.Context, filter models.EntryFilter) ([]models.DailyTotal, error) {
	where, args := entryWhere(filter)
	args = append(args, domain.CashAffectingCategories())
	categoryCond := fmt.Sprintf("category = ANY($%d)", len(args))
	if where == "" {
		where = " WHERE " + categoryCond
	} else {
		where += " AND " + categoryCond
	}
	stmt := `SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day, COALESCE(SUM(amount_local), 0)
FROM accounting_entries` + where + `
GROUP BY day
ORDER BY day`
	rows, err := q.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var series []models.DailyTotal
	for rows.Next() {
		var d models.DailyTotal
		if err := rows.Scan(&d.Day, &d.TotalLocal); err != nil {
			return nil, err
		}
		series = append(series, d)
	}
	return series, rows.Err()
}

const sumCashAffectingEntries = `
SELECT currency, COALESCE(SUM(amount), 0)
FROM accounting_entries
WHERE category = ANY($1)
GROUP BY currency
ORDER BY currency`

func (q *Queries) SumCashAffectingEntries(ctx context.Context) ([]models.CurrencyTotal, error) {
	rows, err := q.db.Query(ctx, sumCashAffectingEntries, domain.CashAffectingCategories())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []models.CurrencyTotal
	for rows.Next() {
		var t models.CurrencyTotal
		if err := rows.Scan(&t.Currency, &t.Total); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

const getHousePosition = `SELECT ars, usdt, usd, updated_at FROM house_cash_position WHERE id = 1`

func scanHousePosition(row interface{ Scan(...any) error }) (models.HousePosition, error) {
	var h models.HousePosition
	err := row.Scan(&h.ARS, &h.USDT, &h.USD, &h.UpdatedAt)
	return h, err
}

func (q *Queries) GetHousePosition(ctx context.Context) (models.HousePosition, error) {
	return scanHousePosition(q.db.QueryRow(ctx, getHousePosition))
}

// GetHousePositionForUpdate locks the singleton house row. Callers must already
// hold any account lock they need.
func (q *Queries) GetHousePositionForUpdate(ctx context.Context) (models.HousePosition, error) {
	return scanHousePosition(q.db.QueryRow(ctx, getHousePosition+` FOR UPDATE`))
}

func (q *Queries) AddToHousePosition(ctx context.Context, currency string, amount decimal.Decimal) (int64, error) {
	column, ok := balanceColumns[currency]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, currency)
	}
	stmt := fmt.Sprintf(`UPDATE house_cash_position SET %[1]s = %[1]s + $1, updated_at = NOW() WHERE id = 1`, column)
	tag, err := q.db.Exec(ctx, stmt, amount)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
