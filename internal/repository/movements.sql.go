package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const movementColumns = `id, seq, user_id, kind, currency, amount, balance_before, balance_after, operator_id, operation_id, description, created_at`

func scanMovement(row interface{ Scan(...any) error }) (models.Movement, error) {
	var (
		m           models.Movement
		operatorID  pgtype.UUID
		operationID pgtype.UUID
	)
	err := row.Scan(&m.ID, &m.Seq, &m.UserID, &m.Kind, &m.Currency, &m.Amount, &m.BalanceBefore, &m.BalanceAfter, &operatorID, &operationID, &m.Description, &m.CreatedAt)
	m.OperatorID = OptionalUUID(operatorID)
	m.OperationID = OptionalUUID(operationID)
	return m, err
}

type InsertMovementParams struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Kind          string
	Currency      string
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	OperatorID    *uuid.UUID
	OperationID   *uuid.UUID
	Description   string
}

const insertMovement = `
INSERT INTO movements (id, user_id, kind, currency, amount, balance_before, balance_after, operator_id, operation_id, description)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + movementColumns

func (q *Queries) InsertMovement(ctx context.Context, arg InsertMovementParams) (models.Movement, error) {
	row := q.db.QueryRow(ctx, insertMovement,
		arg.ID,
		arg.UserID,
		arg.Kind,
		arg.Currency,
		arg.Amount,
		arg.BalanceBefore,
		arg.BalanceAfter,
		OptionalPgUUID(arg.OperatorID),
		OptionalPgUUID(arg.OperationID),
		arg.Description,
	)
	return scanMovement(row)
}

var movementOrderClauses = map[string]string{
	models.OrderCreatedAsc:  "created_at ASC, seq ASC",
	models.OrderCreatedDesc: "created_at DESC, seq DESC",
	models.OrderAmountAsc:   "amount ASC, seq DESC",
	models.OrderAmountDesc:  "amount DESC, seq DESC",
}

// movementWhere renders the filter into a WHERE clause with positional args.
func movementWhere(filter models.MovementFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != nil {
		add("user_id = $%d", *filter.UserID)
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at < $%d", *filter.To)
	}
	if filter.Currency != "" {
		add("currency = $%d", filter.Currency)
	}
	if filter.Kind != "" {
		add("kind = $%d", filter.Kind)
	}
	if filter.Search != "" {
		add("(description ILIKE '%%' || $%[1]d::text || '%%' OR id::text ILIKE '%%' || $%[1]d::text || '%%')", filter.Search)
	}
	if filter.MinAmount != nil {
		add("ABS(amount) >= $%d", *filter.MinAmount)
	}
	if filter.MaxAmount != nil {
		add("ABS(amount) <= $%d", *filter.MaxAmount)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListMovements returns movements newest first unless the filter asks otherwise.
// Equal sort keys fall back to insertion order.
func (q *Queries) ListMovements(ctx context.Context, filter models.MovementFilter) ([]models.Movement, error) {
	where, args := movementWhere(filter)
	order, ok := movementOrderClauses[filter.OrderBy]
	if !ok {
		order = movementOrderClauses[models.OrderCreatedDesc]
	}
	stmt := `SELECT ` + movementColumns + ` FROM movements` + where + ` ORDER BY ` + order
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		stmt += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := q.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// MovementTotals sums signed movement amounts per currency over the filter.
func (q *Queries) MovementTotals(ctx context.Context, filter models.MovementFilter) ([]models.CurrencyTotal, error) {
	where, args := movementWhere(filter)
	stmt := `SELECT currency, COALESCE(SUM(amount), 0) FROM movements` + where + ` GROUP BY currency ORDER BY currency`
	rows, err := q.db.Query(ctx, stmt, args...)
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
