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

const fundingColumns = `id, kind, user_id, currency, amount, status, network, txid, destination, operator_id, created_at, updated_at`

func scanFundingRequest(row interface{ Scan(...any) error }) (models.FundingRequest, error) {
	var (
		r          models.FundingRequest
		operatorID pgtype.UUID
	)
	err := row.Scan(&r.ID, &r.Kind, &r.UserID, &r.Currency, &r.Amount, &r.Status, &r.Network, &r.TxID, &r.Destination, &operatorID, &r.CreatedAt, &r.UpdatedAt)
	r.OperatorID = OptionalUUID(operatorID)
	return r, err
}

type CreateFundingRequestParams struct {
	ID          uuid.UUID
	Kind        string
	UserID      uuid.UUID
	Currency    string
	Amount      decimal.Decimal
	Status      string
	Network     string
	TxID        string
	Destination string
}

const createFundingRequest = `
INSERT INTO funding_requests (id, kind, user_id, currency, amount, status, network, txid, destination)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + fundingColumns

func (q *Queries) CreateFundingRequest(ctx context.Context, arg CreateFundingRequestParams) (models.FundingRequest, error) {
	row := q.db.QueryRow(ctx, createFundingRequest,
		arg.ID,
		arg.Kind,
		arg.UserID,
		arg.Currency,
		arg.Amount,
		arg.Status,
		arg.Network,
		arg.TxID,
		arg.Destination,
	)
	return scanFundingRequest(row)
}

const getFundingRequest = `SELECT ` + fundingColumns + ` FROM funding_requests WHERE id = $1`

func (q *Queries) GetFundingRequest(ctx context.Context, id uuid.UUID) (models.FundingRequest, error) {
	return scanFundingRequest(q.db.QueryRow(ctx, getFundingRequest, id))
}

// GetFundingRequestForUpdate serializes concurrent transitions of the same request.
func (q *Queries) GetFundingRequestForUpdate(ctx context.Context, id uuid.UUID) (models.FundingRequest, error) {
	return scanFundingRequest(q.db.QueryRow(ctx, getFundingRequest+` FOR UPDATE`, id))
}

type UpdateFundingRequestStatusParams struct {
	ID         uuid.UUID
	Status     string
	OperatorID *uuid.UUID
	TxID       *string
}

const updateFundingRequestStatus = `
UPDATE funding_requests
SET status = $1,
    operator_id = COALESCE($2, operator_id),
    txid = COALESCE($3, txid),
    updated_at = NOW()
WHERE id = $4`

func (q *Queries) UpdateFundingRequestStatus(ctx context.Context, arg UpdateFundingRequestStatusParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateFundingRequestStatus, arg.Status, OptionalPgUUID(arg.OperatorID), arg.TxID, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type ListFundingRequestsParams struct {
	Kind   string
	Status string
	UserID *uuid.UUID
	Limit  int32
	Offset int32
}

func (q *Queries) ListFundingRequests(ctx context.Context, arg ListFundingRequestsParams) ([]models.FundingRequest, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if arg.Kind != "" {
		add("kind = $%d", arg.Kind)
	}
	if arg.Status != "" {
		add("status = $%d", arg.Status)
	}
	if arg.UserID != nil {
		add("user_id = $%d", *arg.UserID)
	}
	stmt := `SELECT ` + fundingColumns + ` FROM funding_requests`
	if len(conds) > 0 {
		stmt += " WHERE " + strings.Join(conds, " AND ")
	}
	stmt += " ORDER BY created_at DESC, id"
	if arg.Limit > 0 {
		args = append(args, arg.Limit, arg.Offset)
		stmt += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := q.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.FundingRequest
	for rows.Next() {
		r, err := scanFundingRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
