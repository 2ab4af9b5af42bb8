package repository

import (
	"context"

	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const receiptColumns = `id, number, user_id, operation_type, movement_id, snapshot, sha256, verification_code, network, txid, origin_wallet, dest_wallet, created_at`

func scanReceipt(row interface{ Scan(...any) error }) (models.Receipt, error) {
	var (
		r          models.Receipt
		movementID pgtype.UUID
		chain      models.OnChainInfo
	)
	err := row.Scan(&r.ID, &r.Number, &r.UserID, &r.OperationType, &movementID, &r.Snapshot, &r.SHA256, &r.VerificationCode, &chain.Network, &chain.TxID, &chain.OriginWallet, &chain.DestWallet, &r.CreatedAt)
	r.MovementID = OptionalUUID(movementID)
	if chain != (models.OnChainInfo{}) {
		r.OnChain = &chain
	}
	return r, err
}

type InsertReceiptParams struct {
	ID               uuid.UUID
	Number           string
	UserID           uuid.UUID
	OperationType    string
	MovementID       *uuid.UUID
	Snapshot         []byte
	SHA256           string
	VerificationCode string
	OnChain          models.OnChainInfo
}

const insertReceipt = `
INSERT INTO receipts (id, number, user_id, operation_type, movement_id, snapshot, sha256, verification_code, network, txid, origin_wallet, dest_wallet)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + receiptColumns

func (q *Queries) InsertReceipt(ctx context.Context, arg InsertReceiptParams) (models.Receipt, error) {
	row := q.db.QueryRow(ctx, insertReceipt,
		arg.ID,
		arg.Number,
		arg.UserID,
		arg.OperationType,
		OptionalPgUUID(arg.MovementID),
		arg.Snapshot,
		arg.SHA256,
		arg.VerificationCode,
		arg.OnChain.Network,
		arg.OnChain.TxID,
		arg.OnChain.OriginWallet,
		arg.OnChain.DestWallet,
	)
	return scanReceipt(row)
}

func (q *Queries) GetReceiptByNumber(ctx context.Context, number string) (models.Receipt, error) {
	return scanReceipt(q.db.QueryRow(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE number = $1`, number))
}
