package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/ayo6706/exchange-ledger/internal/observability"
	"github.com/ayo6706/exchange-ledger/internal/receipt"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxReceiptNumberAttempts = 3

// ReceiptIssuer numbers committed operations and hands them to the Receipt Emitter.
type ReceiptIssuer struct {
	emitter receipt.Emitter
	prefix  string
	now     func() time.Time
}

func NewReceiptIssuer(emitter receipt.Emitter, prefix string) *ReceiptIssuer {
	if prefix == "" {
		prefix = "REC"
	}
	return &ReceiptIssuer{emitter: emitter, prefix: prefix, now: time.Now}
}

// IssuedReceipt is what a caller learns about the receipt of its operation.
type IssuedReceipt struct {
	ID     *uuid.UUID
	Number string
	Err    error
}

// Issue never fails the caller: emission errors come back in IssuedReceipt.Err
// wrapped in domain.ErrReceiptEmissionFailed, already logged and counted.
func (r *ReceiptIssuer) Issue(ctx context.Context, snapshot models.OperationSnapshot, movementID *uuid.UUID, onChain *models.OnChainInfo) IssuedReceipt {
	if r == nil || r.emitter == nil {
		return IssuedReceipt{}
	}
	ctx, cancel := detached(ctx)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxReceiptNumberAttempts; attempt++ {
		number := receipt.NewDocumentNumber(r.prefix, r.now())
		id, err := r.emitter.Emit(ctx, receipt.Request{
			UserID:         snapshot.UserID,
			OperationType:  snapshot.OperationType,
			DocumentNumber: number,
			Snapshot:       snapshot,
			MovementID:     movementID,
			OnChain:        onChain,
		})
		if err == nil {
			return IssuedReceipt{ID: &id, Number: number}
		}
		lastErr = err
		if !errors.Is(err, receipt.ErrDuplicateNumber) {
			break
		}
	}

	observability.IncrementReceiptFailure(snapshot.OperationType)
	zap.L().Warn("receipt emission failed",
		zap.Error(lastErr),
		zap.String("operation_id", snapshot.OperationID.String()),
		zap.String("operation_type", snapshot.OperationType),
		zap.String("user_id", snapshot.UserID.String()),
	)
	return IssuedReceipt{Err: fmt.Errorf("%w: %w", domain.ErrReceiptEmissionFailed, lastErr)}
}
