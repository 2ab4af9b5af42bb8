package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/ayo6706/exchange-ledger/internal/repository"
	"github.com/google/uuid"
)

const entityFundingRequest = "funding_request"

var requestTransitions = map[string]map[string]map[string]struct{}{
	domain.RequestKindDeposit: {
		domain.RequestStatusPending: {
			domain.RequestStatusApproved: {},
			domain.RequestStatusRejected: {},
		},
	},
	domain.RequestKindWithdrawal: {
		domain.RequestStatusPending: {
			domain.RequestStatusApproved: {},
			domain.RequestStatusRejected: {},
		},
		domain.RequestStatusApproved: {
			domain.RequestStatusSent:     {},
			domain.RequestStatusRejected: {},
		},
	},
}

func normalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

func canTransition(kind, current, next string) bool {
	nextStates, ok := requestTransitions[kind][normalizeState(current)]
	if !ok {
		return false
	}
	_, ok = nextStates[normalizeState(next)]
	return ok
}

// lockRequestForTransition locks the request row and checks the move to next.
// It returns applied=false when the request already sits in next, which callers
// treat as a no-op.
func lockRequestForTransition(ctx context.Context, qtx repository.Querier, id uuid.UUID, kind, next string) (models.FundingRequest, bool, error) {
	req, err := qtx.GetFundingRequestForUpdate(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.FundingRequest{}, false, fmt.Errorf("%w: %s", domain.ErrRequestNotFound, id)
		}
		return models.FundingRequest{}, false, fmt.Errorf("lock funding request: %w", err)
	}
	if req.Kind != kind {
		return req, false, fmt.Errorf("%w: %s is a %s request", domain.ErrRequestNotFound, id, req.Kind)
	}
	if normalizeState(req.Status) == normalizeState(next) {
		return req, false, nil
	}
	if !canTransition(req.Kind, req.Status, next) {
		return req, false, fmt.Errorf("%w: %s %s -> %s", domain.ErrInvalidTransition, req.Kind, req.Status, next)
	}
	return req, true, nil
}

// completeTransition persists the new state and its audit record.
func completeTransition(ctx context.Context, qtx repository.Querier, audit *AuditService, req *models.FundingRequest, next string, actorID *uuid.UUID, txID *string, metadata any) error {
	rows, err := qtx.UpdateFundingRequestStatus(ctx, repository.UpdateFundingRequestStatusParams{
		ID:         req.ID,
		Status:     next,
		OperatorID: actorID,
		TxID:       txID,
	})
	if err != nil {
		return fmt.Errorf("update funding request state: %w", err)
	}
	if err := requireExactlyOne(rows, "update funding request state"); err != nil {
		return err
	}

	if err := audit.Record(ctx, qtx, AuditEvent{
		EntityType: entityFundingRequest,
		EntityID:   req.ID,
		ActorID:    actorID,
		Action:     strings.ToLower(next),
		PrevState:  req.Status,
		NextState:  next,
		Metadata:   metadata,
	}); err != nil {
		return err
	}

	req.Status = next
	if actorID != nil {
		req.OperatorID = actorID
	}
	if txID != nil {
		req.TxID = *txID
	}
	return nil
}
