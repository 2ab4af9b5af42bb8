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

type AccountService struct {
	store     QueryStore
	audit     *AuditService
	movements *MovementLog
	ledger    BalanceLedger
	scales    domain.Scales
}

func NewAccountService(store QueryStore, scales domain.Scales) *AccountService {
	if scales.Stablecoin == 0 {
		scales = domain.DefaultScales()
	}
	return &AccountService{
		store:     store,
		audit:     NewAuditService(store),
		movements: NewMovementLog(store),
		scales:    scales,
	}
}

// OpenAccount creates the user's account with three zero balances.
func (s *AccountService) OpenAccount(ctx context.Context, userID uuid.UUID) (models.Account, error) {
	account, err := s.store.Queries().CreateAccount(ctx, userID)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return models.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountExists, userID)
		}
		return models.Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

func (s *AccountService) GetBalances(ctx context.Context, userID uuid.UUID) (models.Account, error) {
	account, err := s.store.Queries().GetAccount(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, userID)
		}
		return models.Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

type AdjustBalanceInput struct {
	UserID     uuid.UUID
	Currency   string
	Amount     decimal.Decimal // signed
	OperatorID *uuid.UUID
	Reason     string
}

// AdjustBalance applies an operator correction. A negative amount is a debit
// and may not take the balance below zero.
func (s *AccountService) AdjustBalance(ctx context.Context, in AdjustBalanceInput) (models.Movement, error) {
	if !domain.IsSupportedCurrency(in.Currency) {
		return models.Movement{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedCurrency, in.Currency)
	}
	if err := domain.ValidateAmount(in.Amount.Abs(), s.scales.Of(in.Currency)); err != nil {
		return models.Movement{}, err
	}

	var movement models.Movement
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		account, err := s.ledger.Lock(ctx, qtx, in.UserID)
		if err != nil {
			return err
		}

		var change BalanceChange
		if in.Amount.IsNegative() {
			change, err = s.ledger.Debit(ctx, qtx, account, in.Currency, in.Amount.Abs())
		} else {
			change, err = s.ledger.Credit(ctx, qtx, account, in.Currency, in.Amount)
		}
		if err != nil {
			return err
		}

		movement, err = s.movements.Record(ctx, qtx, MovementRecord{
			UserID:      in.UserID,
			Kind:        domain.MovementAdjustment,
			Change:      change,
			Description: in.Reason,
			OperatorID:  in.OperatorID,
		})
		if err != nil {
			return err
		}

		return s.audit.Record(ctx, qtx, AuditEvent{
			EntityType: "account",
			EntityID:   in.UserID,
			ActorID:    in.OperatorID,
			Action:     domain.MovementAdjustment,
			PrevState:  change.Before.String(),
			NextState:  change.After.String(),
			Metadata: map[string]any{
				"currency":    in.Currency,
				"amount":      in.Amount,
				"movement_id": movement.ID,
				"reason":      in.Reason,
			},
		})
	})
	if err != nil {
		return models.Movement{}, err
	}
	return movement, nil
}
