package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/ayo6706/exchange-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FundingService runs the deposit and withdrawal request state machines.
// Only the transitions into approved-deposit and sent-withdrawal move funds;
// their cash-in and cash-out postings are queued in the same transaction and
// posted right after it commits.
type FundingService struct {
	store      QueryStore
	accounting *AccountingService
	receipts   *ReceiptIssuer
	audit      *AuditService
	movements  *MovementLog
	ledger     BalanceLedger
	scales     domain.Scales
}

func NewFundingService(store QueryStore, accounting *AccountingService, receipts *ReceiptIssuer, scales domain.Scales) *FundingService {
	if scales.Stablecoin == 0 {
		scales = domain.DefaultScales()
	}
	return &FundingService{
		store:      store,
		accounting: accounting,
		receipts:   receipts,
		audit:      NewAuditService(store),
		movements:  NewMovementLog(store),
		scales:     scales,
	}
}

type DepositRequestInput struct {
	UserID   uuid.UUID
	Currency string
	Amount   decimal.Decimal
	Network  string
	TxID     string
}

type WithdrawalRequestInput struct {
	UserID      uuid.UUID
	Currency    string
	Amount      decimal.Decimal
	Destination string
	Network     string
}

// FundingResult reports a transition. Applied is false when the request was
// already in the target state and nothing happened.
type FundingResult struct {
	Request       models.FundingRequest `json:"request"`
	Applied       bool                  `json:"applied"`
	Movement      *models.Movement      `json:"movement,omitempty"`
	ReceiptID     *uuid.UUID            `json:"receipt_id,omitempty"`
	ReceiptNumber string                `json:"receipt_number,omitempty"`
	ReceiptError  error                 `json:"-"`
}

func (s *FundingService) RequestDeposit(ctx context.Context, in DepositRequestInput) (models.FundingRequest, error) {
	if err := s.validateRequest(in.Currency, in.Amount); err != nil {
		return models.FundingRequest{}, err
	}
	if _, err := s.existingAccount(ctx, in.UserID); err != nil {
		return models.FundingRequest{}, err
	}
	return s.create(ctx, repository.CreateFundingRequestParams{
		ID:       uuid.New(),
		Kind:     domain.RequestKindDeposit,
		UserID:   in.UserID,
		Currency: in.Currency,
		Amount:   in.Amount,
		Status:   domain.RequestStatusPending,
		Network:  in.Network,
		TxID:     in.TxID,
	})
}

// RequestWithdrawal rejects early when the balance cannot cover the amount.
// The authoritative check happens when the withdrawal is marked sent.
func (s *FundingService) RequestWithdrawal(ctx context.Context, in WithdrawalRequestInput) (models.FundingRequest, error) {
	if err := s.validateRequest(in.Currency, in.Amount); err != nil {
		return models.FundingRequest{}, err
	}
	account, err := s.existingAccount(ctx, in.UserID)
	if err != nil {
		return models.FundingRequest{}, err
	}
	if account.Balance(in.Currency).LessThan(in.Amount) {
		return models.FundingRequest{}, fmt.Errorf("%w: %s balance %s is below %s", domain.ErrInsufficientFunds, in.Currency, account.Balance(in.Currency), in.Amount)
	}
	return s.create(ctx, repository.CreateFundingRequestParams{
		ID:          uuid.New(),
		Kind:        domain.RequestKindWithdrawal,
		UserID:      in.UserID,
		Currency:    in.Currency,
		Amount:      in.Amount,
		Status:      domain.RequestStatusPending,
		Network:     in.Network,
		Destination: in.Destination,
	})
}

func (s *FundingService) validateRequest(currency string, amount decimal.Decimal) error {
	if !domain.IsSupportedCurrency(currency) {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedCurrency, currency)
	}
	return domain.ValidateAmount(amount, s.scales.Of(currency))
}

func (s *FundingService) existingAccount(ctx context.Context, userID uuid.UUID) (models.Account, error) {
	account, err := s.store.Queries().GetAccount(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, userID)
		}
		return models.Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func (s *FundingService) create(ctx context.Context, params repository.CreateFundingRequestParams) (models.FundingRequest, error) {
	var req models.FundingRequest
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		var err error
		req, err = qtx.CreateFundingRequest(ctx, params)
		if err != nil {
			return fmt.Errorf("create funding request: %w", err)
		}
		return s.audit.Record(ctx, qtx, AuditEvent{
			EntityType: entityFundingRequest,
			EntityID:   req.ID,
			Action:     "created",
			NextState:  req.Status,
			Metadata:   map[string]any{"currency": req.Currency, "amount": req.Amount},
		})
	})
	if err != nil {
		return models.FundingRequest{}, err
	}
	return req, nil
}

// ApproveDeposit credits the user and queues the cash-in posting.
func (s *FundingService) ApproveDeposit(ctx context.Context, id uuid.UUID, operatorID *uuid.UUID) (*FundingResult, error) {
	return s.settle(ctx, id, domain.RequestKindDeposit, domain.RequestStatusApproved, operatorID, nil)
}

// MarkWithdrawalSent debits the user and queues the cash-out posting. It fails
// with domain.ErrInsufficientFunds, leaving the request approved, when the
// balance no longer covers the amount.
func (s *FundingService) MarkWithdrawalSent(ctx context.Context, id uuid.UUID, operatorID *uuid.UUID, txID string) (*FundingResult, error) {
	var txRef *string
	if txID != "" {
		txRef = &txID
	}
	return s.settle(ctx, id, domain.RequestKindWithdrawal, domain.RequestStatusSent, operatorID, txRef)
}

func (s *FundingService) ApproveWithdrawal(ctx context.Context, id uuid.UUID, operatorID *uuid.UUID) (*FundingResult, error) {
	return s.transition(ctx, id, domain.RequestKindWithdrawal, domain.RequestStatusApproved, operatorID, "")
}

func (s *FundingService) RejectDeposit(ctx context.Context, id uuid.UUID, operatorID *uuid.UUID, reason string) (*FundingResult, error) {
	return s.transition(ctx, id, domain.RequestKindDeposit, domain.RequestStatusRejected, operatorID, reason)
}

func (s *FundingService) RejectWithdrawal(ctx context.Context, id uuid.UUID, operatorID *uuid.UUID, reason string) (*FundingResult, error) {
	return s.transition(ctx, id, domain.RequestKindWithdrawal, domain.RequestStatusRejected, operatorID, reason)
}

// transition moves a request between states that carry no balance effect.
func (s *FundingService) transition(ctx context.Context, id uuid.UUID, kind, next string, operatorID *uuid.UUID, reason string) (*FundingResult, error) {
	result := &FundingResult{}
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		req, applied, err := lockRequestForTransition(ctx, qtx, id, kind, next)
		if err != nil {
			return err
		}
		result.Request, result.Applied = req, applied
		if !applied {
			return nil
		}

		var metadata any
		if reason != "" {
			metadata = map[string]string{"reason": reason}
		}
		if err := completeTransition(ctx, qtx, s.audit, &req, next, operatorID, nil, metadata); err != nil {
			return err
		}
		result.Request = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// settle moves a request into its funds-moved state.
func (s *FundingService) settle(ctx context.Context, id uuid.UUID, kind, next string, operatorID *uuid.UUID, txID *string) (*FundingResult, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// Valued before any lock so a slow quote read never extends lock hold time.
	price := s.accounting.ReferencePrice(ctx, current.Currency)

	result := &FundingResult{}
	var postingID uuid.UUID
	err = s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		postingID = uuid.Nil
		req, applied, err := lockRequestForTransition(ctx, qtx, id, kind, next)
		if err != nil {
			return err
		}
		result.Request, result.Applied = req, applied
		if !applied {
			return nil
		}

		account, err := s.ledger.Lock(ctx, qtx, req.UserID)
		if err != nil {
			return err
		}

		posting := models.PostingRequest{
			Currency:    req.Currency,
			Amount:      req.Amount,
			AmountLocal: req.Amount.Mul(price),
			UserID:      &req.UserID,
			OperatorID:  operatorID,
			RefPrice:    positivePrice(price),
			Key:         models.DedupKey{SourceDocID: req.ID.String()},
		}
		movementKind := domain.MovementDeposit
		var change BalanceChange
		if kind == domain.RequestKindDeposit {
			change, err = s.ledger.Credit(ctx, qtx, account, req.Currency, req.Amount)
			posting.Category = domain.CategoryCashIn
			posting.Key.DocClass = domain.DocClassCashIn
			posting.Key.SourceDocType = domain.SourceDepositRequest
			posting.Detail = fmt.Sprintf("deposit %s", req.ID)
		} else {
			change, err = s.ledger.Debit(ctx, qtx, account, req.Currency, req.Amount)
			movementKind = domain.MovementWithdrawal
			posting.Category = domain.CategoryCashOut
			posting.Key.DocClass = domain.DocClassCashOut
			posting.Key.SourceDocType = domain.SourceWithdrawalRequest
			posting.Detail = fmt.Sprintf("withdrawal %s", req.ID)
		}
		if err != nil {
			return err
		}

		movement, err := s.movements.Record(ctx, qtx, MovementRecord{
			UserID:      req.UserID,
			Kind:        movementKind,
			Change:      change,
			Description: fmt.Sprintf("%s request %s", kind, req.ID),
			OperatorID:  operatorID,
			OperationID: &req.ID,
		})
		if err != nil {
			return err
		}
		result.Movement = &movement
		posting.MovementID = &movement.ID

		if err := completeTransition(ctx, qtx, s.audit, &req, next, operatorID, txID, nil); err != nil {
			return err
		}
		result.Request = req

		postingID, err = s.accounting.enqueue(ctx, qtx, posting)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !result.Applied {
		zap.L().Info("funding request already settled",
			zap.String("request_id", id.String()),
			zap.String("status", result.Request.Status),
		)
		return result, nil
	}

	s.accounting.settle(ctx, postingID)

	issued := s.receipts.Issue(ctx, fundingSnapshot(result.Request, operatorID), &result.Movement.ID, onChainInfo(result.Request))
	result.ReceiptID = issued.ID
	result.ReceiptNumber = issued.Number
	result.ReceiptError = issued.Err
	return result, nil
}

func fundingSnapshot(req models.FundingRequest, operatorID *uuid.UUID) models.OperationSnapshot {
	snapshot := models.OperationSnapshot{
		OperationID: req.ID,
		UserID:      req.UserID,
		Rate:        decimal.NewFromInt(1),
		OperatorID:  operatorID,
		ExecutedAt:  time.Now().UTC(),
	}
	if req.Kind == domain.RequestKindDeposit {
		snapshot.OperationType = domain.OperationDeposit
		snapshot.ToCurrency = req.Currency
		snapshot.ToAmount = req.Amount
	} else {
		snapshot.OperationType = domain.OperationWithdrawal
		snapshot.FromCurrency = req.Currency
		snapshot.FromAmount = req.Amount
	}
	return snapshot
}

func onChainInfo(req models.FundingRequest) *models.OnChainInfo {
	if req.Network == "" && req.TxID == "" && req.Destination == "" {
		return nil
	}
	return &models.OnChainInfo{Network: req.Network, TxID: req.TxID, DestWallet: req.Destination}
}

func (s *FundingService) Get(ctx context.Context, id uuid.UUID) (models.FundingRequest, error) {
	req, err := s.store.Queries().GetFundingRequest(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.FundingRequest{}, fmt.Errorf("%w: %s", domain.ErrRequestNotFound, id)
		}
		return models.FundingRequest{}, fmt.Errorf("get funding request: %w", err)
	}
	return req, nil
}

// FundingFilter narrows request listings for the admin layer.
type FundingFilter struct {
	Kind   string
	Status string
	UserID *uuid.UUID
}

func (s *FundingService) List(ctx context.Context, filter FundingFilter, page, pageSize int) ([]models.FundingRequest, error) {
	limit, offset := pageWindow(page, pageSize)
	items, err := s.store.Queries().ListFundingRequests(ctx, repository.ListFundingRequestsParams{
		Kind:   filter.Kind,
		Status: normalizeState(filter.Status),
		UserID: filter.UserID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list funding requests: %w", err)
	}
	return items, nil
}

// History returns the audit trail of one request.
func (s *FundingService) History(ctx context.Context, id uuid.UUID) ([]models.AuditEntry, error) {
	return s.audit.History(ctx, entityFundingRequest, id)
}
