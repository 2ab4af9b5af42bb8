package service

import (
	"context"
	"testing"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApproveDeposit_CreditsOnceAndPostsCashIn(t *testing.T) {
	f := newFixture(t)
	f.publishUSDT(t)
	ctx := context.Background()
	userID := f.seed("0", "0", "0")
	operatorID := uuid.New()

	req, err := f.funding.RequestDeposit(ctx, DepositRequestInput{
		UserID:   userID,
		Currency: domain.CurrencyUSDT,
		Amount:   dec("100.00"),
		Network:  "TRC20",
		TxID:     "0xabc",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusPending, req.Status)
	requireDecimal(t, "0", f.balances(t, userID).USDT)

	res, err := f.funding.ApproveDeposit(ctx, req.ID, &operatorID)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, domain.RequestStatusApproved, res.Request.Status)
	assert.Equal(t, &operatorID, res.Request.OperatorID)
	require.NotNil(t, res.Movement)
	assert.Equal(t, domain.MovementDeposit, res.Movement.Kind)
	requireDecimal(t, "100.00", res.Movement.Amount)
	assert.Equal(t, &req.ID, res.Movement.OperationID)
	requireDecimal(t, "100.00", f.balances(t, userID).USDT)

	entries := f.store.Entries()
	require.Len(t, entries, 1)
	cashIn := entries[0]
	assert.Equal(t, domain.CategoryCashIn, cashIn.Category)
	requireDecimal(t, "100", cashIn.Amount)
	requireDecimal(t, "99500", cashIn.AmountLocal)
	assert.Equal(t, &res.Movement.ID, cashIn.MovementID)
	assert.Equal(t, models.DedupKey{
		DocClass:      domain.DocClassCashIn,
		SourceDocType: domain.SourceDepositRequest,
		SourceDocID:   req.ID.String(),
	}, cashIn.Key)
	requireDecimal(t, "0", f.house(t).USDT)

	pending := f.store.PendingPostings()
	require.Len(t, pending, 1)
	assert.Equal(t, domain.PostingStatusDone, pending[0].Status)

	require.NotNil(t, res.ReceiptID)
	rec, err := f.receipts.Get(ctx, res.ReceiptNumber)
	require.NoError(t, err)
	require.NotNil(t, rec.OnChain)
	assert.Equal(t, "TRC20", rec.OnChain.Network)
	assert.Equal(t, "0xabc", rec.OnChain.TxID)

	again, err := f.funding.ApproveDeposit(ctx, req.ID, &operatorID)
	require.NoError(t, err)
	assert.False(t, again.Applied)
	assert.Nil(t, again.Movement)
	requireDecimal(t, "100.00", f.balances(t, userID).USDT)
	assert.Len(t, f.store.Entries(), 1)
	assert.Len(t, f.store.Movements(), 1)
}

func TestWithdrawal_MarkSentTwiceDebitsOnce(t *testing.T) {
	f := newFixture(t)
	f.publishUSDT(t)
	ctx := context.Background()
	userID := f.seed("0", "100.00", "0")

	req, err := f.funding.RequestWithdrawal(ctx, WithdrawalRequestInput{
		UserID:      userID,
		Currency:    domain.CurrencyUSDT,
		Amount:      dec("40.00"),
		Destination: "TXdest",
		Network:     "TRC20",
	})
	require.NoError(t, err)

	approved, err := f.funding.ApproveWithdrawal(ctx, req.ID, nil)
	require.NoError(t, err)
	assert.True(t, approved.Applied)
	assert.Equal(t, domain.RequestStatusApproved, approved.Request.Status)
	requireDecimal(t, "100.00", f.balances(t, userID).USDT)
	assert.Empty(t, f.store.Entries())

	sent, err := f.funding.MarkWithdrawalSent(ctx, req.ID, nil, "0xsent")
	require.NoError(t, err)
	assert.True(t, sent.Applied)
	assert.Equal(t, domain.RequestStatusSent, sent.Request.Status)
	assert.Equal(t, "0xsent", sent.Request.TxID)
	requireDecimal(t, "-40.00", sent.Movement.Amount)
	assert.Equal(t, domain.MovementWithdrawal, sent.Movement.Kind)

	again, err := f.funding.MarkWithdrawalSent(ctx, req.ID, nil, "0xsent")
	require.NoError(t, err)
	assert.False(t, again.Applied)

	requireDecimal(t, "60.00", f.balances(t, userID).USDT)
	assert.Len(t, f.store.Movements(), 1)
	cashOut := entriesOf(f.store.Entries(), domain.CategoryCashOut)
	require.Len(t, cashOut, 1)
	requireDecimal(t, "40", cashOut[0].Amount)
	requireDecimal(t, "0", f.house(t).USDT)

	history, err := f.funding.History(ctx, req.ID)
	require.NoError(t, err)
	actions := make([]string, 0, len(history))
	for _, h := range history {
		actions = append(actions, h.Action)
	}
	assert.Equal(t, []string{"created", "approved", "sent"}, actions)
}

func TestWithdrawal_MarkSentWithoutFundsLeavesRequestApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.seed("0", "10.00", "0")

	req, err := f.funding.RequestWithdrawal(ctx, WithdrawalRequestInput{UserID: userID, Currency: domain.CurrencyUSDT, Amount: dec("10.00")})
	require.NoError(t, err)
	_, err = f.funding.ApproveWithdrawal(ctx, req.ID, nil)
	require.NoError(t, err)

	_, err = f.exchange.Swap(ctx, SwapInput{UserID: userID, Direction: domain.SwapUSDTToUSD, Amount: dec("5.00")})
	require.NoError(t, err)

	_, err = f.funding.MarkWithdrawalSent(ctx, req.ID, nil, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	current, err := f.funding.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusApproved, current.Status)
	requireDecimal(t, "5.00", f.balances(t, userID).USDT)
	assert.Empty(t, entriesOf(f.store.Entries(), domain.CategoryCashOut))
	assert.Empty(t, f.store.PendingPostings())
}

func TestFundingTransitions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		run  func(f *fixture, id uuid.UUID) error
		kind string
		want error
	}{
		{
			name: "withdrawal cannot be sent before approval",
			kind: domain.RequestKindWithdrawal,
			run: func(f *fixture, id uuid.UUID) error {
				_, err := f.funding.MarkWithdrawalSent(ctx, id, nil, "")
				return err
			},
			want: domain.ErrInvalidTransition,
		},
		{
			name: "approved deposit cannot be rejected",
			kind: domain.RequestKindDeposit,
			run: func(f *fixture, id uuid.UUID) error {
				if _, err := f.funding.ApproveDeposit(ctx, id, nil); err != nil {
					return err
				}
				_, err := f.funding.RejectDeposit(ctx, id, nil, "too late")
				return err
			},
			want: domain.ErrInvalidTransition,
		},
		{
			name: "sent withdrawal cannot be rejected",
			kind: domain.RequestKindWithdrawal,
			run: func(f *fixture, id uuid.UUID) error {
				if _, err := f.funding.ApproveWithdrawal(ctx, id, nil); err != nil {
					return err
				}
				if _, err := f.funding.MarkWithdrawalSent(ctx, id, nil, ""); err != nil {
					return err
				}
				_, err := f.funding.RejectWithdrawal(ctx, id, nil, "too late")
				return err
			},
			want: domain.ErrInvalidTransition,
		},
		{
			name: "rejected deposit cannot be approved",
			kind: domain.RequestKindDeposit,
			run: func(f *fixture, id uuid.UUID) error {
				if _, err := f.funding.RejectDeposit(ctx, id, nil, "no funds received"); err != nil {
					return err
				}
				_, err := f.funding.ApproveDeposit(ctx, id, nil)
				return err
			},
			want: domain.ErrInvalidTransition,
		},
		{
			name: "deposit id used as withdrawal",
			kind: domain.RequestKindDeposit,
			run: func(f *fixture, id uuid.UUID) error {
				_, err := f.funding.ApproveWithdrawal(ctx, id, nil)
				return err
			},
			want: domain.ErrRequestNotFound,
		},
		{
			name: "approved withdrawal can still be rejected",
			kind: domain.RequestKindWithdrawal,
			run: func(f *fixture, id uuid.UUID) error {
				if _, err := f.funding.ApproveWithdrawal(ctx, id, nil); err != nil {
					return err
				}
				res, err := f.funding.RejectWithdrawal(ctx, id, nil, "compliance")
				if err == nil && res.Request.Status != domain.RequestStatusRejected {
					return domain.ErrInvalidTransition
				}
				return err
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			userID := f.seed("0", "50.00", "0")
			var (
				req models.FundingRequest
				err error
			)
			if tc.kind == domain.RequestKindDeposit {
				req, err = f.funding.RequestDeposit(ctx, DepositRequestInput{UserID: userID, Currency: domain.CurrencyUSDT, Amount: dec("10.00")})
			} else {
				req, err = f.funding.RequestWithdrawal(ctx, WithdrawalRequestInput{UserID: userID, Currency: domain.CurrencyUSDT, Amount: dec("10.00")})
			}
			require.NoError(t, err)

			err = tc.run(f, req.ID)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFundingRequests_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.seed("0", "5.00", "0")

	_, err := f.funding.RequestWithdrawal(ctx, WithdrawalRequestInput{UserID: userID, Currency: domain.CurrencyUSDT, Amount: dec("5.01")})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = f.funding.RequestDeposit(ctx, DepositRequestInput{UserID: uuid.New(), Currency: domain.CurrencyUSDT, Amount: dec("1")})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = f.funding.RequestDeposit(ctx, DepositRequestInput{UserID: userID, Currency: "BTC", Amount: dec("1")})
	assert.ErrorIs(t, err, domain.ErrUnsupportedCurrency)

	_, err = f.funding.RequestDeposit(ctx, DepositRequestInput{UserID: userID, Currency: domain.CurrencyARS, Amount: dec("0")})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.funding.ApproveDeposit(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)
}

func TestFundingList_FiltersByKindAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.seed("1000.00", "0", "0")
	other := f.seed("1000.00", "0", "0")

	deposit, err := f.funding.RequestDeposit(ctx, DepositRequestInput{UserID: userID, Currency: domain.CurrencyARS, Amount: dec("10")})
	require.NoError(t, err)
	_, err = f.funding.RequestWithdrawal(ctx, WithdrawalRequestInput{UserID: userID, Currency: domain.CurrencyARS, Amount: dec("10")})
	require.NoError(t, err)
	_, err = f.funding.RequestDeposit(ctx, DepositRequestInput{UserID: other, Currency: domain.CurrencyARS, Amount: dec("10")})
	require.NoError(t, err)
	_, err = f.funding.ApproveDeposit(ctx, deposit.ID, nil)
	require.NoError(t, err)

	items, err := f.funding.List(ctx, FundingFilter{Kind: domain.RequestKindDeposit}, 1, 10)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = f.funding.List(ctx, FundingFilter{Status: "pending"}, 1, 10)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = f.funding.List(ctx, FundingFilter{UserID: &userID, Status: domain.RequestStatusApproved}, 1, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, deposit.ID, items[0].ID)
}
