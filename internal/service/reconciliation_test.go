package service

import (
	"context"
	"testing"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciliation_BalancedAfterOperations(t *testing.T) {
	f := newFixture(t)
	f.publishUSDT(t)
	ctx := context.Background()
	userID := f.seed("10000.00", "10.00", "100.00")

	_, err := f.exchange.Buy(ctx, BuyInput{UserID: userID, Currency: domain.CurrencyUSDT, ARSAmount: dec("5000.00")})
	require.NoError(t, err)
	_, err = f.exchange.Swap(ctx, SwapInput{UserID: userID, Direction: domain.SwapUSDToUSDT, Amount: dec("100.00"), FeeBps: 100})
	require.NoError(t, err)
	req, err := f.funding.RequestDeposit(ctx, DepositRequestInput{UserID: userID, Currency: domain.CurrencyUSD, Amount: dec("50.00")})
	require.NoError(t, err)
	_, err = f.funding.ApproveDeposit(ctx, req.ID, nil)
	require.NoError(t, err)

	report, err := NewReconciliationService(f.store).Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Balanced())
	assert.Empty(t, report.Drift)
	requireDecimal(t, "25", report.EntryTotals[domain.CurrencyARS])
	requireDecimal(t, "1", report.EntryTotals[domain.CurrencyUSDT])
	assert.Zero(t, report.PendingPostings)
}

func TestReconciliation_ReportsDrift(t *testing.T) {
	f := newFixture(t)
	f.publishUSDT(t)
	ctx := context.Background()
	userID := f.seed("10000.00", "0", "0")

	_, err := f.exchange.Buy(ctx, BuyInput{UserID: userID, Currency: domain.CurrencyUSDT, ARSAmount: dec("5000.00")})
	require.NoError(t, err)

	house := f.house(t)
	f.store.SetHouse(models.HousePosition{ARS: house.ARS.Add(dec("0.5")), USDT: dec("-1"), USD: house.USD})

	report, err := NewReconciliationService(f.store).Run(ctx)
	require.NoError(t, err)
	assert.False(t, report.Balanced())
	require.Len(t, report.Drift, 2)
	requireDecimal(t, "0.5", report.Drift[domain.CurrencyARS])
	requireDecimal(t, "-1", report.Drift[domain.CurrencyUSDT])

	// Drift is reported, never corrected.
	requireDecimal(t, "25.5", f.house(t).ARS)
}

func TestReconciliation_CountsQueuedPostings(t *testing.T) {
	f := newFixture(t)
	f.publishUSDT(t)
	ctx := context.Background()
	userID := f.seed("10000.00", "0", "0")
	f.store.FailEntries(func(models.PostingRequest) error { return assert.AnError })

	_, err := f.exchange.Buy(ctx, BuyInput{UserID: userID, Currency: domain.CurrencyUSDT, ARSAmount: dec("5000.00")})
	require.NoError(t, err)

	report, err := NewReconciliationService(f.store).Run(ctx)
	require.NoError(t, err)
	// A queued posting has touched neither side yet.
	assert.True(t, report.Balanced())
	assert.Equal(t, int64(1), report.PendingPostings)
}
