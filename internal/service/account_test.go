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

func TestOpenAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	account, err := f.accounts.OpenAccount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, account.UserID)
	for _, ccy := range domain.Currencies() {
		requireDecimal(t, "0", account.Balance(ccy), ccy)
	}

	_, err = f.accounts.OpenAccount(ctx, userID)
	assert.ErrorIs(t, err, domain.ErrAccountExists)

	_, err = f.accounts.GetBalances(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestAdjustBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.seed("100.00", "0", "0")
	operatorID := uuid.New()

	movement, err := f.accounts.AdjustBalance(ctx, AdjustBalanceInput{
		UserID:     userID,
		Currency:   domain.CurrencyARS,
		Amount:     dec("-30.50"),
		OperatorID: &operatorID,
		Reason:     "chargeback",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MovementAdjustment, movement.Kind)
	requireDecimal(t, "-30.50", movement.Amount)
	requireDecimal(t, "100.00", movement.BalanceBefore)
	requireDecimal(t, "69.50", movement.BalanceAfter)
	assert.Equal(t, &operatorID, movement.OperatorID)
	assert.Equal(t, "chargeback", movement.Description)
	requireDecimal(t, "69.50", f.balances(t, userID).ARS)

	_, err = f.accounts.AdjustBalance(ctx, AdjustBalanceInput{UserID: userID, Currency: domain.CurrencyARS, Amount: dec("-69.51"), OperatorID: &operatorID})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	_, err = f.accounts.AdjustBalance(ctx, AdjustBalanceInput{UserID: userID, Currency: domain.CurrencyUSD, Amount: dec("0.001")})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	requireDecimal(t, "69.50", f.balances(t, userID).ARS)
	assert.Len(t, f.store.Movements(), 1)
	// Adjusting a user never touches the house ledger.
	assert.Empty(t, f.store.Entries())
}

func TestMovementLog_FiltersPagesAndTotals(t *testing.T) {
	f := newFixture(t)
	f.publishUSDT(t)
	ctx := context.Background()
	userID := f.seed("10000.00", "0", "0")
	other := f.seed("10000.00", "0", "0")

	for _, amount := range []string{"1000.00", "2000.00", "3000.00"} {
		_, err := f.exchange.Buy(ctx, BuyInput{UserID: userID, Currency: domain.CurrencyUSDT, ARSAmount: dec(amount)})
		require.NoError(t, err)
	}
	_, err := f.exchange.Buy(ctx, BuyInput{UserID: other, Currency: domain.CurrencyUSDT, ARSAmount: dec("500.00")})
	require.NoError(t, err)

	log := NewMovementLog(f.store)

	all, err := log.List(ctx, models.MovementFilter{UserID: &userID}, 1, 0)
	require.NoError(t, err)
	require.Len(t, all, 6)
	// Newest first by default; the last operation's credit leg was recorded last.
	assert.Equal(t, domain.CurrencyUSDT, all[0].Currency)
	requireDecimal(t, "3.00", all[0].Amount)

	page, err := log.List(ctx, models.MovementFilter{UserID: &userID}, 2, 4)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	ars, err := log.List(ctx, models.MovementFilter{UserID: &userID, Currency: domain.CurrencyARS, OrderBy: models.OrderAmountAsc}, 1, 10)
	require.NoError(t, err)
	require.Len(t, ars, 3)
	requireDecimal(t, "-3000.00", ars[0].Amount)
	requireDecimal(t, "-1000.00", ars[2].Amount)

	minAmount := dec("1500")
	large, err := log.List(ctx, models.MovementFilter{MinAmount: &minAmount}, 1, 10)
	require.NoError(t, err)
	assert.Len(t, large, 2)

	search, err := log.List(ctx, models.MovementFilter{UserID: &other, Search: "BUY 0.50"}, 1, 10)
	require.NoError(t, err)
	assert.Len(t, search, 2)

	totals, err := log.Totals(ctx, models.MovementFilter{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, domain.CurrencyARS, totals[0].Currency)
	requireDecimal(t, "-6000", totals[0].Total)
	assert.Equal(t, domain.CurrencyUSDT, totals[1].Currency)
	requireDecimal(t, "6", totals[1].Total)

	// The balance trail is continuous per currency.
	asc, err := log.List(ctx, models.MovementFilter{UserID: &userID, Currency: domain.CurrencyUSDT, OrderBy: models.OrderCreatedAsc}, 1, 10)
	require.NoError(t, err)
	for i := 1; i < len(asc); i++ {
		requireDecimal(t, asc[i-1].BalanceAfter.String(), asc[i].BalanceBefore)
	}
}

func TestPageWindow(t *testing.T) {
	tests := []struct {
		page, size  int
		limit, skip int32
	}{
		{0, 0, 20, 0},
		{1, 50, 50, 0},
		{3, 10, 10, 20},
		{2, 1000, 200, 200},
	}
	for _, tc := range tests {
		limit, offset := pageWindow(tc.page, tc.size)
		assert.Equal(t, tc.limit, limit)
		assert.Equal(t, tc.skip, offset)
	}
}
