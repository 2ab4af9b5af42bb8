package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/export"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportMovements_RoundTrips(t *testing.T) {
	f := newFixture(t)
	f.publishUSDT(t)
	ctx := context.Background()
	userID := f.seed("10000.00", "0", "0")
	other := f.seed("500.00", "0", "0")

	_, err := f.exchange.Buy(ctx, BuyInput{UserID: userID, Currency: domain.CurrencyUSDT, ARSAmount: dec("5000.00")})
	require.NoError(t, err)
	_, err = f.exchange.Sell(ctx, SellInput{UserID: userID, Currency: domain.CurrencyUSDT, Amount: dec("1.50")})
	require.NoError(t, err)
	_, err = f.exchange.Buy(ctx, BuyInput{UserID: other, Currency: domain.CurrencyUSDT, ARSAmount: dec("100.00")})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := NewExportService(f.store, domain.DefaultScales()).ExportMovements(ctx, &buf, models.MovementFilter{UserID: &userID})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	parsed, err := export.ReadMovements(&buf)
	require.NoError(t, err)
	require.Len(t, parsed, 4)

	want, err := NewMovementLog(f.store).List(ctx, models.MovementFilter{UserID: &userID, OrderBy: models.OrderCreatedAsc}, 1, 10)
	require.NoError(t, err)
	for i := range want {
		assert.Equal(t, want[i].ID, parsed[i].ID)
		assert.Equal(t, want[i].Kind, parsed[i].Kind)
		assert.True(t, want[i].Amount.Equal(parsed[i].Amount))
		assert.True(t, want[i].BalanceAfter.Equal(parsed[i].BalanceAfter))
		assert.Equal(t, want[i].Description, parsed[i].Description)
	}
}

func TestExportEntries(t *testing.T) {
	f := newFixture(t)
	f.publishUSDT(t)
	ctx := context.Background()
	userID := f.seed("10000.00", "0", "0")

	_, err := f.exchange.Buy(ctx, BuyInput{UserID: userID, Currency: domain.CurrencyUSDT, ARSAmount: dec("5000.00")})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := NewExportService(f.store, domain.DefaultScales()).ExportEntries(ctx, &buf, models.EntryFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, export.EntryHeader, records[0])
	assert.Equal(t, domain.CategorySpreadBuy, records[1][2])
	assert.Equal(t, "25.000000", records[1][4])
	assert.Equal(t, "25.00", records[1][5])
}
