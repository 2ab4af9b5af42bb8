package service

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/ayo6706/exchange-ledger/internal/receipt"
	"github.com/ayo6706/exchange-ledger/internal/retrier"
	"github.com/ayo6706/exchange-ledger/internal/testutil/memstore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEmitter struct {
	mock.Mock
}

func (m *mockEmitter) Emit(ctx context.Context, req receipt.Request) (uuid.UUID, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

type fixture struct {
	store      *memstore.Store
	quotes     *QuoteService
	accounting *AccountingService
	exchange   *ExchangeService
	funding    *FundingService
	accounts   *AccountService
	receipts   *receipt.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	return newFixtureWithEmitter(t, store, receipt.NewStore(store))
}

func newFixtureWithEmitter(t *testing.T, store *memstore.Store, emitter receipt.Emitter) *fixture {
	t.Helper()
	quotes := NewQuoteService(store, nil, time.Minute)
	accounting := NewAccountingService(store, quotes, retrier.New(
		retrier.WithInitialInterval(time.Millisecond),
		retrier.WithMaxAttempts(2),
	))
	issuer := NewReceiptIssuer(emitter, "REC")
	f := &fixture{
		store:      store,
		quotes:     quotes,
		accounting: accounting,
		exchange:   NewExchangeService(store, quotes, accounting, issuer, ExchangeConfig{Scales: domain.DefaultScales(), SwapRate: dec("1.00")}),
		funding:    NewFundingService(store, accounting, issuer, domain.DefaultScales()),
		accounts:   NewAccountService(store, domain.DefaultScales()),
	}
	if rs, ok := emitter.(*receipt.Store); ok {
		f.receipts = rs
	}
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}

// publishUSDT publishes the quote used by the worked examples:
// applied sell 1000.00 over reference 995.00, applied buy 990.00 under reference 995.00.
func (f *fixture) publishUSDT(t *testing.T) models.Quote {
	t.Helper()
	quote, err := f.quotes.Publish(context.Background(), PublishQuoteInput{
		Currency:    domain.CurrencyUSDT,
		AppliedBuy:  dec("990.00"),
		AppliedSell: dec("1000.00"),
		RefBuy:      decimal.NewNullDecimal(dec("995.00")),
		RefSell:     decimal.NewNullDecimal(dec("995.00")),
	})
	require.NoError(t, err)
	return quote
}

func (f *fixture) seed(ars, usdt, usd string) uuid.UUID {
	userID := uuid.New()
	f.store.SeedAccount(userID, dec(ars), dec(usdt), dec(usd))
	return userID
}

func (f *fixture) balances(t *testing.T, userID uuid.UUID) models.Account {
	t.Helper()
	account, err := f.accounts.GetBalances(context.Background(), userID)
	require.NoError(t, err)
	return account
}

func (f *fixture) house(t *testing.T) models.HousePosition {
	t.Helper()
	pos, err := f.accounting.HousePosition(context.Background())
	require.NoError(t, err)
	return pos
}

func entriesOf(entries []models.AccountingEntry, category string) []models.AccountingEntry {
	var out []models.AccountingEntry
	for _, e := range entries {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}
