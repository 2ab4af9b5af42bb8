package service

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/db"
	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/receipt"
	"github.com/ayo6706/exchange-ledger/internal/repository"
	"github.com/ayo6706/exchange-ledger/internal/retrier"
	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestDB connects to the Postgres instance named by DATABASE_URL, applies
// the schema and empties every ledger table. Tests skip without a database.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	tables := []string{"receipts", "pending_postings", "audit_log", "funding_requests", "accounting_entries", "movements", "quotes", "accounts", "idempotency_keys"}
	for _, table := range tables {
		if _, err := pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			t.Fatalf("Failed to truncate %s: %v", table, err)
		}
	}
	if _, err := pool.Exec(ctx, "UPDATE house_cash_position SET ars = 0, usdt = 0, usd = 0 WHERE id = 1"); err != nil {
		t.Fatalf("Failed to reset house position: %v", err)
	}
	return pool
}

// newPgFixture wires the services over a real Postgres store.
func newPgFixture(t *testing.T) (*fixture, *repository.Store) {
	t.Helper()
	store := repository.NewStore(setupTestDB(t)).WithLockTimeout(2 * time.Second)
	quotes := NewQuoteService(store, nil, time.Minute)
	accounting := NewAccountingService(store, quotes, retrier.New(retrier.WithInitialInterval(time.Millisecond), retrier.WithMaxAttempts(2)))
	receipts := receipt.NewStore(store.Pg())
	issuer := NewReceiptIssuer(receipts, "REC")
	return &fixture{
		quotes:     quotes,
		accounting: accounting,
		exchange:   NewExchangeService(store, quotes, accounting, issuer, ExchangeConfig{Scales: domain.DefaultScales()}),
		funding:    NewFundingService(store, accounting, issuer, domain.DefaultScales()),
		accounts:   NewAccountService(store, domain.DefaultScales()),
		receipts:   receipts,
	}, store
}
