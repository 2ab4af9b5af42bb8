package service

import (
	"context"

	"github.com/ayo6706/exchange-ledger/internal/repository"
)

// QueryStore is the data access every service is built on. Queries runs
// outside a transaction; RunInTx commits fn's work atomically and rolls it
// back when fn returns an error. Lock waits inside RunInTx surface as
// domain.ErrConcurrencyTimeout.
//
// repository.Store implements it over Postgres and memstore.Store in memory.
type QueryStore interface {
	Queries() repository.Querier
	RunInTx(ctx context.Context, fn func(q repository.Querier) error) error
}

var _ QueryStore = (*repository.Store)(nil)
