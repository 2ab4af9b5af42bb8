package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/domain"
)

func requireExactlyOne(rows int64, operation string) error {
	if rows != 1 {
		return fmt.Errorf("%s affected %d rows", operation, rows)
	}
	return nil
}

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// pageWindow turns a 1-based page and a page size into a LIMIT/OFFSET pair.
func pageWindow(page, pageSize int) (limit, offset int32) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return int32(pageSize), int32((page - 1) * pageSize)
}

// resultLabel maps an operation outcome onto a low-cardinality metric label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidFee),
		errors.Is(err, domain.ErrInvalidDirection), errors.Is(err, domain.ErrUnsupportedCurrency):
		return "invalid"
	case errors.Is(err, domain.ErrQuoteUnavailable):
		return "quote_unavailable"
	case errors.Is(err, domain.ErrConcurrencyTimeout):
		return "timeout"
	default:
		return "error"
	}
}

const postCommitTimeout = 15 * time.Second

// detached returns a context for post-commit work that outlives the request
// which triggered it.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), postCommitTimeout)
}
