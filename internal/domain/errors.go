package domain

import "errors"

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrQuoteUnavailable      = errors.New("quote unavailable")
	ErrConcurrencyTimeout    = errors.New("concurrency timeout")
	ErrReceiptEmissionFailed = errors.New("receipt emission failed")
	ErrStorageFailure        = errors.New("storage failure")

	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountExists       = errors.New("account already exists")
	ErrRequestNotFound     = errors.New("funding request not found")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrInvalidQuote        = errors.New("invalid quote")
	ErrInvalidFee          = errors.New("invalid fee")
	ErrInvalidDirection    = errors.New("invalid swap direction")
	ErrInvalidCategory     = errors.New("invalid accounting category")
	ErrInvalidRecord       = errors.New("invalid ledger record")
)

var domainErrors = []error{
	ErrInsufficientFunds,
	ErrInvalidAmount,
	ErrQuoteUnavailable,
	ErrConcurrencyTimeout,
	ErrReceiptEmissionFailed,
	ErrStorageFailure,
	ErrAccountNotFound,
	ErrAccountExists,
	ErrRequestNotFound,
	ErrInvalidTransition,
	ErrUnsupportedCurrency,
	ErrInvalidQuote,
	ErrInvalidFee,
	ErrInvalidDirection,
	ErrInvalidCategory,
	ErrInvalidRecord,
}

// IsDomainError reports whether err already belongs to the ledger's error taxonomy.
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether the caller may retry the same request unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrQuoteUnavailable) || errors.Is(err, ErrConcurrencyTimeout)
}
