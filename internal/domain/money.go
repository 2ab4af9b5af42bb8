package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// FiatScale is the number of decimal places kept for ARS and USD balances.
	FiatScale int32 = 2
	// AccountingScale is the precision of accounting entry amounts and the house position.
	AccountingScale int32 = 6
	// MaxStablecoinScale bounds the configurable stablecoin precision to the column scale.
	MaxStablecoinScale int32 = 6

	bpsDenominator = 10_000
)

// Scales resolves the fixed decimal precision of each currency.
type Scales struct {
	Stablecoin int32
}

// DefaultScales keeps every currency at two decimal places.
func DefaultScales() Scales {
	return Scales{Stablecoin: FiatScale}
}

// Of returns the balance scale for currency.
func (s Scales) Of(currency string) int32 {
	if currency == CurrencyUSDT && s.Stablecoin > 0 {
		return s.Stablecoin
	}
	return FiatScale
}

// Floor truncates d toward negative infinity at places decimals.
// Every ledger quantization goes through here so no step ever rounds up.
func Floor(d decimal.Decimal, places int32) decimal.Decimal {
	return d.RoundFloor(places)
}

// ValidateAmount checks that amount is strictly positive and representable at places.
func ValidateAmount(amount decimal.Decimal, places int32) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	if !amount.Equal(amount.Truncate(places)) {
		return fmt.Errorf("%w: amount has more than %d decimal places", ErrInvalidAmount, places)
	}
	return nil
}

// ParseAmount parses a decimal string and validates it at places.
func ParseAmount(raw string, places int32) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a decimal", ErrInvalidAmount, raw)
	}
	if err := ValidateAmount(amount, places); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// ValidateFeeBps accepts fees in [0, 10000).
func ValidateFeeBps(bps int) error {
	if bps < 0 || bps >= bpsDenominator {
		return fmt.Errorf("%w: fee must be between 0 and 9999 bps, got %d", ErrInvalidFee, bps)
	}
	return nil
}

// FeeFactor returns 1 - bps/10000.
func FeeFactor(bps int) decimal.Decimal {
	return decimal.NewFromInt(1).Sub(BpsFraction(bps))
}

// BpsFraction converts basis points to a plain fraction.
func BpsFraction(bps int) decimal.Decimal {
	return decimal.NewFromInt(int64(bps)).Div(decimal.NewFromInt(bpsDenominator))
}

// FormatAmount prints amount with exactly the scale of currency.
func (s Scales) FormatAmount(currency string, amount decimal.Decimal) string {
	return amount.StringFixed(s.Of(currency))
}
