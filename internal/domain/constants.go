package domain

// Currencies held on every account. ARS is the local fiat every price is quoted in.
const (
	CurrencyARS  = "ARS"
	CurrencyUSDT = "USDT"
	CurrencyUSD  = "USD"

	LocalCurrency = CurrencyARS
)

// Movement kinds.
const (
	MovementDeposit    = "deposit"
	MovementWithdrawal = "withdrawal"
	MovementBuy        = "buy"
	MovementSell       = "sell"
	MovementAdjustment = "manual_adjustment"
)

// Accounting entry categories.
const (
	CategorySpreadBuy  = "spread_buy"
	CategorySpreadSell = "spread_sell"
	CategorySwapFee    = "swap_fee"
	CategoryCashIn     = "cash_in"
	CategoryCashOut    = "cash_out"
	CategoryAdjustment = "manual_adjustment"
)

// Document classes used in accounting dedup keys.
const (
	DocClassOperation  = "operation"
	DocClassCashIn     = "cash_in"
	DocClassCashOut    = "cash_out"
	DocClassAdjustment = "adjustment"
)

// Source document types referenced by accounting entries.
const (
	SourceOperation         = "operation"
	SourceDepositRequest    = "deposit_request"
	SourceWithdrawalRequest = "withdrawal_request"
	SourceManualAdjustment  = "manual_adjustment"
)

// Funding request kinds and statuses.
const (
	RequestKindDeposit    = "deposit"
	RequestKindWithdrawal = "withdrawal"

	RequestStatusPending  = "PENDING"
	RequestStatusApproved = "APPROVED"
	RequestStatusSent     = "SENT"
	RequestStatusRejected = "REJECTED"
)

// Pending posting (outbox) statuses.
const (
	PostingStatusPending = "PENDING"
	PostingStatusDone    = "DONE"
)

// Swap directions between the two non-local currencies.
const (
	SwapUSDToUSDT = "USD_USDT"
	SwapUSDTToUSD = "USDT_USD"
)

// Operation types stamped on receipts.
const (
	OperationBuy        = "buy"
	OperationSell       = "sell"
	OperationSwap       = "swap"
	OperationDeposit    = "deposit"
	OperationWithdrawal = "withdrawal"
)

var supportedCurrencies = map[string]struct{}{
	CurrencyARS:  {},
	CurrencyUSDT: {},
	CurrencyUSD:  {},
}

var cashAffectingCategories = map[string]struct{}{
	CategorySpreadBuy:  {},
	CategorySpreadSell: {},
	CategorySwapFee:    {},
	CategoryAdjustment: {},
}

var knownCategories = map[string]struct{}{
	CategorySpreadBuy:  {},
	CategorySpreadSell: {},
	CategorySwapFee:    {},
	CategoryCashIn:     {},
	CategoryCashOut:    {},
	CategoryAdjustment: {},
}

var knownMovementKinds = map[string]struct{}{
	MovementDeposit:    {},
	MovementWithdrawal: {},
	MovementBuy:        {},
	MovementSell:       {},
	MovementAdjustment: {},
}

// Currencies returns the account currencies in display order.
func Currencies() []string {
	return []string{CurrencyARS, CurrencyUSDT, CurrencyUSD}
}

func IsSupportedCurrency(currency string) bool {
	_, ok := supportedCurrencies[currency]
	return ok
}

// IsTradable reports whether currency can be bought or sold against the local fiat.
func IsTradable(currency string) bool {
	return currency == CurrencyUSDT || currency == CurrencyUSD
}

// AffectsHouseCash reports whether entries of category move the house cash position.
// Cash-in and cash-out entries are informational flow records only.
func AffectsHouseCash(category string) bool {
	_, ok := cashAffectingCategories[category]
	return ok
}

// CashAffectingCategories lists the categories summed into the house cash position.
func CashAffectingCategories() []string {
	return []string{CategorySpreadBuy, CategorySpreadSell, CategorySwapFee, CategoryAdjustment}
}

func IsKnownCategory(category string) bool {
	_, ok := knownCategories[category]
	return ok
}

func IsKnownMovementKind(kind string) bool {
	_, ok := knownMovementKinds[kind]
	return ok
}

// SwapLegs returns the source and destination currencies of a swap direction.
func SwapLegs(direction string) (from, to string, ok bool) {
	switch direction {
	case SwapUSDToUSDT:
		return CurrencyUSD, CurrencyUSDT, true
	case SwapUSDTToUSD:
		return CurrencyUSDT, CurrencyUSD, true
	default:
		return "", "", false
	}
}
