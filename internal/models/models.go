package models

import (
	"time"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Account struct {
	UserID    uuid.UUID       `json:"user_id"`
	ARS       decimal.Decimal `json:"ars"`
	USDT      decimal.Decimal `json:"usdt"`
	USD       decimal.Decimal `json:"usd"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Balance returns the balance held in currency.
func (a Account) Balance(currency string) decimal.Decimal {
	switch currency {
	case domain.CurrencyARS:
		return a.ARS
	case domain.CurrencyUSDT:
		return a.USDT
	case domain.CurrencyUSD:
		return a.USD
	default:
		return decimal.Zero
	}
}

// SetBalance replaces the in-memory balance of currency.
func (a *Account) SetBalance(currency string, amount decimal.Decimal) {
	switch currency {
	case domain.CurrencyARS:
		a.ARS = amount
	case domain.CurrencyUSDT:
		a.USDT = amount
	case domain.CurrencyUSD:
		a.USD = amount
	}
}

// Movement is one immutable balance change of a single currency.
type Movement struct {
	ID            uuid.UUID       `json:"id"`
	Seq           int64           `json:"seq"`
	UserID        uuid.UUID       `json:"user_id"`
	Kind          string          `json:"kind"`
	Currency      string          `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	OperatorID    *uuid.UUID      `json:"operator_id,omitempty"`
	OperationID   *uuid.UUID      `json:"operation_id,omitempty"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
}

// MovementFilter narrows Movement Log reads. Zero values mean "no filter".
type MovementFilter struct {
	UserID    *uuid.UUID
	From      *time.Time
	To        *time.Time
	Currency  string
	Kind      string
	Search    string
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	OrderBy   string
	Limit     int32
	Offset    int32
}

// Movement orderings accepted by MovementFilter.OrderBy.
const (
	OrderCreatedAsc  = "created_at"
	OrderCreatedDesc = "-created_at"
	OrderAmountAsc   = "amount"
	OrderAmountDesc  = "-amount"
)

type Quote struct {
	ID          int64               `json:"id"`
	Currency    string              `json:"currency"`
	AppliedBuy  decimal.Decimal     `json:"applied_buy"`
	AppliedSell decimal.Decimal     `json:"applied_sell"`
	RefBuy      decimal.NullDecimal `json:"ref_buy"`
	RefSell     decimal.NullDecimal `json:"ref_sell"`
	MarginBps   *int32              `json:"margin_bps,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// DedupKey identifies the source document an accounting entry was posted for.
type DedupKey struct {
	DocClass      string `json:"doc_class"`
	SourceDocType string `json:"source_doc_type"`
	SourceDocID   string `json:"source_doc_id"`
}

type AccountingEntry struct {
	ID           uuid.UUID           `json:"id"`
	Seq          int64               `json:"seq"`
	Category     string              `json:"category"`
	Currency     string              `json:"currency"`
	Amount       decimal.Decimal     `json:"amount"`
	AmountLocal  decimal.Decimal     `json:"amount_local"`
	UserID       *uuid.UUID          `json:"user_id,omitempty"`
	MovementID   *uuid.UUID          `json:"movement_id,omitempty"`
	OperatorID   *uuid.UUID          `json:"operator_id,omitempty"`
	RefPrice     decimal.NullDecimal `json:"ref_price"`
	AppliedPrice decimal.NullDecimal `json:"applied_price"`
	Key          DedupKey            `json:"dedup_key"`
	Detail       string              `json:"detail"`
	CreatedAt    time.Time           `json:"created_at"`
}

// PostingRequest carries everything needed to post one accounting entry.
// It is also the payload persisted in the pending postings outbox.
type PostingRequest struct {
	Category     string              `json:"category"`
	Currency     string              `json:"currency"`
	Amount       decimal.Decimal     `json:"amount"`
	AmountLocal  decimal.Decimal     `json:"amount_local"`
	UserID       *uuid.UUID          `json:"user_id,omitempty"`
	MovementID   *uuid.UUID          `json:"movement_id,omitempty"`
	OperatorID   *uuid.UUID          `json:"operator_id,omitempty"`
	RefPrice     decimal.NullDecimal `json:"ref_price"`
	AppliedPrice decimal.NullDecimal `json:"applied_price"`
	Key          DedupKey            `json:"dedup_key"`
	Detail       string              `json:"detail"`
}

// EntryFilter narrows accounting entry reads and exports.
type EntryFilter struct {
	From     *time.Time
	To       *time.Time
	Category string
	Currency string
	UserID   *uuid.UUID
	Limit    int32
	Offset   int32
}

type HousePosition struct {
	ARS       decimal.Decimal `json:"ars"`
	USDT      decimal.Decimal `json:"usdt"`
	USD       decimal.Decimal `json:"usd"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Of returns the house balance held in currency.
func (h HousePosition) Of(currency string) decimal.Decimal {
	switch currency {
	case domain.CurrencyARS:
		return h.ARS
	case domain.CurrencyUSDT:
		return h.USDT
	case domain.CurrencyUSD:
		return h.USD
	default:
		return decimal.Zero
	}
}

type FundingRequest struct {
	ID          uuid.UUID       `json:"id"`
	Kind        string          `json:"kind"`
	UserID      uuid.UUID       `json:"user_id"`
	Currency    string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	Network     string          `json:"network,omitempty"`
	TxID        string          `json:"txid,omitempty"`
	Destination string          `json:"destination,omitempty"`
	OperatorID  *uuid.UUID      `json:"operator_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type PendingPosting struct {
	ID        uuid.UUID      `json:"id"`
	Key       DedupKey       `json:"dedup_key"`
	Request   PostingRequest `json:"request"`
	Status    string         `json:"status"`
	Attempts  int32          `json:"attempts"`
	LastError string         `json:"last_error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type AuditEntry struct {
	ID         int64      `json:"id"`
	EntityType string     `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	Action     string     `json:"action"`
	PrevState  string     `json:"prev_state,omitempty"`
	NextState  string     `json:"next_state,omitempty"`
	Metadata   []byte     `json:"metadata,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// OnChainInfo describes the network leg of a stablecoin deposit or withdrawal.
type OnChainInfo struct {
	Network      string `json:"network,omitempty"`
	TxID         string `json:"txid,omitempty"`
	OriginWallet string `json:"origin_wallet,omitempty"`
	DestWallet   string `json:"dest_wallet,omitempty"`
}

// OperationSnapshot is the frozen view of a committed operation handed to the receipt emitter.
type OperationSnapshot struct {
	OperationID   uuid.UUID       `json:"operation_id"`
	OperationType string          `json:"operation_type"`
	UserID        uuid.UUID       `json:"user_id"`
	FromCurrency  string          `json:"from_currency"`
	FromAmount    decimal.Decimal `json:"from_amount"`
	ToCurrency    string          `json:"to_currency"`
	ToAmount      decimal.Decimal `json:"to_amount"`
	Rate          decimal.Decimal `json:"rate"`
	FeeBps        int             `json:"fee_bps"`
	Fee           decimal.Decimal `json:"fee"`
	FeeCurrency   string          `json:"fee_currency,omitempty"`
	OperatorID    *uuid.UUID      `json:"operator_id,omitempty"`
	ExecutedAt    time.Time       `json:"executed_at"`
}

type Receipt struct {
	ID               uuid.UUID    `json:"id"`
	Number           string       `json:"number"`
	UserID           uuid.UUID    `json:"user_id"`
	OperationType    string       `json:"operation_type"`
	MovementID       *uuid.UUID   `json:"movement_id,omitempty"`
	Snapshot         []byte       `json:"snapshot"`
	SHA256           string       `json:"sha256"`
	VerificationCode string       `json:"verification_code"`
	OnChain          *OnChainInfo `json:"on_chain,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

type CurrencyTotal struct {
	Currency string          `json:"currency"`
	Total    decimal.Decimal `json:"total"`
}

type CategoryTotal struct {
	Category   string          `json:"category"`
	Currency   string          `json:"currency"`
	Total      decimal.Decimal `json:"total"`
	TotalLocal decimal.Decimal `json:"total_local"`
}

type DailyTotal struct {
	Day        time.Time       `json:"day"`
	TotalLocal decimal.Decimal `json:"total_local"`
}

// AccountingSummary aggregates the accounting ledger over a filter window.
type AccountingSummary struct {
	RevenueLocal decimal.Decimal `json:"revenue_local"`
	CashInLocal  decimal.Decimal `json:"cash_in_local"`
	CashOutLocal decimal.Decimal `json:"cash_out_local"`
	ByCategory   []CategoryTotal `json:"by_category"`
	ByCurrency   []CurrencyTotal `json:"by_currency"`
	DailyRevenue []DailyTotal    `json:"daily_revenue"`
}

// ReconciliationReport compares the house position with the entries it is derived from.
type ReconciliationReport struct {
	Position        HousePosition              `json:"position"`
	EntryTotals     map[string]decimal.Decimal `json:"entry_totals"`
	Drift           map[string]decimal.Decimal `json:"drift"`
	PendingPostings int64                      `json:"pending_postings"`
}

// Balanced reports whether every currency reconciles exactly.
func (r ReconciliationReport) Balanced() bool {
	return len(r.Drift) == 0
}
