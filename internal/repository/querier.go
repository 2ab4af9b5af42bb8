package repository

import (
	"context"

	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Querier is the ledger data access contract. *Queries implements it on Postgres.
type Querier interface {
	CreateAccount(ctx context.Context, userID uuid.UUID) (models.Account, error)
	GetAccount(ctx context.Context, userID uuid.UUID) (models.Account, error)
	GetAccountForUpdate(ctx context.Context, userID uuid.UUID) (models.Account, error)
	SetAccountBalance(ctx context.Context, arg SetAccountBalanceParams) (int64, error)

	InsertMovement(ctx context.Context, arg InsertMovementParams) (models.Movement, error)
	ListMovements(ctx context.Context, filter models.MovementFilter) ([]models.Movement, error)
	MovementTotals(ctx context.Context, filter models.MovementFilter) ([]models.CurrencyTotal, error)

	InsertQuote(ctx context.Context, arg InsertQuoteParams) (models.Quote, error)
	GetLatestQuote(ctx context.Context, currency string) (models.Quote, error)

	GetAccountingEntryByKey(ctx context.Context, key models.DedupKey) (models.AccountingEntry, error)
	InsertAccountingEntry(ctx context.Context, arg InsertAccountingEntryParams) (models.AccountingEntry, error)
	ListAccountingEntries(ctx context.Context, filter models.EntryFilter) ([]models.AccountingEntry, error)
	SumEntriesByCategory(ctx context.Context, filter models.EntryFilter) ([]models.CategoryTotal, error)
	DailyRevenue(ctx context.Context, filter models.EntryFilter) ([]models.DailyTotal, error)
	SumCashAffectingEntries(ctx context.Context) ([]models.CurrencyTotal, error)
	GetHousePosition(ctx context.Context) (models.HousePosition, error)
	GetHousePositionForUpdate(ctx context.Context) (models.HousePosition, error)
	AddToHousePosition(ctx context.Context, currency string, amount decimal.Decimal) (int64, error)

	CreateFundingRequest(ctx context.Context, arg CreateFundingRequestParams) (models.FundingRequest, error)
	GetFundingRequest(ctx context.Context, id uuid.UUID) (models.FundingRequest, error)
	GetFundingRequestForUpdate(ctx context.Context, id uuid.UUID) (models.FundingRequest, error)
	UpdateFundingRequestStatus(ctx context.Context, arg UpdateFundingRequestStatusParams) (int64, error)
	ListFundingRequests(ctx context.Context, arg ListFundingRequestsParams) ([]models.FundingRequest, error)

	InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error)
	ListAuditLog(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditEntry, error)

	EnqueuePosting(ctx context.Context, arg EnqueuePostingParams) (models.PendingPosting, bool, error)
	ListPendingPostings(ctx context.Context, limit int32) ([]models.PendingPosting, error)
	GetPendingPostingForUpdate(ctx context.Context, id uuid.UUID) (models.PendingPosting, error)
	MarkPostingDone(ctx context.Context, id uuid.UUID) (int64, error)
	MarkPostingFailed(ctx context.Context, id uuid.UUID, lastError string) (int64, error)
	CountPendingPostings(ctx context.Context) (int64, error)

	// Savepoint runs fn in a nested transaction of the current one.
	Savepoint(ctx context.Context, fn func(Querier) error) error
}

var _ Querier = (*Queries)(nil)
