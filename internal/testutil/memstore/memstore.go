// Package memstore is an in-memory repository.Querier for unit tests.
//
// Transactions are serialized: RunInTx holds a store-wide mutex for the whole
// callback, which gives the same observable ordering as row locks on a single
// account, and restores a snapshot when the callback fails.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/ayo6706/exchange-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const (
	codeUniqueViolation = "23505"
	codeCheckViolation  = "23514"
)

type state struct {
	accounts  map[uuid.UUID]models.Account
	movements []models.Movement
	quotes    []models.Quote
	entries   []models.AccountingEntry
	house     models.HousePosition
	requests  map[uuid.UUID]models.FundingRequest
	audit     []models.AuditEntry
	postings  []models.PendingPosting
	receipts  map[string]models.Receipt
	seq       int64
}

func newState() *state {
	return &state{
		accounts: map[uuid.UUID]models.Account{},
		requests: map[uuid.UUID]models.FundingRequest{},
		receipts: map[string]models.Receipt{},
		house:    models.HousePosition{ARS: decimal.Zero, USDT: decimal.Zero, USD: decimal.Zero},
	}
}

func (s *state) clone() *state {
	c := *s
	c.accounts = make(map[uuid.UUID]models.Account, len(s.accounts))
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	c.requests = make(map[uuid.UUID]models.FundingRequest, len(s.requests))
	for k, v := range s.requests {
		c.requests[k] = v
	}
	c.receipts = make(map[string]models.Receipt, len(s.receipts))
	for k, v := range s.receipts {
		c.receipts[k] = v
	}
	c.movements = append([]models.Movement(nil), s.movements...)
	c.quotes = append([]models.Quote(nil), s.quotes...)
	c.entries = append([]models.AccountingEntry(nil), s.entries...)
	c.audit = append([]models.AuditEntry(nil), s.audit...)
	c.postings = append([]models.PendingPosting(nil), s.postings...)
	return &c
}

func (s *state) next() int64 {
	s.seq++
	return s.seq
}

// Store satisfies the service layer's QueryStore contract.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data *state
	keys map[string]repository.IdempotencyKey

	entryFault func(models.PostingRequest) error
}

func New() *Store {
	return &Store{data: newState(), keys: map[string]repository.IdempotencyKey{}}
}

// FailEntries makes InsertAccountingEntry return the error fn reports. A nil
// fn clears the fault.
func (s *Store) FailEntries(fn func(models.PostingRequest) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryFault = fn
}

// Queries returns a query set that runs outside any transaction.
func (s *Store) Queries() repository.Querier {
	return &querier{s: s}
}

func (s *Store) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return repository.Classify(err)
	}

	snapshot := s.snapshot()
	if err := fn(&querier{s: s, inTx: true}); err != nil {
		s.restore(snapshot)
		return repository.Classify(err)
	}
	return nil
}

func (s *Store) snapshot() *state {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.clone()
}

// restore rolls back to snapshot. Receipts are written outside transactions
// and survive the rollback.
func (s *Store) restore(snapshot *state) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot.receipts = s.data.receipts
	s.data = snapshot
}

// SeedAccount creates an account holding the given balances.
func (s *Store) SeedAccount(userID uuid.UUID, ars, usdt, usd decimal.Decimal) models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	account := models.Account{UserID: userID, ARS: ars, USDT: usdt, USD: usd, CreatedAt: now, UpdatedAt: now}
	s.data.accounts[userID] = account
	return account
}

// Movements returns every recorded movement in insertion order.
func (s *Store) Movements() []models.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Movement(nil), s.data.movements...)
}

// Entries returns every accounting entry in posting order.
func (s *Store) Entries() []models.AccountingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AccountingEntry(nil), s.data.entries...)
}

// PendingPostings returns every outbox row, done or not.
func (s *Store) PendingPostings() []models.PendingPosting {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PendingPosting(nil), s.data.postings...)
}

// SetHouse overwrites the house position, for drift tests.
func (s *Store) SetHouse(pos models.HousePosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.house = pos
}

// InsertReceipt and GetReceiptByNumber back receipt.Store in tests.
func (s *Store) InsertReceipt(_ context.Context, arg repository.InsertReceiptParams) (models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.receipts[arg.Number]; ok {
		return models.Receipt{}, &pgconn.PgError{Code: codeUniqueViolation}
	}
	rec := models.Receipt{
		ID:               arg.ID,
		Number:           arg.Number,
		UserID:           arg.UserID,
		OperationType:    arg.OperationType,
		MovementID:       arg.MovementID,
		Snapshot:         arg.Snapshot,
		SHA256:           arg.SHA256,
		VerificationCode: arg.VerificationCode,
		CreatedAt:        time.Now().UTC(),
	}
	if arg.OnChain != (models.OnChainInfo{}) {
		info := arg.OnChain
		rec.OnChain = &info
	}
	s.data.receipts[arg.Number] = rec
	return rec, nil
}

func (s *Store) GetReceiptByNumber(_ context.Context, number string) (models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data.receipts[number]
	if !ok {
		return models.Receipt{}, pgx.ErrNoRows
	}
	return rec, nil
}

// The idempotency key methods back idempotency.Store in HTTP tests. Keys live
// outside the transactional state, as they do in Postgres.
func (s *Store) GetIdempotencyKey(_ context.Context, key string) (repository.IdempotencyKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[key]
	if !ok {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	return k, nil
}

func (s *Store) ReserveIdempotencyKey(_ context.Context, arg repository.ReserveIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[arg.IdempotencyKey]; ok {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	k := repository.IdempotencyKey{
		IdempotencyKey: arg.IdempotencyKey,
		RequestHash:    arg.RequestHash,
		InProgress:     true,
		ContentType:    "application/json",
	}
	s.keys[arg.IdempotencyKey] = k
	return k, nil
}

func (s *Store) FinalizeIdempotencyKey(_ context.Context, arg repository.FinalizeIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[arg.IdempotencyKey]
	if !ok || k.RequestHash != arg.RequestHash {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	k.InProgress = false
	k.ResponseStatus = arg.ResponseStatus
	k.ResponseBody = append([]byte(nil), arg.ResponseBody...)
	k.ContentType = arg.ContentType
	s.keys[arg.IdempotencyKey] = k
	return k, nil
}

func (s *Store) ReleaseIdempotencyKey(_ context.Context, key, requestHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[key]; ok && k.InProgress && k.RequestHash == requestHash {
		delete(s.keys, key)
	}
	return nil
}

var errNoTransaction = errors.New("savepoint requires an open transaction")

type querier struct {
	s    *Store
	inTx bool
}

var _ repository.Querier = (*querier)(nil)

func (q *querier) lock() (*state, func()) {
	q.s.mu.Lock()
	return q.s.data, q.s.mu.Unlock
}

func (q *querier) Savepoint(ctx context.Context, fn func(repository.Querier) error) error {
	if !q.inTx {
		return errNoTransaction
	}
	snapshot := q.s.snapshot()
	if err := fn(q); err != nil {
		q.s.restore(snapshot)
		return err
	}
	return nil
}

func (q *querier) CreateAccount(_ context.Context, userID uuid.UUID) (models.Account, error) {
	st, unlock := q.lock()
	defer unlock()
	if _, ok := st.accounts[userID]; ok {
		return models.Account{}, &pgconn.PgError{Code: codeUniqueViolation}
	}
	now := time.Now().UTC()
	account := models.Account{UserID: userID, ARS: decimal.Zero, USDT: decimal.Zero, USD: decimal.Zero, CreatedAt: now, UpdatedAt: now}
	st.accounts[userID] = account
	return account, nil
}

func (q *querier) GetAccount(_ context.Context, userID uuid.UUID) (models.Account, error) {
	st, unlock := q.lock()
	defer unlock()
	account, ok := st.accounts[userID]
	if !ok {
		return models.Account{}, pgx.ErrNoRows
	}
	return account, nil
}

func (q *querier) GetAccountForUpdate(ctx context.Context, userID uuid.UUID) (models.Account, error) {
	return q.GetAccount(ctx, userID)
}

func (q *querier) SetAccountBalance(_ context.Context, arg repository.SetAccountBalanceParams) (int64, error) {
	if !domain.IsSupportedCurrency(arg.Currency) {
		return 0, fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, arg.Currency)
	}
	if arg.Balance.IsNegative() {
		return 0, &pgconn.PgError{Code: codeCheckViolation, Message: "balance must not be negative"}
	}
	st, unlock := q.lock()
	defer unlock()
	account, ok := st.accounts[arg.UserID]
	if !ok {
		return 0, nil
	}
	account.SetBalance(arg.Currency, arg.Balance)
	account.UpdatedAt = time.Now().UTC()
	st.accounts[arg.UserID] = account
	return 1, nil
}

func (q *querier) InsertMovement(_ context.Context, arg repository.InsertMovementParams) (models.Movement, error) {
	st, unlock := q.lock()
	defer unlock()
	if _, ok := st.accounts[arg.UserID]; !ok {
		return models.Movement{}, &pgconn.PgError{Code: "23503", Message: "movement account does not exist"}
	}
	m := models.Movement{
		ID:            arg.ID,
		Seq:           st.next(),
		UserID:        arg.UserID,
		Kind:          arg.Kind,
		Currency:      arg.Currency,
		Amount:        arg.Amount,
		BalanceBefore: arg.BalanceBefore,
		BalanceAfter:  arg.BalanceAfter,
		OperatorID:    arg.OperatorID,
		OperationID:   arg.OperationID,
		Description:   arg.Description,
		CreatedAt:     time.Now().UTC(),
	}
	st.movements = append(st.movements, m)
	return m, nil
}

func matchMovement(m models.Movement, f models.MovementFilter) bool {
	switch {
	case f.UserID != nil && m.UserID != *f.UserID:
		return false
	case f.From != nil && m.CreatedAt.Before(*f.From):
		return false
	case f.To != nil && !m.CreatedAt.Before(*f.To):
		return false
	case f.Currency != "" && m.Currency != f.Currency:
		return false
	case f.Kind != "" && m.Kind != f.Kind:
		return false
	case f.MinAmount != nil && m.Amount.Abs().LessThan(*f.MinAmount):
		return false
	case f.MaxAmount != nil && m.Amount.Abs().GreaterThan(*f.MaxAmount):
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(m.Description), needle) && !strings.Contains(m.ID.String(), needle) {
			return false
		}
	}
	return true
}

func (q *querier) ListMovements(_ context.Context, f models.MovementFilter) ([]models.Movement, error) {
	st, unlock := q.lock()
	defer unlock()

	var items []models.Movement
	for _, m := range st.movements {
		if matchMovement(m, f) {
			items = append(items, m)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch f.OrderBy {
		case models.OrderCreatedAsc:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.Seq < b.Seq
		case models.OrderAmountAsc:
			if !a.Amount.Equal(b.Amount) {
				return a.Amount.LessThan(b.Amount)
			}
			return a.Seq > b.Seq
		case models.OrderAmountDesc:
			if !a.Amount.Equal(b.Amount) {
				return a.Amount.GreaterThan(b.Amount)
			}
			return a.Seq > b.Seq
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.Seq > b.Seq
		}
	})
	return window(items, f.Limit, f.Offset), nil
}

func (q *querier) MovementTotals(_ context.Context, f models.MovementFilter) ([]models.CurrencyTotal, error) {
	st, unlock := q.lock()
	defer unlock()
	sums := map[string]decimal.Decimal{}
	for _, m := range st.movements {
		if matchMovement(m, f) {
			sums[m.Currency] = sums[m.Currency].Add(m.Amount)
		}
	}
	return currencyTotals(sums), nil
}

func (q *querier) InsertQuote(_ context.Context, arg repository.InsertQuoteParams) (models.Quote, error) {
	st, unlock := q.lock()
	defer unlock()
	quote := models.Quote{
		ID:          st.next(),
		Currency:    arg.Currency,
		AppliedBuy:  arg.AppliedBuy,
		AppliedSell: arg.AppliedSell,
		RefBuy:      arg.RefBuy,
		RefSell:     arg.RefSell,
		MarginBps:   arg.MarginBps,
		CreatedAt:   time.Now().UTC(),
	}
	st.quotes = append(st.quotes, quote)
	return quote, nil
}

func (q *querier) GetLatestQuote(_ context.Context, currency string) (models.Quote, error) {
	st, unlock := q.lock()
	defer unlock()
	for i := len(st.quotes) - 1; i >= 0; i-- {
		if st.quotes[i].Currency == currency {
			return st.quotes[i], nil
		}
	}
	return models.Quote{}, pgx.ErrNoRows
}

func (q *querier) GetAccountingEntryByKey(_ context.Context, key models.DedupKey) (models.AccountingEntry, error) {
	st, unlock := q.lock()
	defer unlock()
	for _, e := range st.entries {
		if e.Key == key {
			return e, nil
		}
	}
	return models.AccountingEntry{}, pgx.ErrNoRows
}

func (q *querier) InsertAccountingEntry(_ context.Context, arg repository.InsertAccountingEntryParams) (models.AccountingEntry, error) {
	st, unlock := q.lock()
	defer unlock()
	if q.s.entryFault != nil {
		if err := q.s.entryFault(arg.Request); err != nil {
			return models.AccountingEntry{}, err
		}
	}
	r := arg.Request
	for _, e := range st.entries {
		if e.Key == r.Key {
			return models.AccountingEntry{}, pgx.ErrNoRows
		}
	}
	entry := models.AccountingEntry{
		ID:           arg.ID,
		Seq:          st.next(),
		Category:     r.Category,
		Currency:     r.Currency,
		Amount:       r.Amount,
		AmountLocal:  r.AmountLocal,
		UserID:       r.UserID,
		MovementID:   r.MovementID,
		OperatorID:   r.OperatorID,
		RefPrice:     r.RefPrice,
		AppliedPrice: r.AppliedPrice,
		Key:          r.Key,
		Detail:       r.Detail,
		CreatedAt:    time.Now().UTC(),
	}
	st.entries = append(st.entries, entry)
	return entry, nil
}

func matchEntry(e models.AccountingEntry, f models.EntryFilter) bool {
	switch {
	case f.From != nil && e.CreatedAt.Before(*f.From):
		return false
	case f.To != nil && !e.CreatedAt.Before(*f.To):
		return false
	case f.Category != "" && e.Category != f.Category:
		return false
	case f.Currency != "" && e.Currency != f.Currency:
		return false
	case f.UserID != nil && (e.UserID == nil || *e.UserID != *f.UserID):
		return false
	}
	return true
}

func (q *querier) ListAccountingEntries(_ context.Context, f models.EntryFilter) ([]models.AccountingEntry, error) {
	st, unlock := q.lock()
	defer unlock()
	var items []models.AccountingEntry
	for _, e := range st.entries {
		if matchEntry(e, f) {
			items = append(items, e)
		}
	}
	return window(items, f.Limit, f.Offset), nil
}

func (q *querier) SumEntriesByCategory(_ context.Context, f models.EntryFilter) ([]models.CategoryTotal, error) {
	st, unlock := q.lock()
	defer unlock()
	type groupKey struct{ category, currency string }
	groups := map[groupKey]*models.CategoryTotal{}
	for _, e := range st.entries {
		if !matchEntry(e, f) {
			continue
		}
		k := groupKey{e.Category, e.Currency}
		t, ok := groups[k]
		if !ok {
			t = &models.CategoryTotal{Category: e.Category, Currency: e.Currency, Total: decimal.Zero, TotalLocal: decimal.Zero}
			groups[k] = t
		}
		t.Total = t.Total.Add(e.Amount)
		t.TotalLocal = t.TotalLocal.Add(e.AmountLocal)
	}
	totals := make([]models.CategoryTotal, 0, len(groups))
	for _, t := range groups {
		totals = append(totals, *t)
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Category != totals[j].Category {
			return totals[i].Category < totals[j].Category
		}
		return totals[i].Currency < totals[j].Currency
	})
	return totals, nil
}

func (q *querier) DailyRevenue(_ context.Context, f models.EntryFilter) ([]models.DailyTotal, error) {
	st, unlock := q.lock()
	defer unlock()
	days := map[time.Time]decimal.Decimal{}
	for _, e := range st.entries {
		if !matchEntry(e, f) || !domain.AffectsHouseCash(e.Category) {
			continue
		}
		day := e.CreatedAt.UTC().Truncate(24 * time.Hour)
		days[day] = days[day].Add(e.AmountLocal)
	}
	series := make([]models.DailyTotal, 0, len(days))
	for day, total := range days {
		series = append(series, models.DailyTotal{Day: day, TotalLocal: total})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Day.Before(series[j].Day) })
	return series, nil
}

func (q *querier) SumCashAffectingEntries(_ context.Context) ([]models.CurrencyTotal, error) {
	st, unlock := q.lock()
	defer unlock()
	sums := map[string]decimal.Decimal{}
	for _, e := range st.entries {
		if domain.AffectsHouseCash(e.Category) {
			sums[e.Currency] = sums[e.Currency].Add(e.Amount)
		}
	}
	return currencyTotals(sums), nil
}

func (q *querier) GetHousePosition(_ context.Context) (models.HousePosition, error) {
	st, unlock := q.lock()
	defer unlock()
	return st.house, nil
}

func (q *querier) GetHousePositionForUpdate(ctx context.Context) (models.HousePosition, error) {
	return q.GetHousePosition(ctx)
}

func (q *querier) AddToHousePosition(_ context.Context, currency string, amount decimal.Decimal) (int64, error) {
	st, unlock := q.lock()
	defer unlock()
	switch currency {
	case domain.CurrencyARS:
		st.house.ARS = st.house.ARS.Add(amount)
	case domain.CurrencyUSDT:
		st.house.USDT = st.house.USDT.Add(amount)
	case domain.CurrencyUSD:
		st.house.USD = st.house.USD.Add(amount)
	default:
		return 0, fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, currency)
	}
	st.house.UpdatedAt = time.Now().UTC()
	return 1, nil
}

func (q *querier) CreateFundingRequest(_ context.Context, arg repository.CreateFundingRequestParams) (models.FundingRequest, error) {
	st, unlock := q.lock()
	defer unlock()
	if _, ok := st.requests[arg.ID]; ok {
		return models.FundingRequest{}, &pgconn.PgError{Code: codeUniqueViolation}
	}
	now := time.Now().UTC()
	req := models.FundingRequest{
		ID:          arg.ID,
		Kind:        arg.Kind,
		UserID:      arg.UserID,
		Currency:    arg.Currency,
		Amount:      arg.Amount,
		Status:      arg.Status,
		Network:     arg.Network,
		TxID:        arg.TxID,
		Destination: arg.Destination,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	st.requests[arg.ID] = req
	return req, nil
}

func (q *querier) GetFundingRequest(_ context.Context, id uuid.UUID) (models.FundingRequest, error) {
	st, unlock := q.lock()
	defer unlock()
	req, ok := st.requests[id]
	if !ok {
		return models.FundingRequest{}, pgx.ErrNoRows
	}
	return req, nil
}

func (q *querier) GetFundingRequestForUpdate(ctx context.Context, id uuid.UUID) (models.FundingRequest, error) {
	return q.GetFundingRequest(ctx, id)
}

func (q *querier) UpdateFundingRequestStatus(_ context.Context, arg repository.UpdateFundingRequestStatusParams) (int64, error) {
	st, unlock := q.lock()
	defer unlock()
	req, ok := st.requests[arg.ID]
	if !ok {
		return 0, nil
	}
	req.Status = arg.Status
	if arg.OperatorID != nil {
		req.OperatorID = arg.OperatorID
	}
	if arg.TxID != nil {
		req.TxID = *arg.TxID
	}
	req.UpdatedAt = time.Now().UTC()
	st.requests[arg.ID] = req
	return 1, nil
}

func (q *querier) ListFundingRequests(_ context.Context, arg repository.ListFundingRequestsParams) ([]models.FundingRequest, error) {
	st, unlock := q.lock()
	defer unlock()
	var items []models.FundingRequest
	for _, r := range st.requests {
		if arg.Kind != "" && r.Kind != arg.Kind {
			continue
		}
		if arg.Status != "" && r.Status != arg.Status {
			continue
		}
		if arg.UserID != nil && r.UserID != *arg.UserID {
			continue
		}
		items = append(items, r)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
	return window(items, arg.Limit, arg.Offset), nil
}

func (q *querier) InsertAuditLog(_ context.Context, arg repository.InsertAuditLogParams) (int64, error) {
	st, unlock := q.lock()
	defer unlock()
	entry := models.AuditEntry{
		ID:         st.next(),
		EntityType: arg.EntityType,
		EntityID:   repository.FromPgUUID(arg.EntityID),
		ActorID:    repository.OptionalUUID(arg.ActorID),
		Action:     arg.Action,
		Metadata:   arg.Metadata,
		CreatedAt:  time.Now().UTC(),
	}
	if arg.PrevState != nil {
		entry.PrevState = *arg.PrevState
	}
	if arg.NextState != nil {
		entry.NextState = *arg.NextState
	}
	st.audit = append(st.audit, entry)
	return entry.ID, nil
}

func (q *querier) ListAuditLog(_ context.Context, entityType string, entityID uuid.UUID) ([]models.AuditEntry, error) {
	st, unlock := q.lock()
	defer unlock()
	var items []models.AuditEntry
	for _, e := range st.audit {
		if e.EntityType == entityType && e.EntityID == entityID {
			items = append(items, e)
		}
	}
	return items, nil
}

func (q *querier) EnqueuePosting(_ context.Context, arg repository.EnqueuePostingParams) (models.PendingPosting, bool, error) {
	st, unlock := q.lock()
	defer unlock()
	for _, p := range st.postings {
		if p.Key == arg.Request.Key {
			return models.PendingPosting{}, false, nil
		}
	}
	now := time.Now().UTC()
	p := models.PendingPosting{
		ID:        arg.ID,
		Key:       arg.Request.Key,
		Request:   arg.Request,
		Status:    domain.PostingStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	st.postings = append(st.postings, p)
	return p, true, nil
}

func (q *querier) ListPendingPostings(_ context.Context, limit int32) ([]models.PendingPosting, error) {
	st, unlock := q.lock()
	defer unlock()
	var items []models.PendingPosting
	for _, p := range st.postings {
		if p.Status == domain.PostingStatusPending {
			items = append(items, p)
		}
	}
	return window(items, limit, 0), nil
}

func (q *querier) GetPendingPostingForUpdate(_ context.Context, id uuid.UUID) (models.PendingPosting, error) {
	st, unlock := q.lock()
	defer unlock()
	for _, p := range st.postings {
		if p.ID == id && p.Status == domain.PostingStatusPending {
			return p, nil
		}
	}
	return models.PendingPosting{}, pgx.ErrNoRows
}

func (q *querier) updatePosting(id uuid.UUID, onlyPending bool, fn func(*models.PendingPosting)) int64 {
	st, unlock := q.lock()
	defer unlock()
	for i := range st.postings {
		p := &st.postings[i]
		if p.ID != id || (onlyPending && p.Status != domain.PostingStatusPending) {
			continue
		}
		fn(p)
		p.Attempts++
		p.UpdatedAt = time.Now().UTC()
		return 1
	}
	return 0
}

func (q *querier) MarkPostingDone(_ context.Context, id uuid.UUID) (int64, error) {
	return q.updatePosting(id, false, func(p *models.PendingPosting) {
		p.Status = domain.PostingStatusDone
		p.LastError = ""
	}), nil
}

func (q *querier) MarkPostingFailed(_ context.Context, id uuid.UUID, lastError string) (int64, error) {
	return q.updatePosting(id, true, func(p *models.PendingPosting) {
		p.LastError = lastError
	}), nil
}

func (q *querier) CountPendingPostings(_ context.Context) (int64, error) {
	st, unlock := q.lock()
	defer unlock()
	var n int64
	for _, p := range st.postings {
		if p.Status == domain.PostingStatusPending {
			n++
		}
	}
	return n, nil
}

func window[T any](items []T, limit, offset int32) []T {
	if offset > 0 {
		if int(offset) >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items
}

func currencyTotals(sums map[string]decimal.Decimal) []models.CurrencyTotal {
	totals := make([]models.CurrencyTotal, 0, len(sums))
	for ccy, total := range sums {
		totals = append(totals, models.CurrencyTotal{Currency: ccy, Total: total})
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Currency < totals[j].Currency })
	return totals
}
