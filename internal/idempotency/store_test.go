package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeys struct {
	mu   sync.Mutex
	rows map[string]repository.IdempotencyKey
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{rows: map[string]repository.IdempotencyKey{}}
}

func (f *fakeKeys) GetIdempotencyKey(_ context.Context, key string) (repository.IdempotencyKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[key]
	if !ok {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	return row, nil
}

func (f *fakeKeys) ReserveIdempotencyKey(_ context.Context, arg repository.ReserveIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[arg.IdempotencyKey]; ok {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	row := repository.IdempotencyKey{IdempotencyKey: arg.IdempotencyKey, RequestHash: arg.RequestHash, InProgress: true}
	f.rows[arg.IdempotencyKey] = row
	return row, nil
}

func (f *fakeKeys) FinalizeIdempotencyKey(_ context.Context, arg repository.FinalizeIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[arg.IdempotencyKey]
	if !ok || row.RequestHash != arg.RequestHash {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	row.InProgress = false
	row.ResponseStatus = arg.ResponseStatus
	row.ResponseBody = arg.ResponseBody
	row.ContentType = arg.ContentType
	f.rows[arg.IdempotencyKey] = row
	return row, nil
}

func (f *fakeKeys) ReleaseIdempotencyKey(_ context.Context, key, requestHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[key]; ok && row.InProgress && row.RequestHash == requestHash {
		delete(f.rows, key)
	}
	return nil
}

func TestStore_ReserveFinalizeReplay(t *testing.T) {
	store := NewStore(nil, newFakeKeys(), time.Minute)
	ctx := context.Background()

	_, err := store.Lookup(ctx, "k1", "h1")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := store.Reserve(ctx, "k1", "h1", "POST", "/v1/operations/buy")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Reserve(ctx, "k1", "h1", "POST", "/v1/operations/buy")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Lookup(ctx, "k1", "h1")
	assert.ErrorIs(t, err, ErrInProgress)

	rec, err := store.Finalize(ctx, "k1", "h1", 201, []byte(`{"ok":true}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)

	replay, err := store.Lookup(ctx, "k1", "h1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"ok":true}`), replay.Body)
	assert.Equal(t, "postgres", replay.ServedBy)

	_, err = store.Lookup(ctx, "k1", "other-body")
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestStore_ReleaseAllowsRetry(t *testing.T) {
	store := NewStore(nil, newFakeKeys(), time.Minute)
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "k2", "h2", "POST", "/v1/operations/sell")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.Release(ctx, "k2", "h2"))

	ok, err = store.Reserve(ctx, "k2", "h2", "POST", "/v1/operations/sell")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_WaitForCompletion(t *testing.T) {
	store := NewStore(nil, newFakeKeys(), time.Minute)
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "k3", "h3", "POST", "/v1/operations/swap")
	require.NoError(t, err)
	require.True(t, ok)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = store.Finalize(context.Background(), "k3", "h3", 200, []byte("done"), "text/plain")
	}()

	rec, err := store.WaitForCompletion(ctx, "k3", "h3")
	require.NoError(t, err)
	assert.Equal(t, []byte("done"), rec.Body)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	ok, err = store.Reserve(ctx, "k4", "h4", "POST", "/v1/operations/swap")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = store.WaitForCompletion(waitCtx, "k4", "h4")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
