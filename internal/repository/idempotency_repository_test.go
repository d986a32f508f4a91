package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"nano-pos/internal/domain"
	"nano-pos/internal/idempotency"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fingerprintA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
const fingerprintB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

func newTestKeyStore(lease time.Duration) *idempotencyRepository {
	return NewIdempotencyRepository(testDB, lease).(*idempotencyRepository)
}

func TestIdempotencyRepository_Lifecycle(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	store := newTestKeyStore(time.Minute)

	rec, acquired, err := store.Begin(ctx, "k1", fingerprintA)
	require.NoError(t, err)
	require.True(t, acquired)
	assert.Equal(t, domain.IdempotencyInFlight, rec.Status)

	again, acquired, err := store.Begin(ctx, "k1", fingerprintA)
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.Equal(t, domain.IdempotencyInFlight, again.Status)
	assert.Equal(t, rec.Owner, again.Owner)

	assert.ErrorIs(t, store.Complete(ctx, "k1", "00000000-0000-0000-0000-000000000000", domain.SucceededWith(1)), idempotency.ErrLeaseLost)
	require.NoError(t, store.Complete(ctx, "k1", rec.Owner, domain.SucceededWith(42)))

	done, err := store.Lookup(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencySucceeded, done.Status)
	require.NotNil(t, done.SaleID)
	assert.Equal(t, int64(42), *done.SaleID)
	assert.NotNil(t, done.CompletedAt)

	// Completed keys are never reacquired
	_, acquired, err = store.Begin(ctx, "k1", fingerprintA)
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestIdempotencyRepository_RecordsFailure(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	store := newTestKeyStore(time.Minute)

	rec, _, err := store.Begin(ctx, "k2", fingerprintA)
	require.NoError(t, err)

	failure, ok := domain.FailureFromError(&domain.InsufficientStockError{ProductID: 7, Requested: 3, Available: 1})
	require.True(t, ok)
	require.NoError(t, store.Complete(ctx, "k2", rec.Owner, domain.FailedWith(failure)))

	done, err := store.Lookup(ctx, "k2")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyFailed, done.Status)
	assert.Nil(t, done.SaleID)
	require.NotNil(t, done.Failure)
	assert.Equal(t, *failure, *done.Failure)
}

func TestIdempotencyRepository_Release(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	store := newTestKeyStore(time.Minute)

	rec, _, err := store.Begin(ctx, "k3", fingerprintA)
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "k3", rec.Owner))
	assert.ErrorIs(t, store.Release(ctx, "k3", rec.Owner), idempotency.ErrLeaseLost)

	_, err = store.Lookup(ctx, "k3")
	assert.ErrorIs(t, err, idempotency.ErrKeyNotFound)

	_, acquired, err := store.Begin(ctx, "k3", fingerprintA)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestIdempotencyRepository_ReclaimsExpiredLease(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	store := newTestKeyStore(time.Minute)

	clock := time.Now()
	store.now = func() time.Time { return clock }

	first, _, err := store.Begin(ctx, "k4", fingerprintA)
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)

	// A different cart never takes over the key
	rec, acquired, err := store.Begin(ctx, "k4", fingerprintB)
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.Equal(t, first.Owner, rec.Owner)

	second, acquired, err := store.Begin(ctx, "k4", fingerprintA)
	require.NoError(t, err)
	require.True(t, acquired)
	assert.NotEqual(t, first.Owner, second.Owner)

	assert.ErrorIs(t, store.Complete(ctx, "k4", first.Owner, domain.SucceededWith(1)), idempotency.ErrLeaseLost)
	require.NoError(t, store.Complete(ctx, "k4", second.Owner, domain.SucceededWith(2)))
}

func TestIdempotencyRepository_SingleWinnerUnderContention(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	store := newTestKeyStore(time.Minute)

	const callers = 16
	var (
		mu      sync.Mutex
		winners int
		wg      sync.WaitGroup
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, acquired, err := store.Begin(ctx, "hot", fingerprintA)
			if err != nil {
				t.Errorf("begin failed: %v", err)
				return
			}
			if acquired {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestIdempotencyRepository_Purge(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	store := newTestKeyStore(time.Minute)

	clock := time.Now().Add(-100 * time.Hour)
	store.now = func() time.Time { return clock }

	old, _, err := store.Begin(ctx, "old-done", fingerprintA)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "old-done", old.Owner, domain.SucceededWith(1)))
	_, _, err = store.Begin(ctx, "old-abandoned", fingerprintA)
	require.NoError(t, err)

	clock = time.Now()
	_, _, err = store.Begin(ctx, "fresh", fingerprintA)
	require.NoError(t, err)

	removed, err := store.Purge(ctx, clock.Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = store.Lookup(ctx, "old-done")
	assert.ErrorIs(t, err, idempotency.ErrKeyNotFound)
	_, err = store.Lookup(ctx, "fresh")
	assert.NoError(t, err)
}
