package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nano-pos/internal/domain"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedProduct creates a product with the given opening stock
func seedProduct(t *testing.T, sku string, price string, quantity int) *domain.Product {
	t.Helper()
	ctx := context.Background()

	p := &domain.Product{SKU: sku, Name: "Product " + sku, UnitPrice: decimal.RequireFromString(price)}
	require.NoError(t, NewProductRepository(testDB).Create(ctx, p))
	_, err := NewStockRepository(testDB).Set(ctx, p.ID, quantity)
	require.NoError(t, err)
	return p
}

func quantityOf(t *testing.T, productID int64) int {
	t.Helper()
	q, err := NewStockRepository(testDB).GetQuantity(context.Background(), productID)
	require.NoError(t, err)
	return q
}

func TestStockRepository_SetAndReplenish(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewStockRepository(testDB)
	p := seedProduct(t, "TS-BLK-M", "119.99", 10)

	entry, err := repo.Set(ctx, p.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, entry.Quantity)

	quantity, err := repo.Replenish(ctx, p.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 7, quantity)

	_, err = repo.Set(ctx, p.ID, -1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = repo.Set(ctx, 9999, 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
	_, err = repo.Replenish(ctx, 9999, 1)
	assert.ErrorIs(t, err, ErrStockNotFound)
	_, err = repo.Replenish(ctx, p.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	entries, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Product TS-BLK-M", entries[0].ProductName)
}

func TestStockRepository_DecrementIfSufficient(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewStockRepository(testDB)
	p := seedProduct(t, "SK-GRY-10", "99.99", 2)

	ok, err := repo.DecrementIfSufficient(ctx, testDB, p.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.DecrementIfSufficient(ctx, testDB, p.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, quantityOf(t, p.ID))
}

func TestStockRepository_DecrementBatch(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewStockRepository(testDB)
	tx := NewTxManager(testDB, time.Second)

	a := seedProduct(t, "A", "1.00", 5)
	b := seedProduct(t, "B", "1.00", 1)

	t.Run("applies aggregated decrements", func(t *testing.T) {
		err := tx.WithinTx(ctx, func(tx *sql.Tx) error {
			return repo.DecrementBatch(ctx, tx, []domain.LineItem{
				{ProductID: a.ID, Quantity: 2},
				{ProductID: b.ID, Quantity: 1},
				{ProductID: a.ID, Quantity: 1},
			})
		})
		require.NoError(t, err)
		assert.Equal(t, 2, quantityOf(t, a.ID))
		assert.Equal(t, 0, quantityOf(t, b.ID))
	})

	t.Run("reports the first failing line in cart order", func(t *testing.T) {
		err := tx.WithinTx(ctx, func(tx *sql.Tx) error {
			return repo.DecrementBatch(ctx, tx, []domain.LineItem{
				{ProductID: b.ID, Quantity: 1},
				{ProductID: 9999, Quantity: 1},
			})
		})
		var insufficient *domain.InsufficientStockError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, b.ID, insufficient.ProductID)
		assert.Equal(t, 0, insufficient.Available)

		err = tx.WithinTx(ctx, func(tx *sql.Tx) error {
			return repo.DecrementBatch(ctx, tx, []domain.LineItem{
				{ProductID: 9999, Quantity: 1},
				{ProductID: b.ID, Quantity: 1},
			})
		})
		var unknown *domain.UnknownProductError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, int64(9999), unknown.ProductID)
	})

	t.Run("aggregated quantity is checked against stock", func(t *testing.T) {
		err := tx.WithinTx(ctx, func(tx *sql.Tx) error {
			return repo.DecrementBatch(ctx, tx, []domain.LineItem{
				{ProductID: a.ID, Quantity: 2},
				{ProductID: a.ID, Quantity: 1},
			})
		})
		var insufficient *domain.InsufficientStockError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, 3, insufficient.Requested)
		assert.Equal(t, 2, quantityOf(t, a.ID))
	})
}

func TestStockRepository_OpposingCartsDoNotDeadlock(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewStockRepository(testDB)
	tx := NewTxManager(testDB, 5*time.Second)

	a := seedProduct(t, "A", "1.00", 1000)
	b := seedProduct(t, "B", "1.00", 1000)

	const workers = 10
	const rounds = 20

	var wg sync.WaitGroup
	errs := make(chan error, workers*rounds)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			cart := []domain.LineItem{{ProductID: a.ID, Quantity: 1}, {ProductID: b.ID, Quantity: 1}}
			if w%2 == 1 {
				cart[0], cart[1] = cart[1], cart[0]
			}
			for i := 0; i < rounds; i++ {
				errs <- tx.WithinTx(ctx, func(tx *sql.Tx) error {
					return repo.DecrementBatch(ctx, tx, cart)
				})
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1000-workers*rounds, quantityOf(t, a.ID))
	assert.Equal(t, 1000-workers*rounds, quantityOf(t, b.ID))
}

// Feature: nano-pos, Property 8: Concurrent decrements never oversell
func TestProperty_ConcurrentDecrementsNeverOversell(t *testing.T) {
	ctx := context.Background()
	repo := NewStockRepository(testDB)
	tx := NewTxManager(testDB, 5*time.Second)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 10
	properties := gopter.NewProperties(parameters)

	properties.Property("successful decrements equal the opening stock at most", prop.ForAll(
		func(stock, buyers int) bool {
			resetTables(t)
			p := seedProduct(t, "LAST-UNITS", "5.00", stock)

			var sold atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < buyers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := tx.WithinTx(ctx, func(tx *sql.Tx) error {
						return repo.DecrementBatch(ctx, tx, []domain.LineItem{{ProductID: p.ID, Quantity: 1}})
					})
					var insufficient *domain.InsufficientStockError
					switch {
					case err == nil:
						sold.Add(1)
					case errors.As(err, &insufficient):
					default:
						t.Logf("unexpected decrement error: %v", err)
					}
				}()
			}
			wg.Wait()

			remaining := quantityOf(t, p.ID)
			return remaining >= 0 &&
				int(sold.Load()) == min(stock, buyers) &&
				remaining == stock-int(sold.Load())
		},
		gen.IntRange(0, 5),
		gen.IntRange(1, 12),
	))

	properties.TestingRun(t)
}
