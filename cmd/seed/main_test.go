package main

import (
	"context"
	"database/sql"
	"testing"

	"nano-pos/internal/domain"
	"nano-pos/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducts struct {
	byID map[int64]*domain.Product
}

func (f *fakeProducts) Create(ctx context.Context, product *domain.Product) error {
	for _, p := range f.byID {
		if p.SKU == product.SKU {
			return repository.ErrDuplicateSKU
		}
	}
	product.ID = int64(len(f.byID) + 1)
	f.byID[product.ID] = product
	return nil
}

func (f *fakeProducts) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	if p, ok := f.byID[id]; ok {
		return p, nil
	}
	return nil, repository.ErrProductNotFound
}

func (f *fakeProducts) FindBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	for _, p := range f.byID {
		if p.SKU == sku {
			return p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

// List mimics the substring search so an exact lookup is required to pick
// the right product.
func (f *fakeProducts) List(ctx context.Context, search string, limit, offset int) ([]*domain.Product, int, error) {
	out := []*domain.Product{}
	for id := int64(1); id <= int64(len(f.byID)); id++ {
		out = append(out, f.byID[id])
	}
	return out, len(out), nil
}

type fakeStock struct {
	quantities map[int64]int
}

func (f *fakeStock) GetQuantity(ctx context.Context, productID int64) (int, error) {
	qty, ok := f.quantities[productID]
	if !ok {
		return 0, repository.ErrStockNotFound
	}
	return qty, nil
}

func (f *fakeStock) DecrementIfSufficient(ctx context.Context, q repository.Querier, productID int64, amount int) (bool, error) {
	return false, nil
}

func (f *fakeStock) DecrementBatch(ctx context.Context, tx *sql.Tx, items []domain.LineItem) error {
	return nil
}

func (f *fakeStock) Replenish(ctx context.Context, productID int64, amount int) (int, error) {
	return 0, nil
}

func (f *fakeStock) Set(ctx context.Context, productID int64, quantity int) (*domain.StockEntry, error) {
	f.quantities[productID] = quantity
	return &domain.StockEntry{ProductID: productID, Quantity: quantity}, nil
}

func (f *fakeStock) List(ctx context.Context) ([]*domain.StockEntry, error) {
	return nil, nil
}

func TestEnsureProduct(t *testing.T) {
	ctx := context.Background()
	products := &fakeProducts{byID: map[int64]*domain.Product{}}
	stock := &fakeStock{quantities: map[int64]int{}}

	decoy := &domain.Product{SKU: "XTS-BLK-M", Name: "Decoy"}
	require.NoError(t, products.Create(ctx, decoy))
	stock.quantities[decoy.ID] = 3

	sp := catalog[0]

	t.Run("creates product with opening stock", func(t *testing.T) {
		p, err := ensureProduct(ctx, products, stock, sp)
		require.NoError(t, err)
		assert.Equal(t, sp.sku, p.SKU)
		assert.Equal(t, sp.stock, stock.quantities[p.ID])
	})

	t.Run("rerun returns the exact sku and keeps stock", func(t *testing.T) {
		existing, err := products.FindBySKU(ctx, sp.sku)
		require.NoError(t, err)
		stock.quantities[existing.ID] = 7

		p, err := ensureProduct(ctx, products, stock, sp)
		require.NoError(t, err)
		assert.Equal(t, existing.ID, p.ID)
		assert.Equal(t, 7, stock.quantities[p.ID])
		assert.Equal(t, 3, stock.quantities[decoy.ID])
	})

	t.Run("rerun restores a missing ledger row", func(t *testing.T) {
		existing, err := products.FindBySKU(ctx, sp.sku)
		require.NoError(t, err)
		delete(stock.quantities, existing.ID)

		p, err := ensureProduct(ctx, products, stock, sp)
		require.NoError(t, err)
		assert.Equal(t, sp.stock, stock.quantities[p.ID])
	})
}
