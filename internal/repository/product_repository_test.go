package repository

import (
	"context"
	"fmt"
	"testing"

	"nano-pos/internal/domain"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductRepository_List(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewProductRepository(testDB)

	seedProduct(t, "TS-BLK-M", "119.99", 1)
	seedProduct(t, "TS-WHT-L", "119.99", 1)
	seedProduct(t, "JN-BLU-32", "349.99", 1)

	all, total, err := repo.List(ctx, "", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 2)
	assert.Equal(t, "TS-BLK-M", all[0].SKU)

	shirts, total, err := repo.List(ctx, "ts-", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, shirts, 2)

	none, total, err := repo.List(ctx, "100%", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, none)

	_, _, err = repo.List(ctx, "", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidPagination)
}

func TestProductRepository_DuplicateSKU(t *testing.T) {
	resetTables(t)
	seedProduct(t, "SK-GRY-10", "99.99", 1)

	err := NewProductRepository(testDB).Create(context.Background(), &domain.Product{
		SKU: "SK-GRY-10", Name: "Again", UnitPrice: decimal.RequireFromString("1.00"),
	})
	assert.ErrorIs(t, err, ErrDuplicateSKU)

	_, err = NewProductRepository(testDB).FindByID(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestProductRepository_FindBySKU(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewProductRepository(testDB)

	seedProduct(t, "TS-BLK-M", "119.99", 1)
	want := seedProduct(t, "TS", "9.99", 1)

	found, err := repo.FindBySKU(ctx, "TS")
	require.NoError(t, err)
	assert.Equal(t, want.ID, found.ID)

	_, err = repo.FindBySKU(ctx, "ts")
	assert.ErrorIs(t, err, ErrProductNotFound)
	_, err = repo.FindBySKU(ctx, "TS-BLK")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

// Feature: nano-pos, Property 9: Product creation preserves attributes
func TestProperty_ProductCreationPreservesAttributes(t *testing.T) {
	resetTables(t)
	repo := NewProductRepository(testDB)
	ctx := context.Background()
	seq := 0

	properties := gopter.NewProperties(nil)

	properties.Property("creating and retrieving a product preserves all attributes", prop.ForAll(
		func(name string, cents int64, color string) bool {
			seq++
			product := &domain.Product{
				SKU:       fmt.Sprintf("SKU-%d", seq),
				Name:      name,
				UnitPrice: decimal.New(cents, -2),
				Color:     color,
				Sizing:    "M",
			}
			if err := repo.Create(ctx, product); err != nil {
				t.Logf("Failed to create product: %v", err)
				return false
			}

			found, err := repo.FindByID(ctx, product.ID)
			if err != nil {
				t.Logf("Failed to find product: %v", err)
				return false
			}

			return found.SKU == product.SKU &&
				found.Name == name &&
				found.UnitPrice.Equal(product.UnitPrice) &&
				found.Color == color &&
				found.Sizing == "M"
		},
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 && len(s) <= 255 }),
		gen.Int64Range(0, 10_000_000),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) <= 50 }),
	))

	properties.TestingRun(t)
}
