package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a sellable catalog entry
type Product struct {
	ID        int64           `json:"id" db:"id"`
	SKU       string          `json:"sku" db:"sku"`
	Name      string          `json:"name" db:"name"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	Color     string          `json:"color" db:"color"`
	Sizing    string          `json:"sizing" db:"sizing"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// StockEntry is the ledger row holding the available quantity of one product
type StockEntry struct {
	ID          int64     `json:"id" db:"id"`
	ProductID   int64     `json:"product_id" db:"product_id"`
	ProductName string    `json:"product_name,omitempty" db:"product_name"`
	Quantity    int       `json:"quantity" db:"quantity"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// StockDelta is an aggregated decrement request for one product.
type StockDelta struct {
	ProductID int64
	Amount    int
}
