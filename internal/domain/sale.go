package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Sale is an immutable record of a committed checkout
type Sale struct {
	ID             int64           `json:"id" db:"id"`
	TotalAmount    decimal.Decimal `json:"total_amount" db:"total_amount"`
	VATAmount      decimal.Decimal `json:"vat_amount" db:"vat_amount"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty" db:"idempotency_key"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	Items          []LineItem      `json:"items,omitempty"`
}

// LineItem is one product line of a sale. UnitPrice is the price at the time of sale.
type LineItem struct {
	ID        int64           `json:"id" db:"id"`
	SaleID    int64           `json:"sale_id" db:"sale_id"`
	ProductID int64           `json:"product_id" db:"product_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
}

// Amount returns quantity * unit price.
func (l LineItem) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// DailySales is one row of the per-day aggregate report
type DailySales struct {
	Date       string          `json:"date"`
	TotalSales decimal.Decimal `json:"total_sales"`
	NumSales   int             `json:"num_sales"`
}

// AggregateStock folds cart lines into one delta per product, sorted by
// ascending product id. The sort order is the lock acquisition order.
func AggregateStock(items []LineItem) []StockDelta {
	totals := make(map[int64]int, len(items))
	for _, item := range items {
		totals[item.ProductID] += item.Quantity
	}

	deltas := make([]StockDelta, 0, len(totals))
	for id, amount := range totals {
		deltas = append(deltas, StockDelta{ProductID: id, Amount: amount})
	}
	sort.Slice(deltas, func(i, j int) bool {
		return deltas[i].ProductID < deltas[j].ProductID
	})
	return deltas
}
