package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"nano-pos/internal/domain"
)

var (
	ErrStockNotFound           = errors.New("stock entry not found")
	ErrInvalidQuantity         = errors.New("quantity must not be negative")
	ErrStockChangedWhileLocked = errors.New("stock row changed while locked")
)

// StockRepository is the stock ledger. There is no unconditional decrement:
// every decrement checks the available quantity under the row lock.
type StockRepository interface {
	GetQuantity(ctx context.Context, productID int64) (int, error)
	DecrementIfSufficient(ctx context.Context, q Querier, productID int64, amount int) (bool, error)
	DecrementBatch(ctx context.Context, tx *sql.Tx, items []domain.LineItem) error
	Replenish(ctx context.Context, productID int64, amount int) (int, error)
	Set(ctx context.Context, productID int64, quantity int) (*domain.StockEntry, error)
	List(ctx context.Context) ([]*domain.StockEntry, error)
}

type stockRepository struct {
	db *sql.DB
}

// NewStockRepository creates a new instance of StockRepository
func NewStockRepository(db *sql.DB) StockRepository {
	return &stockRepository{db: db}
}

// GetQuantity returns the committed available quantity for a product
func (r *stockRepository) GetQuantity(ctx context.Context, productID int64) (int, error) {
	var quantity int
	err := r.db.QueryRowContext(ctx,
		`SELECT quantity FROM stock WHERE product_id = $1`, productID,
	).Scan(&quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrStockNotFound
		}
		return 0, fmt.Errorf("failed to get stock quantity: %w", err)
	}
	return quantity, nil
}

// DecrementIfSufficient decrements in a single statement. The UPDATE takes the
// row lock before re-evaluating the predicate, so concurrent callers are
// serialized per product and quantity never goes below zero.
func (r *stockRepository) DecrementIfSufficient(ctx context.Context, q Querier, productID int64, amount int) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidQuantity
	}
	if q == nil {
		q = r.db
	}

	result, err := q.ExecContext(ctx, `
		UPDATE stock
		SET quantity = quantity - $2
		WHERE product_id = $1 AND quantity >= $2
	`, productID, amount)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// DecrementBatch applies every cart line in one round of locking. Rows are
// locked in ascending product id order, the same order for every caller, so
// two carts sharing products cannot wait on each other in a cycle. Lines are
// checked in cart order and the first failing line is reported.
func (r *stockRepository) DecrementBatch(ctx context.Context, tx *sql.Tx, items []domain.LineItem) error {
	deltas := domain.AggregateStock(items)
	if len(deltas) == 0 {
		return nil
	}

	ids := make([]int64, len(deltas))
	amounts := make([]int64, len(deltas))
	requested := make(map[int64]int, len(deltas))
	for i, d := range deltas {
		ids[i] = d.ProductID
		amounts[i] = int64(d.Amount)
		requested[d.ProductID] = d.Amount
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM stock
		WHERE product_id = ANY($1::bigint[])
		ORDER BY product_id
		FOR UPDATE
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to lock stock rows: %w", err)
	}

	available := make(map[int64]int, len(deltas))
	for rows.Next() {
		var productID int64
		var quantity int
		if err := rows.Scan(&productID, &quantity); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan stock row: %w", err)
		}
		available[productID] = quantity
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating stock rows: %w", err)
	}
	rows.Close()

	checked := make(map[int64]bool, len(deltas))
	for _, item := range items {
		if checked[item.ProductID] {
			continue
		}
		checked[item.ProductID] = true

		quantity, ok := available[item.ProductID]
		if !ok {
			return &domain.UnknownProductError{ProductID: item.ProductID}
		}
		if quantity < requested[item.ProductID] {
			return &domain.InsufficientStockError{
				ProductID: item.ProductID,
				Requested: requested[item.ProductID],
				Available: quantity,
			}
		}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE stock AS s
		SET quantity = s.quantity - d.amount
		FROM unnest($1::bigint[], $2::bigint[]) AS d(product_id, amount)
		WHERE s.product_id = d.product_id AND s.quantity >= d.amount
	`, ids, amounts)
	if err != nil {
		return fmt.Errorf("failed to apply stock decrements: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected != int64(len(deltas)) {
		return ErrStockChangedWhileLocked
	}

	return nil
}

// Replenish increments stock and returns the new quantity
func (r *stockRepository) Replenish(ctx context.Context, productID int64, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidQuantity
	}

	var quantity int
	err := r.db.QueryRowContext(ctx, `
		UPDATE stock
		SET quantity = quantity + $2
		WHERE product_id = $1
		RETURNING quantity
	`, productID, amount).Scan(&quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrStockNotFound
		}
		return 0, fmt.Errorf("failed to replenish stock: %w", err)
	}
	return quantity, nil
}

// Set creates or overwrites the stock row of a product
func (r *stockRepository) Set(ctx context.Context, productID int64, quantity int) (*domain.StockEntry, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}

	entry := &domain.StockEntry{}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO stock (product_id, quantity)
		VALUES ($1, $2)
		ON CONFLICT (product_id) DO UPDATE SET quantity = EXCLUDED.quantity
		RETURNING id, product_id, quantity, updated_at
	`, productID, quantity).Scan(
		&entry.ID,
		&entry.ProductID,
		&entry.Quantity,
		&entry.UpdatedAt,
	)
	if err != nil {
		switch pgCode(err) {
		case pgForeignKeyViolation:
			return nil, ErrProductNotFound
		case pgCheckViolation:
			return nil, ErrInvalidQuantity
		}
		return nil, fmt.Errorf("failed to set stock: %w", err)
	}
	return entry, nil
}

// List returns every stock row joined with its product name
func (r *stockRepository) List(ctx context.Context) ([]*domain.StockEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.product_id, p.name, s.quantity, s.updated_at
		FROM stock s
		JOIN products p ON s.product_id = p.id
		ORDER BY s.product_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock: %w", err)
	}
	defer rows.Close()

	entries := []*domain.StockEntry{}
	for rows.Next() {
		entry := &domain.StockEntry{}
		if err := rows.Scan(
			&entry.ID,
			&entry.ProductID,
			&entry.ProductName,
			&entry.Quantity,
			&entry.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stock entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stock: %w", err)
	}

	return entries, nil
}
