package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"nano-pos/internal/domain"
)

const salesIdempotencyConstraint = "uq_sales_idempotency_key"

var (
	ErrSaleNotFound = errors.New("sale not found")
	// ErrDuplicateIdempotencyKey means a sale was already committed under the key.
	ErrDuplicateIdempotencyKey = errors.New("sale already committed for idempotency key")
)

// SaleRepository defines the interface for sale data access. Sales are only
// ever created inside the commit transaction and are never updated.
type SaleRepository interface {
	Create(ctx context.Context, tx *sql.Tx, sale *domain.Sale) error
	LockIdempotencyKey(ctx context.Context, tx *sql.Tx, key string) (int64, bool, error)
	FindByID(ctx context.Context, id int64) (*domain.Sale, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Sale, error)
	ListItems(ctx context.Context, saleID *int64) ([]domain.LineItem, error)
	DailySales(ctx context.Context, from, to time.Time) ([]domain.DailySales, error)
}

type saleRepository struct {
	db *sql.DB
}

// NewSaleRepository creates a new instance of SaleRepository
func NewSaleRepository(db *sql.DB) SaleRepository {
	return &saleRepository{db: db}
}

// Create inserts the sale row and all of its line items in one batched
// statement. The caller owns the transaction.
func (r *saleRepository) Create(ctx context.Context, tx *sql.Tx, sale *domain.Sale) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO sales (total_amount, vat_amount, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, sale.TotalAmount, sale.VATAmount, sale.IdempotencyKey, sale.CreatedAt).Scan(&sale.ID)
	if err != nil {
		if pgCode(err) == pgUniqueViolation && pgConstraint(err) == salesIdempotencyConstraint {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to create sale: %w", err)
	}

	if len(sale.Items) == 0 {
		return nil
	}

	productIDs := make([]int64, len(sale.Items))
	quantities := make([]int64, len(sale.Items))
	prices := make([]string, len(sale.Items))
	for i := range sale.Items {
		sale.Items[i].SaleID = sale.ID
		productIDs[i] = sale.Items[i].ProductID
		quantities[i] = int64(sale.Items[i].Quantity)
		prices[i] = sale.Items[i].UnitPrice.StringFixed(domain.MoneyPlaces)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sale_items (sale_id, product_id, quantity, unit_price)
		SELECT $1, t.product_id, t.quantity, t.unit_price
		FROM unnest($2::bigint[], $3::bigint[], $4::numeric[])
			WITH ORDINALITY AS t(product_id, quantity, unit_price, ord)
		ORDER BY t.ord
	`, sale.ID, productIDs, quantities, prices)
	if err != nil {
		return fmt.Errorf("failed to create sale items: %w", err)
	}

	return nil
}

// LockIdempotencyKey serialises commits for key until tx ends and reports
// the sale already committed under it, if any. Callers check this before
// touching stock so a resubmitted cart never competes with its own sale.
func (r *saleRepository) LockIdempotencyKey(ctx context.Context, tx *sql.Tx, key string) (int64, bool, error) {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return 0, false, fmt.Errorf("failed to lock idempotency key: %w", err)
	}

	var id int64
	err := tx.QueryRowContext(ctx, `
		SELECT id
		FROM sales
		WHERE idempotency_key = $1
	`, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return id, true, nil
}

// FindByID retrieves a sale together with its line items
func (r *saleRepository) FindByID(ctx context.Context, id int64) (*domain.Sale, error) {
	sale, err := scanSale(r.db.QueryRowContext(ctx, `
		SELECT id, total_amount, vat_amount, idempotency_key, created_at
		FROM sales
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("failed to find sale by ID: %w", err)
	}

	if sale.Items, err = r.ListItems(ctx, &sale.ID); err != nil {
		return nil, err
	}
	return sale, nil
}

// FindByIdempotencyKey retrieves the sale committed under an idempotency key
func (r *saleRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error) {
	sale, err := scanSale(r.db.QueryRowContext(ctx, `
		SELECT id, total_amount, vat_amount, idempotency_key, created_at
		FROM sales
		WHERE idempotency_key = $1
	`, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("failed to find sale by idempotency key: %w", err)
	}
	return sale, nil
}

// List returns sales newest first
func (r *saleRepository) List(ctx context.Context, limit, offset int) ([]*domain.Sale, error) {
	if limit <= 0 || offset < 0 {
		return nil, ErrInvalidPagination
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, total_amount, vat_amount, idempotency_key, created_at
		FROM sales
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer rows.Close()

	sales := []*domain.Sale{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sales = append(sales, sale)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sales: %w", err)
	}

	return sales, nil
}

// ListItems returns the line items of one sale, or of every sale when saleID is nil
func (r *saleRepository) ListItems(ctx context.Context, saleID *int64) ([]domain.LineItem, error) {
	query := `SELECT id, sale_id, product_id, quantity, unit_price FROM sale_items`
	args := []any{}
	if saleID != nil {
		query += ` WHERE sale_id = $1`
		args = append(args, *saleID)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sale items: %w", err)
	}
	defer rows.Close()

	items := []domain.LineItem{}
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(
			&item.ID,
			&item.SaleID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sale item: %w", err)
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sale items: %w", err)
	}

	return items, nil
}

// DailySales aggregates sales per calendar day for from <= day <= to
func (r *saleRepository) DailySales(ctx context.Context, from, to time.Time) ([]domain.DailySales, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			to_char(DATE(created_at), 'YYYY-MM-DD') AS date,
			SUM(total_amount) AS total_sales,
			COUNT(id) AS num_sales
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY DATE(created_at)
		ORDER BY DATE(created_at)
	`, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate daily sales: %w", err)
	}
	defer rows.Close()

	days := []domain.DailySales{}
	for rows.Next() {
		var day domain.DailySales
		if err := rows.Scan(&day.Date, &day.TotalSales, &day.NumSales); err != nil {
			return nil, fmt.Errorf("failed to scan daily sales: %w", err)
		}
		days = append(days, day)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily sales: %w", err)
	}

	return days, nil
}

func scanSale(row rowScanner) (*domain.Sale, error) {
	sale := &domain.Sale{}
	var key sql.NullString
	err := row.Scan(
		&sale.ID,
		&sale.TotalAmount,
		&sale.VATAmount,
		&key,
		&sale.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if key.Valid {
		sale.IdempotencyKey = &key.String
	}
	return sale, nil
}
