package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nano-pos/internal/domain"
	"nano-pos/internal/repository"

	"go.uber.org/zap"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var ErrInvalidProduct = errors.New("invalid product")

// CatalogService serves products and stock levels
type CatalogService interface {
	ListProducts(ctx context.Context, search string, limit, offset int) ([]*domain.Product, int, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product *domain.Product, initialStock int) error
	ListStock(ctx context.Context) ([]*domain.StockEntry, error)
	GetStock(ctx context.Context, productID int64) (int, error)
	SetStock(ctx context.Context, productID int64, quantity int) (*domain.StockEntry, error)
	Replenish(ctx context.Context, productID int64, amount int) (int, error)
}

type catalogService struct {
	productRepo repository.ProductRepository
	stockRepo   repository.StockRepository
	logger      *zap.Logger
}

// NewCatalogService creates a new instance of CatalogService
func NewCatalogService(
	productRepo repository.ProductRepository,
	stockRepo repository.StockRepository,
	logger *zap.Logger,
) CatalogService {
	return &catalogService{
		productRepo: productRepo,
		stockRepo:   stockRepo,
		logger:      logger.Named("catalog"),
	}
}

func (s *catalogService) ListProducts(ctx context.Context, search string, limit, offset int) ([]*domain.Product, int, error) {
	limit, offset = clampPage(limit, offset)
	return s.productRepo.List(ctx, strings.TrimSpace(search), limit, offset)
}

func (s *catalogService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.productRepo.FindByID(ctx, id)
}

// CreateProduct adds a product and opens its stock ledger row. A product
// without a ledger row cannot be sold.
func (s *catalogService) CreateProduct(ctx context.Context, product *domain.Product, initialStock int) error {
	if product.UnitPrice.IsNegative() || !domain.HasMoneyPrecision(product.UnitPrice) {
		return fmt.Errorf("%w: unit_price must be a non-negative amount with at most 2 decimal places", ErrInvalidProduct)
	}
	if initialStock < 0 {
		return repository.ErrInvalidQuantity
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return err
	}
	if _, err := s.stockRepo.Set(ctx, product.ID, initialStock); err != nil {
		return fmt.Errorf("failed to open stock for product %d: %w", product.ID, err)
	}

	s.logger.Info("Product created",
		zap.Int64("product_id", product.ID),
		zap.String("sku", product.SKU),
		zap.Int("initial_stock", initialStock),
	)
	return nil
}

func (s *catalogService) ListStock(ctx context.Context) ([]*domain.StockEntry, error) {
	return s.stockRepo.List(ctx)
}

func (s *catalogService) GetStock(ctx context.Context, productID int64) (int, error) {
	return s.stockRepo.GetQuantity(ctx, productID)
}

func (s *catalogService) SetStock(ctx context.Context, productID int64, quantity int) (*domain.StockEntry, error) {
	entry, err := s.stockRepo.Set(ctx, productID, quantity)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Stock set",
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity),
	)
	return entry, nil
}

func (s *catalogService) Replenish(ctx context.Context, productID int64, amount int) (int, error) {
	quantity, err := s.stockRepo.Replenish(ctx, productID, amount)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Stock replenished",
		zap.Int64("product_id", productID),
		zap.Int("amount", amount),
		zap.Int("quantity", quantity),
	)
	return quantity, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
