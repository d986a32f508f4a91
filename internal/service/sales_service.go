package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nano-pos/internal/domain"
	"nano-pos/internal/repository"
)

const dateLayout = "2006-01-02"

// MaxReportDays bounds the range of a daily sales report
const MaxReportDays = 366

var ErrInvalidDateRange = errors.New("invalid date range")

// SalesService serves committed sales and the daily report
type SalesService interface {
	ListSales(ctx context.Context, limit, offset int) ([]*domain.Sale, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	ListItems(ctx context.Context, saleID *int64) ([]domain.LineItem, error)
	DailySales(ctx context.Context, startDate, endDate string) ([]domain.DailySales, error)
}

type salesService struct {
	saleRepo repository.SaleRepository
}

// NewSalesService creates a new instance of SalesService
func NewSalesService(saleRepo repository.SaleRepository) SalesService {
	return &salesService{saleRepo: saleRepo}
}

func (s *salesService) ListSales(ctx context.Context, limit, offset int) ([]*domain.Sale, error) {
	limit, offset = clampPage(limit, offset)
	return s.saleRepo.List(ctx, limit, offset)
}

func (s *salesService) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return s.saleRepo.FindByID(ctx, id)
}

func (s *salesService) ListItems(ctx context.Context, saleID *int64) ([]domain.LineItem, error) {
	return s.saleRepo.ListItems(ctx, saleID)
}

// DailySales aggregates sales per day for an inclusive YYYY-MM-DD range
func (s *salesService) DailySales(ctx context.Context, startDate, endDate string) ([]domain.DailySales, error) {
	from, to, err := ParseDateRange(startDate, endDate)
	if err != nil {
		return nil, err
	}
	return s.saleRepo.DailySales(ctx, from, to)
}

// ParseDateRange parses an inclusive date range in UTC
func ParseDateRange(startDate, endDate string) (time.Time, time.Time, error) {
	if startDate == "" || endDate == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: startDate and endDate are required", ErrInvalidDateRange)
	}

	from, err := time.ParseInLocation(dateLayout, startDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: startDate %q is not YYYY-MM-DD", ErrInvalidDateRange, startDate)
	}
	to, err := time.ParseInLocation(dateLayout, endDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: endDate %q is not YYYY-MM-DD", ErrInvalidDateRange, endDate)
	}

	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: endDate is before startDate", ErrInvalidDateRange)
	}
	if to.Sub(from) > MaxReportDays*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range exceeds %d days", ErrInvalidDateRange, MaxReportDays)
	}

	return from, to, nil
}
