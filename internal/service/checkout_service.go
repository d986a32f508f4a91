package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"nano-pos/internal/domain"
	"nano-pos/internal/idempotency"
	"nano-pos/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultMaxCartSize     = 200
	DefaultMaxKeyLength    = 255
	DefaultMaxLineQuantity = 1_000_000
	DefaultCommitAttempts  = 3
)

// CartLine is one line of a checkout request
type CartLine struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// CommitRequest is a cart submitted for checkout. An empty IdempotencyKey
// means the caller did not supply one.
type CommitRequest struct {
	IdempotencyKey string
	Lines          []CartLine
	TotalAmount    decimal.Decimal
	VATAmount      decimal.Decimal
}

// CommitResult identifies the sale a request resolved to
type CommitResult struct {
	SaleID   int64
	Replayed bool
}

// CheckoutService turns carts into sales
type CheckoutService interface {
	Commit(ctx context.Context, req CommitRequest) (*CommitResult, error)
}

// CheckoutOptions bounds the requests the engine accepts. Zero values fall
// back to the defaults.
type CheckoutOptions struct {
	MaxCartSize     int
	MaxKeyLength    int
	MaxLineQuantity int
	CommitAttempts  int
}

func (o CheckoutOptions) withDefaults() CheckoutOptions {
	if o.MaxCartSize <= 0 {
		o.MaxCartSize = DefaultMaxCartSize
	}
	if o.MaxKeyLength <= 0 {
		o.MaxKeyLength = DefaultMaxKeyLength
	}
	if o.MaxLineQuantity <= 0 {
		o.MaxLineQuantity = DefaultMaxLineQuantity
	}
	if o.CommitAttempts <= 0 {
		o.CommitAttempts = DefaultCommitAttempts
	}
	return o
}

type checkoutService struct {
	txManager repository.TxManager
	stockRepo repository.StockRepository
	saleRepo  repository.SaleRepository
	keys      idempotency.Store
	totals    TotalsPolicy
	opts      CheckoutOptions
	logger    *zap.Logger
	now       func() time.Time
}

// NewCheckoutService creates the order commit engine
func NewCheckoutService(
	txManager repository.TxManager,
	stockRepo repository.StockRepository,
	saleRepo repository.SaleRepository,
	keys idempotency.Store,
	totals TotalsPolicy,
	opts CheckoutOptions,
	logger *zap.Logger,
) CheckoutService {
	return &checkoutService{
		txManager: txManager,
		stockRepo: stockRepo,
		saleRepo:  saleRepo,
		keys:      keys,
		totals:    totals,
		opts:      opts.withDefaults(),
		logger:    logger.Named("checkout"),
		now:       time.Now,
	}
}

// Commit validates the cart, decrements stock and records the sale in one
// transaction. With an idempotency key, the first outcome is recorded and
// every later request with the same key and cart receives it again.
func (s *checkoutService) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	items, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	if err := s.totals.Verify(items, req.TotalAmount, req.VATAmount); err != nil {
		return nil, err
	}

	key := req.IdempotencyKey
	if key == "" {
		saleID, err := s.commitWithRetry(ctx, nil, items, req)
		if err != nil {
			if _, ok := domain.FailureFromError(err); ok {
				return nil, err
			}
			if repository.IsDataException(err) {
				s.logger.Warn("Checkout rejected by storage", zap.Error(err))
				return nil, rejectedByStorage()
			}
			return nil, &domain.StorageError{Op: "commit", Err: err}
		}
		s.logger.Info("Sale committed",
			zap.Int64("sale_id", saleID),
			zap.Int("lines", len(items)),
		)
		return &CommitResult{SaleID: saleID}, nil
	}

	fingerprint := Fingerprint(req)
	rec, acquired, err := s.keys.Begin(ctx, key, fingerprint)
	if err != nil {
		if repository.IsDataException(err) {
			return nil, domain.ErrInvalidIdempotencyKey
		}
		return nil, &domain.StorageError{Op: "idempotency begin", Err: err}
	}
	if !acquired {
		return s.replay(key, fingerprint, rec)
	}

	saleID, err := s.commitWithRetry(ctx, &key, items, req)

	// The outcome must be recorded even if the client went away after the
	// transaction finished.
	bookCtx := context.WithoutCancel(ctx)

	switch {
	case err == nil:
		s.complete(bookCtx, key, rec.Owner, domain.SucceededWith(saleID))
		s.logger.Info("Sale committed",
			zap.String("idempotency_key", key),
			zap.Int64("sale_id", saleID),
			zap.Int("lines", len(items)),
		)
		return &CommitResult{SaleID: saleID}, nil

	case errors.Is(err, repository.ErrDuplicateIdempotencyKey):
		sale, findErr := s.saleRepo.FindByIdempotencyKey(bookCtx, key)
		if findErr != nil {
			s.release(bookCtx, key, rec.Owner)
			return nil, &domain.StorageError{Op: "resolve committed sale", Err: findErr}
		}
		s.complete(bookCtx, key, rec.Owner, domain.SucceededWith(sale.ID))
		s.logger.Info("Resolved idempotency key to committed sale",
			zap.String("idempotency_key", key),
			zap.Int64("sale_id", sale.ID),
		)
		return &CommitResult{SaleID: sale.ID, Replayed: true}, nil
	}

	if failure, ok := domain.FailureFromError(err); ok {
		s.complete(bookCtx, key, rec.Owner, domain.FailedWith(failure))
		s.logger.Info("Checkout rejected",
			zap.String("idempotency_key", key),
			zap.String("code", failure.Code),
			zap.Int64("product_id", failure.ProductID),
		)
		return nil, err
	}

	s.release(bookCtx, key, rec.Owner)
	if repository.IsDataException(err) {
		s.logger.Warn("Checkout rejected by storage",
			zap.String("idempotency_key", key),
			zap.Error(err),
		)
		return nil, rejectedByStorage()
	}
	s.logger.Error("Checkout failed",
		zap.String("idempotency_key", key),
		zap.Error(err),
	)
	return nil, &domain.StorageError{Op: "commit", Err: err}
}

func (s *checkoutService) replay(key, fingerprint string, rec *domain.IdempotencyRecord) (*CommitResult, error) {
	if rec.Fingerprint != fingerprint {
		return nil, domain.ErrIdempotencyKeyReused
	}

	switch rec.Status {
	case domain.IdempotencySucceeded:
		if rec.SaleID == nil {
			return nil, &domain.StorageError{Op: "idempotency replay", Err: fmt.Errorf("record %q has no sale id", key)}
		}
		s.logger.Debug("Replaying committed sale",
			zap.String("idempotency_key", key),
			zap.Int64("sale_id", *rec.SaleID),
		)
		return &CommitResult{SaleID: *rec.SaleID, Replayed: true}, nil
	case domain.IdempotencyFailed:
		if rec.Failure == nil {
			return nil, &domain.StorageError{Op: "idempotency replay", Err: fmt.Errorf("record %q has no failure", key)}
		}
		return nil, rec.Failure.Err()
	default:
		return nil, domain.ErrConflictingIdempotentRequest
	}
}

// commitWithRetry reruns the unit of work after transient failures such as
// deadlocks or lock timeouts. Nothing from a failed attempt survives rollback.
func (s *checkoutService) commitWithRetry(ctx context.Context, key *string, items []domain.LineItem, req CommitRequest) (int64, error) {
	var (
		saleID int64
		err    error
	)
	for attempt := 1; attempt <= s.opts.CommitAttempts; attempt++ {
		saleID, err = s.commitOnce(ctx, key, items, req)
		if err == nil || !repository.IsRetryable(err) || ctx.Err() != nil {
			return saleID, err
		}
		s.logger.Warn("Retrying checkout transaction",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return 0, err
}

func (s *checkoutService) commitOnce(ctx context.Context, key *string, items []domain.LineItem, req CommitRequest) (int64, error) {
	sale := &domain.Sale{
		TotalAmount:    req.TotalAmount,
		VATAmount:      req.VATAmount,
		IdempotencyKey: key,
		CreatedAt:      s.now().UTC(),
		Items:          append([]domain.LineItem(nil), items...),
	}

	err := s.txManager.WithinTx(ctx, func(tx *sql.Tx) error {
		if key != nil {
			// A sale already committed under the key wins over any stock
			// check, even when the key record itself was lost.
			_, committed, err := s.saleRepo.LockIdempotencyKey(ctx, tx, *key)
			if err != nil {
				return err
			}
			if committed {
				return repository.ErrDuplicateIdempotencyKey
			}
		}
		if err := s.stockRepo.DecrementBatch(ctx, tx, sale.Items); err != nil {
			return err
		}
		return s.saleRepo.Create(ctx, tx, sale)
	})
	if err != nil {
		return 0, err
	}
	return sale.ID, nil
}

func (s *checkoutService) complete(ctx context.Context, key, owner string, outcome domain.Outcome) {
	if err := s.keys.Complete(ctx, key, owner, outcome); err != nil {
		// The sale row carries the key, so a retry after the lease expires
		// still resolves to this outcome for successes.
		s.logger.Warn("Failed to record idempotency outcome",
			zap.String("idempotency_key", key),
			zap.String("status", string(outcome.Status())),
			zap.Error(err),
		)
	}
}

func (s *checkoutService) release(ctx context.Context, key, owner string) {
	if err := s.keys.Release(ctx, key, owner); err != nil {
		s.logger.Warn("Failed to release idempotency key",
			zap.String("idempotency_key", key),
			zap.Error(err),
		)
	}
}

func (s *checkoutService) validate(req CommitRequest) ([]domain.LineItem, error) {
	if key := req.IdempotencyKey; key != "" {
		if strings.TrimSpace(key) == "" || len(key) > s.opts.MaxKeyLength ||
			!utf8.ValidString(key) || strings.ContainsRune(key, 0) {
			return nil, domain.ErrInvalidIdempotencyKey
		}
	}

	if len(req.Lines) == 0 {
		return nil, domain.ErrEmptyCart
	}
	if len(req.Lines) > s.opts.MaxCartSize {
		return nil, &domain.InvalidLineError{
			Index:  s.opts.MaxCartSize,
			Reason: "cart exceeds " + strconv.Itoa(s.opts.MaxCartSize) + " lines",
		}
	}

	items := make([]domain.LineItem, len(req.Lines))
	for i, line := range req.Lines {
		switch {
		case line.ProductID <= 0:
			return nil, &domain.InvalidLineError{Index: i, Reason: "product_id must be positive"}
		case line.Quantity <= 0:
			return nil, &domain.InvalidLineError{Index: i, Reason: "quantity must be positive"}
		case line.Quantity > s.opts.MaxLineQuantity:
			return nil, &domain.InvalidLineError{Index: i, Reason: "quantity exceeds " + strconv.Itoa(s.opts.MaxLineQuantity)}
		case line.UnitPrice.IsNegative():
			return nil, &domain.InvalidLineError{Index: i, Reason: "unit_price must not be negative"}
		case !domain.HasMoneyPrecision(line.UnitPrice):
			return nil, &domain.InvalidLineError{Index: i, Reason: "unit_price has more than 2 decimal places"}
		case !domain.WithinMoneyRange(line.UnitPrice):
			return nil, &domain.InvalidLineError{Index: i, Reason: "unit_price exceeds " + domain.MaxMoney.StringFixed(domain.MoneyPlaces)}
		}
		items[i] = domain.LineItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		}
	}

	if err := validateAmount("total_amount", req.TotalAmount); err != nil {
		return nil, err
	}
	if err := validateAmount("vat_amount", req.VATAmount); err != nil {
		return nil, err
	}
	if req.VATAmount.GreaterThan(req.TotalAmount) {
		return nil, &domain.InvalidAmountError{Field: "vat_amount", Reason: "must not exceed total_amount"}
	}

	return items, nil
}

func validateAmount(field string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return &domain.InvalidAmountError{Field: field, Reason: "must not be negative"}
	}
	if !domain.HasMoneyPrecision(amount) {
		return &domain.InvalidAmountError{Field: field, Reason: "has more than 2 decimal places"}
	}
	if !domain.WithinMoneyRange(amount) {
		return &domain.InvalidAmountError{Field: field, Reason: "exceeds " + domain.MaxMoney.StringFixed(domain.MoneyPlaces)}
	}
	return nil
}

// rejectedByStorage turns a value Postgres refused to store into a
// validation failure so the caller stops retrying it.
func rejectedByStorage() error {
	return &domain.InvalidAmountError{Field: "cart", Reason: "value out of storable range"}
}

// Fingerprint hashes the cart and totals of a request. Two requests with the
// same key must carry the same fingerprint to be treated as retries.
func Fingerprint(req CommitRequest) string {
	var b strings.Builder
	for _, line := range req.Lines {
		b.WriteString(strconv.FormatInt(line.ProductID, 10))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(line.Quantity))
		b.WriteByte(':')
		b.WriteString(line.UnitPrice.StringFixed(domain.MoneyPlaces))
		b.WriteByte(';')
	}
	b.WriteString(req.TotalAmount.StringFixed(domain.MoneyPlaces))
	b.WriteByte('|')
	b.WriteString(req.VATAmount.StringFixed(domain.MoneyPlaces))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
