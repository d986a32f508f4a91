package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Failure codes persisted with terminal idempotency outcomes and exposed on the wire.
const (
	CodeEmptyCart          = "empty_cart"
	CodeInvalidLine        = "invalid_line"
	CodeInvalidAmount      = "invalid_amount"
	CodeUnknownProduct     = "unknown_product"
	CodeInsufficientStock  = "insufficient_stock"
	CodeTotalsMismatch     = "totals_mismatch"
	CodeConflict           = "idempotent_request_in_flight"
	CodeKeyReused          = "idempotency_key_reused"
	CodeInvalidKey         = "invalid_idempotency_key"
	CodeStorageUnavailable = "storage_unavailable"
)

var (
	ErrEmptyCart                    = errors.New("cart has no lines")
	ErrConflictingIdempotentRequest = errors.New("a request with this idempotency key is still in flight")
	ErrIdempotencyKeyReused         = errors.New("idempotency key was already used for a different cart")
	ErrInvalidIdempotencyKey        = errors.New("invalid idempotency key")
	ErrStorageUnavailable           = errors.New("storage unavailable")
)

// UnknownProductError reports a cart line whose product has no stock ledger row.
type UnknownProductError struct {
	ProductID int64
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("unknown product %d", e.ProductID)
}

// InsufficientStockError reports the first product whose available quantity
// cannot cover the requested amount.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// InvalidLineError reports a malformed cart line.
type InvalidLineError struct {
	Index  int
	Reason string
}

func (e *InvalidLineError) Error() string {
	return fmt.Sprintf("cart line %d: %s", e.Index, e.Reason)
}

// InvalidAmountError reports a malformed sale total.
type InvalidAmountError struct {
	Field  string
	Reason string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// TotalsMismatchError reports caller-supplied totals that disagree with the
// totals recomputed from the cart lines.
type TotalsMismatchError struct {
	Field    string
	Expected decimal.Decimal
	Supplied decimal.Decimal
}

func (e *TotalsMismatchError) Error() string {
	return fmt.Sprintf("%s mismatch: expected %s, supplied %s",
		e.Field, e.Expected.StringFixed(2), e.Supplied.StringFixed(2))
}

// StorageError wraps an infrastructure failure. It matches ErrStorageUnavailable
// and is always safe to retry with the same idempotency key.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

// Failure is the serializable form of a terminal commit failure.
type Failure struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	ProductID int64  `json:"product_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available int    `json:"available,omitempty"`
}

// FailureFromError classifies err as a terminal business failure. Retryable
// errors (storage, in-flight conflicts) are never terminal and return false.
func FailureFromError(err error) (*Failure, bool) {
	var (
		unknown      *UnknownProductError
		insufficient *InsufficientStockError
	)

	switch {
	case errors.As(err, &unknown):
		return &Failure{
			Code:      CodeUnknownProduct,
			Message:   unknown.Error(),
			ProductID: unknown.ProductID,
		}, true
	case errors.As(err, &insufficient):
		return &Failure{
			Code:      CodeInsufficientStock,
			Message:   insufficient.Error(),
			ProductID: insufficient.ProductID,
			Requested: insufficient.Requested,
			Available: insufficient.Available,
		}, true
	default:
		return nil, false
	}
}

// Err rebuilds the typed error a recorded failure was created from.
func (f *Failure) Err() error {
	switch f.Code {
	case CodeUnknownProduct:
		return &UnknownProductError{ProductID: f.ProductID}
	case CodeInsufficientStock:
		return &InsufficientStockError{
			ProductID: f.ProductID,
			Requested: f.Requested,
			Available: f.Available,
		}
	default:
		return errors.New(f.Message)
	}
}
