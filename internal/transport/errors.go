package transport

import (
	"errors"
	"net/http"
	"strconv"

	"nano-pos/internal/domain"
	"nano-pos/internal/middleware"
	"nano-pos/internal/repository"
	"nano-pos/internal/service"

	"go.uber.org/zap"
)

// RetryAfterSeconds is advertised on retryable failures
const RetryAfterSeconds = 1

// respondWithServiceError maps service and repository errors to the error
// envelope. Business rejections are terminal (4xx); storage failures and
// in-flight conflicts are retryable and carry Retry-After.
func respondWithServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var (
		invalidLine   *domain.InvalidLineError
		invalidAmount *domain.InvalidAmountError
		mismatch      *domain.TotalsMismatchError
		unknown       *domain.UnknownProductError
		insufficient  *domain.InsufficientStockError
	)

	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		middleware.RespondWithErrorDetails(w, http.StatusUnprocessableEntity, domain.CodeEmptyCart, err.Error(), nil)
	case errors.As(err, &invalidLine):
		middleware.RespondWithErrorDetails(w, http.StatusUnprocessableEntity, domain.CodeInvalidLine, err.Error(), map[string]any{
			"index":  invalidLine.Index,
			"reason": invalidLine.Reason,
		})
	case errors.As(err, &invalidAmount):
		middleware.RespondWithErrorDetails(w, http.StatusUnprocessableEntity, domain.CodeInvalidAmount, err.Error(), map[string]any{
			"field": invalidAmount.Field,
		})
	case errors.As(err, &mismatch):
		middleware.RespondWithErrorDetails(w, http.StatusUnprocessableEntity, domain.CodeTotalsMismatch, err.Error(), map[string]any{
			"field":    mismatch.Field,
			"expected": mismatch.Expected.StringFixed(domain.MoneyPlaces),
			"supplied": mismatch.Supplied.StringFixed(domain.MoneyPlaces),
		})
	case errors.Is(err, domain.ErrIdempotencyKeyReused):
		middleware.RespondWithErrorDetails(w, http.StatusUnprocessableEntity, domain.CodeKeyReused, err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidIdempotencyKey):
		middleware.RespondWithErrorDetails(w, http.StatusBadRequest, domain.CodeInvalidKey, err.Error(), nil)
	case errors.As(err, &unknown):
		middleware.RespondWithErrorDetails(w, http.StatusNotFound, domain.CodeUnknownProduct, err.Error(), map[string]any{
			"product_id": unknown.ProductID,
		})
	case errors.As(err, &insufficient):
		middleware.RespondWithErrorDetails(w, http.StatusConflict, domain.CodeInsufficientStock, err.Error(), map[string]any{
			"product_id": insufficient.ProductID,
			"requested":  insufficient.Requested,
			"available":  insufficient.Available,
		})
	case errors.Is(err, domain.ErrConflictingIdempotentRequest):
		w.Header().Set(middleware.HeaderRetryAfter, strconv.Itoa(RetryAfterSeconds))
		middleware.RespondWithErrorDetails(w, http.StatusConflict, domain.CodeConflict, err.Error(), nil)
	case errors.Is(err, domain.ErrStorageUnavailable):
		logger.Error("Storage unavailable", zap.Error(err))
		w.Header().Set(middleware.HeaderRetryAfter, strconv.Itoa(RetryAfterSeconds))
		middleware.RespondWithErrorDetails(w, http.StatusServiceUnavailable, domain.CodeStorageUnavailable, "storage unavailable, retry with the same idempotency key", nil)

	case errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrStockNotFound),
		errors.Is(err, repository.ErrSaleNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrDuplicateSKU):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrInvalidQuantity),
		errors.Is(err, repository.ErrInvalidPagination),
		errors.Is(err, service.ErrInvalidProduct),
		errors.Is(err, service.ErrInvalidDateRange):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())

	default:
		logger.Error("Unhandled error", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondWithDecodeError answers a body that failed decoding or validation
func respondWithDecodeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	logger.Debug("Request validation failed", zap.Error(err))

	if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
		middleware.RespondWithValidationErrors(w, validationErrors)
		return
	}
	middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
}

func parseIDParam(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parsePage(r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}
