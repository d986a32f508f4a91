package transport

import (
	"net/http"
	"strconv"

	"nano-pos/internal/middleware"
	"nano-pos/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CheckoutLineRequest is one cart line. Fields are pointers so a missing
// field is reported instead of read as zero.
type CheckoutLineRequest struct {
	ProductID *int64           `json:"product_id" validate:"required"`
	Quantity  *int             `json:"quantity" validate:"required"`
	UnitPrice *decimal.Decimal `json:"unit_price" validate:"required"`
}

// CheckoutRequest represents the checkout payload sent by the cashier UI
type CheckoutRequest struct {
	TotalAmount *decimal.Decimal      `json:"total_amount" validate:"required"`
	VATAmount   *decimal.Decimal      `json:"vat_amount" validate:"required"`
	Items       []CheckoutLineRequest `json:"items" validate:"dive"`
}

// CheckoutResponse is returned for both new and replayed commits. A replay
// is byte-identical to the first response and only differs in the
// Idempotent-Replayed header.
type CheckoutResponse struct {
	SaleID  int64  `json:"sale_id"`
	Message string `json:"message"`
}

// CheckoutHandler exposes the order commit engine
type CheckoutHandler struct {
	checkoutService service.CheckoutService
	logger          *zap.Logger
}

// NewCheckoutHandler creates a new CheckoutHandler
func NewCheckoutHandler(checkoutService service.CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
		logger:          logger,
	}
}

// RegisterRoutes registers the checkout route. limiter may be nil.
func (h *CheckoutHandler) RegisterRoutes(r chi.Router, limiter func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter)
		}
		r.Post("/api/checkout", h.Checkout)
	})
}

// Checkout commits a cart and answers 201, also when an earlier outcome for
// the same idempotency key is replayed.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondWithDecodeError(w, h.logger, err)
		return
	}

	commit := service.CommitRequest{
		IdempotencyKey: middleware.IdempotencyKey(r),
		TotalAmount:    *req.TotalAmount,
		VATAmount:      *req.VATAmount,
		Lines:          make([]service.CartLine, len(req.Items)),
	}
	for i, item := range req.Items {
		commit.Lines[i] = service.CartLine{
			ProductID: *item.ProductID,
			Quantity:  *item.Quantity,
			UnitPrice: *item.UnitPrice,
		}
	}

	result, err := h.checkoutService.Commit(r.Context(), commit)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	w.Header().Set(middleware.HeaderIdempotentReplayed, strconv.FormatBool(result.Replayed))
	middleware.RespondWithJSON(w, http.StatusCreated, CheckoutResponse{
		SaleID:  result.SaleID,
		Message: "Checkout successful",
	})
}
