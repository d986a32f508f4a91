package transport

import (
	"net/http"

	"nano-pos/internal/middleware"
	"nano-pos/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SetStockRequest overwrites the quantity of one product
type SetStockRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  *int  `json:"quantity" validate:"required,gte=0"`
}

// ReplenishRequest adds units to a product's stock
type ReplenishRequest struct {
	Amount int `json:"amount" validate:"required,gt=0"`
}

// StockLevelResponse reports the current quantity of one product
type StockLevelResponse struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// StockHandler handles HTTP requests for the stock ledger
type StockHandler struct {
	catalogService service.CatalogService
	logger         *zap.Logger
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(catalogService service.CatalogService, logger *zap.Logger) *StockHandler {
	return &StockHandler{
		catalogService: catalogService,
		logger:         logger,
	}
}

// RegisterRoutes registers all stock routes
func (h *StockHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/stock", func(r chi.Router) {
		r.Get("/", h.List)
		r.Put("/", h.Set)
		r.Get("/{productID}", h.Get)
		r.Post("/{productID}/replenish", h.Replenish)
	})
}

// List returns every stock row with its product name
func (h *StockHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.catalogService.ListStock(r.Context())
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, entries)
}

// Get returns the available quantity of one product
func (h *StockHandler) Get(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseIDParam(chi.URLParam(r, "productID"))
	if !ok {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	quantity, err := h.catalogService.GetStock(r.Context(), productID)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, StockLevelResponse{ProductID: productID, Quantity: quantity})
}

// Set creates or overwrites a stock row
func (h *StockHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req SetStockRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondWithDecodeError(w, h.logger, err)
		return
	}

	entry, err := h.catalogService.SetStock(r.Context(), req.ProductID, *req.Quantity)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, entry)
}

// Replenish increments a product's stock
func (h *StockHandler) Replenish(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseIDParam(chi.URLParam(r, "productID"))
	if !ok {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	var req ReplenishRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondWithDecodeError(w, h.logger, err)
		return
	}

	quantity, err := h.catalogService.Replenish(r.Context(), productID, req.Amount)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, StockLevelResponse{ProductID: productID, Quantity: quantity})
}
