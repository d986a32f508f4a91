package transport

import (
	"net/http"

	"nano-pos/internal/middleware"
	"nano-pos/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SalesHandler serves committed sales and the daily report. Sales are only
// created through the checkout route.
type SalesHandler struct {
	salesService service.SalesService
	logger       *zap.Logger
}

// NewSalesHandler creates a new SalesHandler
func NewSalesHandler(salesService service.SalesService, logger *zap.Logger) *SalesHandler {
	return &SalesHandler{
		salesService: salesService,
		logger:       logger,
	}
}

// RegisterRoutes registers all sales routes
func (h *SalesHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/sales", h.List)
	r.Get("/api/sales/{id}", h.Get)
	r.Get("/api/sale-items", h.ListItems)
	r.Get("/api/daily-sales", h.DailySales)
}

// List returns sales newest first
func (h *SalesHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := parsePage(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid pagination parameters")
		return
	}

	sales, err := h.salesService.ListSales(r.Context(), limit, offset)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, sales)
}

// Get returns one sale with its line items
func (h *SalesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(chi.URLParam(r, "id"))
	if !ok {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid sale ID")
		return
	}

	sale, err := h.salesService.GetSale(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, sale)
}

// ListItems returns line items, optionally filtered by ?sale_id=
func (h *SalesHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	var saleID *int64
	if raw := r.URL.Query().Get("sale_id"); raw != "" {
		id, ok := parseIDParam(raw)
		if !ok {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid sale ID")
			return
		}
		saleID = &id
	}

	items, err := h.salesService.ListItems(r.Context(), saleID)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, items)
}

// DailySales aggregates sales per day between ?startDate= and ?endDate=
func (h *SalesHandler) DailySales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	days, err := h.salesService.DailySales(r.Context(), q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, days)
}
