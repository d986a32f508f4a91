package transport

import (
	"net/http"

	"nano-pos/internal/domain"
	"nano-pos/internal/middleware"
	"nano-pos/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateProductRequest represents the product creation payload
type CreateProductRequest struct {
	SKU          string           `json:"sku" validate:"required,max=255"`
	Name         string           `json:"name" validate:"required,max=255"`
	UnitPrice    *decimal.Decimal `json:"unit_price" validate:"required,money"`
	Color        string           `json:"color" validate:"max=50"`
	Sizing       string           `json:"sizing" validate:"max=50"`
	InitialStock int              `json:"initial_stock" validate:"gte=0"`
}

// ProductListResponse is a page of products
type ProductListResponse struct {
	Products []*domain.Product `json:"products"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// ProductHandler handles HTTP requests for the catalog
type ProductHandler struct {
	catalogService service.CatalogService
	logger         *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(catalogService service.CatalogService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		catalogService: catalogService,
		logger:         logger,
	}
}

// RegisterRoutes registers all product routes
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
	})
}

// List returns products matching the optional search term on name or sku
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := parsePage(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid pagination parameters")
		return
	}

	products, total, err := h.catalogService.ListProducts(r.Context(), r.URL.Query().Get("search"), limit, offset)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	if limit <= 0 {
		limit = service.DefaultPageSize
	}
	middleware.RespondWithJSON(w, http.StatusOK, ProductListResponse{
		Products: products,
		Total:    total,
		Limit:    min(limit, service.MaxPageSize),
		Offset:   offset,
	})
}

// Get returns one product
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(chi.URLParam(r, "id"))
	if !ok {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	product, err := h.catalogService.GetProduct(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// Create adds a product together with its opening stock
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondWithDecodeError(w, h.logger, err)
		return
	}

	product := &domain.Product{
		SKU:       req.SKU,
		Name:      req.Name,
		UnitPrice: *req.UnitPrice,
		Color:     req.Color,
		Sizing:    req.Sizing,
	}
	if err := h.catalogService.CreateProduct(r.Context(), product, req.InitialStock); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, product)
}
