package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"nano-pos/internal/config"
	"nano-pos/internal/database"
	"nano-pos/internal/idempotency"
	custommiddleware "nano-pos/internal/middleware"
	"nano-pos/internal/repository"
	"nano-pos/internal/service"
	"nano-pos/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Idempotency store backends
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Server struct {
	*http.Server
	config  *config.Config
	logger  *zap.Logger
	db      database.Service
	redis   redis.UniversalClient
	janitor *idempotency.Janitor
}

// NewServer wires repositories, services and handlers into a chi router. A
// Redis client is opened only when the idempotency backend or the checkout
// rate limiter needs one.
func NewServer(cfg *config.Config, logger *zap.Logger, db database.Service) (*Server, error) {
	totals, err := service.NewTotalsPolicy(cfg.Checkout.VATRate, cfg.Checkout.VATMode)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config: cfg,
		logger: logger,
		db:     db,
	}

	if cfg.Idempotency.Backend == BackendRedis || cfg.RateLimit.Enabled {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var keys idempotency.Store
	switch cfg.Idempotency.Backend {
	case BackendPostgres, "":
		keys = repository.NewIdempotencyRepository(db.DB(), cfg.Idempotency.Lease)
	case BackendRedis:
		keys = idempotency.NewRedisStore(s.redis, cfg.Idempotency.Lease, cfg.Idempotency.Retention)
	default:
		s.closeRedis()
		return nil, fmt.Errorf("unknown idempotency backend %q", cfg.Idempotency.Backend)
	}
	s.janitor = idempotency.NewJanitor(keys, cfg.Idempotency.Retention, cfg.Idempotency.PurgeInterval, logger)

	// Initialize repositories
	txManager := repository.NewTxManager(db.DB(), cfg.Database.LockTimeout)
	productRepo := repository.NewProductRepository(db.DB())
	stockRepo := repository.NewStockRepository(db.DB())
	saleRepo := repository.NewSaleRepository(db.DB())

	// Initialize services
	checkoutService := service.NewCheckoutService(txManager, stockRepo, saleRepo, keys, totals, service.CheckoutOptions{
		MaxCartSize:  cfg.Checkout.MaxCartSize,
		MaxKeyLength: cfg.Idempotency.MaxKeyLength,
	}, logger)
	catalogService := service.NewCatalogService(productRepo, stockRepo, logger)
	salesService := service.NewSalesService(saleRepo)

	router := chi.NewRouter()
	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(cfg.CORS.AllowedOrigins, !cfg.IsProduction()))

	router.Get("/health", s.health)

	var limiter func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled {
		limiter = custommiddleware.RateLimitMiddleware(s.redis, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         "nano-pos:ratelimit:checkout",
		}, logger)
	}

	// Register routes
	transport.NewCheckoutHandler(checkoutService, logger).RegisterRoutes(router, limiter)
	transport.NewProductHandler(catalogService, logger).RegisterRoutes(router)
	transport.NewStockHandler(catalogService, logger).RegisterRoutes(router)
	transport.NewSalesHandler(salesService, logger).RegisterRoutes(router)

	s.Server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	logger.Info("Checkout configured",
		zap.String("idempotency_backend", cfg.Idempotency.Backend),
		zap.String("vat_mode", totals.Mode()),
		zap.String("vat_rate", totals.Rate().String()),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
	)

	return s, nil
}

// Janitor returns the retention worker for the configured idempotency store
func (s *Server) Janitor() *idempotency.Janitor {
	return s.janitor
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"database": s.db.Health(r.Context())}
	code := http.StatusOK
	if dbHealth := status["database"].(map[string]string); dbHealth["status"] != "up" {
		code = http.StatusServiceUnavailable
	}

	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			status["redis"] = map[string]string{"status": "down", "error": err.Error()}
			if s.config.Idempotency.Backend == BackendRedis {
				code = http.StatusServiceUnavailable
			}
		} else {
			status["redis"] = map[string]string{"status": "up"}
		}
	}

	custommiddleware.RespondWithJSON(w, code, status)
}

func (s *Server) closeRedis() error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Close()
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	var errs []error
	if err := s.closeRedis(); err != nil {
		s.logger.Error("Failed to close redis client", zap.Error(err))
		errs = append(errs, err)
	}

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
			errs = append(errs, err)
		}
	}

	_ = s.logger.Sync()
	return errors.Join(errs...)
}
