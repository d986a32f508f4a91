// Command seed loads the demo catalog and, optionally, a backdated sales
// history so the daily report has something to show.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"nano-pos/internal/config"
	"nano-pos/internal/database"
	"nano-pos/internal/domain"
	"nano-pos/internal/logger"
	"nano-pos/internal/repository"
	"nano-pos/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type seedProduct struct {
	sku    string
	name   string
	price  string
	color  string
	sizing string
	stock  int
}

var catalog = []seedProduct{
	{"TS-BLK-M", "Classic T-Shirt", "119.99", "Black", "M", 100},
	{"TS-WHT-L", "Classic T-Shirt", "119.99", "White", "L", 150},
	{"JN-BLU-32", "Slim Jeans", "349.99", "Blue", "32", 50},
	{"SK-GRY-10", "Ankle Socks", "99.99", "Grey", "10", 200},
}

func main() {
	var (
		reset       = flag.Bool("reset", false, "roll back all migrations before seeding")
		historyDays = flag.Int("history-days", 0, "generate demo sales for this many past days")
		randSeed    = flag.Uint64("seed", 1, "random seed for generated sales")
	)
	flag.Parse()

	cfg := config.Load()

	log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	if err := run(context.Background(), cfg, log, *reset, *historyDays, *randSeed); err != nil {
		log.Error("Seeding failed", zap.Error(err))
		os.Exit(1)
	}
	log.Info("Seeding complete")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, reset bool, historyDays int, randSeed uint64) error {
	dbService, err := database.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer dbService.Close()
	db := dbService.DB()

	if reset {
		log.Warn("Resetting database")
		if err := database.ResetMigrations(db); err != nil {
			return fmt.Errorf("failed to reset migrations: %w", err)
		}
	}
	if err := database.RunMigrations(db, log); err != nil {
		return err
	}

	productRepo := repository.NewProductRepository(db)
	stockRepo := repository.NewStockRepository(db)

	products := make([]*domain.Product, 0, len(catalog))
	for _, sp := range catalog {
		p, err := ensureProduct(ctx, productRepo, stockRepo, sp)
		if err != nil {
			return fmt.Errorf("failed to seed %s: %w", sp.sku, err)
		}
		products = append(products, p)
		log.Info("Seeded product", zap.String("sku", p.SKU), zap.Int64("id", p.ID))
	}

	if historyDays <= 0 {
		return nil
	}

	totals, err := service.NewTotalsPolicy(cfg.Checkout.VATRate, cfg.Checkout.VATMode)
	if err != nil {
		return err
	}
	created, err := seedHistory(ctx, db, cfg.Database.LockTimeout, totals, products, historyDays, rand.New(rand.NewPCG(randSeed, randSeed)))
	if err != nil {
		return err
	}
	log.Info("Generated sales history", zap.Int("days", historyDays), zap.Int("sales", created))
	return nil
}

// ensureProduct creates the product with its opening stock, or returns the
// existing row when the SKU was seeded before. Existing stock is left alone,
// but a product whose ledger row is missing gets its opening stock back.
func ensureProduct(ctx context.Context, products repository.ProductRepository, stock repository.StockRepository, sp seedProduct) (*domain.Product, error) {
	p := &domain.Product{
		SKU:       sp.sku,
		Name:      sp.name,
		UnitPrice: decimal.RequireFromString(sp.price),
		Color:     sp.color,
		Sizing:    sp.sizing,
	}

	err := products.Create(ctx, p)
	if errors.Is(err, repository.ErrDuplicateSKU) {
		p, err = products.FindBySKU(ctx, sp.sku)
		if err != nil {
			return nil, err
		}
		_, err = stock.GetQuantity(ctx, p.ID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, repository.ErrStockNotFound) {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if _, err := stock.Set(ctx, p.ID, sp.stock); err != nil {
		return nil, err
	}
	return p, nil
}

// seedHistory commits backdated sales through the same ledger path as
// checkout so stock stays consistent with the recorded sales. Carts that no
// longer fit the remaining stock are skipped.
func seedHistory(ctx context.Context, db *sql.DB, lockTimeout time.Duration, totals service.TotalsPolicy, products []*domain.Product, days int, rng *rand.Rand) (int, error) {
	txManager := repository.NewTxManager(db, lockTimeout)
	stockRepo := repository.NewStockRepository(db)
	saleRepo := repository.NewSaleRepository(db)

	today := time.Now().UTC().Truncate(24 * time.Hour)
	created := 0

	for d := days; d >= 1; d-- {
		day := today.AddDate(0, 0, -d)

		for n := rng.IntN(4); n > 0; n-- {
			items := randomCart(products, rng)
			t := totals.Compute(items)
			sale := &domain.Sale{
				TotalAmount: t.Total,
				VATAmount:   t.VAT,
				CreatedAt:   day.Add(time.Duration(9*3600+rng.IntN(9*3600)) * time.Second),
				Items:       items,
			}

			err := txManager.WithinTx(ctx, func(tx *sql.Tx) error {
				if err := stockRepo.DecrementBatch(ctx, tx, sale.Items); err != nil {
					return err
				}
				return saleRepo.Create(ctx, tx, sale)
			})
			var insufficient *domain.InsufficientStockError
			if errors.As(err, &insufficient) {
				continue
			}
			if err != nil {
				return created, fmt.Errorf("failed to create sale for %s: %w", day.Format(time.DateOnly), err)
			}
			created++
		}
	}
	return created, nil
}

func randomCart(products []*domain.Product, rng *rand.Rand) []domain.LineItem {
	lines := 1 + rng.IntN(min(3, len(products)))
	perm := rng.Perm(len(products))

	items := make([]domain.LineItem, 0, lines)
	for _, idx := range perm[:lines] {
		p := products[idx]
		items = append(items, domain.LineItem{
			ProductID: p.ID,
			Quantity:  1 + rng.IntN(2),
			UnitPrice: p.UnitPrice,
		})
	}
	return items
}
