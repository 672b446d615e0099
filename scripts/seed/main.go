package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/internal/documents"
	"github.com/odyssey-erp/stockledger/internal/locations"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.StorageDriver != app.DriverPostgres {
		log.Fatalf("seed requires STORAGE_DRIVER=postgres, got %s", cfg.StorageDriver)
	}
	cfg.JobsEnabled = false
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	container, err := app.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("build services: %v", err)
	}
	defer container.Close()

	fmt.Println("→ Seeding products...")
	productIDs, err := seedProducts(ctx, container.Pool)
	if err != nil {
		log.Fatalf("seed products: %v", err)
	}

	fmt.Println("→ Seeding locations...")
	locs, err := seedLocations(ctx, container.Locations)
	if err != nil {
		log.Fatalf("seed locations: %v", err)
	}

	fmt.Println("→ Seeding opening stock...")
	if err := seedOpeningStock(ctx, container.Documents, locs, productIDs); err != nil {
		log.Fatalf("seed opening stock: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool) ([]int64, error) {
	products := []struct {
		sku  string
		name string
	}{
		{"SKU-COFFEE-250", "Ground coffee 250g"},
		{"SKU-TEA-100", "Black tea 100 bags"},
		{"SKU-MUG-01", "Ceramic mug"},
		{"SKU-FILTER-80", "Paper filters 80pcs"},
	}
	ids := make([]int64, 0, len(products))
	for _, p := range products {
		var id int64
		err := pool.QueryRow(ctx, `
			INSERT INTO products (sku, name) VALUES ($1, $2)
			ON CONFLICT (sku) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, p.sku, p.name).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func seedLocations(ctx context.Context, svc *locations.Service) ([]locations.Location, error) {
	inputs := []locations.CreateInput{
		{Code: "WH-MAIN", Name: "Main warehouse", Kind: locations.KindWarehouse, Address: "Jl. Industri 1"},
		{Code: "ST-CENTRAL", Name: "Central store", Kind: locations.KindStore, Address: "Jl. Merdeka 10"},
	}
	out := make([]locations.Location, 0, len(inputs))
	for _, input := range inputs {
		loc, err := svc.Create(ctx, input)
		if errors.Is(err, locations.ErrDuplicateCode) {
			existing, _, listErr := svc.List(ctx, locations.ListFilters{Search: input.Code, Limit: 1, Page: 1})
			if listErr != nil || len(existing) == 0 {
				return nil, fmt.Errorf("lookup %s: %w", input.Code, err)
			}
			loc, err = existing[0], nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	if _, err := svc.SetDefault(ctx, out[1].ID); err != nil {
		return nil, err
	}
	return out, nil
}

func seedOpeningStock(ctx context.Context, svc *documents.Service, locs []locations.Location, productIDs []int64) error {
	warehouse := locs[0]
	lines := make([]documents.LineInput, 0, len(productIDs))
	for i, id := range productIDs {
		cost := decimal.NewFromInt(int64(5 * (i + 1)))
		lines = append(lines, documents.LineInput{ProductID: id, Quantity: 100, UnitCost: &cost})
	}
	_, err := svc.CreateAndConfirm(ctx, documents.InstantInput{
		CreateInput: documents.CreateInput{
			Type:             documents.TypeReceipt,
			LocationID:       warehouse.ID,
			CounterpartyName: "Opening balance",
		},
		Lines:       lines,
		ExternalRef: "seed:opening-stock",
	})
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		fmt.Println("  opening stock already seeded")
		return nil
	}
	return err
}
