package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/locations"
	"github.com/odyssey-erp/stockledger/internal/money"
)

// LowStockReader lists rows at or below their minimum quantity.
type LowStockReader interface {
	ListLowStock(ctx context.Context, locationID int64) ([]inventory.Item, error)
}

// LocationLister lists locations to scan.
type LocationLister interface {
	List(ctx context.Context, filters locations.ListFilters) ([]locations.Location, int, error)
}

// LowStock is one row reported by a scan.
type LowStock struct {
	LocationID  int64
	ProductID   int64
	OnHand      int64
	MinQuantity int64
	StockValue  string
}

// LowStockScanJob scans locations for low stock and logs one warning per row.
type LowStockScanJob struct {
	Stock     LowStockReader
	Locations LocationLister
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Locale    language.Tag
	// Parallelism bounds concurrent location scans.
	Parallelism int
}

// NewLowStockScanJob initialises the low-stock scan handler.
func NewLowStockScanJob(stock LowStockReader, locs LocationLister, logger *slog.Logger, metrics *jobmetrics.Metrics, locale language.Tag) *LowStockScanJob {
	return &LowStockScanJob{Stock: stock, Locations: locs, Logger: logger, Metrics: metrics, Locale: locale, Parallelism: 4}
}

// Handle executes the scan for an Asynq task.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, err := j.Scan(ctx, payload)
	return err
}

// Scan returns the low-stock rows of the requested locations.
func (j *LowStockScanJob) Scan(ctx context.Context, payload LowStockScanPayload) (result []LowStock, err error) {
	tracker := j.Metrics.Track(TaskLowStockScan)
	defer func() { err = tracker.End(err) }()
	start := time.Now()

	ids, err := j.locationIDs(ctx, payload.LocationID)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(j.Parallelism, 1))
	for _, id := range ids {
		g.Go(func() error {
			items, err := j.Stock.ListLowStock(gctx, id)
			if err != nil {
				return err
			}
			j.Metrics.SetLowStock(id, len(items))
			found := make([]LowStock, 0, len(items))
			for _, item := range items {
				found = append(found, LowStock{
					LocationID:  item.LocationID,
					ProductID:   item.ProductID,
					OnHand:      item.OnHand,
					MinQuantity: item.MinQuantity,
					StockValue:  money.Format(money.Mul(item.OnHand, item.UnitCost), j.Locale),
				})
			}
			mu.Lock()
			result = append(result, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		j.logger().Error("low stock scan failed", slog.Any("error", err))
		return nil, err
	}

	for _, row := range result {
		j.logger().Warn("low stock",
			slog.Int64("location_id", row.LocationID),
			slog.Int64("product_id", row.ProductID),
			slog.Int64("on_hand", row.OnHand),
			slog.Int64("min_quantity", row.MinQuantity),
			slog.String("stock_value", row.StockValue))
	}
	j.logger().Info("completed low stock scan",
		slog.String("trigger", payload.Trigger),
		slog.Int("locations", len(ids)),
		slog.Int("rows", len(result)),
		slog.Duration("duration", time.Since(start)))
	return result, nil
}

func (j *LowStockScanJob) locationIDs(ctx context.Context, locationID int64) ([]int64, error) {
	if locationID > 0 {
		return []int64{locationID}, nil
	}
	active := true
	locs, _, err := j.Locations.List(ctx, locations.ListFilters{IsActive: &active})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(locs))
	for _, loc := range locs {
		ids = append(ids, loc.ID)
	}
	return ids, nil
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
