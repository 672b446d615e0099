package perf

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/internal/documents"
	"github.com/odyssey-erp/stockledger/internal/locations"
)

func newLedger(tb testing.TB) *app.Container {
	tb.Helper()
	cfg := &app.Config{
		StorageDriver:  app.DriverMemory,
		LockDriver:     app.DriverLocal,
		LockTimeout:    5 * time.Second,
		SequenceDriver: app.DriverMemory,
		Locale:         "en",
	}
	c, err := app.Build(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = c.Close() })
	return c
}

func newLocations(tb testing.TB, c *app.Container, n int) []int64 {
	tb.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		loc, err := c.Locations.Create(context.Background(), locations.CreateInput{Name: "Store", Kind: locations.KindStore})
		require.NoError(tb, err)
		ids = append(ids, loc.ID)
	}
	return ids
}

func receipt(locationID, productID int64) documents.InstantInput {
	cost := decimal.NewFromInt(4)
	return documents.InstantInput{
		CreateInput: documents.CreateInput{Type: documents.TypeReceipt, LocationID: locationID},
		Lines:       []documents.LineInput{{ProductID: productID, Quantity: 10, UnitCost: &cost}},
	}
}

func writeoff(locationID, productID int64) documents.InstantInput {
	return documents.InstantInput{
		CreateInput: documents.CreateInput{Type: documents.TypeWriteoff, LocationID: locationID, Reason: "damaged"},
		Lines:       []documents.LineInput{{ProductID: productID, Quantity: 1}},
	}
}

func TestConfirmLatencyUnderContention(t *testing.T) {
	c := newLedger(t)
	locs := newLocations(t, c, 4)
	ctx := context.Background()
	for _, loc := range locs {
		_, err := c.Documents.CreateAndConfirm(ctx, receipt(loc, 1))
		require.NoError(t, err)
	}

	var mu sync.Mutex
	samples := make([]time.Duration, 0, 40)
	g, gctx := errgroup.WithContext(ctx)
	for _, loc := range locs {
		for i := 0; i < 10; i++ {
			g.Go(func() error {
				start := time.Now()
				_, err := c.Documents.CreateAndConfirm(gctx, writeoff(loc, 1))
				mu.Lock()
				samples = append(samples, time.Since(start))
				mu.Unlock()
				return err
			})
		}
	}
	require.NoError(t, g.Wait())

	for _, loc := range locs {
		item, err := c.Inventory.Get(ctx, 1, loc)
		require.NoError(t, err)
		require.Zero(t, item.OnHand)
	}
	require.Less(t, percentile95(samples), time.Second, "p95 confirm latency regression")
}

func BenchmarkConfirmReceipt(b *testing.B) {
	c := newLedger(b)
	loc := newLocations(b, c, 1)[0]
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Documents.CreateAndConfirm(ctx, receipt(loc, int64(i%64)+1)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConfirmDisjointLocations(b *testing.B) {
	c := newLedger(b)
	locs := newLocations(b, c, 8)
	ctx := context.Background()
	var next sync.Mutex
	turn := 0
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		next.Lock()
		loc := locs[turn%len(locs)]
		turn++
		next.Unlock()
		for pb.Next() {
			if _, err := c.Documents.CreateAndConfirm(ctx, receipt(loc, 1)); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	return sorted[index]
}
