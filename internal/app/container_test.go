package app

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/documents"
	"github.com/odyssey-erp/stockledger/internal/integration"
	"github.com/odyssey-erp/stockledger/internal/locations"
)

func TestBuildWithRedisDrivers(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisAddr = srv.Addr()
	cfg.LockDriver = DriverRedis
	cfg.SequenceDriver = DriverRedis

	c, err := Build(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NotNil(t, c.Redis)
	require.Nil(t, c.Pool)
	require.Nil(t, c.Jobs)

	ctx := context.Background()
	loc, err := c.Locations.Create(ctx, locations.CreateInput{Name: "Warehouse", Kind: locations.KindWarehouse})
	require.NoError(t, err)

	cost := decimal.RequireFromString("3")
	doc, err := c.Documents.CreateAndConfirm(ctx, documents.InstantInput{
		CreateInput: documents.CreateInput{Type: documents.TypeReceipt, LocationID: loc.ID},
		Lines:       []documents.LineInput{{ProductID: 9, Quantity: 2, UnitCost: &cost}},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(doc.Number, "RCP-"))
	require.NotEmpty(t, srv.Keys(), "sequence counter lives in redis")

	require.NoError(t, c.Checkout.PlaceOrder(ctx, integration.Order{
		ID:         "order-1",
		LocationID: loc.ID,
		Lines:      []integration.ItemLine{{ProductID: 9, Quantity: 1}},
	}))
	item, err := c.Inventory.Get(ctx, 9, loc.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), item.Reserved)
}

func TestBuildFailsWhenRedisUnreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisAddr = srv.Addr()
	cfg.LockDriver = DriverRedis
	srv.Close()

	_, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
}
