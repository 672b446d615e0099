package shared

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStockErrorUnwrapsKind(t *testing.T) {
	err := fmt.Errorf("confirm: %w", &StockError{Kind: ErrInsufficientStock, LocationID: 1, ProductID: 2, Line: 2, OnHand: 1, Requested: 3})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.NotErrorIs(t, err, ErrInvalidReservation)
	require.Contains(t, err.Error(), "line 2:")
	require.Equal(t, err.Error()[len("confirm: "):], UserSafeMessage(err))
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(fmt.Errorf("lock: %w", ErrConcurrencyConflict)))
	require.False(t, IsRetryable(ErrInsufficientStock))
	require.False(t, IsRetryable(nil))
}

func TestUserSafeMessage(t *testing.T) {
	require.Empty(t, UserSafeMessage(nil))
	require.Equal(t, "internal error", UserSafeMessage(errors.New("dial tcp 10.0.0.1:5432")))
	require.Equal(t, "item not found", UserSafeMessage(fmt.Errorf("item %w", ErrNotFound)))
}

func TestActorContext(t *testing.T) {
	ctx := context.Background()
	require.Zero(t, ActorFromContext(ctx))
	require.EqualValues(t, 9, ActorFromContext(ContextWithActor(ctx, 9)))
}

func TestMemoryIdempotencyStore(t *testing.T) {
	store := NewMemoryIdempotencyStore()
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "sale-1", "documents"))
	require.ErrorIs(t, store.CheckAndInsert(ctx, "sale-1", "documents"), ErrIdempotencyConflict)
	require.Error(t, store.CheckAndInsert(ctx, "", "documents"))
	require.Error(t, store.CheckAndInsert(ctx, "sale-2", ""))

	require.NoError(t, store.Delete(ctx, "sale-1"))
	require.NoError(t, store.CheckAndInsert(ctx, "sale-1", "documents"))

	store.keys["old"] = time.Now().Add(-48 * time.Hour)
	removed, err := store.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)
	require.ErrorIs(t, store.CheckAndInsert(ctx, "sale-1", "documents"), ErrIdempotencyConflict)
}

func TestSlogAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	audit := NewSlogAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.Error(t, audit.Record(context.Background(), AuditLog{Action: "x"}))
	require.NoError(t, audit.Record(context.Background(), AuditLog{ActorID: 3, Action: "documents:confirm", Entity: "inventory_document", EntityID: "12"}))
	require.Contains(t, buf.String(), `"action":"documents:confirm"`)
	require.Contains(t, buf.String(), `"actor_id":3`)
}

func TestRedisKeys(t *testing.T) {
	require.Equal(t, "stockledger:lock:inventory:1:2", InventoryRowLockKey(1, 2))
	require.Equal(t, "stockledger:seq:RCP:20260101", SequenceKey("RCP", "20260101"))
	require.Equal(t, "stockledger:catalog:product:5:exists", ProductExistsCacheKey(5))
}
