package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

func TestBatchFailureLeavesRowsUntouched(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	src := Key{LocationID: 1, ProductID: 1}
	dst := Key{LocationID: 2, ProductID: 1}
	other := Key{LocationID: 1, ProductID: 2}

	seed := decimal.NewFromInt(7)
	require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.LockItems(ctx, []Key{src})
		if err != nil {
			return err
		}
		b := NewBatch(rows, Reference{Type: "SEED"}, time.Now())
		if err := b.Apply(Delta{Key: src, OnHand: 5, UnitCost: &seed, Kind: MovementReceipt}); err != nil {
			return err
		}
		return b.Commit(ctx, tx)
	}))

	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.LockItems(ctx, []Key{src, dst, other})
		if err != nil {
			return err
		}
		b := NewBatch(rows, Reference{Type: "TEST"}, time.Now())
		if err := b.Apply(Delta{Key: src, OnHand: -3, Kind: MovementTransferOut, Line: 1}); err != nil {
			return err
		}
		if err := b.Apply(Delta{Key: dst, OnHand: 3, UnitCost: &seed, Kind: MovementTransferIn, Line: 1}); err != nil {
			return err
		}
		if err := b.Apply(Delta{Key: other, OnHand: -1, Kind: MovementTransferOut, Line: 2}); err != nil {
			return err
		}
		return b.Commit(ctx, tx)
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	var stockErr *shared.StockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, 2, stockErr.Line)

	item, err := repo.Get(ctx, src)
	require.NoError(t, err)
	require.EqualValues(t, 5, item.OnHand)
	_, err = repo.Get(ctx, dst)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestApplyDeltaInvariants(t *testing.T) {
	base := Item{LocationID: 1, ProductID: 1, OnHand: 10, Reserved: 4, UnitCost: decimal.NewFromInt(10)}
	cases := []struct {
		name    string
		delta   Delta
		wantErr error
	}{
		{name: "negative on hand", delta: Delta{OnHand: -11}, wantErr: shared.ErrInsufficientStock},
		{name: "on hand below reserved", delta: Delta{OnHand: -7}, wantErr: shared.ErrInvalidReservation},
		{name: "reserved above on hand", delta: Delta{Reserved: 7}, wantErr: shared.ErrInvalidReservation},
		{name: "negative reserved", delta: Delta{Reserved: -5}, wantErr: shared.ErrInvalidReservation},
		{name: "within bounds", delta: Delta{OnHand: -6}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := applyDelta(base, tc.delta)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.Equal(t, base, next)
				return
			}
			require.NoError(t, err)
			require.GreaterOrEqual(t, next.OnHand, next.Reserved)
		})
	}
}

func TestApplyDeltaKeepsCostWhenQuantityReturnsToZero(t *testing.T) {
	item := Item{OnHand: 0, UnitCost: decimal.NewFromInt(9)}
	incoming := decimal.NewFromInt(3)
	next, err := applyDelta(item, Delta{OnHand: 4, UnitCost: &incoming})
	require.NoError(t, err)
	require.True(t, next.UnitCost.Equal(incoming))

	outgoing := decimal.NewFromInt(100)
	next, err = applyDelta(next, Delta{OnHand: -4, UnitCost: &outgoing})
	require.NoError(t, err)
	require.EqualValues(t, 0, next.OnHand)
	require.True(t, next.UnitCost.Equal(incoming))
}

func TestSortKeys(t *testing.T) {
	keys := SortKeys([]Key{{2, 1}, {1, 3}, {1, 1}, {2, 1}})
	require.Equal(t, []Key{{1, 1}, {1, 3}, {2, 1}}, keys)
}
