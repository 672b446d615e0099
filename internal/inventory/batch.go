package inventory

import (
	"context"
	"time"

	"github.com/odyssey-erp/stockledger/internal/money"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Batch stages deltas against rows locked by the surrounding transaction.
// Nothing is written until Commit, and Commit is only reached when every
// delta passed the invariant checks.
type Batch struct {
	rows      map[Key]*Item
	touched   []Key
	movements []Movement
	ref       Reference
	now       time.Time
}

// NewBatch wraps rows returned by TxRepository.LockItems.
func NewBatch(rows map[Key]Item, ref Reference, now time.Time) *Batch {
	b := &Batch{rows: make(map[Key]*Item, len(rows)), ref: ref, now: now}
	for key, item := range rows {
		item := item
		b.rows[key] = &item
	}
	return b
}

// Item returns the staged state of a row.
func (b *Batch) Item(key Key) Item {
	if item, ok := b.rows[key]; ok {
		return *item
	}
	return Item{LocationID: key.LocationID, ProductID: key.ProductID}
}

// Apply validates and stages a delta. On error the staged state is unchanged.
func (b *Batch) Apply(d Delta) error {
	current, ok := b.rows[d.Key]
	if !ok {
		current = &Item{LocationID: d.Key.LocationID, ProductID: d.Key.ProductID}
		b.rows[d.Key] = current
	}
	next, err := applyDelta(*current, d)
	if err != nil {
		return err
	}
	movement := Movement{
		LocationID:     d.Key.LocationID,
		ProductID:      d.Key.ProductID,
		Kind:           d.Kind,
		QtyChange:      d.OnHand,
		QtyBefore:      current.OnHand,
		QtyAfter:       next.OnHand,
		ReservedChange: next.Reserved - current.Reserved,
		UnitCost:       current.UnitCost,
		CostBefore:     current.UnitCost,
		CostAfter:      next.UnitCost,
		Ref:            b.ref,
		CreatedAt:      b.now,
	}
	if d.UnitCost != nil && d.OnHand >= 0 {
		movement.UnitCost = *d.UnitCost
	}
	next.UpdatedAt = b.now
	*current = next
	b.touched = append(b.touched, d.Key)
	b.movements = append(b.movements, movement)
	return nil
}

// Items returns the staged rows that were changed, in lock order.
func (b *Batch) Items() []Item {
	keys := SortKeys(b.touched)
	items := make([]Item, 0, len(keys))
	for _, key := range keys {
		items = append(items, *b.rows[key])
	}
	return items
}

// Movements returns the journal entries produced so far.
func (b *Batch) Movements() []Movement {
	return b.movements
}

// Commit writes staged rows and movements through tx.
func (b *Batch) Commit(ctx context.Context, tx TxRepository) error {
	if len(b.touched) == 0 {
		return nil
	}
	if err := tx.SaveItems(ctx, b.Items()); err != nil {
		return err
	}
	return tx.InsertMovements(ctx, b.movements)
}

// applyDelta is the single place the row invariants are enforced:
// onHand >= 0, reserved >= 0 and reserved <= onHand.
func applyDelta(item Item, d Delta) (Item, error) {
	next := item
	next.OnHand += d.OnHand
	next.Reserved += d.Reserved
	stockErr := func(kind error, requested int64) error {
		return &shared.StockError{
			Kind:       kind,
			LocationID: item.LocationID,
			ProductID:  item.ProductID,
			Line:       d.Line,
			OnHand:     item.OnHand,
			Reserved:   item.Reserved,
			Requested:  requested,
		}
	}
	if next.OnHand < 0 {
		return item, stockErr(shared.ErrInsufficientStock, -d.OnHand)
	}
	if next.Reserved < 0 || next.Reserved > next.OnHand {
		return item, stockErr(shared.ErrInvalidReservation, d.Reserved)
	}
	if d.UnitCost != nil {
		switch {
		case d.OnHand > 0:
			next.UnitCost = money.WeightedAverage(item.OnHand, item.UnitCost, d.OnHand, *d.UnitCost)
		case d.OnHand == 0:
			next.UnitCost = *d.UnitCost
		}
	}
	return next, nil
}
