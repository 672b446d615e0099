package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// RepositoryPort abstracts repository usage for the store.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, key Key) (Item, error)
	ListByLocation(ctx context.Context, locationID int64) ([]Item, error)
	ListLowStock(ctx context.Context, locationID int64) ([]Item, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Store owns every write to inventory rows outside document confirmation.
type Store struct {
	repo   RepositoryPort
	locker Locker
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewStore builds Store.
func NewStore(repo RepositoryPort, locker Locker, audit AuditPort, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{repo: repo, locker: locker, audit: audit, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns the row for a product at a location.
func (s *Store) Get(ctx context.Context, productID, locationID int64) (Item, error) {
	return s.repo.Get(ctx, Key{LocationID: locationID, ProductID: productID})
}

// ListByLocation returns every row at a location.
func (s *Store) ListByLocation(ctx context.Context, locationID int64) ([]Item, error) {
	return s.repo.ListByLocation(ctx, locationID)
}

// ListLowStock returns rows at a location with onHand <= minQuantity.
func (s *Store) ListLowStock(ctx context.Context, locationID int64) ([]Item, error) {
	return s.repo.ListLowStock(ctx, locationID)
}

// ListMovements lists stock card entries.
func (s *Store) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.LocationID == 0 || filter.ProductID == 0 {
		return nil, fmt.Errorf("inventory: location and product required: %w", shared.ErrValidation)
	}
	return s.repo.ListMovements(ctx, filter)
}

// SetMinQuantity changes the low-stock threshold of a row. It takes the same
// row lock as stock changes so neither overwrites the other.
func (s *Store) SetMinQuantity(ctx context.Context, productID, locationID, minQuantity int64) (Item, error) {
	if minQuantity < 0 {
		return Item{}, fmt.Errorf("inventory: min quantity must not be negative: %w", shared.ErrValidation)
	}
	key := Key{LocationID: locationID, ProductID: productID}
	release, err := s.locker.Acquire(ctx, []Key{key})
	if err != nil {
		return Item{}, err
	}
	defer release()

	var result Item
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.LockItems(ctx, []Key{key})
		if err != nil {
			return err
		}
		result = rows[key]
		result.MinQuantity = minQuantity
		result.UpdatedAt = s.now()
		return tx.SaveItems(ctx, []Item{result})
	})
	if err != nil {
		return Item{}, err
	}
	return result, nil
}

// ApplyDelta changes a single row under its lock. The call either writes
// the row and a movement or fails with a *shared.StockError and writes nothing.
func (s *Store) ApplyDelta(ctx context.Context, locationID, productID, onHandDelta, reservedDelta int64, unitCost *decimal.Decimal) (Item, error) {
	if unitCost != nil && unitCost.IsNegative() {
		return Item{}, fmt.Errorf("inventory: unit cost must not be negative: %w", shared.ErrValidation)
	}
	key := Key{LocationID: locationID, ProductID: productID}
	item, err := s.mutate(ctx, key, Reference{Type: "ADJUSTMENT"}, func(_ Item) (Delta, bool, error) {
		return Delta{Key: key, OnHand: onHandDelta, Reserved: reservedDelta, UnitCost: unitCost, Kind: MovementAdjustment}, true, nil
	})
	if err != nil {
		return Item{}, err
	}
	if s.audit != nil {
		meta := map[string]any{
			"location_id":    locationID,
			"product_id":     productID,
			"on_hand_delta":  onHandDelta,
			"reserved_delta": reservedDelta,
		}
		if unitCost != nil {
			meta["unit_cost"] = unitCost.String()
		}
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  shared.ActorFromContext(ctx),
			Action:   "inventory:apply_delta",
			Entity:   "inventory_item",
			EntityID: key.String(),
			Meta:     meta,
		}); err != nil {
			s.logger.Warn("audit apply delta", slog.Any("error", err))
		}
	}
	return item, nil
}

// Reserve earmarks qty units for a pending sale.
func (s *Store) Reserve(ctx context.Context, productID, locationID, qty int64) (Item, error) {
	if qty <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	key := Key{LocationID: locationID, ProductID: productID}
	return s.mutate(ctx, key, Reference{Type: "RESERVATION"}, func(current Item) (Delta, bool, error) {
		if qty > current.Available() {
			return Delta{}, false, &shared.StockError{
				Kind:       shared.ErrInsufficientAvailable,
				LocationID: locationID,
				ProductID:  productID,
				OnHand:     current.OnHand,
				Reserved:   current.Reserved,
				Requested:  qty,
			}
		}
		return Delta{Key: key, Reserved: qty, Kind: MovementReserve}, true, nil
	})
}

// Release returns reserved units to available. Releasing more than is
// reserved is clamped at zero and logged; it never fails the caller.
func (s *Store) Release(ctx context.Context, productID, locationID, qty int64) (Item, error) {
	if qty <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	key := Key{LocationID: locationID, ProductID: productID}
	return s.mutate(ctx, key, Reference{Type: "RESERVATION"}, func(current Item) (Delta, bool, error) {
		release := qty
		if release > current.Reserved {
			s.logger.Warn("release exceeds reserved quantity; clamping",
				slog.Int64("location_id", locationID),
				slog.Int64("product_id", productID),
				slog.Int64("reserved", current.Reserved),
				slog.Int64("requested", qty))
			release = current.Reserved
		}
		if release == 0 {
			return Delta{}, false, nil
		}
		return Delta{Key: key, Reserved: -release, Kind: MovementRelease}, true, nil
	})
}

// mutate locks one row, lets build derive the delta from the locked state
// and commits it. build may return apply=false to leave the row untouched.
func (s *Store) mutate(ctx context.Context, key Key, ref Reference, build func(Item) (Delta, bool, error)) (Item, error) {
	release, err := s.locker.Acquire(ctx, []Key{key})
	if err != nil {
		return Item{}, err
	}
	defer release()

	var result Item
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.LockItems(ctx, []Key{key})
		if err != nil {
			return err
		}
		batch := NewBatch(rows, ref, s.now())
		delta, apply, err := build(batch.Item(key))
		if err != nil {
			return err
		}
		if apply {
			if err := batch.Apply(delta); err != nil {
				return err
			}
		}
		result = batch.Item(key)
		return batch.Commit(ctx, tx)
	})
	if err != nil {
		return Item{}, err
	}
	return result, nil
}
