package inventory

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Key identifies a single inventory row.
type Key struct {
	LocationID int64
	ProductID  int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.LocationID, k.ProductID)
}

// Compare orders keys by location then product. Every lock in the system is
// taken in this order.
func (k Key) Compare(other Key) int {
	if c := cmp.Compare(k.LocationID, other.LocationID); c != 0 {
		return c
	}
	return cmp.Compare(k.ProductID, other.ProductID)
}

// SortKeys returns the de-duplicated keys in global lock order.
func SortKeys(keys []Key) []Key {
	out := slices.Clone(keys)
	slices.SortFunc(out, Key.Compare)
	return slices.Compact(out)
}

// Item is the live stock position of a product at a location.
type Item struct {
	LocationID  int64
	ProductID   int64
	OnHand      int64
	Reserved    int64
	MinQuantity int64
	UnitCost    decimal.Decimal
	UpdatedAt   time.Time
}

// Key returns the row key of the item.
func (i Item) Key() Key {
	return Key{LocationID: i.LocationID, ProductID: i.ProductID}
}

// Available is the sellable quantity.
func (i Item) Available() int64 {
	return i.OnHand - i.Reserved
}

// LowStock reports whether on-hand quantity reached the minimum threshold.
func (i Item) LowStock() bool {
	return i.OnHand <= i.MinQuantity
}

// MovementKind classifies a movement journal entry.
type MovementKind string

const (
	MovementReceipt     MovementKind = "RECEIPT"
	MovementWriteoff    MovementKind = "WRITEOFF"
	MovementTransferOut MovementKind = "TRANSFER_OUT"
	MovementTransferIn  MovementKind = "TRANSFER_IN"
	MovementRevaluation MovementKind = "REVALUATION"
	MovementStocktaking MovementKind = "STOCKTAKING"
	MovementReserve     MovementKind = "RESERVE"
	MovementRelease     MovementKind = "RELEASE"
	MovementAdjustment  MovementKind = "ADJUSTMENT"
)

// Reference ties a movement to the document or request that caused it.
type Reference struct {
	Type   string
	ID     string
	Number string
	Note   string
}

// Movement is an append-only stock card entry.
type Movement struct {
	ID             int64
	LocationID     int64
	ProductID      int64
	Kind           MovementKind
	QtyChange      int64
	QtyBefore      int64
	QtyAfter       int64
	ReservedChange int64
	UnitCost       decimal.Decimal
	CostBefore     decimal.Decimal
	CostAfter      decimal.Decimal
	Ref            Reference
	CreatedAt      time.Time
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	LocationID int64
	ProductID  int64
	From       time.Time
	To         time.Time
	Limit      int
}

// Delta is a requested change to one row.
type Delta struct {
	Key      Key
	OnHand   int64
	Reserved int64
	// UnitCost is weighted into the row cost when OnHand is positive and
	// written as-is when OnHand is zero. It is ignored for negative OnHand.
	UnitCost *decimal.Decimal
	Kind     MovementKind
	// Line is the 1-based document line reported on invariant failures.
	Line int
}

// ErrItemNotFound indicates a row that no document or reservation touched yet.
var ErrItemNotFound = fmt.Errorf("inventory: item %w", shared.ErrNotFound)

// ErrInvalidQuantity indicates a non-positive quantity.
var ErrInvalidQuantity = fmt.Errorf("inventory: quantity must be positive: %w", shared.ErrValidation)
