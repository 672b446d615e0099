package documents

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Type enumerates document kinds.
type Type string

const (
	TypeReceipt     Type = "RECEIPT"
	TypeWriteoff    Type = "WRITEOFF"
	TypeTransfer    Type = "TRANSFER"
	TypeRevaluation Type = "REVALUATION"
	TypeStocktaking Type = "STOCKTAKING"
)

// Prefix returns the number prefix used for the type.
func (t Type) Prefix() string {
	switch t {
	case TypeReceipt:
		return "RCP"
	case TypeWriteoff:
		return "WOF"
	case TypeTransfer:
		return "TRF"
	case TypeRevaluation:
		return "RVL"
	case TypeStocktaking:
		return "STK"
	default:
		return ""
	}
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	return t.Prefix() != ""
}

// Status enumerates lifecycle states.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// Document is a state-gated request to change stock.
type Document struct {
	ID     int64
	Number string
	Type   Type
	Status Status
	// LocationID is used by every type except Transfer.
	LocationID     int64
	FromLocationID int64
	ToLocationID   int64

	Reason              string
	CounterpartyName    string
	CounterpartyInvoice string
	Comment             string
	ExternalRef         string
	// ConsumesReservation makes a writeoff take its units out of the
	// reserved quantity as well, as an order fulfilment does.
	ConsumesReservation bool

	// TotalAmount is derived from the lines and never edited directly.
	TotalAmount decimal.Decimal

	CreatedBy   int64
	ConfirmedBy int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt *time.Time
	CancelledAt *time.Time

	Lines []Line
}

// Line is one document line. Which fields carry meaning depends on the
// document type:
//
//	RECEIPT      ProductID, Quantity, UnitCost
//	WRITEOFF     ProductID, Quantity (UnitCost records the cost at confirmation)
//	TRANSFER     ProductID, Quantity (UnitCost records the source cost at confirmation)
//	REVALUATION  ProductID, OldUnitCost, NewUnitCost
//	STOCKTAKING  ProductID, ExpectedQuantity, CountedQuantity
//
// OnHandAtConfirm and Drift are stamped on confirmation for revaluation and
// stocktaking lines.
type Line struct {
	ID               int64
	LineNo           int
	ProductID        int64
	Quantity         int64
	UnitCost         decimal.Decimal
	OldUnitCost      decimal.Decimal
	NewUnitCost      decimal.Decimal
	ExpectedQuantity int64
	CountedQuantity  *int64
	OnHandAtConfirm  *int64
	Drift            bool
}

// IsDraft reports whether the document may still change.
func (d Document) IsDraft() bool {
	return d.Status == StatusDraft
}

// Locations returns the locations a document touches.
func (d Document) Locations() []int64 {
	if d.Type == TypeTransfer {
		return []int64{d.FromLocationID, d.ToLocationID}
	}
	return []int64{d.LocationID}
}

// Line returns the line with the given id.
func (d Document) Line(lineID int64) (Line, bool) {
	for _, line := range d.Lines {
		if line.ID == lineID {
			return line, true
		}
	}
	return Line{}, false
}

// DriftLines returns stocktaking lines whose on-hand quantity moved between
// opening and confirmation.
func (d Document) DriftLines() []Line {
	var out []Line
	for _, line := range d.Lines {
		if line.Drift {
			out = append(out, line)
		}
	}
	return out
}

func (d Document) nextLineNo() int {
	n := 0
	for _, line := range d.Lines {
		n = max(n, line.LineNo)
	}
	return n + 1
}

// draftTotal is the amount shown while the document is a draft. Only
// receipts know their value before confirmation.
func (d Document) draftTotal() decimal.Decimal {
	total := decimal.Zero
	if d.Type != TypeReceipt {
		return total
	}
	for _, line := range d.Lines {
		total = total.Add(line.UnitCost.Mul(decimal.NewFromInt(line.Quantity)))
	}
	return total
}

// ListFilters narrows document listings.
type ListFilters struct {
	Type       Type
	Status     Status
	LocationID int64
	Page       int
	Limit      int
}

// CreateInput carries the header of a new document.
type CreateInput struct {
	Type                Type   `json:"type" validate:"required,oneof=RECEIPT WRITEOFF TRANSFER REVALUATION STOCKTAKING"`
	LocationID          int64  `json:"location_id" validate:"omitempty,gt=0"`
	FromLocationID      int64  `json:"from_location_id" validate:"omitempty,gt=0"`
	ToLocationID        int64  `json:"to_location_id" validate:"omitempty,gt=0"`
	Reason              string `json:"reason" validate:"max=255"`
	CounterpartyName    string `json:"counterparty_name" validate:"max=255"`
	CounterpartyInvoice string `json:"counterparty_invoice" validate:"max=64"`
	Comment             string `json:"comment" validate:"max=1000"`
}

// LineInput carries line fields. Pointer fields distinguish "not given"
// from zero.
type LineInput struct {
	ProductID       int64            `json:"product_id" validate:"required,gt=0"`
	Quantity        int64            `json:"quantity" validate:"gte=0"`
	UnitCost        *decimal.Decimal `json:"unit_cost"`
	OldUnitCost     *decimal.Decimal `json:"old_unit_cost"`
	NewUnitCost     *decimal.Decimal `json:"new_unit_cost"`
	CountedQuantity *int64           `json:"counted_quantity" validate:"omitempty,gte=0"`
}

// InstantInput creates, fills and confirms a document in one call.
type InstantInput struct {
	CreateInput
	Lines []LineInput `json:"lines" validate:"required,min=1,dive"`
	// ExternalRef makes the call idempotent for the collaborator that sent it.
	ExternalRef string `json:"external_ref" validate:"max=128"`
	// ConsumeReservation is only valid for writeoffs.
	ConsumeReservation bool `json:"consume_reservation"`
}

func rowKey(locationID, productID int64) inventory.Key {
	return inventory.Key{LocationID: locationID, ProductID: productID}
}

var (
	// ErrDocumentNotFound indicates an unknown document id.
	ErrDocumentNotFound = fmt.Errorf("documents: document %w", shared.ErrNotFound)
	// ErrLineNotFound indicates an unknown line id.
	ErrLineNotFound = fmt.Errorf("documents: line %w", shared.ErrNotFound)
	// ErrProductNotFound indicates a line referencing a product unknown to the catalog.
	ErrProductNotFound = fmt.Errorf("documents: product %w", shared.ErrNotFound)
	// ErrAlreadyFinalized indicates confirm or cancel of a non-draft document.
	ErrAlreadyFinalized = fmt.Errorf("documents: document already finalized: %w", shared.ErrInvalidState)
	// ErrDocumentNotEditable indicates a line change on a non-draft document.
	ErrDocumentNotEditable = fmt.Errorf("documents: document not editable: %w", shared.ErrInvalidState)
	// ErrEmptyDocument indicates a confirmation with nothing to apply.
	ErrEmptyDocument = fmt.Errorf("documents: document has no applicable lines: %w", shared.ErrValidation)
	// ErrInvalidDocument indicates a malformed document header.
	ErrInvalidDocument = fmt.Errorf("documents: invalid document: %w", shared.ErrValidation)
	// ErrInvalidLine indicates a malformed line for the document type.
	ErrInvalidLine = fmt.Errorf("documents: invalid line: %w", shared.ErrValidation)
)
