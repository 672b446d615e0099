package documents

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/inventory"
)

// effect is the per-type part of confirmation. Everything else in the
// pipeline (loading, locking, persisting, state change) is shared.
type effect interface {
	// checkLine validates a line when it is added or edited.
	checkLine(line Line) error
	// keys lists the inventory rows the document touches.
	keys(doc Document) []inventory.Key
	// apply stages the stock change into batch, stamps confirmation data on
	// doc.Lines and returns the signed total amount.
	apply(doc *Document, batch *inventory.Batch) (decimal.Decimal, error)
}

func effectFor(t Type) (effect, error) {
	switch t {
	case TypeReceipt:
		return receiptEffect{}, nil
	case TypeWriteoff:
		return writeoffEffect{}, nil
	case TypeTransfer:
		return transferEffect{}, nil
	case TypeRevaluation:
		return revaluationEffect{}, nil
	case TypeStocktaking:
		return stocktakingEffect{}, nil
	default:
		return nil, fmt.Errorf("unknown type %q: %w", t, ErrInvalidDocument)
	}
}

func lineError(line Line, msg string) error {
	return fmt.Errorf("line %d: %s: %w", line.LineNo, msg, ErrInvalidLine)
}

func quantity(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func keysAt(locationID int64, lines []Line) []inventory.Key {
	keys := make([]inventory.Key, 0, len(lines))
	for _, line := range lines {
		keys = append(keys, rowKey(locationID, line.ProductID))
	}
	return keys
}

type receiptEffect struct{}

func (receiptEffect) checkLine(line Line) error {
	if line.Quantity <= 0 {
		return lineError(line, "quantity must be positive")
	}
	if line.UnitCost.IsNegative() {
		return lineError(line, "unit cost must not be negative")
	}
	return nil
}

func (receiptEffect) keys(doc Document) []inventory.Key {
	return keysAt(doc.LocationID, doc.Lines)
}

func (receiptEffect) apply(doc *Document, batch *inventory.Batch) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, line := range doc.Lines {
		cost := line.UnitCost
		err := batch.Apply(inventory.Delta{
			Key:      rowKey(doc.LocationID, line.ProductID),
			OnHand:   line.Quantity,
			UnitCost: &cost,
			Kind:     inventory.MovementReceipt,
			Line:     line.LineNo,
		})
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(cost.Mul(quantity(line.Quantity)))
	}
	return total, nil
}

type writeoffEffect struct{}

func (writeoffEffect) checkLine(line Line) error {
	if line.Quantity <= 0 {
		return lineError(line, "quantity must be positive")
	}
	return nil
}

func (writeoffEffect) keys(doc Document) []inventory.Key {
	return keysAt(doc.LocationID, doc.Lines)
}

func (writeoffEffect) apply(doc *Document, batch *inventory.Batch) (decimal.Decimal, error) {
	total := decimal.Zero
	for i := range doc.Lines {
		line := &doc.Lines[i]
		key := rowKey(doc.LocationID, line.ProductID)
		cost := batch.Item(key).UnitCost
		delta := inventory.Delta{
			Key:    key,
			OnHand: -line.Quantity,
			Kind:   inventory.MovementWriteoff,
			Line:   line.LineNo,
		}
		if doc.ConsumesReservation {
			delta.Reserved = -line.Quantity
		}
		err := batch.Apply(delta)
		if err != nil {
			return decimal.Zero, err
		}
		line.UnitCost = cost
		total = total.Sub(cost.Mul(quantity(line.Quantity)))
	}
	return total, nil
}

type transferEffect struct{}

func (transferEffect) checkLine(line Line) error {
	if line.Quantity <= 0 {
		return lineError(line, "quantity must be positive")
	}
	return nil
}

func (transferEffect) keys(doc Document) []inventory.Key {
	return append(keysAt(doc.FromLocationID, doc.Lines), keysAt(doc.ToLocationID, doc.Lines)...)
}

// apply moves stock out of the source first so the insufficient-stock check
// always runs against the source row.
func (transferEffect) apply(doc *Document, batch *inventory.Batch) (decimal.Decimal, error) {
	total := decimal.Zero
	for i := range doc.Lines {
		line := &doc.Lines[i]
		src := rowKey(doc.FromLocationID, line.ProductID)
		cost := batch.Item(src).UnitCost
		if err := batch.Apply(inventory.Delta{
			Key:    src,
			OnHand: -line.Quantity,
			Kind:   inventory.MovementTransferOut,
			Line:   line.LineNo,
		}); err != nil {
			return decimal.Zero, err
		}
		if err := batch.Apply(inventory.Delta{
			Key:      rowKey(doc.ToLocationID, line.ProductID),
			OnHand:   line.Quantity,
			UnitCost: &cost,
			Kind:     inventory.MovementTransferIn,
			Line:     line.LineNo,
		}); err != nil {
			return decimal.Zero, err
		}
		line.UnitCost = cost
		total = total.Add(cost.Mul(quantity(line.Quantity)))
	}
	return total, nil
}

type revaluationEffect struct{}

func (revaluationEffect) checkLine(line Line) error {
	if line.NewUnitCost.IsNegative() || line.OldUnitCost.IsNegative() {
		return lineError(line, "unit cost must not be negative")
	}
	return nil
}

func (revaluationEffect) keys(doc Document) []inventory.Key {
	return keysAt(doc.LocationID, doc.Lines)
}

// apply writes the new cost as-is; quantity is unchanged so there is
// nothing to average. The total uses the quantity read under lock.
func (revaluationEffect) apply(doc *Document, batch *inventory.Batch) (decimal.Decimal, error) {
	total := decimal.Zero
	for i := range doc.Lines {
		line := &doc.Lines[i]
		key := rowKey(doc.LocationID, line.ProductID)
		onHand := batch.Item(key).OnHand
		cost := line.NewUnitCost
		if err := batch.Apply(inventory.Delta{
			Key:      key,
			UnitCost: &cost,
			Kind:     inventory.MovementRevaluation,
			Line:     line.LineNo,
		}); err != nil {
			return decimal.Zero, err
		}
		line.OnHandAtConfirm = &onHand
		total = total.Add(line.NewUnitCost.Sub(line.OldUnitCost).Mul(quantity(onHand)))
	}
	return total, nil
}

type stocktakingEffect struct{}

func (stocktakingEffect) checkLine(line Line) error {
	if line.ExpectedQuantity < 0 {
		return lineError(line, "expected quantity must not be negative")
	}
	if line.CountedQuantity != nil && *line.CountedQuantity < 0 {
		return lineError(line, "counted quantity must not be negative")
	}
	return nil
}

func (stocktakingEffect) keys(doc Document) []inventory.Key {
	keys := make([]inventory.Key, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		if line.CountedQuantity != nil {
			keys = append(keys, rowKey(doc.LocationID, line.ProductID))
		}
	}
	return keys
}

// apply sets each counted row to the counted quantity. The discrepancy is
// taken against the live on-hand quantity; a line whose live quantity no
// longer matches the opening snapshot is applied anyway and flagged.
func (stocktakingEffect) apply(doc *Document, batch *inventory.Batch) (decimal.Decimal, error) {
	total := decimal.Zero
	for i := range doc.Lines {
		line := &doc.Lines[i]
		if line.CountedQuantity == nil {
			continue
		}
		key := rowKey(doc.LocationID, line.ProductID)
		current := batch.Item(key)
		onHand := current.OnHand
		line.OnHandAtConfirm = &onHand
		line.Drift = onHand != line.ExpectedQuantity
		discrepancy := *line.CountedQuantity - onHand
		if discrepancy == 0 {
			continue
		}
		if err := batch.Apply(inventory.Delta{
			Key:    key,
			OnHand: discrepancy,
			Kind:   inventory.MovementStocktaking,
			Line:   line.LineNo,
		}); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(current.UnitCost.Mul(quantity(discrepancy)))
	}
	return total, nil
}
