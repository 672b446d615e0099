package integration

import (
	"cmp"
	"slices"

	"github.com/odyssey-erp/stockledger/internal/documents"
)

// ItemLine is one product and quantity in a cart, order or sale.
type ItemLine struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

// mergeLines sums quantities per product and orders the result by product
// so repeated scans of the same item become one line.
func mergeLines(lines []ItemLine) []ItemLine {
	totals := make(map[int64]int64, len(lines))
	for _, line := range lines {
		totals[line.ProductID] += line.Quantity
	}
	out := make([]ItemLine, 0, len(totals))
	for productID, qty := range totals {
		out = append(out, ItemLine{ProductID: productID, Quantity: qty})
	}
	slices.SortFunc(out, func(a, b ItemLine) int { return cmp.Compare(a.ProductID, b.ProductID) })
	return out
}

func writeoffLines(lines []ItemLine) []documents.LineInput {
	merged := mergeLines(lines)
	out := make([]documents.LineInput, 0, len(merged))
	for _, line := range merged {
		out = append(out, documents.LineInput{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return out
}
