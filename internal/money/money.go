// Package money holds the decimal conventions for unit costs and document totals.
//
// Values are accumulated at full precision; Round and Format are applied only
// when amounts leave the service (JSON responses, alerts, reports).
package money

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Scale is the number of fractional digits shown for currency amounts.
const Scale = 2

// Zero is the zero amount.
var Zero = decimal.Zero

// Round rounds d to Scale digits, halves away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// String renders d rounded to Scale digits without grouping, e.g. "1234.50".
func String(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}

// Format renders d rounded to Scale digits using the grouping rules of tag.
// The integer part is grouped as an int64 and the fraction is copied from
// the decimal digits, so no amount passes through a float.
func Format(d decimal.Decimal, tag language.Tag) string {
	rounded := Round(d)
	whole := rounded.Abs().Truncate(0)
	if !whole.BigInt().IsInt64() {
		return rounded.StringFixed(Scale)
	}
	p := message.NewPrinter(tag)
	out := p.Sprint(number.Decimal(whole.IntPart()))
	fixed := rounded.Abs().StringFixed(Scale)
	out += decimalSeparator(p) + fixed[strings.IndexByte(fixed, '.')+1:]
	if rounded.IsNegative() {
		out = "-" + out
	}
	return out
}

// decimalSeparator reads the separator the printer places before fractions.
func decimalSeparator(p *message.Printer) string {
	sample := p.Sprint(number.Decimal(0.5, number.Scale(1)))
	sep := strings.TrimSuffix(strings.TrimPrefix(sample, "0"), "5")
	if sep == "" || sep == sample {
		return "."
	}
	return sep
}

// Parse parses a decimal string, rejecting empty input.
func Parse(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// Mul multiplies an integer quantity by a unit amount.
func Mul(qty int64, unit decimal.Decimal) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(qty))
}

// WeightedAverage blends the current unit cost with incoming stock.
// It returns current unchanged when the resulting quantity is zero.
func WeightedAverage(onHand int64, current decimal.Decimal, incomingQty int64, incoming decimal.Decimal) decimal.Decimal {
	total := onHand + incomingQty
	if total == 0 {
		return current
	}
	value := Mul(onHand, current).Add(Mul(incomingQty, incoming))
	return value.Div(decimal.NewFromInt(total))
}
