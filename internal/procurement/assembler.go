// Package procurement holds the pure order-admission rules: item totalling,
// budget exposure and order numbering.
package procurement

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidItem is the sentinel wrapped by every InvalidItemError.
var ErrInvalidItem = errors.New("invalid order item")

// AmountScale is the number of decimal places stored for quantities, prices
// and totals.
const AmountScale = 4

// FitsScale reports whether d can be stored without rounding.
func FitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(AmountScale))
}

// InvalidItemError describes why a line item was rejected. Index is -1 when
// the problem concerns the item list as a whole.
type InvalidItemError struct {
	Index  int
	Field  string
	Reason string
}

func (e *InvalidItemError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", ErrInvalidItem, e.Reason)
	}
	return fmt.Sprintf("%s: items[%d].%s %s", ErrInvalidItem, e.Index, e.Field, e.Reason)
}

func (e *InvalidItemError) Unwrap() error { return ErrInvalidItem }

var scaleReason = fmt.Sprintf("must have at most %d decimal places", AmountScale)

// ItemInput is a requested order line.
type ItemInput struct {
	MaterialID uuid.UUID
	Quantity   decimal.Decimal
	UnitPrice  *decimal.Decimal
	Attributes json.RawMessage
}

// Line is an ItemInput with its computed total.
type Line struct {
	ItemInput
	LineTotal decimal.Decimal
}

// Assembly is the result of totalling a list of items.
type Assembly struct {
	Lines          []Line
	TotalEstimated decimal.Decimal
}

// Assemble validates items and computes each line total and the order total.
// An absent unit price counts as zero. Line totals are rounded to AmountScale
// before summing so the stored total always equals the sum of stored lines.
func Assemble(items []ItemInput) (Assembly, error) {
	if len(items) == 0 {
		return Assembly{}, &InvalidItemError{Index: -1, Field: "items", Reason: "at least one item is required"}
	}

	lines := make([]Line, 0, len(items))
	total := decimal.Zero
	for i, item := range items {
		if item.MaterialID == uuid.Nil {
			return Assembly{}, &InvalidItemError{Index: i, Field: "material_id", Reason: "is required"}
		}
		if !item.Quantity.IsPositive() {
			return Assembly{}, &InvalidItemError{Index: i, Field: "quantity", Reason: "must be greater than zero"}
		}
		if !FitsScale(item.Quantity) {
			return Assembly{}, &InvalidItemError{Index: i, Field: "quantity", Reason: scaleReason}
		}
		price := decimal.Zero
		if item.UnitPrice != nil {
			if item.UnitPrice.IsNegative() {
				return Assembly{}, &InvalidItemError{Index: i, Field: "unit_price", Reason: "must not be negative"}
			}
			if !FitsScale(*item.UnitPrice) {
				return Assembly{}, &InvalidItemError{Index: i, Field: "unit_price", Reason: scaleReason}
			}
			price = *item.UnitPrice
		}

		lineTotal := item.Quantity.Mul(price).Round(AmountScale)
		total = total.Add(lineTotal)
		lines = append(lines, Line{ItemInput: item, LineTotal: lineTotal})
	}

	return Assembly{Lines: lines, TotalEstimated: total}, nil
}
