package procurement

import "fmt"

const (
	// DefaultOrderPrefix precedes every order number unless configured otherwise.
	DefaultOrderPrefix = "PO-"
	// DefaultOrderWidth is the zero-padded width of the sequence part.
	DefaultOrderWidth = 4
)

// FormatOrderNumber renders a sequence as prefix plus a zero-padded counter,
// e.g. PO-0004. Counters wider than width are printed in full.
func FormatOrderNumber(prefix string, width int, seq int64) string {
	if width <= 0 {
		width = DefaultOrderWidth
	}
	return fmt.Sprintf("%s%0*d", prefix, width, seq)
}
