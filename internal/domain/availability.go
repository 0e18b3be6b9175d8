package domain

import (
	"fmt"
	"strconv"
)

// Availability is the stock tier shown next to a product.
type Availability int

const (
	OutOfStock Availability = iota
	LowStock
	InStock
)

// LowStockThreshold is the highest stock count still reported as low.
const LowStockThreshold = 3

// Classify maps a stock count to its availability tier. It is total over all
// ints: zero and negative counts are out of stock.
func Classify(stock int) Availability {
	switch {
	case stock <= 0:
		return OutOfStock
	case stock <= LowStockThreshold:
		return LowStock
	default:
		return InStock
	}
}

// String returns the tier name used in JSON and logs.
func (a Availability) String() string {
	switch a {
	case OutOfStock:
		return "out_of_stock"
	case LowStock:
		return "low_stock"
	case InStock:
		return "in_stock"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Availability) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Availability) UnmarshalText(text []byte) error {
	switch string(text) {
	case "out_of_stock":
		*a = OutOfStock
	case "low_stock":
		*a = LowStock
	case "in_stock":
		*a = InStock
	default:
		return fmt.Errorf("unknown availability %q", text)
	}
	return nil
}

// Status returns the human readable status for the tier. Low stock surfaces
// the exact remaining count.
func (a Availability) Status(stock int) string {
	switch a {
	case OutOfStock:
		return "Out of stock"
	case LowStock:
		return "Only " + strconv.Itoa(stock) + " left"
	default:
		return "In stock"
	}
}
