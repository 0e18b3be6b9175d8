package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ProductEntry is a catalog snapshot of a single product. Entries are
// immutable once read; a fresher read replaces the whole value.
type ProductEntry struct {
	ProductID      string           `json:"product_id"`
	Name           string           `json:"name"`
	Article        string           `json:"article,omitempty"`
	Category       string           `json:"category,omitempty"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	PriceWholesale *decimal.Decimal `json:"price_wholesale,omitempty"`
	StockCount     int              `json:"stock_count"`
}

// HasPrice reports whether the retail price is known and positive. A zero or
// negative price is treated the same as a missing one.
func (p ProductEntry) HasPrice() bool {
	return p.Price != nil && p.Price.IsPositive()
}

// HasWholesalePrice reports whether the wholesale price should be shown.
func (p ProductEntry) HasWholesalePrice() bool {
	return p.PriceWholesale != nil && p.PriceWholesale.IsPositive()
}

// Orderable reports whether the product may be put in a cart.
func (p ProductEntry) Orderable() bool {
	return p.StockCount > 0 && p.HasPrice()
}

// DisplayArticle returns the trimmed article code, or "" when blank.
func (p ProductEntry) DisplayArticle() string {
	return strings.TrimSpace(p.Article)
}

// CartLine is one product in a cart.
type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}
