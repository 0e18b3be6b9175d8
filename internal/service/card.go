package service

import (
	"github.com/repressales/salescart/internal/domain"
	"github.com/repressales/salescart/internal/engine"
	"github.com/repressales/salescart/internal/money"
)

// PriceNotSpecified is shown in place of a missing or non-positive price.
const PriceNotSpecified = "Price not specified"

// ProductCard is the read model of one product as a session sees it.
type ProductCard struct {
	ProductID      string              `json:"product_id"`
	Name           string              `json:"name"`
	Article        string              `json:"article,omitempty"`
	Category       string              `json:"category,omitempty"`
	Price          string              `json:"price"`
	HasPrice       bool                `json:"has_price"`
	WholesalePrice string              `json:"wholesale_price,omitempty"`
	StockCount     int                 `json:"stock_count"`
	Availability   domain.Availability `json:"availability"`
	Status         string              `json:"status"`
	Orderable      bool                `json:"orderable"`
	InCart         bool                `json:"in_cart"`
	Quantity       int                 `json:"quantity"`
	CanAdd         bool                `json:"can_add"`
	CanIncrease    bool                `json:"can_increase"`
	CanDecrease    bool                `json:"can_decrease"`
}

// buildCard projects p against the session cart behind e.
func buildCard(p domain.ProductEntry, e *engine.Engine, f money.Formatter) ProductCard {
	availability := domain.Classify(p.StockCount)
	store := e.Store()

	card := ProductCard{
		ProductID:    p.ProductID,
		Name:         p.Name,
		Article:      p.DisplayArticle(),
		Category:     p.Category,
		Price:        PriceNotSpecified,
		HasPrice:     p.HasPrice(),
		StockCount:   p.StockCount,
		Availability: availability,
		Status:       availability.Status(p.StockCount),
		Orderable:    p.Orderable(),
		InCart:       store.IsInCart(p.ProductID),
		Quantity:     store.QuantityOf(p.ProductID),
		CanAdd:       e.CanAdd(p),
		CanIncrease:  e.CanIncrease(p),
		CanDecrease:  e.CanDecrease(p),
	}
	if card.HasPrice {
		card.Price = f.Format(*p.Price)
	}
	if p.HasWholesalePrice() {
		card.WholesalePrice = f.Format(*p.PriceWholesale)
	}
	return card
}
