// Package engine decides which cart transitions are legal for a product and
// keeps cart quantities bounded by current stock.
package engine

import (
	"github.com/repressales/salescart/internal/cart"
	"github.com/repressales/salescart/internal/domain"
)

// Engine applies cart intents against one session's store.
type Engine struct {
	store *cart.Store
}

// New binds an engine to store.
func New(store *cart.Store) *Engine {
	return &Engine{store: store}
}

// Store returns the underlying cart.
func (e *Engine) Store() *cart.Store {
	return e.store
}

// CanAdd reports whether p is orderable and not yet in the cart.
func (e *Engine) CanAdd(p domain.ProductEntry) bool {
	return p.Orderable() && !e.store.IsInCart(p.ProductID)
}

// CanIncrease reports whether the line for p is below p's stock.
func (e *Engine) CanIncrease(p domain.ProductEntry) bool {
	return e.store.IsInCart(p.ProductID) && e.store.QuantityOf(p.ProductID) < p.StockCount
}

// CanDecrease reports whether the line for p is above 1.
func (e *Engine) CanDecrease(p domain.ProductEntry) bool {
	return e.store.IsInCart(p.ProductID) && e.store.QuantityOf(p.ProductID) > 1
}

// Add puts p in the cart with quantity 1. The returned change carries the
// line quantity the mutation produced.
func (e *Engine) Add(p domain.ProductEntry) (cart.Change, bool) {
	return e.store.AddItem(p)
}

// Increase adds one unit of p, bounded by its stock.
func (e *Engine) Increase(p domain.ProductEntry) (cart.Change, bool) {
	return e.store.IncreaseQuantity(p.ProductID, p.StockCount)
}

// Decrease removes one unit of p, never below 1.
func (e *Engine) Decrease(p domain.ProductEntry) (cart.Change, bool) {
	return e.store.DecreaseQuantity(p.ProductID)
}

// Remove deletes the line for productID.
func (e *Engine) Remove(productID string) (cart.Change, bool) {
	return e.store.RemoveItem(productID)
}

// Reconcile runs the clamp pass for entries: any line above its product's
// stock is lowered to it, and lines of products with no stock are removed.
// The pass is atomic with respect to other cart mutations.
func (e *Engine) Reconcile(entries ...domain.ProductEntry) []cart.Change {
	if len(entries) == 0 {
		return nil
	}
	stock := make(map[string]int, len(entries))
	for _, p := range entries {
		stock[p.ProductID] = p.StockCount
	}
	return e.store.Clamp(stock)
}

// ReconcileStock is Reconcile for a bare productID → stock map.
func (e *Engine) ReconcileStock(stock map[string]int) []cart.Change {
	if len(stock) == 0 {
		return nil
	}
	return e.store.Clamp(stock)
}
