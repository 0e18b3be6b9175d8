// Package catalog defines where product entries come from.
package catalog

import (
	"context"

	"github.com/repressales/salescart/internal/domain"
)

// Source reads product entries. Entries may change between calls; callers
// treat every read as a fresh snapshot.
type Source interface {
	// Get returns one product, or an apperrors NotFound error.
	Get(ctx context.Context, productID string) (*domain.ProductEntry, error)
	// GetMany returns the products that exist among ids, keyed by product ID.
	// Unknown IDs are omitted without error.
	GetMany(ctx context.Context, ids []string) (map[string]domain.ProductEntry, error)
	// List returns one page of products ordered by name and the total count.
	List(ctx context.Context, offset, limit int) ([]domain.ProductEntry, int, error)
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
}
