package repository

import (
	"context"
)

// CartRepository persists session carts as productID → quantity maps.
type CartRepository interface {
	// Load returns the saved cart lines for a session, or an apperrors
	// NotFound error when nothing is saved.
	Load(ctx context.Context, sessionID string) (map[string]int, error)

	// Save replaces the saved cart for a session and refreshes its TTL.
	Save(ctx context.Context, sessionID string, lines map[string]int) error

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error
}
