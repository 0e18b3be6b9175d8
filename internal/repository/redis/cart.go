package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/repressales/salescart/pkg/errors"
)

const keyPrefix = "cart:"

func linesKey(sessionID string) string { return keyPrefix + sessionID + ":lines" }
func metaKey(sessionID string) string  { return keyPrefix + sessionID + ":saved_at" }

// CartRepository implements repository.CartRepository with a Redis hash of
// productID → quantity per session plus a saved-at marker so that an empty
// cart still resumes.
type CartRepository struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCartRepository creates a Redis-backed cart repository.
func NewCartRepository(client redis.UniversalClient, ttl time.Duration) *CartRepository {
	return &CartRepository{
		client: client,
		ttl:    ttl,
	}
}

// Load reads the saved lines for a session.
func (r *CartRepository) Load(ctx context.Context, sessionID string) (map[string]int, error) {
	pipe := r.client.Pipeline()
	marker := pipe.Exists(ctx, metaKey(sessionID))
	fields := pipe.HGetAll(ctx, linesKey(sessionID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis load cart: %w", err)
	}

	if marker.Val() == 0 {
		return nil, apperrors.NotFound("cart", sessionID)
	}

	lines := make(map[string]int, len(fields.Val()))
	for id, raw := range fields.Val() {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parse quantity of %s: %w", id, err)
		}
		lines[id] = qty
	}
	return lines, nil
}

// Save atomically replaces the saved lines for a session.
func (r *CartRepository) Save(ctx context.Context, sessionID string, lines map[string]int) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, linesKey(sessionID))
		if len(lines) > 0 {
			values := make(map[string]any, len(lines))
			for id, qty := range lines {
				values[id] = qty
			}
			pipe.HSet(ctx, linesKey(sessionID), values)
			pipe.Expire(ctx, linesKey(sessionID), r.ttl)
		}
		pipe.Set(ctx, metaKey(sessionID), time.Now().UTC().Format(time.RFC3339), r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save cart: %w", err)
	}
	return nil
}

// Ping checks Redis is reachable.
func (r *CartRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
