package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisIdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisIdempotencyStore(client, time.Hour), mr
}

func TestRedisIdempotencyStore(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	ok, err := s.Contains(ctx, "e-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Add(ctx, "e-1"))
	ok, err = s.Contains(ctx, "e-1")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.True(t, mr.Exists("processed-event:e-1"))
	mr.FastForward(2 * time.Hour)
	ok, err = s.Contains(ctx, "e-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIdempotentHandler(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	calls := 0
	h := IdempotentHandler(store, func(context.Context, *Event) error {
		calls++
		return nil
	}, discardLogger())

	e := &Event{EventID: "e-1", EventType: "inventory.updated"}
	require.NoError(t, h(ctx, e))
	require.NoError(t, h(ctx, e))
	assert.Equal(t, 1, calls)

	require.NoError(t, h(ctx, &Event{}))
	require.NoError(t, h(ctx, &Event{}))
	assert.Equal(t, 3, calls)
}

func TestIdempotentHandler_FailureNotRecorded(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	h := IdempotentHandler(store, func(context.Context, *Event) error {
		return errors.New("fail")
	}, discardLogger())

	require.Error(t, h(ctx, &Event{EventID: "e-1"}))
	ok, err := store.Contains(ctx, "e-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
