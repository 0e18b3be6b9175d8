package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      chan kafka.Message
	committed []kafka.Message
	closes    int
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	ch := make(chan kafka.Message, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	return &fakeReader{msgs: ch}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
	return nil
}

func (r *fakeReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func eventMessage(t *testing.T, offset int64) kafka.Message {
	t.Helper()
	e, err := NewEvent("inventory.updated", "P1", "inventory", "inventory-service", map[string]int{"available": 2})
	require.NoError(t, err)
	msg, err := e.Message("ecommerce.inventory.updated")
	require.NoError(t, err)
	msg.Offset = offset
	return msg
}

func newTestConsumer(r messageReader, h Handler) *Consumer {
	return &Consumer{
		reader:  r,
		topic:   "ecommerce.inventory.updated",
		group:   "cart-service",
		logger:  discardLogger(),
		handler: h,
		backoff: time.Millisecond,
	}
}

func TestConsumer_Process_Success(t *testing.T) {
	r := newFakeReader()
	var got *Event
	c := newTestConsumer(r, func(_ context.Context, e *Event) error {
		got = e
		return nil
	})

	c.process(context.Background(), eventMessage(t, 1))

	require.NotNil(t, got)
	assert.Equal(t, "P1", got.AggregateID)
	assert.Equal(t, 1, r.committedCount())
}

func TestConsumer_Process_RetriesThenSucceeds(t *testing.T) {
	r := newFakeReader()
	calls := 0
	c := newTestConsumer(r, func(context.Context, *Event) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	c.process(context.Background(), eventMessage(t, 1))

	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, r.committedCount())
}

func TestConsumer_Process_PoisonMessageCommitted(t *testing.T) {
	r := newFakeReader()
	calls := 0
	c := newTestConsumer(r, func(context.Context, *Event) error {
		calls++
		return errors.New("always fails")
	})

	c.process(context.Background(), eventMessage(t, 1))

	assert.Equal(t, maxHandlerRetries, calls)
	assert.Equal(t, 1, r.committedCount())
}

func TestConsumer_Process_BadPayloadCommitted(t *testing.T) {
	r := newFakeReader()
	called := false
	c := newTestConsumer(r, func(context.Context, *Event) error {
		called = true
		return nil
	})

	c.process(context.Background(), kafka.Message{Value: []byte("{not json")})

	assert.False(t, called)
	assert.Equal(t, 1, r.committedCount())
}

func TestConsumer_Start_StopsOnCancel(t *testing.T) {
	r := newFakeReader(eventMessage(t, 1), eventMessage(t, 2))
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	handled := 0
	c := newTestConsumer(r, func(context.Context, *Event) error {
		mu.Lock()
		handled++
		if handled == 2 {
			cancel()
		}
		mu.Unlock()
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}

	assert.Equal(t, 2, r.committedCount())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, r.closes)
}
