package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/repressales/salescart/internal/cart"
	"github.com/repressales/salescart/internal/domain"
	pkgkafka "github.com/repressales/salescart/pkg/kafka"
	"github.com/repressales/salescart/pkg/logger"
)

// Kafka topics produced by the cart service.
var (
	TopicCartUpdated    = pkgkafka.Topic("cart", "updated")
	TopicCartReconciled = pkgkafka.Topic("cart", "reconciled")
)

const (
	AggregateTypeCart = "cart"
	SourceCartService = "salescart"
)

// CartUpdatedData is the payload of a cart.updated event.
type CartUpdatedData struct {
	SessionID string            `json:"session_id"`
	Change    cart.Change       `json:"change"`
	Lines     []domain.CartLine `json:"lines"`
	ItemCount int               `json:"item_count"`
}

// CartReconciledData is the payload of a cart.reconciled event.
type CartReconciledData struct {
	SessionID string        `json:"session_id"`
	Trigger   string        `json:"trigger"`
	Changes   []cart.Change `json:"changes"`
}

// Producer publishes cart domain events.
type Producer struct {
	publisher pkgkafka.Publisher
	logger    *slog.Logger
}

// NewProducer creates a cart event producer.
func NewProducer(publisher pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishCartUpdated publishes the cart after a single intent changed it.
func (p *Producer) PublishCartUpdated(ctx context.Context, sessionID string, change cart.Change, store *cart.Store) error {
	data := CartUpdatedData{
		SessionID: sessionID,
		Change:    change,
		Lines:     store.Lines(),
		ItemCount: store.ItemCount(),
	}
	return p.publish(ctx, TopicCartUpdated, "cart.updated", sessionID, data)
}

// PublishCartReconciled publishes the lines a clamp pass changed.
func (p *Producer) PublishCartReconciled(ctx context.Context, sessionID, trigger string, changes []cart.Change) error {
	data := CartReconciledData{
		SessionID: sessionID,
		Trigger:   trigger,
		Changes:   changes,
	}
	return p.publish(ctx, TopicCartReconciled, "cart.reconciled", sessionID, data)
}

func (p *Producer) publish(ctx context.Context, topic, eventType, sessionID string, data any) error {
	evt, err := pkgkafka.NewEvent(eventType, sessionID, AggregateTypeCart, SourceCartService, data)
	if err != nil {
		return err
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}

	if err := p.publisher.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "cart event published",
		slog.String("event_type", eventType),
		slog.String("session_id", sessionID),
	)
	return nil
}
