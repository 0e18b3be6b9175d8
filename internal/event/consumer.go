package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/repressales/salescart/pkg/kafka"
)

// TopicInventoryUpdated carries stock changes from the inventory service.
var TopicInventoryUpdated = pkgkafka.Topic("inventory", "updated")

// StockApplier clamps live carts to a product's new stock.
type StockApplier interface {
	ApplyStockChange(ctx context.Context, productID string, stock int) (int, error)
}

// InventoryUpdatedData is the payload of an inventory.updated event.
// Available is the sellable stock: quantity minus reservations.
type InventoryUpdatedData struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
	Reserved  int    `json:"reserved"`
	Available int    `json:"available"`
}

// Consumer processes inventory events for the cart service.
type Consumer struct {
	service StockApplier
	logger  *slog.Logger
}

// NewConsumer creates an inventory event consumer.
func NewConsumer(service StockApplier, logger *slog.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

// HandleInventoryUpdated clamps every live cart holding the product.
func (c *Consumer) HandleInventoryUpdated(ctx context.Context, event *pkgkafka.Event) error {
	var data InventoryUpdatedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal inventory.updated data: %w", err)
	}
	if data.ProductID == "" {
		c.logger.WarnContext(ctx, "inventory.updated without product id, skipping",
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	affected, err := c.service.ApplyStockChange(ctx, data.ProductID, data.Available)
	if err != nil {
		return fmt.Errorf("apply stock change for %s: %w", data.ProductID, err)
	}

	c.logger.InfoContext(ctx, "stock change applied",
		slog.String("product_id", data.ProductID),
		slog.Int("available", data.Available),
		slog.Int("sessions_clamped", affected),
	)
	return nil
}
