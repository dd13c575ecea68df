package saga

import (
	"context"
	"fmt"

	inventoryapp "github.com/erp/inventory/internal/application/inventory"
	"github.com/erp/inventory/internal/domain/order"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// OrderShippedHandler consumes the reservations of a shipped order
type OrderShippedHandler struct {
	lines  lineRunner
	logger *zap.Logger
}

// NewOrderShippedHandler creates a new handler for order shipped events
func NewOrderShippedHandler(inventory InventoryReservations, metrics *telemetry.InventoryMetrics, logger *zap.Logger) *OrderShippedHandler {
	return &OrderShippedHandler{
		lines:  lineRunner{inventory: inventory, metrics: metrics, logger: logger},
		logger: logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *OrderShippedHandler) EventTypes() []string {
	return []string{order.EventTypeOrderShipped}
}

// Handle confirms each derived reservation. A reservation that is already
// gone was confirmed by an earlier delivery and is skipped by the ledger.
func (h *OrderShippedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	shipped, ok := event.(*order.OrderShippedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			order.EventTypeOrderShipped, event.EventType())
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "saga", "order_shipped",
		"order_id", shipped.OrderID.String(),
	)
	defer span.End()

	_, err := h.lines.run(ctx, order.EventTypeOrderShipped, shipped.OrderID, shipped.Items,
		func(ctx context.Context, item *inventoryapp.InventoryItemResponse, _ order.Line, reservationID string) error {
			return h.lines.inventory.ConfirmReservation(ctx, item.ID, reservationID)
		})
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("confirm reservations for order %s: %w", shipped.OrderNumber, err)
	}

	h.logger.Info("order reservations confirmed",
		zap.String("order_id", shipped.OrderID.String()),
		zap.Int("lines", len(shipped.Items)),
	)
	return nil
}

var _ shared.EventHandler = (*OrderShippedHandler)(nil)
