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

// OrderCancelledHandler releases the reservations of a cancelled order
type OrderCancelledHandler struct {
	lines  lineRunner
	logger *zap.Logger
}

// NewOrderCancelledHandler creates a new handler for order cancelled events
func NewOrderCancelledHandler(inventory InventoryReservations, metrics *telemetry.InventoryMetrics, logger *zap.Logger) *OrderCancelledHandler {
	return &OrderCancelledHandler{
		lines:  lineRunner{inventory: inventory, metrics: metrics, logger: logger},
		logger: logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *OrderCancelledHandler) EventTypes() []string {
	return []string{order.EventTypeOrderCancelled}
}

// Handle releases each derived reservation if the order had been confirmed.
// Draft orders never held reservations.
func (h *OrderCancelledHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	cancelled, ok := event.(*order.OrderCancelledEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			order.EventTypeOrderCancelled, event.EventType())
	}

	if !cancelled.WasConfirmed() {
		h.logger.Debug("order was not confirmed, nothing to release",
			zap.String("order_id", cancelled.OrderID.String()),
			zap.String("previous_status", string(cancelled.PreviousStatus)),
		)
		return nil
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "saga", "order_cancelled",
		"order_id", cancelled.OrderID.String(),
	)
	defer span.End()

	_, err := h.lines.run(ctx, order.EventTypeOrderCancelled, cancelled.OrderID, cancelled.Items,
		func(ctx context.Context, item *inventoryapp.InventoryItemResponse, _ order.Line, reservationID string) error {
			return h.lines.inventory.ReleaseReservation(ctx, item.ID, reservationID)
		})
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("release reservations for order %s: %w", cancelled.OrderNumber, err)
	}

	h.logger.Info("order reservations released",
		zap.String("order_id", cancelled.OrderID.String()),
		zap.String("reason", cancelled.Reason),
		zap.Int("lines", len(cancelled.Items)),
	)
	return nil
}

var _ shared.EventHandler = (*OrderCancelledHandler)(nil)
