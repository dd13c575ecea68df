package saga

import (
	"context"
	"fmt"
	"time"

	inventoryapp "github.com/erp/inventory/internal/application/inventory"
	"github.com/erp/inventory/internal/domain/order"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// OrderConfirmedHandler reserves stock for every line of a confirmed order
type OrderConfirmedHandler struct {
	lines             lineRunner
	fulfillmentWindow time.Duration
	now               func() time.Time
	logger            *zap.Logger
}

// OrderConfirmedHandlerOption is a functional option for configuring the handler
type OrderConfirmedHandlerOption func(*OrderConfirmedHandler)

// WithFulfillmentWindow sets how long reservations are held before they expire
func WithFulfillmentWindow(window time.Duration) OrderConfirmedHandlerOption {
	return func(h *OrderConfirmedHandler) {
		h.fulfillmentWindow = window
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) OrderConfirmedHandlerOption {
	return func(h *OrderConfirmedHandler) {
		h.now = now
	}
}

// NewOrderConfirmedHandler creates a new handler for order confirmed events
func NewOrderConfirmedHandler(
	inventory InventoryReservations,
	metrics *telemetry.InventoryMetrics,
	logger *zap.Logger,
	opts ...OrderConfirmedHandlerOption,
) *OrderConfirmedHandler {
	h := &OrderConfirmedHandler{
		lines:             lineRunner{inventory: inventory, metrics: metrics, logger: logger},
		fulfillmentWindow: DefaultFulfillmentWindow,
		now:               time.Now,
		logger:            logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *OrderConfirmedHandler) EventTypes() []string {
	return []string{order.EventTypeOrderConfirmed}
}

// Handle reserves each order line under its derived reservation id
func (h *OrderConfirmedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	confirmed, ok := event.(*order.OrderConfirmedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			order.EventTypeOrderConfirmed, event.EventType())
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "saga", "order_confirmed",
		"order_id", confirmed.OrderID.String(),
		"items_count", len(confirmed.Items),
	)
	defer span.End()

	expiresAt := h.now().Add(h.fulfillmentWindow)

	reserved, err := h.lines.run(ctx, order.EventTypeOrderConfirmed, confirmed.OrderID, confirmed.Items,
		func(ctx context.Context, item *inventoryapp.InventoryItemResponse, line order.Line, reservationID string) error {
			_, err := h.lines.inventory.Reserve(ctx, inventoryapp.ReserveRequest{
				ItemID:        item.ID,
				Quantity:      line.Quantity,
				ReservationID: reservationID,
				ExpiresAt:     &expiresAt,
			})
			return err
		})
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("reserve stock for order %s: %w", confirmed.OrderNumber, err)
	}

	h.logger.Info("order stock reserved",
		zap.String("order_id", confirmed.OrderID.String()),
		zap.String("order_number", confirmed.OrderNumber),
		zap.Int("lines", len(confirmed.Items)),
		zap.Int("reserved", reserved),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}

var _ shared.EventHandler = (*OrderConfirmedHandler)(nil)
