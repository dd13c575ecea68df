// Package saga reconciles inventory reservations with the order lifecycle.
// Every handler derives the same reservation id for an order line, so at
// least once delivery converges: a replayed reserve is a no-op and a confirm
// or release of an absent reservation is a no-op.
package saga

import (
	"context"
	"errors"
	"time"

	inventoryapp "github.com/erp/inventory/internal/application/inventory"
	"github.com/erp/inventory/internal/domain/order"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultFulfillmentWindow is how long an order's reservations are held
const DefaultFulfillmentWindow = 72 * time.Hour

// InventoryReservations is the part of the inventory service the saga drives
type InventoryReservations interface {
	GetByProductSku(ctx context.Context, sku string) (*inventoryapp.InventoryItemResponse, error)
	Reserve(ctx context.Context, req inventoryapp.ReserveRequest) (*inventoryapp.ReservationResponse, error)
	ConfirmReservation(ctx context.Context, itemID uuid.UUID, reservationID string) error
	ReleaseReservation(ctx context.Context, itemID uuid.UUID, reservationID string) error
}

// ReservationID derives the deterministic reservation id of an order line
func ReservationID(orderID uuid.UUID, productSku string) string {
	return "order:" + orderID.String() + ":" + productSku
}

// lineAction applies one saga step to a resolved order line
type lineAction func(ctx context.Context, item *inventoryapp.InventoryItemResponse, line order.Line, reservationID string) error

// lineRunner resolves each order line to its inventory item and applies an
// action. Missing SKUs are logged, counted and skipped. Errors from other
// lines are joined and returned after every line was attempted so the
// delivery is retried; lines that already succeeded are no-ops on retry.
type lineRunner struct {
	inventory InventoryReservations
	metrics   *telemetry.InventoryMetrics
	logger    *zap.Logger
}

func (r lineRunner) run(ctx context.Context, eventType string, orderID uuid.UUID, lines []order.Line, action lineAction) (applied int, err error) {
	var errs []error
	for _, line := range lines {
		reservationID := ReservationID(orderID, line.ProductSku)

		item, lookupErr := r.inventory.GetByProductSku(ctx, line.ProductSku)
		if errors.Is(lookupErr, shared.ErrNotFound) {
			r.logger.Warn("no inventory item for order line, skipping",
				zap.String("event_type", eventType),
				zap.String("order_id", orderID.String()),
				zap.String("sku", line.ProductSku),
			)
			r.metrics.RecordMissingSku(ctx, eventType)
			continue
		}
		if lookupErr != nil {
			errs = append(errs, lookupErr)
			continue
		}

		if actionErr := action(ctx, item, line, reservationID); actionErr != nil {
			r.logger.Error("order line failed",
				zap.String("event_type", eventType),
				zap.String("order_id", orderID.String()),
				zap.String("sku", line.ProductSku),
				zap.String("reservation_id", reservationID),
				zap.Error(actionErr),
			)
			errs = append(errs, actionErr)
			continue
		}
		applied++
	}
	return applied, errors.Join(errs...)
}
