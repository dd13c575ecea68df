package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Alert types
const (
	AlertTypeLowStock   = "low_stock"
	AlertTypeOutOfStock = "out_of_stock"
)

// StockAlert represents a stock level alert
type StockAlert struct {
	ItemID            string    `json:"item_id"`
	ProductSku        string    `json:"product_sku"`
	AlertType         string    `json:"alert_type"`
	CurrentQuantity   int64     `json:"current_quantity"`
	MinimumStockLevel int64     `json:"minimum_stock_level"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// StockAlertNotifier sends stock alerts to operators
type StockAlertNotifier interface {
	SendAlert(ctx context.Context, alert StockAlert) error
}

// StockAlertHandler turns LowStockWarning and OutOfStock events into alerts
type StockAlertHandler struct {
	notifier StockAlertNotifier
	metrics  *telemetry.InventoryMetrics
	logger   *zap.Logger
}

// NewStockAlertHandler creates a new StockAlertHandler
func NewStockAlertHandler(notifier StockAlertNotifier, metrics *telemetry.InventoryMetrics, logger *zap.Logger) *StockAlertHandler {
	return &StockAlertHandler{
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *StockAlertHandler) EventTypes() []string {
	return []string{inventory.EventTypeLowStockWarning, inventory.EventTypeOutOfStock}
}

// Handle processes a threshold event
func (h *StockAlertHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	var alert StockAlert
	switch e := event.(type) {
	case *inventory.LowStockWarningEvent:
		alert = StockAlert{
			ItemID:            e.ItemID.String(),
			ProductSku:        e.Sku,
			AlertType:         AlertTypeLowStock,
			CurrentQuantity:   e.CurrentQuantity,
			MinimumStockLevel: e.MinimumStockLevel,
		}
	case *inventory.OutOfStockEvent:
		alert = StockAlert{
			ItemID:     e.ItemID.String(),
			ProductSku: e.Sku,
			AlertType:  AlertTypeOutOfStock,
		}
	default:
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}
	alert.OccurredAt = event.OccurredAt()

	h.metrics.RecordAlert(ctx, alert.AlertType)
	if h.notifier == nil {
		return nil
	}
	// Notification failure must not fail event handling
	if err := h.notifier.SendAlert(ctx, alert); err != nil {
		h.logger.Error("Failed to send stock alert",
			zap.String("item_id", alert.ItemID),
			zap.String("alert_type", alert.AlertType),
			zap.Error(err),
		)
	}
	return nil
}

var _ shared.EventHandler = (*StockAlertHandler)(nil)

// LoggingStockAlertNotifier writes alerts to the log
type LoggingStockAlertNotifier struct {
	logger *zap.Logger
}

// NewLoggingStockAlertNotifier creates a new logging notifier
func NewLoggingStockAlertNotifier(logger *zap.Logger) *LoggingStockAlertNotifier {
	return &LoggingStockAlertNotifier{logger: logger}
}

// SendAlert logs the stock alert
func (n *LoggingStockAlertNotifier) SendAlert(_ context.Context, alert StockAlert) error {
	n.logger.Warn("STOCK ALERT",
		zap.String("type", alert.AlertType),
		zap.String("item_id", alert.ItemID),
		zap.String("sku", alert.ProductSku),
		zap.Int64("current_qty", alert.CurrentQuantity),
		zap.Int64("minimum_qty", alert.MinimumStockLevel),
	)
	return nil
}

var _ StockAlertNotifier = (*LoggingStockAlertNotifier)(nil)
