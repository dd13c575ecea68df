package event

import (
	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/domain/order"
	"github.com/erp/inventory/internal/domain/shared"
)

// eventFactory returns an empty event value to decode a payload into
type eventFactory func() shared.DomainEvent

// eventFactories lists every event type that crosses a process boundary.
// A type missing here cannot be read back from the outbox or a broker.
var eventFactories = map[string]eventFactory{
	// Inventory
	inventory.EventTypeInventoryItemCreated: func() shared.DomainEvent {
		return &inventory.InventoryItemCreatedEvent{}
	},
	inventory.EventTypeInventoryReserved: func() shared.DomainEvent {
		return &inventory.InventoryReservedEvent{}
	},
	inventory.EventTypeInventoryReservationReleased: func() shared.DomainEvent {
		return &inventory.InventoryReservationReleasedEvent{}
	},
	inventory.EventTypeInventoryStockIncreased: func() shared.DomainEvent {
		return &inventory.InventoryStockIncreasedEvent{}
	},
	inventory.EventTypeInventoryStockDecreased: func() shared.DomainEvent {
		return &inventory.InventoryStockDecreasedEvent{}
	},
	inventory.EventTypeLowStockWarning: func() shared.DomainEvent {
		return &inventory.LowStockWarningEvent{}
	},
	inventory.EventTypeOutOfStock: func() shared.DomainEvent {
		return &inventory.OutOfStockEvent{}
	},

	// Order
	order.EventTypeOrderConfirmed: func() shared.DomainEvent {
		return &order.OrderConfirmedEvent{}
	},
	order.EventTypeOrderShipped: func() shared.DomainEvent {
		return &order.OrderShippedEvent{}
	},
	order.EventTypeOrderCancelled: func() shared.DomainEvent {
		return &order.OrderCancelledEvent{}
	},
}
