package inventory

import (
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constant
const AggregateTypeInventoryItem = "InventoryItem"

// Event type constants
const (
	EventTypeInventoryItemCreated         = "InventoryItemCreated"
	EventTypeInventoryReserved            = "InventoryReserved"
	EventTypeInventoryReservationReleased = "InventoryReservationReleased"
	EventTypeInventoryStockIncreased      = "InventoryStockIncreased"
	EventTypeInventoryStockDecreased      = "InventoryStockDecreased"
	EventTypeLowStockWarning              = "LowStockWarning"
	EventTypeOutOfStock                   = "OutOfStock"
)

// InventoryItemCreatedEvent is raised once when an item is created
type InventoryItemCreatedEvent struct {
	shared.BaseDomainEvent
	ItemID            uuid.UUID `json:"item_id"`
	Sku               string    `json:"sku"`
	InitialQuantity   int64     `json:"initial_quantity"`
	MinimumStockLevel int64     `json:"minimum_stock_level"`
}

// NewInventoryItemCreatedEvent creates a new InventoryItemCreatedEvent
func NewInventoryItemCreatedEvent(item *InventoryItem) *InventoryItemCreatedEvent {
	return &InventoryItemCreatedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeInventoryItemCreated, AggregateTypeInventoryItem, item.ID),
		ItemID:            item.ID,
		Sku:               item.ProductSku(),
		InitialQuantity:   item.Quantity(),
		MinimumStockLevel: item.MinimumStockLevel(),
	}
}

// InventoryReservedEvent is raised when a new reservation is placed
type InventoryReservedEvent struct {
	shared.BaseDomainEvent
	ItemID            uuid.UUID `json:"item_id"`
	Sku               string    `json:"sku"`
	QuantityReserved  int64     `json:"quantity_reserved"`
	AvailableQuantity int64     `json:"available_quantity"`
	ReservationID     string    `json:"reservation_id"`
}

// NewInventoryReservedEvent creates a new InventoryReservedEvent
func NewInventoryReservedEvent(item *InventoryItem, change LedgerChange) *InventoryReservedEvent {
	return &InventoryReservedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeInventoryReserved, AggregateTypeInventoryItem, item.ID),
		ItemID:            item.ID,
		Sku:               item.ProductSku(),
		QuantityReserved:  change.Delta,
		AvailableQuantity: change.AvailableQuantity,
		ReservationID:     change.ReservationID,
	}
}

// InventoryReservationReleasedEvent is raised when a hold is given back,
// either explicitly or because it expired
type InventoryReservationReleasedEvent struct {
	shared.BaseDomainEvent
	ItemID            uuid.UUID `json:"item_id"`
	Sku               string    `json:"sku"`
	QuantityReleased  int64     `json:"quantity_released"`
	AvailableQuantity int64     `json:"available_quantity"`
	ReservationID     string    `json:"reservation_id"`
}

// NewInventoryReservationReleasedEvent creates a new InventoryReservationReleasedEvent
func NewInventoryReservationReleasedEvent(item *InventoryItem, change LedgerChange) *InventoryReservationReleasedEvent {
	return &InventoryReservationReleasedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeInventoryReservationReleased, AggregateTypeInventoryItem, item.ID),
		ItemID:            item.ID,
		Sku:               item.ProductSku(),
		QuantityReleased:  change.Delta,
		AvailableQuantity: change.AvailableQuantity,
		ReservationID:     change.ReservationID,
	}
}

// InventoryStockIncreasedEvent is raised when on-hand stock goes up
type InventoryStockIncreasedEvent struct {
	shared.BaseDomainEvent
	ItemID           uuid.UUID `json:"item_id"`
	Sku              string    `json:"sku"`
	Delta            int64     `json:"delta"`
	PreviousQuantity int64     `json:"previous_quantity"`
	NewQuantity      int64     `json:"new_quantity"`
	Reason           string    `json:"reason"`
}

// NewInventoryStockIncreasedEvent creates a new InventoryStockIncreasedEvent
func NewInventoryStockIncreasedEvent(item *InventoryItem, change LedgerChange) *InventoryStockIncreasedEvent {
	return &InventoryStockIncreasedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeInventoryStockIncreased, AggregateTypeInventoryItem, item.ID),
		ItemID:           item.ID,
		Sku:              item.ProductSku(),
		Delta:            change.Delta,
		PreviousQuantity: change.PreviousQuantity,
		NewQuantity:      change.NewQuantity,
		Reason:           change.Reason,
	}
}

// InventoryStockDecreasedEvent is raised when on-hand stock goes down,
// directly or by consuming a reservation
type InventoryStockDecreasedEvent struct {
	shared.BaseDomainEvent
	ItemID           uuid.UUID `json:"item_id"`
	Sku              string    `json:"sku"`
	Delta            int64     `json:"delta"`
	PreviousQuantity int64     `json:"previous_quantity"`
	NewQuantity      int64     `json:"new_quantity"`
	Reason           string    `json:"reason"`
}

// NewInventoryStockDecreasedEvent creates a new InventoryStockDecreasedEvent
func NewInventoryStockDecreasedEvent(item *InventoryItem, change LedgerChange) *InventoryStockDecreasedEvent {
	return &InventoryStockDecreasedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeInventoryStockDecreased, AggregateTypeInventoryItem, item.ID),
		ItemID:           item.ID,
		Sku:              item.ProductSku(),
		Delta:            change.Delta,
		PreviousQuantity: change.PreviousQuantity,
		NewQuantity:      change.NewQuantity,
		Reason:           change.Reason,
	}
}

// LowStockWarningEvent is raised when quantity crosses down to the minimum level
type LowStockWarningEvent struct {
	shared.BaseDomainEvent
	ItemID            uuid.UUID `json:"item_id"`
	Sku               string    `json:"sku"`
	CurrentQuantity   int64     `json:"current_quantity"`
	MinimumStockLevel int64     `json:"minimum_stock_level"`
}

// NewLowStockWarningEvent creates a new LowStockWarningEvent
func NewLowStockWarningEvent(item *InventoryItem, change LedgerChange) *LowStockWarningEvent {
	return &LowStockWarningEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeLowStockWarning, AggregateTypeInventoryItem, item.ID),
		ItemID:            item.ID,
		Sku:               item.ProductSku(),
		CurrentQuantity:   change.NewQuantity,
		MinimumStockLevel: change.MinimumStockLevel,
	}
}

// OutOfStockEvent is raised when quantity reaches zero
type OutOfStockEvent struct {
	shared.BaseDomainEvent
	ItemID uuid.UUID `json:"item_id"`
	Sku    string    `json:"sku"`
}

// NewOutOfStockEvent creates a new OutOfStockEvent
func NewOutOfStockEvent(item *InventoryItem) *OutOfStockEvent {
	return &OutOfStockEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOutOfStock, AggregateTypeInventoryItem, item.ID),
		ItemID:          item.ID,
		Sku:             item.ProductSku(),
	}
}

// eventFor maps a ledger change onto its domain event
func eventFor(item *InventoryItem, change LedgerChange) shared.DomainEvent {
	switch change.Kind {
	case ChangeStockIncreased:
		return NewInventoryStockIncreasedEvent(item, change)
	case ChangeStockDecreased:
		return NewInventoryStockDecreasedEvent(item, change)
	case ChangeReserved:
		return NewInventoryReservedEvent(item, change)
	case ChangeReservationReleased:
		return NewInventoryReservationReleasedEvent(item, change)
	case ChangeLowStock:
		return NewLowStockWarningEvent(item, change)
	case ChangeOutOfStock:
		return NewOutOfStockEvent(item)
	default:
		return nil
	}
}
