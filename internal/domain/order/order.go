package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
)

// Status is the lifecycle state of an order
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusCancelled Status = "CANCELLED"
)

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusConfirmed, StatusShipped, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo checks if the status can move to target
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusDraft:
		return target == StatusConfirmed || target == StatusCancelled
	case StatusConfirmed:
		return target == StatusShipped || target == StatusCancelled
	default:
		return false // Terminal states
	}
}

// Item is one order line
type Item struct {
	ProductSku string
	Quantity   int64
}

// Order is the aggregate whose lifecycle drives inventory reservations
type Order struct {
	shared.BaseAggregateRoot
	OrderNumber  string
	Status       Status
	Items        []Item
	ConfirmedAt  *time.Time
	ShippedAt    *time.Time
	CancelledAt  *time.Time
	CancelReason string
}

// NewOrder creates a draft order. Lines for the same SKU are merged.
func NewOrder(orderNumber string, items []Item) (*Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, shared.NewInvalidArgumentError("order number cannot be empty")
	}
	if len(items) == 0 {
		return nil, shared.NewInvalidArgumentError("order must have at least one item")
	}

	merged := make([]Item, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		sku := strings.TrimSpace(item.ProductSku)
		if sku == "" {
			return nil, shared.NewInvalidArgumentError("order item SKU cannot be empty")
		}
		if item.Quantity <= 0 {
			return nil, shared.NewInvalidArgumentError("order item quantity must be positive, got %d for %s", item.Quantity, sku)
		}
		if i, ok := index[sku]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[sku] = len(merged)
		merged = append(merged, Item{ProductSku: sku, Quantity: item.Quantity})
	}

	return &Order{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OrderNumber:       orderNumber,
		Status:            StatusDraft,
		Items:             merged,
	}, nil
}

// RestoreOrder rebuilds a persisted order without recording events
func RestoreOrder(id uuid.UUID, version int, createdAt, updatedAt time.Time, orderNumber string, status Status, items []Item) *Order {
	lines := make([]Item, len(items))
	copy(lines, items)
	return &Order{
		BaseAggregateRoot: shared.RestoreBaseAggregateRoot(id, version, createdAt, updatedAt),
		OrderNumber:       orderNumber,
		Status:            status,
		Items:             lines,
	}
}

// Confirm moves a draft order to confirmed
func (o *Order) Confirm() error {
	if err := o.transition(StatusConfirmed, "confirm"); err != nil {
		return err
	}
	now := time.Now()
	o.ConfirmedAt = &now
	o.AddDomainEvent(NewOrderConfirmedEvent(o))
	o.IncrementVersion()
	return nil
}

// Ship moves a confirmed order to shipped
func (o *Order) Ship() error {
	if err := o.transition(StatusShipped, "ship"); err != nil {
		return err
	}
	now := time.Now()
	o.ShippedAt = &now
	o.AddDomainEvent(NewOrderShippedEvent(o))
	o.IncrementVersion()
	return nil
}

// Cancel cancels a draft or confirmed order
func (o *Order) Cancel(reason string) error {
	previous := o.Status
	if err := o.transition(StatusCancelled, "cancel"); err != nil {
		return err
	}
	now := time.Now()
	o.CancelledAt = &now
	o.CancelReason = strings.TrimSpace(reason)
	o.AddDomainEvent(NewOrderCancelledEvent(o, previous))
	o.IncrementVersion()
	return nil
}

func (o *Order) transition(target Status, verb string) error {
	if !o.Status.CanTransitionTo(target) {
		return shared.NewDomainError(shared.CodeInvalidState, fmt.Sprintf("Cannot %s order in %s status", verb, o.Status))
	}
	o.Status = target
	return nil
}

// Lines returns the order items as event lines
func (o *Order) Lines() []Line {
	lines := make([]Line, len(o.Items))
	for i, item := range o.Items {
		lines[i] = Line{ProductSku: item.ProductSku, Quantity: item.Quantity}
	}
	return lines
}
