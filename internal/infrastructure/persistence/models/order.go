package models

import (
	"time"

	"github.com/erp/inventory/internal/domain/order"
	"github.com/google/uuid"
)

// OrderModel is the persistence model for the Order aggregate root.
type OrderModel struct {
	AggregateModel
	OrderNumber  string       `gorm:"type:varchar(50);not null;uniqueIndex:idx_orders_order_number"`
	Status       order.Status `gorm:"type:varchar(20);not null;default:DRAFT;index"`
	ConfirmedAt  *time.Time
	ShippedAt    *time.Time
	CancelledAt  *time.Time
	CancelReason string `gorm:"type:varchar(255)"`
	// Associations
	Items []OrderItemModel `gorm:"foreignKey:OrderID;references:ID"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain Order
func (m *OrderModel) ToDomain() *order.Order {
	items := make([]order.Item, len(m.Items))
	for i, it := range m.Items {
		items[i] = order.Item{ProductSku: it.ProductSku, Quantity: it.Quantity}
	}
	o := order.RestoreOrder(m.ID, m.Version, m.CreatedAt, m.UpdatedAt, m.OrderNumber, m.Status, items)
	o.ConfirmedAt = m.ConfirmedAt
	o.ShippedAt = m.ShippedAt
	o.CancelledAt = m.CancelledAt
	o.CancelReason = m.CancelReason
	return o
}

// FromDomain populates the model from a domain Order
func (m *OrderModel) FromDomain(o *order.Order) {
	m.FromDomainAggregateRoot(o.BaseAggregateRoot)
	m.OrderNumber = o.OrderNumber
	m.Status = o.Status
	m.ConfirmedAt = o.ConfirmedAt
	m.ShippedAt = o.ShippedAt
	m.CancelledAt = o.CancelledAt
	m.CancelReason = o.CancelReason
	m.Items = make([]OrderItemModel, len(o.Items))
	for i, it := range o.Items {
		m.Items[i] = OrderItemModel{
			OrderID:    o.ID,
			Position:   i,
			ProductSku: it.ProductSku,
			Quantity:   it.Quantity,
		}
	}
}

// OrderModelFromDomain creates a persistence model from a domain Order
func OrderModelFromDomain(o *order.Order) *OrderModel {
	m := &OrderModel{}
	m.FromDomain(o)
	return m
}

// OrderItemModel is one order line. Lines are immutable once the order exists.
type OrderItemModel struct {
	OrderID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	Position   int       `gorm:"primaryKey"`
	ProductSku string    `gorm:"type:varchar(100);not null"`
	Quantity   int64     `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}
