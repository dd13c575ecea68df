package order

import (
	"time"

	"github.com/erp/inventory/internal/domain/order"
	"github.com/google/uuid"
)

// CreateOrderRequest represents a request to create a draft order
type CreateOrderRequest struct {
	OrderNumber string           `json:"order_number" binding:"required,min=1,max=50"`
	Items       []OrderItemInput `json:"items" binding:"required,min=1,dive"`
}

// OrderItemInput represents a line in the create order request
type OrderItemInput struct {
	ProductSku string `json:"product_sku" binding:"required,sku"`
	Quantity   int64  `json:"quantity" binding:"required,min=1"`
}

// CancelOrderRequest represents a request to cancel an order
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

// OrderItemResponse represents an order line in API responses
type OrderItemResponse struct {
	ProductSku string `json:"product_sku"`
	Quantity   int64  `json:"quantity"`
}

// OrderResponse represents an order in API responses
type OrderResponse struct {
	ID           uuid.UUID           `json:"id"`
	OrderNumber  string              `json:"order_number"`
	Status       string              `json:"status"`
	Items        []OrderItemResponse `json:"items"`
	ConfirmedAt  *time.Time          `json:"confirmed_at,omitempty"`
	ShippedAt    *time.Time          `json:"shipped_at,omitempty"`
	CancelledAt  *time.Time          `json:"cancelled_at,omitempty"`
	CancelReason string              `json:"cancel_reason,omitempty"`
	Version      int                 `json:"version"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// ToOrderResponse converts the domain order to a response DTO
func ToOrderResponse(o *order.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemResponse{ProductSku: item.ProductSku, Quantity: item.Quantity}
	}
	return OrderResponse{
		ID:           o.ID,
		OrderNumber:  o.OrderNumber,
		Status:       string(o.Status),
		Items:        items,
		ConfirmedAt:  o.ConfirmedAt,
		ShippedAt:    o.ShippedAt,
		CancelledAt:  o.CancelledAt,
		CancelReason: o.CancelReason,
		Version:      o.Version,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func toDomainItems(inputs []OrderItemInput) []order.Item {
	items := make([]order.Item, len(inputs))
	for i, in := range inputs {
		items[i] = order.Item{ProductSku: in.ProductSku, Quantity: in.Quantity}
	}
	return items
}
