package inventory

import (
	"time"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/google/uuid"
)

// CreateInventoryItemRequest represents a request to create an inventory item
type CreateInventoryItemRequest struct {
	ProductSku        string `json:"product_sku" binding:"required,sku"`
	InitialQuantity   int64  `json:"initial_quantity" binding:"min=0"`
	MinimumStockLevel int64  `json:"minimum_stock_level" binding:"min=0"`
}

// AdjustStockRequest represents a signed stock adjustment
type AdjustStockRequest struct {
	ItemID uuid.UUID `json:"-"`
	Delta  int64     `json:"delta" binding:"required"`
	Reason string    `json:"reason" binding:"max=255"`
}

// ReserveRequest represents a request to reserve stock. ExpiresAt falls back
// to the configured default expiry when omitted.
type ReserveRequest struct {
	ItemID        uuid.UUID  `json:"-"`
	Quantity      int64      `json:"quantity" binding:"required,min=1"`
	ReservationID string     `json:"reservation_id" binding:"required,max=128"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

// ReservationResponse represents an active reservation in API responses
type ReservationResponse struct {
	ReservationID string     `json:"reservation_id"`
	Quantity      int64      `json:"quantity"`
	ReservedAt    time.Time  `json:"reserved_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// InventoryItemResponse represents an inventory item in API responses
type InventoryItemResponse struct {
	ID                uuid.UUID             `json:"id"`
	ProductSku        string                `json:"product_sku"`
	Quantity          int64                 `json:"quantity"`
	ReservedQuantity  int64                 `json:"reserved_quantity"`
	AvailableQuantity int64                 `json:"available_quantity"`
	MinimumStockLevel int64                 `json:"minimum_stock_level"`
	IsBelowMinimum    bool                  `json:"is_below_minimum"`
	IsOutOfStock      bool                  `json:"is_out_of_stock"`
	Reservations      []ReservationResponse `json:"reservations"`
	Version           int                   `json:"version"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// ToReservationResponse converts a domain Reservation to its response form
func ToReservationResponse(r inventory.Reservation) ReservationResponse {
	return ReservationResponse{
		ReservationID: r.ReservationID,
		Quantity:      r.Quantity,
		ReservedAt:    r.ReservedAt,
		ExpiresAt:     r.ExpiresAt,
	}
}

// ToInventoryItemResponse converts a domain InventoryItem to InventoryItemResponse
func ToInventoryItemResponse(item *inventory.InventoryItem) InventoryItemResponse {
	reservations := item.Reservations()
	resp := InventoryItemResponse{
		ID:                item.ID,
		ProductSku:        item.ProductSku(),
		Quantity:          item.Quantity(),
		ReservedQuantity:  item.ReservedQuantity(),
		AvailableQuantity: item.AvailableQuantity(),
		MinimumStockLevel: item.MinimumStockLevel(),
		IsBelowMinimum:    item.IsBelowMinimumStock(),
		IsOutOfStock:      item.IsOutOfStock(),
		Reservations:      make([]ReservationResponse, len(reservations)),
		Version:           item.GetVersion(),
		CreatedAt:         item.CreatedAt,
		UpdatedAt:         item.UpdatedAt,
	}
	for i, r := range reservations {
		resp.Reservations[i] = ToReservationResponse(r)
	}
	return resp
}

// ToInventoryItemResponses converts a slice of items
func ToInventoryItemResponses(items []*inventory.InventoryItem) []InventoryItemResponse {
	out := make([]InventoryItemResponse, len(items))
	for i, item := range items {
		out[i] = ToInventoryItemResponse(item)
	}
	return out
}
