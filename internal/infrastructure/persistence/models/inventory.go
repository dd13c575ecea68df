package models

import (
	"time"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/google/uuid"
)

// InventoryItemModel is the persistence model for the InventoryItem aggregate root.
type InventoryItemModel struct {
	AggregateModel
	ProductSku        string `gorm:"type:varchar(100);not null;uniqueIndex:idx_inventory_items_product_sku"`
	Quantity          int64  `gorm:"not null;default:0"`
	MinimumStockLevel int64  `gorm:"not null;default:0"`
	// Associations
	Reservations []ReservationModel `gorm:"foreignKey:InventoryItemID;references:ID"`
}

// TableName returns the table name for GORM
func (InventoryItemModel) TableName() string {
	return "inventory_items"
}

// ToDomain converts the persistence model to a domain InventoryItem
func (m *InventoryItemModel) ToDomain() *inventory.InventoryItem {
	reservations := make([]inventory.Reservation, len(m.Reservations))
	for i := range m.Reservations {
		reservations[i] = m.Reservations[i].ToDomain()
	}
	ledger := inventory.RestoreStockLedger(m.ProductSku, m.Quantity, m.MinimumStockLevel, reservations)
	return inventory.RestoreInventoryItem(m.ID, m.Version, m.CreatedAt, m.UpdatedAt, ledger)
}

// FromDomain populates the model from a domain InventoryItem. Reservation
// positions follow the ledger order.
func (m *InventoryItemModel) FromDomain(item *inventory.InventoryItem) {
	m.FromDomainAggregateRoot(item.BaseAggregateRoot)
	m.ProductSku = item.ProductSku()
	m.Quantity = item.Quantity()
	m.MinimumStockLevel = item.MinimumStockLevel()

	reservations := item.Reservations()
	m.Reservations = make([]ReservationModel, len(reservations))
	for i, r := range reservations {
		m.Reservations[i] = ReservationModelFromDomain(item.ID, i, r)
	}
}

// InventoryItemModelFromDomain creates a persistence model from a domain InventoryItem
func InventoryItemModelFromDomain(item *inventory.InventoryItem) *InventoryItemModel {
	m := &InventoryItemModel{}
	m.FromDomain(item)
	return m
}

// ReservationModel is one reservation held against an inventory item.
// Rows are replaced wholesale whenever the item is saved.
type ReservationModel struct {
	InventoryItemID uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ReservationID   string     `gorm:"type:varchar(200);primaryKey"`
	Position        int        `gorm:"not null"`
	Quantity        int64      `gorm:"not null"`
	ReservedAt      time.Time  `gorm:"not null"`
	ExpiresAt       *time.Time `gorm:"index:idx_inventory_reservations_expires_at"`
}

// TableName returns the table name for GORM
func (ReservationModel) TableName() string {
	return "inventory_reservations"
}

// ToDomain converts the row to a domain Reservation
func (m *ReservationModel) ToDomain() inventory.Reservation {
	return inventory.Reservation{
		ReservationID: m.ReservationID,
		Quantity:      m.Quantity,
		ReservedAt:    m.ReservedAt,
		ExpiresAt:     m.ExpiresAt,
	}
}

// ReservationModelFromDomain creates a row for reservation r of item itemID
func ReservationModelFromDomain(itemID uuid.UUID, position int, r inventory.Reservation) ReservationModel {
	return ReservationModel{
		InventoryItemID: itemID,
		ReservationID:   r.ReservationID,
		Position:        position,
		Quantity:        r.Quantity,
		ReservedAt:      r.ReservedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}
