package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InventoryItemRepository loads and stores whole InventoryItem aggregates
type InventoryItemRepository interface {
	// GetByID finds an item by ID; returns shared.ErrNotFound when absent
	GetByID(ctx context.Context, id uuid.UUID) (*InventoryItem, error)

	// GetByProductSku finds the item for a SKU; returns shared.ErrNotFound when absent
	GetByProductSku(ctx context.Context, sku string) (*InventoryItem, error)

	// GetItemsBelowMinimumStock returns items whose quantity is at or under their minimum level
	GetItemsBelowMinimumStock(ctx context.Context) ([]*InventoryItem, error)

	// GetItemsWithExpiredReservations returns items holding at least one reservation expired at now
	GetItemsWithExpiredReservations(ctx context.Context, now time.Time) ([]*InventoryItem, error)

	// Add inserts a new item; a second item for the same SKU is rejected with
	// DUPLICATE_PRODUCT_SKU
	Add(ctx context.Context, item *InventoryItem) error

	// Update saves a modified item. The save succeeds only if the stored
	// version equals item.GetVersion()-1; otherwise CONCURRENCY_CONFLICT is
	// returned and the caller must reload and retry.
	Update(ctx context.Context, item *InventoryItem) error
}
