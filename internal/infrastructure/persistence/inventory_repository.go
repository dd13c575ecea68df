package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RepositoryOption configures a GORM repository
type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	outbox shared.OutboxEventSaver
}

// WithOutbox writes pending domain events to the outbox in the same
// transaction as the aggregate
func WithOutbox(saver shared.OutboxEventSaver) RepositoryOption {
	return func(o *repositoryOptions) {
		o.outbox = saver
	}
}

func buildRepositoryOptions(opts []RepositoryOption) repositoryOptions {
	var o repositoryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// GormInventoryItemRepository implements inventory.InventoryItemRepository using GORM
type GormInventoryItemRepository struct {
	db     *gorm.DB
	outbox shared.OutboxEventSaver
}

// NewGormInventoryItemRepository creates a new GormInventoryItemRepository
func NewGormInventoryItemRepository(db *gorm.DB, opts ...RepositoryOption) *GormInventoryItemRepository {
	o := buildRepositoryOptions(opts)
	return &GormInventoryItemRepository{db: db, outbox: o.outbox}
}

func (r *GormInventoryItemRepository) withReservations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Reservations", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

// GetByID finds an inventory item by its ID
func (r *GormInventoryItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*inventory.InventoryItem, error) {
	var m models.InventoryItemModel
	if err := r.withReservations(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translateError(err, shared.ErrNotFound, nil)
	}
	return m.ToDomain(), nil
}

// GetByProductSku finds the inventory item for a SKU
func (r *GormInventoryItemRepository) GetByProductSku(ctx context.Context, sku string) (*inventory.InventoryItem, error) {
	var m models.InventoryItemModel
	if err := r.withReservations(ctx).First(&m, "product_sku = ?", sku).Error; err != nil {
		return nil, translateError(err, shared.ErrNotFound, nil)
	}
	return m.ToDomain(), nil
}

// GetItemsBelowMinimumStock returns items at or under their minimum level, ordered by SKU
func (r *GormInventoryItemRepository) GetItemsBelowMinimumStock(ctx context.Context) ([]*inventory.InventoryItem, error) {
	var rows []models.InventoryItemModel
	if err := r.withReservations(ctx).
		Where("quantity <= minimum_stock_level").
		Order("product_sku ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list items below minimum stock: %w", err)
	}
	return toDomainItems(rows), nil
}

// CountBelowMinimum counts items at or under their minimum level
func (r *GormInventoryItemRepository) CountBelowMinimum(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.InventoryItemModel{}).
		Where("quantity <= minimum_stock_level").
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count items below minimum stock: %w", err)
	}
	return count, nil
}

// GetItemsWithExpiredReservations returns items holding a reservation whose expiry is before now
func (r *GormInventoryItemRepository) GetItemsWithExpiredReservations(ctx context.Context, now time.Time) ([]*inventory.InventoryItem, error) {
	expired := r.db.Model(&models.ReservationModel{}).
		Select("inventory_item_id").
		Where("expires_at IS NOT NULL AND expires_at < ?", now)

	var rows []models.InventoryItemModel
	if err := r.withReservations(ctx).
		Where("id IN (?)", expired).
		Order("product_sku ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list items with expired reservations: %w", err)
	}
	return toDomainItems(rows), nil
}

// Add inserts a new item with its reservations and pending events
func (r *GormInventoryItemRepository) Add(ctx context.Context, item *inventory.InventoryItem) error {
	m := models.InventoryItemModelFromDomain(item)
	reservations := m.Reservations
	m.Reservations = nil

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return translateError(err, nil, shared.ErrDuplicateProductSku)
		}
		if len(reservations) > 0 {
			if err := tx.Create(&reservations).Error; err != nil {
				return fmt.Errorf("failed to insert reservations: %w", err)
			}
		}
		return r.saveEvents(ctx, tx, item)
	})
}

// Update saves item if the stored version is the one it was loaded at.
// Reservation rows are replaced wholesale.
func (r *GormInventoryItemRepository) Update(ctx context.Context, item *inventory.InventoryItem) error {
	m := models.InventoryItemModelFromDomain(item)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.InventoryItemModel{}).
			Where("id = ? AND version = ?", m.ID, m.Version-1).
			Updates(map[string]any{
				"quantity":            m.Quantity,
				"minimum_stock_level": m.MinimumStockLevel,
				"version":             m.Version,
				"updated_at":          m.UpdatedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update inventory item: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return r.missingOrStale(tx, m.ID)
		}

		if err := tx.Where("inventory_item_id = ?", m.ID).Delete(&models.ReservationModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear reservations: %w", err)
		}
		if len(m.Reservations) > 0 {
			if err := tx.Create(&m.Reservations).Error; err != nil {
				return fmt.Errorf("failed to insert reservations: %w", err)
			}
		}
		return r.saveEvents(ctx, tx, item)
	})
}

func (r *GormInventoryItemRepository) missingOrStale(tx *gorm.DB, id uuid.UUID) error {
	var count int64
	if err := tx.Model(&models.InventoryItemModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check inventory item: %w", err)
	}
	if count == 0 {
		return shared.ErrNotFound
	}
	return shared.ErrConcurrencyConflict
}

func (r *GormInventoryItemRepository) saveEvents(ctx context.Context, tx *gorm.DB, aggregate shared.AggregateRoot) error {
	if r.outbox == nil {
		return nil
	}
	if err := r.outbox.SaveEvents(ctx, tx, aggregate.GetDomainEvents()...); err != nil {
		return fmt.Errorf("failed to write outbox: %w", err)
	}
	return nil
}

func toDomainItems(rows []models.InventoryItemModel) []*inventory.InventoryItem {
	items := make([]*inventory.InventoryItem, len(rows))
	for i := range rows {
		items[i] = rows[i].ToDomain()
	}
	return items
}

var _ inventory.InventoryItemRepository = (*GormInventoryItemRepository)(nil)
