package persistence

import (
	"context"
	"fmt"

	"github.com/erp/inventory/internal/domain/order"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var errDuplicateOrderNumber = shared.NewDomainError(shared.CodeInvalidState, "An order with this number already exists")

// GormOrderRepository implements order.OrderRepository using GORM
type GormOrderRepository struct {
	db     *gorm.DB
	outbox shared.OutboxEventSaver
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB, opts ...RepositoryOption) *GormOrderRepository {
	o := buildRepositoryOptions(opts)
	return &GormOrderRepository{db: db, outbox: o.outbox}
}

// GetByID finds an order with its lines
func (r *GormOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var m models.OrderModel
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&m, "id = ?", id).Error
	if err != nil {
		return nil, translateError(err, shared.ErrNotFound, nil)
	}
	return m.ToDomain(), nil
}

// Add inserts a new order and its lines
func (r *GormOrderRepository) Add(ctx context.Context, o *order.Order) error {
	m := models.OrderModelFromDomain(o)
	items := m.Items
	m.Items = nil

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return translateError(err, nil, errDuplicateOrderNumber)
		}
		if err := tx.Create(&items).Error; err != nil {
			return fmt.Errorf("failed to insert order items: %w", err)
		}
		return r.saveEvents(ctx, tx, o)
	})
}

// Update saves the order status fields if the stored version matches
func (r *GormOrderRepository) Update(ctx context.Context, o *order.Order) error {
	m := models.OrderModelFromDomain(o)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.OrderModel{}).
			Where("id = ? AND version = ?", m.ID, m.Version-1).
			Updates(map[string]any{
				"status":        m.Status,
				"confirmed_at":  m.ConfirmedAt,
				"shipped_at":    m.ShippedAt,
				"cancelled_at":  m.CancelledAt,
				"cancel_reason": m.CancelReason,
				"version":       m.Version,
				"updated_at":    m.UpdatedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update order: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.OrderModel{}).Where("id = ?", m.ID).Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check order: %w", err)
			}
			if count == 0 {
				return shared.ErrNotFound
			}
			return shared.ErrConcurrencyConflict
		}
		return r.saveEvents(ctx, tx, o)
	})
}

func (r *GormOrderRepository) saveEvents(ctx context.Context, tx *gorm.DB, o *order.Order) error {
	if r.outbox == nil {
		return nil
	}
	if err := r.outbox.SaveEvents(ctx, tx, o.GetDomainEvents()...); err != nil {
		return fmt.Errorf("failed to write outbox: %w", err)
	}
	return nil
}

var _ order.OrderRepository = (*GormOrderRepository)(nil)
