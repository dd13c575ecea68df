package inventory

import (
	"context"
	"time"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExpiredReservationReclaimer reclaims the expired reservations of one item
type ExpiredReservationReclaimer interface {
	ReclaimExpiredReservations(ctx context.Context, itemID uuid.UUID) (int, error)
}

// ReservationExpirationService sweeps items holding expired reservations and
// reclaims them through the serialized inventory path
type ReservationExpirationService struct {
	repo      inventory.InventoryItemRepository
	reclaimer ExpiredReservationReclaimer
	logger    *zap.Logger
	now       func() time.Time
}

// NewReservationExpirationService creates a new ReservationExpirationService
func NewReservationExpirationService(
	repo inventory.InventoryItemRepository,
	reclaimer ExpiredReservationReclaimer,
	logger *zap.Logger,
) *ReservationExpirationService {
	return &ReservationExpirationService{
		repo:      repo,
		reclaimer: reclaimer,
		logger:    logger,
		now:       time.Now,
	}
}

// ReclaimStats summarizes one sweep
type ReclaimStats struct {
	ItemsScanned         int       `json:"items_scanned"`
	ReservationsReleased int       `json:"reservations_released"`
	FailedItems          int       `json:"failed_items"`
	ProcessedAt          time.Time `json:"processed_at"`
}

// ReclaimExpired releases every reservation that has expired by now. A
// failure on one item is logged and counted; the sweep continues.
func (s *ReservationExpirationService) ReclaimExpired(ctx context.Context) (*ReclaimStats, error) {
	stats := &ReclaimStats{ProcessedAt: s.now()}

	items, err := s.repo.GetItemsWithExpiredReservations(ctx, stats.ProcessedAt)
	if err != nil {
		s.logger.Error("Failed to find items with expired reservations", zap.Error(err))
		return nil, err
	}

	stats.ItemsScanned = len(items)
	if stats.ItemsScanned == 0 {
		s.logger.Debug("No expired reservations found")
		return stats, nil
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		released, err := s.reclaimer.ReclaimExpiredReservations(ctx, item.ID)
		if err != nil {
			s.logger.Error("Failed to reclaim expired reservations",
				zap.String("item_id", item.ID.String()),
				zap.String("sku", item.ProductSku()),
				zap.Error(err),
			)
			stats.FailedItems++
			continue
		}
		stats.ReservationsReleased += released
	}

	s.logger.Info("Completed expired reservation sweep",
		zap.Int("items", stats.ItemsScanned),
		zap.Int("released", stats.ReservationsReleased),
		zap.Int("failed", stats.FailedItems),
	)
	return stats, nil
}
