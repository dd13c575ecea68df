package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultMaxRetries bounds reload-and-retry after a concurrency conflict
	DefaultMaxRetries = 3
)

// ServiceConfig tunes InventoryService behavior
type ServiceConfig struct {
	MaxRetries int
	// DefaultReservationExpiry applies when a reserve request has no
	// ExpiresAt. Zero means such reservations never expire.
	DefaultReservationExpiry time.Duration
}

// InventoryService exposes the inventory operations. Mutations on one item
// are serialized in-process with a keyed mutex and fenced across processes
// by the repository's version check.
type InventoryService struct {
	repo      inventory.InventoryItemRepository
	publisher shared.EventPublisher
	locks     *KeyedMutex
	config    ServiceConfig
	metrics   *telemetry.InventoryMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// ServiceOption configures an InventoryService
type ServiceOption func(*InventoryService)

// WithEventPublisher publishes domain events after each committed change.
// Leave it unset when the repository writes events to the outbox.
func WithEventPublisher(publisher shared.EventPublisher) ServiceOption {
	return func(s *InventoryService) {
		s.publisher = publisher
	}
}

// WithMetrics records operation counters
func WithMetrics(metrics *telemetry.InventoryMetrics) ServiceOption {
	return func(s *InventoryService) {
		s.metrics = metrics
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) ServiceOption {
	return func(s *InventoryService) {
		s.now = now
	}
}

// NewInventoryService creates a new InventoryService
func NewInventoryService(
	repo inventory.InventoryItemRepository,
	config ServiceConfig,
	logger *zap.Logger,
	opts ...ServiceOption,
) *InventoryService {
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	s := &InventoryService{
		repo:   repo,
		locks:  NewKeyedMutex(),
		config: config,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInventoryItem creates the item for a SKU
func (s *InventoryService) CreateInventoryItem(ctx context.Context, req CreateInventoryItemRequest) (*InventoryItemResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "inventory", "create", "sku", req.ProductSku)
	defer span.End()

	item, err := inventory.NewInventoryItem(req.ProductSku, req.InitialQuantity, req.MinimumStockLevel)
	if err != nil {
		s.metrics.RecordOperation(ctx, "create", telemetry.OutcomeRejected)
		return nil, err
	}

	err = s.locks.WithLock("sku:"+item.ProductSku(), func() error {
		return s.repo.Add(ctx, item)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordOperation(ctx, "create", telemetry.OutcomeRejected)
		return nil, err
	}

	s.metrics.RecordOperation(ctx, "create", telemetry.OutcomeApplied)
	s.publishDomainEvents(ctx, item)
	s.logger.Info("Inventory item created",
		zap.String("item_id", item.ID.String()),
		zap.String("sku", item.ProductSku()),
		zap.Int64("quantity", item.Quantity()),
	)

	resp := ToInventoryItemResponse(item)
	return &resp, nil
}

// GetByID retrieves an inventory item by ID
func (s *InventoryService) GetByID(ctx context.Context, id uuid.UUID) (*InventoryItemResponse, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToInventoryItemResponse(item)
	return &resp, nil
}

// GetByProductSku retrieves the inventory item for a SKU
func (s *InventoryService) GetByProductSku(ctx context.Context, sku string) (*InventoryItemResponse, error) {
	item, err := s.repo.GetByProductSku(ctx, sku)
	if err != nil {
		return nil, err
	}
	resp := ToInventoryItemResponse(item)
	return &resp, nil
}

// ListBelowMinimum lists items at or under their minimum stock level
func (s *InventoryService) ListBelowMinimum(ctx context.Context) ([]InventoryItemResponse, error) {
	items, err := s.repo.GetItemsBelowMinimumStock(ctx)
	if err != nil {
		return nil, err
	}
	return ToInventoryItemResponses(items), nil
}

// AdjustStock applies a signed quantity change
func (s *InventoryService) AdjustStock(ctx context.Context, req AdjustStockRequest) (*InventoryItemResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "inventory", "adjust",
		"item_id", req.ItemID.String(),
		"delta", req.Delta,
	)
	defer span.End()

	item, err := s.mutate(ctx, "adjust", req.ItemID, func(item *inventory.InventoryItem) error {
		return item.AdjustStock(req.Delta, req.Reason)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	resp := ToInventoryItemResponse(item)
	return &resp, nil
}

// Reserve places a hold on available stock. Repeating a reservation ID is a
// successful no-op that returns the existing reservation.
func (s *InventoryService) Reserve(ctx context.Context, req ReserveRequest) (*ReservationResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "inventory", "reserve",
		"item_id", req.ItemID.String(),
		"reservation_id", req.ReservationID,
		"quantity", req.Quantity,
	)
	defer span.End()

	now := s.now()
	expiresAt := req.ExpiresAt
	if expiresAt == nil {
		expiresAt = inventory.ExpiryAfter(now, s.config.DefaultReservationExpiry)
	}

	var reservation inventory.Reservation
	_, err := s.mutate(ctx, "reserve", req.ItemID, func(item *inventory.InventoryItem) error {
		r, err := item.Reserve(req.Quantity, req.ReservationID, expiresAt, now)
		reservation = r
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	resp := ToReservationResponse(reservation)
	return &resp, nil
}

// ReleaseReservation returns a hold to available stock. An unknown
// reservation is a no-op; only a missing item is an error.
func (s *InventoryService) ReleaseReservation(ctx context.Context, itemID uuid.UUID, reservationID string) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "inventory", "release",
		"item_id", itemID.String(),
		"reservation_id", reservationID,
	)
	defer span.End()

	_, err := s.mutate(ctx, "release", itemID, func(item *inventory.InventoryItem) error {
		item.ReleaseReservation(reservationID)
		return nil
	})
	telemetry.RecordError(span, err)
	return err
}

// ConfirmReservation consumes a hold, decreasing quantity on hand. An unknown
// reservation is a no-op; only a missing item is an error.
func (s *InventoryService) ConfirmReservation(ctx context.Context, itemID uuid.UUID, reservationID string) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "inventory", "confirm",
		"item_id", itemID.String(),
		"reservation_id", reservationID,
	)
	defer span.End()

	_, err := s.mutate(ctx, "confirm", itemID, func(item *inventory.InventoryItem) error {
		item.ConfirmReservation(reservationID)
		return nil
	})
	telemetry.RecordError(span, err)
	return err
}

// ReclaimExpiredReservations releases the reservations of one item that
// have expired and returns how many were released
func (s *InventoryService) ReclaimExpiredReservations(ctx context.Context, itemID uuid.UUID) (int, error) {
	now := s.now()
	var reclaimed int
	_, err := s.mutate(ctx, "reclaim", itemID, func(item *inventory.InventoryItem) error {
		reclaimed = item.ReclaimExpiredReservations(now)
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.metrics.RecordReclaimed(ctx, reclaimed)
	return reclaimed, nil
}

// mutate runs load, op and save for one item under its key lock, retrying
// the whole sequence on a version conflict. Events are published after the
// lock is released. An op that records no change skips save and publish.
func (s *InventoryService) mutate(
	ctx context.Context,
	operation string,
	itemID uuid.UUID,
	op func(item *inventory.InventoryItem) error,
) (*inventory.InventoryItem, error) {
	var (
		item    *inventory.InventoryItem
		changed bool
	)

	err := s.locks.WithLock(itemID.String(), func() error {
		for attempt := 1; ; attempt++ {
			loaded, err := s.repo.GetByID(ctx, itemID)
			if err != nil {
				return err
			}
			loadedVersion := loaded.GetVersion()
			if err := op(loaded); err != nil {
				return err
			}
			item = loaded
			changed = loaded.GetVersion() != loadedVersion
			if !changed {
				return nil
			}

			err = s.repo.Update(ctx, loaded)
			if err == nil {
				return nil
			}
			if !errors.Is(err, shared.ErrConcurrencyConflict) {
				return err
			}
			s.metrics.RecordConflict(ctx, operation)
			if attempt >= s.config.MaxRetries {
				return err
			}
			s.logger.Debug("Concurrency conflict, retrying",
				zap.String("operation", operation),
				zap.String("item_id", itemID.String()),
				zap.Int("attempt", attempt),
			)
		}
	})
	if err != nil {
		s.metrics.RecordOperation(ctx, operation, telemetry.OutcomeRejected)
		return nil, err
	}

	if !changed {
		s.metrics.RecordOperation(ctx, operation, telemetry.OutcomeNoop)
		return item, nil
	}
	s.metrics.RecordOperation(ctx, operation, telemetry.OutcomeApplied)
	s.publishDomainEvents(ctx, item)
	return item, nil
}

// publishDomainEvents publishes and clears the item's pending events
func (s *InventoryService) publishDomainEvents(ctx context.Context, item *inventory.InventoryItem) {
	events := item.GetDomainEvents()
	defer item.ClearDomainEvents()
	if s.publisher == nil || len(events) == 0 {
		return
	}
	// State is already committed; delivery failures are logged, not returned
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("Failed to publish inventory events",
			zap.String("item_id", item.ID.String()),
			zap.Int("event_count", len(events)),
			zap.Error(err),
		)
	}
}
