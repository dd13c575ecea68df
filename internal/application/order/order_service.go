package order

import (
	"context"

	"github.com/erp/inventory/internal/domain/order"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService handles order lifecycle commands. Confirm, ship and cancel
// record the events the inventory saga reacts to.
type OrderService struct {
	repo      order.OrderRepository
	publisher shared.EventPublisher
	logger    *zap.Logger
}

// ServiceOption configures an OrderService
type ServiceOption func(*OrderService)

// WithEventPublisher publishes order events after each save.
// Leave it unset when the repository writes events to the outbox.
func WithEventPublisher(publisher shared.EventPublisher) ServiceOption {
	return func(s *OrderService) {
		s.publisher = publisher
	}
}

// NewOrderService creates a new OrderService
func NewOrderService(repo order.OrderRepository, logger *zap.Logger, opts ...ServiceOption) *OrderService {
	s := &OrderService{
		repo:   repo,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder creates a draft order
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order", "create", "order_number", req.OrderNumber)
	defer span.End()

	o, err := order.NewOrder(req.OrderNumber, toDomainItems(req.Items))
	if err != nil {
		return nil, err
	}
	if err := s.repo.Add(ctx, o); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Order created",
		zap.String("order_id", o.ID.String()),
		zap.String("order_number", o.OrderNumber),
		zap.Int("items", len(o.Items)),
	)
	resp := ToOrderResponse(o)
	return &resp, nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*OrderResponse, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToOrderResponse(o)
	return &resp, nil
}

// ConfirmOrder confirms a draft order, triggering stock reservation
func (s *OrderService) ConfirmOrder(ctx context.Context, id uuid.UUID) (*OrderResponse, error) {
	return s.transition(ctx, "confirm", id, func(o *order.Order) error {
		return o.Confirm()
	})
}

// ShipOrder ships a confirmed order, consuming its reservations
func (s *OrderService) ShipOrder(ctx context.Context, id uuid.UUID) (*OrderResponse, error) {
	return s.transition(ctx, "ship", id, func(o *order.Order) error {
		return o.Ship()
	})
}

// CancelOrder cancels a draft or confirmed order. Reservations are released
// only if the order had been confirmed.
func (s *OrderService) CancelOrder(ctx context.Context, id uuid.UUID, req CancelOrderRequest) (*OrderResponse, error) {
	return s.transition(ctx, "cancel", id, func(o *order.Order) error {
		return o.Cancel(req.Reason)
	})
}

// transition loads the order, applies the state change and saves it with
// optimistic locking. A conflict is returned to the caller, who holds a
// stale view of the order.
func (s *OrderService) transition(ctx context.Context, operation string, id uuid.UUID, apply func(o *order.Order) error) (*OrderResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order", operation, "order_id", id.String())
	defer span.End()

	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := o.Status
	if err := apply(o); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, o); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publishDomainEvents(ctx, o)
	s.logger.Info("Order status changed",
		zap.String("order_id", o.ID.String()),
		zap.String("from", string(previous)),
		zap.String("to", string(o.Status)),
	)
	resp := ToOrderResponse(o)
	return &resp, nil
}

func (s *OrderService) publishDomainEvents(ctx context.Context, o *order.Order) {
	events := o.GetDomainEvents()
	defer o.ClearDomainEvents()
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("Failed to publish order events",
			zap.String("order_id", o.ID.String()),
			zap.Int("event_count", len(events)),
			zap.Error(err),
		)
	}
}
