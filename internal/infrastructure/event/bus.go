package event

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/inventory/internal/domain/shared"
	"go.uber.org/zap"
)

// Dispatch delivers an event to every handler registered for its type.
// All handlers run even if one fails; failures and recovered panics are
// joined into the returned error so the caller can redeliver.
func Dispatch(ctx context.Context, registry *HandlerRegistry, event shared.DomainEvent, logger *zap.Logger) error {
	var errs []error
	for _, handler := range registry.Handlers(event.EventType()) {
		if err := dispatchToHandler(ctx, handler, event); err != nil {
			logger.Error("handler failed to process event",
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID().String()),
				zap.String("aggregate_id", event.AggregateID().String()),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// dispatchToHandler runs one handler, converting a panic into an error
func dispatchToHandler(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked on %s: %v", event.EventType(), r)
		}
	}()
	return handler.Handle(ctx, event)
}

// InMemoryEventBus delivers events synchronously in the publishing
// goroutine. Events are handed to handlers in publish order.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger,
	}
}

// Publish dispatches each event to its handlers
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	var errs []error
	for _, event := range events {
		if err := Dispatch(ctx, b.registry, event, b.logger); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a handler for specific event types
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	b.registry.Register(handler, eventTypes...)
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Start is a no-op; delivery happens inside Publish
func (b *InMemoryEventBus) Start(context.Context) error {
	b.logger.Info("event bus started", zap.String("transport", "memory"))
	return nil
}

// Stop is a no-op
func (b *InMemoryEventBus) Stop(context.Context) error {
	b.logger.Info("event bus stopped", zap.String("transport", "memory"))
	return nil
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
