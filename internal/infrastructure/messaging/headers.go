// Package messaging carries domain events over external brokers.
package messaging

import (
	"context"

	"github.com/erp/inventory/internal/domain/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Header names attached to every relayed event
const (
	HeaderEventID       = "event-id"
	HeaderEventType     = "event-type"
	HeaderAggregateID   = "aggregate-id"
	HeaderAggregateType = "aggregate-type"
	contentTypeJSON     = "application/json"
)

// eventHeaders returns the envelope headers for event plus the current
// trace context.
func eventHeaders(ctx context.Context, event shared.DomainEvent) map[string]string {
	carrier := propagation.MapCarrier{
		HeaderEventID:       event.EventID().String(),
		HeaderEventType:     event.EventType(),
		HeaderAggregateID:   event.AggregateID().String(),
		HeaderAggregateType: event.AggregateType(),
	}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier
}

// contextFromHeaders restores the producer's trace context
func contextFromHeaders(ctx context.Context, headers map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}
