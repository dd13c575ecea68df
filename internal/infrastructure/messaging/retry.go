package messaging

import (
	"context"
	"time"

	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/event"
	"go.uber.org/zap"
)

// Default redispatch delays for a failing handler
const (
	DefaultRetryInitial = 500 * time.Millisecond
	DefaultRetryMax     = 30 * time.Second
)

// RetryPolicy spaces redispatch of a consumed event whose handler failed.
// Delays double from Initial and are capped at Max. There is no attempt
// limit: the message is held until it is handled or the consumer stops.
type RetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Initial <= 0 {
		p.Initial = DefaultRetryInitial
	}
	if p.Max <= 0 {
		p.Max = DefaultRetryMax
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	return p
}

// delay returns the wait after the given failed attempt, starting at 1
func (p RetryPolicy) delay(attempt int) time.Duration {
	if attempt > 30 {
		return p.Max
	}
	d := p.Initial << uint(attempt-1)
	if d <= 0 || d > p.Max {
		return p.Max
	}
	return d
}

// dispatchUntilHandled redispatches e to the local handlers until they
// succeed. It returns false when ctx ended first, leaving the message
// unsettled so the broker redelivers it.
func dispatchUntilHandled(
	ctx, msgCtx context.Context,
	registry *event.HandlerRegistry,
	e shared.DomainEvent,
	policy RetryPolicy,
	logger *zap.Logger,
) bool {
	for attempt := 1; ; attempt++ {
		err := event.Dispatch(msgCtx, registry, e, logger)
		if err == nil {
			return true
		}
		wait := policy.delay(attempt)
		logger.Warn("Event handler failed, holding message for retry",
			zap.String("event_id", e.EventID().String()),
			zap.String("event_type", e.EventType()),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err))
		if !sleepCtx(ctx, wait) {
			return false
		}
	}
}
