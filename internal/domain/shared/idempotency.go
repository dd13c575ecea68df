package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers which event IDs a consumer has handled
type IdempotencyStore interface {
	// MarkProcessed atomically records eventID with a TTL.
	// Returns true if the ID was newly recorded, false if it was already present.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	// IsProcessed checks if an event has already been recorded
	IsProcessed(ctx context.Context, eventID string) (bool, error)

	// Remove forgets eventID so a later redelivery is processed again
	Remove(ctx context.Context, eventID string) error

	// Close releases resources held by the store
	Close() error
}

// IdempotencyConfig holds configuration for idempotent event handling
type IdempotencyConfig struct {
	// TTL is how long a processed event ID is remembered
	TTL time.Duration

	// Enabled turns deduplication on or off
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
