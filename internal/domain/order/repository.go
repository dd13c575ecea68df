package order

import (
	"context"

	"github.com/google/uuid"
)

// OrderRepository loads and stores Order aggregates
type OrderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	Add(ctx context.Context, o *Order) error
	// Update is version-checked the same way as inventory items
	Update(ctx context.Context, o *Order) error
}
