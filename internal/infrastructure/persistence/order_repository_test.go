package persistence

import (
	"context"
	"testing"

	"github.com/erp/inventory/internal/domain/order"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/event"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDraftOrder(t *testing.T, number string) *order.Order {
	t.Helper()
	o, err := order.NewOrder(number, []order.Item{
		{ProductSku: "SKU-B", Quantity: 1},
		{ProductSku: "SKU-A", Quantity: 4},
	})
	require.NoError(t, err)
	return o
}

func TestGormOrderRepository_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormOrderRepository(db.DB, WithOutbox(event.NewOutboxPublisher(event.NewEventSerializer())))
	ctx := context.Background()

	o := newDraftOrder(t, "SO-1001")
	require.NoError(t, repo.Add(ctx, o))

	loaded, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "SO-1001", loaded.OrderNumber)
	assert.Equal(t, order.StatusDraft, loaded.Status)
	assert.Equal(t, []order.Item{
		{ProductSku: "SKU-B", Quantity: 1},
		{ProductSku: "SKU-A", Quantity: 4},
	}, loaded.Items, "line order is preserved")

	require.NoError(t, loaded.Confirm())
	require.NoError(t, repo.Update(ctx, loaded))

	confirmed, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, confirmed.Status)
	assert.NotNil(t, confirmed.ConfirmedAt)

	require.NoError(t, confirmed.Cancel("  customer changed mind "))
	require.NoError(t, repo.Update(ctx, confirmed))

	cancelled, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.Equal(t, "customer changed mind", cancelled.CancelReason)
	assert.NotNil(t, cancelled.CancelledAt)

	var types []string
	require.NoError(t, db.DB.Model(&shared.OutboxEntry{}).Order("created_at ASC").Pluck("event_type", &types).Error)
	assert.Equal(t, []string{order.EventTypeOrderConfirmed, order.EventTypeOrderCancelled}, types)
}

func TestGormOrderRepository_Conflicts(t *testing.T) {
	repo := NewGormOrderRepository(setupTestDB(t).DB)
	ctx := context.Background()

	o := newDraftOrder(t, "SO-2002")
	require.NoError(t, repo.Add(ctx, o))

	a, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	b, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)

	require.NoError(t, a.Confirm())
	require.NoError(t, repo.Update(ctx, a))
	require.NoError(t, b.Cancel("duplicate"))
	assert.ErrorIs(t, repo.Update(ctx, b), shared.ErrConcurrencyConflict)

	assert.ErrorIs(t, repo.Add(ctx, newDraftOrder(t, "SO-2002")), shared.ErrInvalidState)
}

func TestGormOrderRepository_NotFound(t *testing.T) {
	repo := NewGormOrderRepository(setupTestDB(t).DB)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)

	ghost := newDraftOrder(t, "SO-404")
	require.NoError(t, ghost.Confirm())
	assert.ErrorIs(t, repo.Update(ctx, ghost), shared.ErrNotFound)
}
