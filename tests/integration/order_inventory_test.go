//go:build integration

package integration

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	inventoryapp "github.com/erp/inventory/internal/application/inventory"
	orderapp "github.com/erp/inventory/internal/application/order"
	"github.com/erp/inventory/internal/application/saga"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/event"
	"github.com/erp/inventory/internal/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// orderInventorySetup wires the services the way the server does with
// outbox delivery over the in-memory bus
type orderInventorySetup struct {
	db        *TestDB
	inventory *inventoryapp.InventoryService
	orders    *orderapp.OrderService
	relay     *event.OutboxProcessor
	invRepo   *persistence.GormInventoryItemRepository
}

func newOrderInventorySetup(t *testing.T) *orderInventorySetup {
	t.Helper()
	db := NewTestDB(t)
	logger := zap.NewNop()

	serializer := event.NewEventSerializer()
	outbox := event.NewOutboxPublisher(serializer)
	invRepo := persistence.NewGormInventoryItemRepository(db.DB, persistence.WithOutbox(outbox))
	orderRepo := persistence.NewGormOrderRepository(db.DB, persistence.WithOutbox(outbox))

	inv := inventoryapp.NewInventoryService(invRepo, inventoryapp.ServiceConfig{}, logger)
	orders := orderapp.NewOrderService(orderRepo, logger)

	bus := event.NewInMemoryEventBus(logger)
	for _, h := range []shared.EventHandler{
		saga.NewOrderConfirmedHandler(inv, nil, logger, saga.WithFulfillmentWindow(time.Hour)),
		saga.NewOrderShippedHandler(inv, nil, logger),
		saga.NewOrderCancelledHandler(inv, nil, logger),
	} {
		bus.Subscribe(h)
	}

	relay := event.NewOutboxProcessor(event.NewGormOutboxRepository(db.DB), bus, serializer,
		event.DefaultOutboxProcessorConfig(), logger)

	return &orderInventorySetup{db: db, inventory: inv, orders: orders, relay: relay, invRepo: invRepo}
}

func (s *orderInventorySetup) createItem(t *testing.T, sku string, qty int64) *inventoryapp.InventoryItemResponse {
	t.Helper()
	item, err := s.inventory.CreateInventoryItem(context.Background(), inventoryapp.CreateInventoryItemRequest{
		ProductSku:      sku,
		InitialQuantity: qty,
	})
	require.NoError(t, err)
	return item
}

func (s *orderInventorySetup) item(t *testing.T, sku string) *inventoryapp.InventoryItemResponse {
	t.Helper()
	item, err := s.inventory.GetByProductSku(context.Background(), sku)
	require.NoError(t, err)
	return item
}

func (s *orderInventorySetup) newConfirmedOrder(t *testing.T, number string, lines ...orderapp.OrderItemInput) *orderapp.OrderResponse {
	t.Helper()
	ctx := context.Background()
	o, err := s.orders.CreateOrder(ctx, orderapp.CreateOrderRequest{OrderNumber: number, Items: lines})
	require.NoError(t, err)
	o, err = s.orders.ConfirmOrder(ctx, o.ID)
	require.NoError(t, err)
	s.relay.ProcessBatch(ctx)
	return o
}

func TestOrderInventory_ConfirmThenShip(t *testing.T) {
	s := newOrderInventorySetup(t)
	ctx := context.Background()

	s.createItem(t, "SKU-A", 10)
	s.createItem(t, "SKU-B", 5)

	o := s.newConfirmedOrder(t, "SO-1",
		orderapp.OrderItemInput{ProductSku: "SKU-A", Quantity: 3},
		orderapp.OrderItemInput{ProductSku: "SKU-B", Quantity: 2},
	)

	a := s.item(t, "SKU-A")
	assert.Equal(t, int64(10), a.Quantity)
	assert.Equal(t, int64(3), a.ReservedQuantity)
	require.Len(t, a.Reservations, 1)
	assert.Equal(t, saga.ReservationID(o.ID, "SKU-A"), a.Reservations[0].ReservationID)
	assert.NotNil(t, a.Reservations[0].ExpiresAt)
	assert.Equal(t, int64(2), s.item(t, "SKU-B").ReservedQuantity)

	_, err := s.orders.ShipOrder(ctx, o.ID)
	require.NoError(t, err)
	s.relay.ProcessBatch(ctx)

	a = s.item(t, "SKU-A")
	assert.Equal(t, int64(7), a.Quantity)
	assert.Empty(t, a.Reservations)
	b := s.item(t, "SKU-B")
	assert.Equal(t, int64(3), b.Quantity)
	assert.Empty(t, b.Reservations)

	// A second relay pass only carries the inventory events; stock is unchanged
	s.relay.ProcessBatch(ctx)
	assert.Equal(t, int64(7), s.item(t, "SKU-A").Quantity)
}

func TestOrderInventory_CancelReleases(t *testing.T) {
	s := newOrderInventorySetup(t)
	ctx := context.Background()

	s.createItem(t, "SKU-C", 4)
	o := s.newConfirmedOrder(t, "SO-2", orderapp.OrderItemInput{ProductSku: "SKU-C", Quantity: 4})
	assert.Equal(t, int64(0), s.item(t, "SKU-C").AvailableQuantity)

	_, err := s.orders.CancelOrder(ctx, o.ID, orderapp.CancelOrderRequest{Reason: "customer request"})
	require.NoError(t, err)
	s.relay.ProcessBatch(ctx)

	c := s.item(t, "SKU-C")
	assert.Equal(t, int64(4), c.Quantity)
	assert.Equal(t, int64(4), c.AvailableQuantity)
	assert.Empty(t, c.Reservations)
}

func TestOrderInventory_UnknownSkuIsSkipped(t *testing.T) {
	s := newOrderInventorySetup(t)

	s.createItem(t, "SKU-D", 2)
	s.newConfirmedOrder(t, "SO-3",
		orderapp.OrderItemInput{ProductSku: "SKU-MISSING", Quantity: 1},
		orderapp.OrderItemInput{ProductSku: "SKU-D", Quantity: 1},
	)

	assert.Equal(t, int64(1), s.item(t, "SKU-D").ReservedQuantity)
}

func TestOrderInventory_ReclaimExpired(t *testing.T) {
	s := newOrderInventorySetup(t)
	ctx := context.Background()

	item := s.createItem(t, "SKU-E", 5)
	expires := time.Now().Add(200 * time.Millisecond)
	_, err := s.inventory.Reserve(ctx, inventoryapp.ReserveRequest{
		ItemID: item.ID, Quantity: 2, ReservationID: "hold-1", ExpiresAt: &expires,
	})
	require.NoError(t, err)
	_, err = s.inventory.Reserve(ctx, inventoryapp.ReserveRequest{
		ItemID: item.ID, Quantity: 1, ReservationID: "hold-forever",
	})
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)

	sweeper := inventoryapp.NewReservationExpirationService(s.invRepo, s.inventory, zap.NewNop())
	stats, err := sweeper.ReclaimExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ItemsScanned)
	assert.Equal(t, 1, stats.ReservationsReleased)

	e := s.item(t, "SKU-E")
	require.Len(t, e.Reservations, 1)
	assert.Equal(t, "hold-forever", e.Reservations[0].ReservationID)
}

// Two services share the database but not their in-process locks, so only
// the version check keeps concurrent reservations from overselling.
func TestOrderInventory_ConcurrentReservationsAcrossProcesses(t *testing.T) {
	s := newOrderInventorySetup(t)
	ctx := context.Background()

	item := s.createItem(t, "SKU-HOT", 10)
	other := inventoryapp.NewInventoryService(
		persistence.NewGormInventoryItemRepository(s.db.DB),
		inventoryapp.ServiceConfig{MaxRetries: 10},
		zap.NewNop(),
	)
	services := []*inventoryapp.InventoryService{s.inventory, other}

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		reserved  int
		rejected  int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := services[i%2].Reserve(ctx, inventoryapp.ReserveRequest{
				ItemID:        item.ID,
				Quantity:      1,
				ReservationID: "w-" + strconv.Itoa(i),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				reserved++
			case errors.Is(err, shared.ErrInsufficientStock):
				rejected++
			case errors.Is(err, shared.ErrConcurrencyConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, workers, reserved+rejected+conflicts)
	assert.LessOrEqual(t, reserved, 10)
	assert.Positive(t, reserved)

	final := s.item(t, "SKU-HOT")
	assert.Equal(t, int64(reserved), final.ReservedQuantity, "every acknowledged reservation is stored")
	assert.Len(t, final.Reservations, reserved)
}
