package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// MockEventPublisher collects published events
type MockEventPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
	err    error
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return m.err
}

func (m *MockEventPublisher) GetEventsByType(eventType string) []shared.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range m.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (m *MockEventPublisher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// MockInventoryItemRepository is a testify mock of InventoryItemRepository
type MockInventoryItemRepository struct {
	mock.Mock
}

func (m *MockInventoryItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*inventory.InventoryItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.InventoryItem), args.Error(1)
}

func (m *MockInventoryItemRepository) GetByProductSku(ctx context.Context, sku string) (*inventory.InventoryItem, error) {
	args := m.Called(ctx, sku)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.InventoryItem), args.Error(1)
}

func (m *MockInventoryItemRepository) GetItemsBelowMinimumStock(ctx context.Context) ([]*inventory.InventoryItem, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*inventory.InventoryItem), args.Error(1)
}

func (m *MockInventoryItemRepository) GetItemsWithExpiredReservations(ctx context.Context, now time.Time) ([]*inventory.InventoryItem, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*inventory.InventoryItem), args.Error(1)
}

func (m *MockInventoryItemRepository) Add(ctx context.Context, item *inventory.InventoryItem) error {
	return m.Called(ctx, item).Error(0)
}

func (m *MockInventoryItemRepository) Update(ctx context.Context, item *inventory.InventoryItem) error {
	return m.Called(ctx, item).Error(0)
}

// memoryRepository stores snapshots and enforces the version check, so
// service tests observe the same contract as the database repositories
type memoryRepository struct {
	mu    sync.Mutex
	items map[uuid.UUID]*inventory.InventoryItem
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{items: make(map[uuid.UUID]*inventory.InventoryItem)}
}

func snapshot(item *inventory.InventoryItem) *inventory.InventoryItem {
	ledger := inventory.RestoreStockLedger(item.ProductSku(), item.Quantity(), item.MinimumStockLevel(), item.Reservations())
	return inventory.RestoreInventoryItem(item.ID, item.GetVersion(), item.CreatedAt, item.UpdatedAt, ledger)
}

func (r *memoryRepository) GetByID(_ context.Context, id uuid.UUID) (*inventory.InventoryItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, inventory.NewItemNotFoundError(id.String())
	}
	return snapshot(item), nil
}

func (r *memoryRepository) GetByProductSku(_ context.Context, sku string) (*inventory.InventoryItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if item.ProductSku() == sku {
			return snapshot(item), nil
		}
	}
	return nil, inventory.NewItemNotFoundError(sku)
}

func (r *memoryRepository) GetItemsBelowMinimumStock(context.Context) ([]*inventory.InventoryItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*inventory.InventoryItem
	for _, item := range r.items {
		if item.IsBelowMinimumStock() {
			out = append(out, snapshot(item))
		}
	}
	return out, nil
}

func (r *memoryRepository) GetItemsWithExpiredReservations(_ context.Context, now time.Time) ([]*inventory.InventoryItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*inventory.InventoryItem
	for _, item := range r.items {
		if item.HasExpiredReservations(now) {
			out = append(out, snapshot(item))
		}
	}
	return out, nil
}

func (r *memoryRepository) Add(_ context.Context, item *inventory.InventoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.ProductSku() == item.ProductSku() {
			return inventory.NewDuplicateProductSkuError(item.ProductSku())
		}
	}
	r.items[item.ID] = snapshot(item)
	return nil
}

func (r *memoryRepository) Update(_ context.Context, item *inventory.InventoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[item.ID]
	if !ok {
		return inventory.NewItemNotFoundError(item.ID.String())
	}
	if stored.GetVersion() != item.GetVersion()-1 {
		return shared.ErrConcurrencyConflict
	}
	r.items[item.ID] = snapshot(item)
	return nil
}

func setupService(t *testing.T, repo inventory.InventoryItemRepository, cfg ServiceConfig) (*InventoryService, *MockEventPublisher) {
	t.Helper()
	publisher := NewMockEventPublisher()
	svc := NewInventoryService(repo, cfg, zap.NewNop(),
		WithEventPublisher(publisher),
		WithClock(func() time.Time { return testNow }),
	)
	return svc, publisher
}

func createItem(t *testing.T, svc *InventoryService, sku string, quantity, minimum int64) uuid.UUID {
	t.Helper()
	resp, err := svc.CreateInventoryItem(context.Background(), CreateInventoryItemRequest{
		ProductSku:        sku,
		InitialQuantity:   quantity,
		MinimumStockLevel: minimum,
	})
	require.NoError(t, err)
	return resp.ID
}

func TestInventoryService_CreateInventoryItem(t *testing.T) {
	t.Run("creates and publishes creation event", func(t *testing.T) {
		svc, publisher := setupService(t, newMemoryRepository(), ServiceConfig{})

		resp, err := svc.CreateInventoryItem(context.Background(), CreateInventoryItemRequest{
			ProductSku:        "SKU-1",
			InitialQuantity:   10,
			MinimumStockLevel: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(10), resp.AvailableQuantity)
		assert.Equal(t, 1, resp.Version)
		assert.Len(t, publisher.GetEventsByType(inventory.EventTypeInventoryItemCreated), 1)
	})

	t.Run("rejects duplicate SKU", func(t *testing.T) {
		svc, _ := setupService(t, newMemoryRepository(), ServiceConfig{})
		createItem(t, svc, "SKU-1", 10, 0)

		_, err := svc.CreateInventoryItem(context.Background(), CreateInventoryItemRequest{ProductSku: "SKU-1"})
		assert.True(t, errors.Is(err, shared.ErrDuplicateProductSku))
	})

	t.Run("rejects negative quantity", func(t *testing.T) {
		svc, _ := setupService(t, newMemoryRepository(), ServiceConfig{})
		_, err := svc.CreateInventoryItem(context.Background(), CreateInventoryItemRequest{ProductSku: "SKU-1", InitialQuantity: -1})
		assert.True(t, errors.Is(err, shared.ErrInvalidArgument))
	})
}

func TestInventoryService_ReservationLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("insufficient stock reports available quantity", func(t *testing.T) {
		svc, publisher := setupService(t, newMemoryRepository(), ServiceConfig{})
		id := createItem(t, svc, "SKU-X", 10, 5)

		resv, err := svc.Reserve(ctx, ReserveRequest{ItemID: id, Quantity: 7, ReservationID: "R1"})
		require.NoError(t, err)
		assert.Equal(t, "R1", resv.ReservationID)

		_, err = svc.Reserve(ctx, ReserveRequest{ItemID: id, Quantity: 4, ReservationID: "R2"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInsufficientStock))
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, int64(3), domainErr.Details["available"])

		item, err := svc.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(3), item.AvailableQuantity)
		assert.Len(t, publisher.GetEventsByType(inventory.EventTypeInventoryReserved), 1)
	})

	t.Run("confirm consumes reservation and raises low stock once", func(t *testing.T) {
		svc, publisher := setupService(t, newMemoryRepository(), ServiceConfig{})
		id := createItem(t, svc, "SKU-X", 10, 5)

		_, err := svc.Reserve(ctx, ReserveRequest{ItemID: id, Quantity: 7, ReservationID: "R1"})
		require.NoError(t, err)
		require.NoError(t, svc.ConfirmReservation(ctx, id, "R1"))
		require.NoError(t, svc.ConfirmReservation(ctx, id, "R1"))

		item, err := svc.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(3), item.Quantity)
		assert.Equal(t, int64(0), item.ReservedQuantity)
		assert.Equal(t, 3, item.Version)
		assert.Len(t, publisher.GetEventsByType(inventory.EventTypeInventoryStockDecreased), 1)
		assert.Len(t, publisher.GetEventsByType(inventory.EventTypeLowStockWarning), 1)
	})

	t.Run("duplicate reserve is a silent no-op", func(t *testing.T) {
		svc, publisher := setupService(t, newMemoryRepository(), ServiceConfig{})
		id := createItem(t, svc, "SKU-X", 10, 0)

		_, err := svc.Reserve(ctx, ReserveRequest{ItemID: id, Quantity: 2, ReservationID: "R1"})
		require.NoError(t, err)
		before := publisher.Count()

		resv, err := svc.Reserve(ctx, ReserveRequest{ItemID: id, Quantity: 2, ReservationID: "R1"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), resv.Quantity)
		assert.Equal(t, before, publisher.Count())

		item, err := svc.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 2, item.Version)
		assert.Equal(t, int64(8), item.AvailableQuantity)
	})

	t.Run("release of unknown reservation is a no-op", func(t *testing.T) {
		svc, publisher := setupService(t, newMemoryRepository(), ServiceConfig{})
		id := createItem(t, svc, "SKU-X", 10, 0)
		before := publisher.Count()

		require.NoError(t, svc.ReleaseReservation(ctx, id, "missing"))
		assert.Equal(t, before, publisher.Count())
	})

	t.Run("missing item is not found", func(t *testing.T) {
		svc, _ := setupService(t, newMemoryRepository(), ServiceConfig{})
		err := svc.ReleaseReservation(ctx, uuid.New(), "R1")
		assert.True(t, errors.Is(err, shared.ErrNotFound))
		err = svc.ConfirmReservation(ctx, uuid.New(), "R1")
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("default expiry applies when request has none", func(t *testing.T) {
		svc, _ := setupService(t, newMemoryRepository(), ServiceConfig{DefaultReservationExpiry: time.Hour})
		id := createItem(t, svc, "SKU-X", 10, 0)

		resv, err := svc.Reserve(ctx, ReserveRequest{ItemID: id, Quantity: 1, ReservationID: "R1"})
		require.NoError(t, err)
		require.NotNil(t, resv.ExpiresAt)
		assert.Equal(t, testNow.Add(time.Hour), *resv.ExpiresAt)

		explicit := testNow.Add(time.Minute)
		resv, err = svc.Reserve(ctx, ReserveRequest{ItemID: id, Quantity: 1, ReservationID: "R2", ExpiresAt: &explicit})
		require.NoError(t, err)
		assert.Equal(t, explicit, *resv.ExpiresAt)
	})
}

func TestInventoryService_AdjustStock(t *testing.T) {
	ctx := context.Background()
	svc, publisher := setupService(t, newMemoryRepository(), ServiceConfig{})
	id := createItem(t, svc, "SKU-X", 6, 5)

	resp, err := svc.AdjustStock(ctx, AdjustStockRequest{ItemID: id, Delta: -6, Reason: "damaged"})
	require.NoError(t, err)
	assert.True(t, resp.IsOutOfStock)
	assert.Len(t, publisher.GetEventsByType(inventory.EventTypeOutOfStock), 1)

	_, err = svc.AdjustStock(ctx, AdjustStockRequest{ItemID: id, Delta: -1})
	assert.True(t, errors.Is(err, shared.ErrInsufficientStock))

	_, err = svc.AdjustStock(ctx, AdjustStockRequest{ItemID: id, Delta: 0})
	assert.True(t, errors.Is(err, shared.ErrInvalidArgument))

	below, err := svc.ListBelowMinimum(ctx)
	require.NoError(t, err)
	require.Len(t, below, 1)
	assert.Equal(t, id, below[0].ID)
}

func TestInventoryService_ConcurrencyConflict(t *testing.T) {
	ctx := context.Background()
	loadItem := func() *inventory.InventoryItem {
		ledger := inventory.RestoreStockLedger("SKU-X", 10, 0, nil)
		return inventory.RestoreInventoryItem(uuid.MustParse("00000000-0000-0000-0000-000000000001"), 4, testNow, testNow, ledger)
	}
	id := loadItem().ID

	t.Run("retries after conflict and succeeds", func(t *testing.T) {
		repo := new(MockInventoryItemRepository)
		repo.On("GetByID", mock.Anything, id).Return(loadItem(), nil).Once()
		repo.On("GetByID", mock.Anything, id).Return(loadItem(), nil).Once()
		repo.On("Update", mock.Anything, mock.Anything).Return(shared.ErrConcurrencyConflict).Once()
		repo.On("Update", mock.Anything, mock.MatchedBy(func(item *inventory.InventoryItem) bool {
			return item.GetVersion() == 5
		})).Return(nil).Once()

		svc, publisher := setupService(t, repo, ServiceConfig{})
		_, err := svc.Reserve(ctx, ReserveRequest{ItemID: id, Quantity: 3, ReservationID: "R1"})
		require.NoError(t, err)
		assert.Equal(t, 1, publisher.Count())
		repo.AssertExpectations(t)
	})

	t.Run("surfaces conflict after max retries", func(t *testing.T) {
		repo := new(MockInventoryItemRepository)
		repo.On("GetByID", mock.Anything, id).Return(loadItem(), nil).Times(2)
		repo.On("Update", mock.Anything, mock.Anything).Return(shared.ErrConcurrencyConflict).Times(2)

		svc, publisher := setupService(t, repo, ServiceConfig{MaxRetries: 2})
		_, err := svc.Reserve(ctx, ReserveRequest{ItemID: id, Quantity: 3, ReservationID: "R1"})
		assert.True(t, errors.Is(err, shared.ErrConcurrencyConflict))
		assert.Equal(t, 0, publisher.Count())
		repo.AssertExpectations(t)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		repo := new(MockInventoryItemRepository)
		repo.On("GetByID", mock.Anything, id).Return(loadItem(), nil).Twice()
		repo.On("Update", mock.Anything, mock.Anything).Return(errors.New("connection reset")).Once()

		svc, _ := setupService(t, repo, ServiceConfig{})
		err := svc.ConfirmReservation(ctx, id, "R1")
		assert.NoError(t, err, "confirming an unknown reservation does not save")

		_, err = svc.AdjustStock(ctx, AdjustStockRequest{ItemID: id, Delta: 1})
		assert.EqualError(t, err, "connection reset")
	})
}

func TestInventoryService_ParallelReservesNeverOversell(t *testing.T) {
	ctx := context.Background()
	svc, publisher := setupService(t, newMemoryRepository(), ServiceConfig{})
	id := createItem(t, svc, "SKU-X", 30, 0)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(ctx, ReserveRequest{ItemID: id, Quantity: 1, ReservationID: uuid.NewString()})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.True(t, errors.Is(err, shared.ErrInsufficientStock))
				rejected++
				return
			}
			succeeded++
		}()
	}
	wg.Wait()

	assert.Equal(t, 30, succeeded)
	assert.Equal(t, 20, rejected)
	item, err := svc.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), item.AvailableQuantity)
	assert.Equal(t, int64(30), item.Quantity)
	assert.Len(t, publisher.GetEventsByType(inventory.EventTypeInventoryReserved), 30)
	assert.Equal(t, 0, svc.locks.Len())
}

func TestInventoryService_PublishFailureDoesNotFailCommand(t *testing.T) {
	svc, publisher := setupService(t, newMemoryRepository(), ServiceConfig{})
	id := createItem(t, svc, "SKU-X", 5, 0)
	publisher.err = errors.New("broker down")

	_, err := svc.Reserve(context.Background(), ReserveRequest{ItemID: id, Quantity: 1, ReservationID: "R1"})
	assert.NoError(t, err)
}

func TestInventoryService_NilPublisher(t *testing.T) {
	svc := NewInventoryService(newMemoryRepository(), ServiceConfig{}, zap.NewNop())
	resp, err := svc.CreateInventoryItem(context.Background(), CreateInventoryItemRequest{ProductSku: "SKU-1", InitialQuantity: 1})
	require.NoError(t, err)
	assert.Equal(t, "SKU-1", resp.ProductSku)
}
