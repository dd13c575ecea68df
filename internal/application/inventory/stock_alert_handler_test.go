package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockStockAlertNotifier struct {
	mock.Mock
}

func (m *MockStockAlertNotifier) SendAlert(ctx context.Context, alert StockAlert) error {
	return m.Called(ctx, alert).Error(0)
}

func thresholdEvents(t *testing.T) (*inventory.LowStockWarningEvent, *inventory.OutOfStockEvent) {
	t.Helper()
	item, err := inventory.NewInventoryItem("SKU-X", 6, 5)
	require.NoError(t, err)
	item.ClearDomainEvents()
	require.NoError(t, item.AdjustStock(-6, "damaged"))

	var low *inventory.LowStockWarningEvent
	var out *inventory.OutOfStockEvent
	for _, e := range item.GetDomainEvents() {
		switch ev := e.(type) {
		case *inventory.LowStockWarningEvent:
			low = ev
		case *inventory.OutOfStockEvent:
			out = ev
		}
	}
	require.NotNil(t, low)
	require.NotNil(t, out)
	return low, out
}

func TestStockAlertHandler_EventTypes(t *testing.T) {
	h := NewStockAlertHandler(nil, nil, zap.NewNop())
	assert.ElementsMatch(t, []string{inventory.EventTypeLowStockWarning, inventory.EventTypeOutOfStock}, h.EventTypes())
}

func TestStockAlertHandler_Handle(t *testing.T) {
	ctx := context.Background()
	low, out := thresholdEvents(t)

	t.Run("sends low stock and out of stock alerts", func(t *testing.T) {
		notifier := new(MockStockAlertNotifier)
		notifier.On("SendAlert", mock.Anything, mock.MatchedBy(func(a StockAlert) bool {
			return a.AlertType == AlertTypeLowStock && a.CurrentQuantity == 0 && a.MinimumStockLevel == 5
		})).Return(nil).Once()
		notifier.On("SendAlert", mock.Anything, mock.MatchedBy(func(a StockAlert) bool {
			return a.AlertType == AlertTypeOutOfStock && a.ProductSku == "SKU-X"
		})).Return(nil).Once()

		h := NewStockAlertHandler(notifier, nil, zap.NewNop())
		require.NoError(t, h.Handle(ctx, low))
		require.NoError(t, h.Handle(ctx, out))
		notifier.AssertExpectations(t)
	})

	t.Run("notifier failure is swallowed", func(t *testing.T) {
		notifier := new(MockStockAlertNotifier)
		notifier.On("SendAlert", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

		h := NewStockAlertHandler(notifier, nil, zap.NewNop())
		assert.NoError(t, h.Handle(ctx, low))
	})

	t.Run("rejects other events", func(t *testing.T) {
		item, err := inventory.NewInventoryItem("SKU-Y", 1, 0)
		require.NoError(t, err)
		h := NewStockAlertHandler(NewLoggingStockAlertNotifier(zap.NewNop()), nil, zap.NewNop())
		assert.Error(t, h.Handle(ctx, item.GetDomainEvents()[0]))
	})

	t.Run("logging notifier", func(t *testing.T) {
		h := NewStockAlertHandler(NewLoggingStockAlertNotifier(zap.NewNop()), nil, zap.NewNop())
		assert.NoError(t, h.Handle(ctx, out))
	})
}
