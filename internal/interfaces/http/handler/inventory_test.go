package handler

import (
	"net/http"
	"testing"

	inventoryapp "github.com/erp/inventory/internal/application/inventory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryHandler_Create(t *testing.T) {
	api := newTestAPI(t)

	item := api.createItem(t, "SKU-RED", 10, 2)
	assert.Equal(t, "SKU-RED", item.ProductSku)
	assert.Equal(t, int64(10), item.AvailableQuantity)

	t.Run("duplicate sku", func(t *testing.T) {
		w, env := api.do(t, http.MethodPost, "/api/v1/inventory/items", map[string]any{"product_sku": "SKU-RED"})
		assert.Equal(t, http.StatusConflict, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "DUPLICATE_PRODUCT_SKU", env.Error.Code)
		assert.Equal(t, "req-test", env.Error.RequestID)
	})

	t.Run("invalid sku", func(t *testing.T) {
		w, env := api.do(t, http.MethodPost, "/api/v1/inventory/items", map[string]any{
			"product_sku":      "not a sku!",
			"initial_quantity": -1,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
		fields := map[string]bool{}
		for _, f := range env.Error.Fields {
			fields[f.Field] = true
		}
		assert.True(t, fields["product_sku"])
		assert.True(t, fields["initial_quantity"])
	})

	t.Run("malformed body", func(t *testing.T) {
		w, env := api.do(t, http.MethodPost, "/api/v1/inventory/items", "{")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "Malformed request body", env.Error.Message)
	})
}

func TestInventoryHandler_Get(t *testing.T) {
	api := newTestAPI(t)
	created := api.createItem(t, "SKU-GREEN", 5, 0)

	w, env := api.do(t, http.MethodGet, "/api/v1/inventory/items/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decode[inventoryapp.InventoryItemResponse](t, env).ID)

	w, env = api.do(t, http.MethodGet, "/api/v1/inventory/items/sku/SKU-GREEN", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decode[inventoryapp.InventoryItemResponse](t, env).ID)

	w, env = api.do(t, http.MethodGet, "/api/v1/inventory/items/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	w, env = api.do(t, http.MethodGet, "/api/v1/inventory/items/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ARGUMENT", env.Error.Code)
	assert.Equal(t, "Invalid inventory item ID format", env.Error.Message)
}

func TestInventoryHandler_ReserveLifecycle(t *testing.T) {
	api := newTestAPI(t)
	item := api.createItem(t, "SKU-BLUE", 10, 4)
	base := "/api/v1/inventory/items/" + item.ID.String()

	w, env := api.do(t, http.MethodPost, base+"/reservations", map[string]any{"quantity": 7, "reservation_id": "order:1:SKU-BLUE"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[inventoryapp.ReservationResponse](t, env)
	assert.Equal(t, int64(7), res.Quantity)
	assert.NotNil(t, res.ExpiresAt)

	t.Run("insufficient stock carries amounts", func(t *testing.T) {
		w, env := api.do(t, http.MethodPost, base+"/reservations", map[string]any{"quantity": 4, "reservation_id": "order:2:SKU-BLUE"})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "INSUFFICIENT_STOCK", env.Error.Code)
		assert.EqualValues(t, 4, env.Error.Details["requested"])
		assert.EqualValues(t, 3, env.Error.Details["available"])
	})

	w, env = api.do(t, http.MethodGet, "/api/v1/inventory/items/below-minimum", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]inventoryapp.InventoryItemResponse](t, env))

	w, _ = api.do(t, http.MethodPost, base+"/reservations/order:1:SKU-BLUE/confirm", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = api.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	after := decode[inventoryapp.InventoryItemResponse](t, env)
	assert.Equal(t, int64(3), after.Quantity)
	assert.Zero(t, after.ReservedQuantity)

	w, env = api.do(t, http.MethodGet, "/api/v1/inventory/items/below-minimum", nil)
	require.Equal(t, http.StatusOK, w.Code)
	below := decode[[]inventoryapp.InventoryItemResponse](t, env)
	require.Len(t, below, 1)
	assert.Equal(t, item.ID, below[0].ID)

	w, _ = api.do(t, http.MethodDelete, base+"/reservations/unknown", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = api.do(t, http.MethodPost, base+"/reservations", map[string]any{"quantity": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestInventoryHandler_AdjustStock(t *testing.T) {
	api := newTestAPI(t)
	item := api.createItem(t, "SKU-GOLD", 2, 0)
	path := "/api/v1/inventory/items/" + item.ID.String() + "/adjust"

	w, env := api.do(t, http.MethodPost, path, map[string]any{"delta": 8, "reason": "restock"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(10), decode[inventoryapp.InventoryItemResponse](t, env).Quantity)

	w, env = api.do(t, http.MethodPost, path, map[string]any{"delta": -11})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", env.Error.Code)

	w, _ = api.do(t, http.MethodPost, path, map[string]any{"delta": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
