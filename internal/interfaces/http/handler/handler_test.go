package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	inventoryapp "github.com/erp/inventory/internal/application/inventory"
	orderapp "github.com/erp/inventory/internal/application/order"
	"github.com/erp/inventory/internal/infrastructure/config"
	"github.com/erp/inventory/internal/infrastructure/persistence"
	"github.com/erp/inventory/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code      string         `json:"code"`
		Message   string         `json:"message"`
		RequestID string         `json:"request_id"`
		Details   map[string]any `json:"details"`
		Fields    []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"fields"`
	} `json:"error"`
}

type testAPI struct {
	engine *gin.Engine
	db     *persistence.Database
}

// newTestAPI wires the inventory and order handlers over an isolated sqlite database
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	require.NoError(t, middleware.SetupValidator())

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := persistence.NewDatabaseWithDialector(
		sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)),
		&config.DatabaseConfig{Driver: config.DriverSQLite},
	)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	inventorySvc := inventoryapp.NewInventoryService(
		persistence.NewGormInventoryItemRepository(db.DB),
		inventoryapp.ServiceConfig{MaxRetries: 3, DefaultReservationExpiry: time.Hour},
		zap.NewNop(),
	)
	orderSvc := orderapp.NewOrderService(persistence.NewGormOrderRepository(db.DB), zap.NewNop())

	engine := gin.New()
	engine.Use(middleware.RequestID())
	api := engine.Group("/api/v1")
	NewInventoryHandler(inventorySvc).RegisterRoutes(api)
	NewOrderHandler(orderSvc).RegisterRoutes(api)
	return &testAPI{engine: engine, db: db}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderRequestID, "req-test")

	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

// doRaw sends a bodyless request without the json helpers
func (a *testAPI) doRaw(method, path string) (int, []byte) {
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w.Code, w.Body.Bytes()
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func (a *testAPI) createItem(t *testing.T, sku string, qty, minimum int64) inventoryapp.InventoryItemResponse {
	t.Helper()
	w, env := a.do(t, http.MethodPost, "/api/v1/inventory/items", map[string]any{
		"product_sku":         sku,
		"initial_quantity":    qty,
		"minimum_stock_level": minimum,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[inventoryapp.InventoryItemResponse](t, env)
}
