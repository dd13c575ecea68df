package handler

import (
	inventoryapp "github.com/erp/inventory/internal/application/inventory"
	"github.com/gin-gonic/gin"
)

// InventoryHandler handles the inventory item endpoints
type InventoryHandler struct {
	BaseHandler
	inventoryService *inventoryapp.InventoryService
}

// NewInventoryHandler creates a new InventoryHandler
func NewInventoryHandler(inventoryService *inventoryapp.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventoryService: inventoryService}
}

// RegisterRoutes mounts the handler under /inventory
func (h *InventoryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	items := rg.Group("/inventory/items")
	items.POST("", h.Create)
	items.GET("/below-minimum", h.ListBelowMinimum)
	items.GET("/sku/:sku", h.GetBySku)
	items.GET("/:id", h.GetByID)
	items.POST("/:id/adjust", h.AdjustStock)
	items.POST("/:id/reservations", h.Reserve)
	items.DELETE("/:id/reservations/:reservationId", h.ReleaseReservation)
	items.POST("/:id/reservations/:reservationId/confirm", h.ConfirmReservation)
}

// Create handles POST /inventory/items
// @ID          createInventoryItem
// @Summary     Create inventory item
// @Description Register a product SKU with its initial on-hand quantity
// @Tags        inventory
// @Accept      json
// @Produce     json
// @Param       request body inventoryapp.CreateInventoryItemRequest true "Item to create"
// @Success     201 {object} dto.Response{data=inventoryapp.InventoryItemResponse}
// @Failure     400 {object} dto.Response "Validation error"
// @Failure     409 {object} dto.Response "SKU already exists"
// @Failure     500 {object} dto.Response
// @Router      /inventory/items [post]
func (h *InventoryHandler) Create(c *gin.Context) {
	var req inventoryapp.CreateInventoryItemRequest
	if !h.bindJSON(c, &req) {
		return
	}

	item, err := h.inventoryService.CreateInventoryItem(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Created(c, item)
}

// GetByID handles GET /inventory/items/:id
// @ID          getInventoryItem
// @Summary     Get inventory item by ID
// @Tags        inventory
// @Produce     json
// @Param       id path string true "Inventory item ID" format(uuid)
// @Success     200 {object} dto.Response{data=inventoryapp.InventoryItemResponse}
// @Failure     400 {object} dto.Response "Validation error"
// @Failure     404 {object} dto.Response "Not found"
// @Failure     500 {object} dto.Response
// @Router      /inventory/items/{id} [get]
func (h *InventoryHandler) GetByID(c *gin.Context) {
	id, ok := h.parseID(c, "id", "inventory item")
	if !ok {
		return
	}

	item, err := h.inventoryService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, item)
}

// GetBySku handles GET /inventory/items/sku/:sku
// @ID          getInventoryItemBySku
// @Summary     Get inventory item by SKU
// @Tags        inventory
// @Produce     json
// @Param       sku path string true "Product SKU"
// @Success     200 {object} dto.Response{data=inventoryapp.InventoryItemResponse}
// @Failure     404 {object} dto.Response "Not found"
// @Failure     500 {object} dto.Response
// @Router      /inventory/items/sku/{sku} [get]
func (h *InventoryHandler) GetBySku(c *gin.Context) {
	item, err := h.inventoryService.GetByProductSku(c.Request.Context(), c.Param("sku"))
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, item)
}

// ListBelowMinimum handles GET /inventory/items/below-minimum
// @ID          listInventoryBelowMinimum
// @Summary     List items below their minimum stock level
// @Tags        inventory
// @Produce     json
// @Success     200 {object} dto.Response{data=[]inventoryapp.InventoryItemResponse}
// @Failure     500 {object} dto.Response
// @Router      /inventory/items/below-minimum [get]
func (h *InventoryHandler) ListBelowMinimum(c *gin.Context) {
	items, err := h.inventoryService.ListBelowMinimum(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, items)
}

// AdjustStock handles POST /inventory/items/:id/adjust
// @ID          adjustInventoryStock
// @Summary     Adjust on-hand stock
// @Description Add or remove on-hand units. Removal cannot take stock below what is reserved.
// @Tags        inventory
// @Accept      json
// @Produce     json
// @Param       id path string true "Inventory item ID" format(uuid)
// @Param       request body inventoryapp.AdjustStockRequest true "Signed quantity change"
// @Success     200 {object} dto.Response{data=inventoryapp.InventoryItemResponse}
// @Failure     400 {object} dto.Response "Validation error"
// @Failure     404 {object} dto.Response "Not found"
// @Failure     409 {object} dto.Response "Conflict"
// @Failure     422 {object} dto.Response "Insufficient stock or invalid state"
// @Failure     500 {object} dto.Response
// @Router      /inventory/items/{id}/adjust [post]
func (h *InventoryHandler) AdjustStock(c *gin.Context) {
	id, ok := h.parseID(c, "id", "inventory item")
	if !ok {
		return
	}
	var req inventoryapp.AdjustStockRequest
	if !h.bindJSON(c, &req) {
		return
	}
	req.ItemID = id

	item, err := h.inventoryService.AdjustStock(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, item)
}

// Reserve handles POST /inventory/items/:id/reservations
// @ID          reserveInventory
// @Summary     Reserve stock
// @Description Hold available units under a caller supplied reservation ID. Repeating a reservation ID returns the existing hold.
// @Tags        inventory
// @Accept      json
// @Produce     json
// @Param       id path string true "Inventory item ID" format(uuid)
// @Param       request body inventoryapp.ReserveRequest true "Reservation"
// @Success     201 {object} dto.Response{data=inventoryapp.ReservationResponse}
// @Failure     400 {object} dto.Response "Validation error"
// @Failure     404 {object} dto.Response "Not found"
// @Failure     409 {object} dto.Response "Conflict"
// @Failure     422 {object} dto.Response "Insufficient stock or invalid state"
// @Failure     500 {object} dto.Response
// @Router      /inventory/items/{id}/reservations [post]
func (h *InventoryHandler) Reserve(c *gin.Context) {
	id, ok := h.parseID(c, "id", "inventory item")
	if !ok {
		return
	}
	var req inventoryapp.ReserveRequest
	if !h.bindJSON(c, &req) {
		return
	}
	req.ItemID = id

	reservation, err := h.inventoryService.Reserve(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Created(c, reservation)
}

// ReleaseReservation handles DELETE /inventory/items/:id/reservations/:reservationId.
// Releasing an unknown reservation succeeds.
// @ID          releaseInventoryReservation
// @Summary     Release a reservation
// @Tags        inventory
// @Produce     json
// @Param       id path string true "Inventory item ID" format(uuid)
// @Param       reservationId path string true "Reservation ID"
// @Success     200 {object} dto.Response
// @Failure     400 {object} dto.Response "Validation error"
// @Failure     404 {object} dto.Response "Not found"
// @Failure     409 {object} dto.Response "Conflict"
// @Failure     500 {object} dto.Response
// @Router      /inventory/items/{id}/reservations/{reservationId} [delete]
func (h *InventoryHandler) ReleaseReservation(c *gin.Context) {
	id, ok := h.parseID(c, "id", "inventory item")
	if !ok {
		return
	}

	if err := h.inventoryService.ReleaseReservation(c.Request.Context(), id, c.Param("reservationId")); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, nil)
}

// ConfirmReservation handles POST /inventory/items/:id/reservations/:reservationId/confirm
// @ID          confirmInventoryReservation
// @Summary     Confirm a reservation
// @Description Consume the reserved units from on-hand stock
// @Tags        inventory
// @Produce     json
// @Param       id path string true "Inventory item ID" format(uuid)
// @Param       reservationId path string true "Reservation ID"
// @Success     200 {object} dto.Response
// @Failure     400 {object} dto.Response "Validation error"
// @Failure     404 {object} dto.Response "Not found"
// @Failure     409 {object} dto.Response "Conflict"
// @Failure     500 {object} dto.Response
// @Router      /inventory/items/{id}/reservations/{reservationId}/confirm [post]
func (h *InventoryHandler) ConfirmReservation(c *gin.Context) {
	id, ok := h.parseID(c, "id", "inventory item")
	if !ok {
		return
	}

	if err := h.inventoryService.ConfirmReservation(c.Request.Context(), id, c.Param("reservationId")); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, nil)
}
