package handler

import (
	"context"
	"errors"
	"io"

	orderapp "github.com/erp/inventory/internal/application/order"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrderHandler handles the order endpoints that drive the inventory saga
type OrderHandler struct {
	BaseHandler
	orderService *orderapp.OrderService
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService *orderapp.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// RegisterRoutes mounts the handler under /orders
func (h *OrderHandler) RegisterRoutes(rg *gin.RouterGroup) {
	orders := rg.Group("/orders")
	orders.POST("", h.Create)
	orders.GET("/:id", h.Get)
	orders.POST("/:id/confirm", h.Confirm)
	orders.POST("/:id/ship", h.Ship)
	orders.POST("/:id/cancel", h.Cancel)
}

// Create handles POST /orders
// @ID          createOrder
// @Summary     Create a draft order
// @Tags        orders
// @Accept      json
// @Produce     json
// @Param       request body orderapp.CreateOrderRequest true "Order to create"
// @Success     201 {object} dto.Response{data=orderapp.OrderResponse}
// @Failure     400 {object} dto.Response "Validation error"
// @Failure     500 {object} dto.Response
// @Router      /orders [post]
func (h *OrderHandler) Create(c *gin.Context) {
	var req orderapp.CreateOrderRequest
	if !h.bindJSON(c, &req) {
		return
	}

	o, err := h.orderService.CreateOrder(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Created(c, o)
}

// Get handles GET /orders/:id
// @ID          getOrder
// @Summary     Get order by ID
// @Tags        orders
// @Produce     json
// @Param       id path string true "Order ID" format(uuid)
// @Success     200 {object} dto.Response{data=orderapp.OrderResponse}
// @Failure     400 {object} dto.Response "Validation error"
// @Failure     404 {object} dto.Response "Not found"
// @Failure     500 {object} dto.Response
// @Router      /orders/{id} [get]
func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := h.parseID(c, "id", "order")
	if !ok {
		return
	}

	o, err := h.orderService.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, o)
}

// Confirm handles POST /orders/:id/confirm
// @ID          confirmOrder
// @Summary     Confirm an order
// @Description Confirming publishes OrderConfirmed, which reserves stock for every line
// @Tags        orders
// @Produce     json
// @Param       id path string true "Order ID" format(uuid)
// @Success     200 {object} dto.Response{data=orderapp.OrderResponse}
// @Failure     400 {object} dto.Response "Validation error"
// @Failure     404 {object} dto.Response "Not found"
// @Failure     409 {object} dto.Response "Conflict"
// @Failure     422 {object} dto.Response "Insufficient stock or invalid state"
// @Failure     500 {object} dto.Response
// @Router      /orders/{id}/confirm [post]
func (h *OrderHandler) Confirm(c *gin.Context) {
	h.transition(c, h.orderService.ConfirmOrder)
}

// Ship handles POST /orders/:id/ship
// @ID          shipOrder
// @Summary     Ship an order
// @Description Shipping publishes OrderShipped, which consumes the order reservations
// @Tags        orders
// @Produce     json
// @Param       id path string true "Order ID" format(uuid)
// @Success     200 {object} dto.Response{data=orderapp.OrderResponse}
// @Failure     400 {object} dto.Response "Validation error"
// @Failure     404 {object} dto.Response "Not found"
// @Failure     409 {object} dto.Response "Conflict"
// @Failure     422 {object} dto.Response "Insufficient stock or invalid state"
// @Failure     500 {object} dto.Response
// @Router      /orders/{id}/ship [post]
func (h *OrderHandler) Ship(c *gin.Context) {
	h.transition(c, h.orderService.ShipOrder)
}

// Cancel handles POST /orders/:id/cancel. The body with a reason is optional.
// @ID          cancelOrder
// @Summary     Cancel an order
// @Description Cancelling a confirmed order publishes OrderCancelled, which releases its reservations
// @Tags        orders
// @Accept      json
// @Produce     json
// @Param       id path string true "Order ID" format(uuid)
// @Param       request body orderapp.CancelOrderRequest false "Cancellation reason"
// @Success     200 {object} dto.Response{data=orderapp.OrderResponse}
// @Failure     400 {object} dto.Response "Validation error"
// @Failure     404 {object} dto.Response "Not found"
// @Failure     409 {object} dto.Response "Conflict"
// @Failure     422 {object} dto.Response "Insufficient stock or invalid state"
// @Failure     500 {object} dto.Response
// @Router      /orders/{id}/cancel [post]
func (h *OrderHandler) Cancel(c *gin.Context) {
	var req orderapp.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.ValidationError(c, err)
		return
	}
	h.transition(c, func(ctx context.Context, id uuid.UUID) (*orderapp.OrderResponse, error) {
		return h.orderService.CancelOrder(ctx, id, req)
	})
}

func (h *OrderHandler) transition(c *gin.Context, apply func(ctx context.Context, id uuid.UUID) (*orderapp.OrderResponse, error)) {
	id, ok := h.parseID(c, "id", "order")
	if !ok {
		return
	}

	o, err := apply(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, o)
}
