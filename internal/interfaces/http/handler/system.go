package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	eventapp "github.com/erp/inventory/internal/application/event"
	"github.com/erp/inventory/internal/infrastructure/scheduler"
	"github.com/erp/inventory/internal/interfaces/http/dto"
	"github.com/erp/inventory/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

const readinessTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReclaimTrigger runs the expired reservation sweep on demand
type ReclaimTrigger interface {
	Trigger(ctx context.Context) (scheduler.Run, error)
}

// SystemHandler serves health probes and operator endpoints
type SystemHandler struct {
	BaseHandler
	version string
	db      Pinger
	outbox  *eventapp.OutboxService
	reclaim ReclaimTrigger
}

// SystemOption configures optional SystemHandler dependencies
type SystemOption func(*SystemHandler)

// WithOutboxService enables the dead-letter endpoints
func WithOutboxService(svc *eventapp.OutboxService) SystemOption {
	return func(h *SystemHandler) { h.outbox = svc }
}

// WithReclaimTrigger enables the manual reclaim endpoint
func WithReclaimTrigger(trigger ReclaimTrigger) SystemOption {
	return func(h *SystemHandler) { h.reclaim = trigger }
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(version string, db Pinger, opts ...SystemOption) *SystemHandler {
	h := &SystemHandler{version: version, db: db}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterHealthRoutes mounts the probes at the engine root
func (h *SystemHandler) RegisterHealthRoutes(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.GET("/health/ready", h.Ready)
}

// RegisterRoutes mounts the operator endpoints under /system
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	system := rg.Group("/system")
	if h.outbox != nil {
		system.GET("/outbox/stats", h.OutboxStats)
		system.GET("/outbox/dead", h.ListDeadEntries)
		system.POST("/outbox/dead/retry", h.RetryDeadEntries)
	}
	if h.reclaim != nil {
		system.POST("/reservations/reclaim", h.TriggerReclaim)
	}
}

// Health handles GET /health
// @ID          health
// @Summary     Liveness probe
// @Tags        system
// @Produce     json
// @Success     200 {object} dto.Response
// @Router      /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	h.Success(c, gin.H{"status": "ok", "version": h.version})
}

// Ready handles GET /health/ready by pinging the database
// @ID          ready
// @Summary     Readiness probe
// @Description Reports ready once the database answers a ping
// @Tags        system
// @Produce     json
// @Success     200 {object} dto.Response
// @Failure     503 {object} dto.Response "Database unreachable"
// @Router      /health/ready [get]
func (h *SystemHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		_ = c.Error(err)
		h.Error(c, dto.ErrCodeUnavailable, "Database is not reachable")
		return
	}
	h.Success(c, gin.H{"status": "ready", "database": "ok"})
}

// OutboxStats handles GET /system/outbox/stats
// @ID          getOutboxStats
// @Summary     Outbox entry counts by status
// @Tags        system
// @Produce     json
// @Success     200 {object} dto.Response{data=eventapp.OutboxStatsDTO}
// @Failure     500 {object} dto.Response
// @Router      /system/outbox/stats [get]
func (h *SystemHandler) OutboxStats(c *gin.Context) {
	stats, err := h.outbox.Stats(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, stats)
}

// ListDeadEntries handles GET /system/outbox/dead
// @ID          listDeadOutboxEntries
// @Summary     List dead outbox entries
// @Tags        system
// @Produce     json
// @Param       page query int false "Page number" default(1) minimum(1)
// @Param       page_size query int false "Page size" default(20) maximum(100)
// @Success     200 {object} dto.Response{data=eventapp.DeadLetterPage}
// @Failure     400 {object} dto.Response "Validation error"
// @Failure     500 {object} dto.Response
// @Router      /system/outbox/dead [get]
func (h *SystemHandler) ListDeadEntries(c *gin.Context) {
	var filter eventapp.DeadLetterFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.ValidationError(c, err)
		return
	}

	page, err := h.outbox.ListDead(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, page)
}

// RetryDeadEntries handles POST /system/outbox/dead/retry
// @ID          retryDeadOutboxEntries
// @Summary     Requeue every dead outbox entry
// @Tags        system
// @Produce     json
// @Success     200 {object} dto.Response
// @Failure     500 {object} dto.Response
// @Router      /system/outbox/dead/retry [post]
func (h *SystemHandler) RetryDeadEntries(c *gin.Context) {
	retried, err := h.outbox.RetryDead(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, gin.H{"retried": retried})
}

// TriggerReclaim handles POST /system/reservations/reclaim
// @ID          triggerReservationReclaim
// @Summary     Run the expired reservation sweep now
// @Tags        system
// @Produce     json
// @Success     200 {object} dto.Response
// @Failure     409 {object} dto.Response "A sweep is already running"
// @Failure     503 {object} dto.Response "Scheduler not running"
// @Router      /system/reservations/reclaim [post]
func (h *SystemHandler) TriggerReclaim(c *gin.Context) {
	run, err := h.reclaim.Trigger(c.Request.Context())
	switch {
	case errors.Is(err, scheduler.ErrJobInProgress):
		c.JSON(http.StatusConflict, dto.NewErrorResponse(dto.ErrCodeInvalidState, "A reclaim sweep is already running", middleware.GetRequestID(c)))
		return
	case errors.Is(err, scheduler.ErrSchedulerNotRunning):
		h.Error(c, dto.ErrCodeUnavailable, "Reclaim scheduler is not running")
		return
	case err != nil:
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, gin.H{
		"run_id":      run.ID,
		"status":      run.Status,
		"duration_ms": run.Duration().Milliseconds(),
	})
}
