package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/linkwatch/internal/logger"
	"github.com/timmy/linkwatch/internal/service"
)

// SchedulerController is the part of service.Scheduler the handlers need.
type SchedulerController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status(ctx context.Context) (*service.SchedulerStatus, error)
}

// SchedulerHandler exposes scheduler status and control.
type SchedulerHandler struct {
	scheduler SchedulerController
	enabled   bool
}

// NewSchedulerHandler creates a new scheduler handler.
// Parameters:
//   - scheduler: background scheduler.
//   - enabled: whether starting the scheduler is allowed.
// Returns:
//   - *SchedulerHandler: initialized handler.
func NewSchedulerHandler(scheduler SchedulerController, enabled bool) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler, enabled: enabled}
}

// SchedulerStatusResponse is the body of GET /api/scheduler/status.
type SchedulerStatusResponse struct {
	*service.SchedulerStatus
	Enabled bool `json:"enabled"`
}

// Status handles GET /api/scheduler/status.
func (h *SchedulerHandler) Status(c *gin.Context) {
	status, err := h.scheduler.Status(c.Request.Context())
	if err != nil {
		internalError(c, "Failed to read scheduler status", err)
		return
	}
	c.JSON(http.StatusOK, SchedulerStatusResponse{SchedulerStatus: status, Enabled: h.enabled})
}

// Start handles POST /api/scheduler/start.
func (h *SchedulerHandler) Start(c *gin.Context) {
	if !h.enabled {
		errorJSON(c, http.StatusBadRequest, "Scheduler is disabled")
		return
	}
	if err := h.scheduler.Start(c.Request.Context()); err != nil {
		internalError(c, "Failed to start scheduler", err)
		return
	}
	logger.CtxInfo(c.Request.Context(), "Scheduler started: client_ip=%s", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"message": "Scheduler started"})
}

// Stop handles POST /api/scheduler/stop. It returns once the worker has
// exited or the stop timeout elapsed.
func (h *SchedulerHandler) Stop(c *gin.Context) {
	if err := h.scheduler.Stop(c.Request.Context()); err != nil {
		internalError(c, "Failed to stop scheduler", err)
		return
	}
	logger.CtxInfo(c.Request.Context(), "Scheduler stopped: client_ip=%s", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"message": "Scheduler stopped"})
}
