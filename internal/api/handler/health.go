package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const healthTimeout = 2 * time.Second

// RunningReporter reports whether a background worker is running.
type RunningReporter interface {
	Running() bool
}

// SessionCounter reports the number of browser sessions in use.
type SessionCounter interface {
	Outstanding() int
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db        *gorm.DB
	scheduler RunningReporter
	sessions  SessionCounter
}

// NewHealthHandler creates a new health handler.
// Parameters:
//   - db: database handle to ping.
//   - scheduler: reports whether the background scheduler is running.
//   - sessions: reports outstanding browser sessions.
// Returns:
//   - *HealthHandler: initialized handler.
func NewHealthHandler(db *gorm.DB, scheduler RunningReporter, sessions SessionCounter) *HealthHandler {
	return &HealthHandler{db: db, scheduler: scheduler, sessions: sessions}
}

// Health returns the health status of the service. The database is the only
// hard dependency; it answers 503 when the database cannot be reached.
func (h *HealthHandler) Health(c *gin.Context) {
	body := gin.H{"status": "ok", "database": "ok"}
	status := http.StatusOK

	if err := h.pingDB(c.Request.Context()); err != nil {
		body["status"] = "degraded"
		body["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if h.scheduler != nil {
		body["scheduler_running"] = h.scheduler.Running()
	}
	if h.sessions != nil {
		body["outstanding_sessions"] = h.sessions.Outstanding()
	}

	c.JSON(status, body)
}

func (h *HealthHandler) pingDB(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
