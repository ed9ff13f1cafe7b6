package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/linkwatch/internal/domain"
	"github.com/timmy/linkwatch/internal/logger"
	"github.com/timmy/linkwatch/internal/service"
)

const resultsPrefix = "results/"

// OperationQueue is the part of service.Queue the handler needs.
type OperationQueue interface {
	Submit(ctx context.Context, identifier string) (string, error)
	Poll(ctx context.Context, operationID string) (*service.OperationView, error)
}

// RecentHandler serves the on-demand "get recent posts" endpoints.
type RecentHandler struct {
	queue OperationQueue
}

// NewRecentHandler creates a new recent-posts handler.
// Parameters:
//   - queue: durable operation queue.
// Returns:
//   - *RecentHandler: initialized handler.
func NewRecentHandler(queue OperationQueue) *RecentHandler {
	return &RecentHandler{queue: queue}
}

// GetRecent handles GET /get_recent/*identifier. The identifier may itself
// contain slashes, so /get_recent/results/:operation_id shares this route and
// is dispatched here.
func (h *RecentHandler) GetRecent(c *gin.Context) {
	identifier := strings.TrimPrefix(c.Param("identifier"), "/")

	if id, ok := strings.CutPrefix(identifier, resultsPrefix); ok && id != "" && !strings.Contains(id, "/") {
		h.getResult(c, id)
		return
	}

	ctx := c.Request.Context()
	if identifier == "" {
		envelopeError(c, http.StatusBadRequest, "account identifier is required")
		return
	}

	operationID, err := h.queue.Submit(ctx, identifier)
	switch {
	case errors.Is(err, domain.ErrUnsupportedProvider):
		logger.CtxWarn(ctx, "Rejected identifier: identifier=%s, client_ip=%s", identifier, c.ClientIP())
		envelopeError(c, http.StatusBadRequest,
			"Unsupported platform. Please provide a URL or username for Instagram, TikTok, X/Twitter, Facebook, YouTube or Telegram.")
		return
	case err != nil:
		_ = c.Error(err)
		logger.CtxError(ctx, "Failed to queue operation: %v", err)
		envelopeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	envelopeOK(c, http.StatusOK, gin.H{"operation_id": operationID})
}

func (h *RecentHandler) getResult(c *gin.Context, operationID string) {
	ctx := c.Request.Context()

	view, err := h.queue.Poll(ctx, operationID)
	switch {
	case errors.Is(err, domain.ErrOperationNotFound):
		envelopeError(c, http.StatusNotFound, "Operation "+operationID+" not found")
		return
	case err != nil:
		_ = c.Error(err)
		logger.CtxError(ctx, "Failed to load operation: operation_id=%s, error=%v", operationID, err)
		envelopeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	envelopeOK(c, http.StatusOK, view)
}
