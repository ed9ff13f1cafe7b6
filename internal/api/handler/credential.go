package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/linkwatch/internal/credential"
	"github.com/timmy/linkwatch/internal/domain"
)

// CredentialStats is the part of credential.Store the handler needs.
type CredentialStats interface {
	Stats(ctx context.Context, provider domain.Provider) (*credential.Stats, error)
	AllStats(ctx context.Context) ([]*credential.Stats, error)
}

// CredentialHandler reports credential pool health.
type CredentialHandler struct {
	store CredentialStats
}

// NewCredentialHandler creates a new credential handler.
func NewCredentialHandler(store CredentialStats) *CredentialHandler {
	return &CredentialHandler{store: store}
}

// Stats handles GET /api/credentials/stats, optionally narrowed by ?provider=.
func (h *CredentialHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	if p := c.Query("provider"); p != "" {
		provider := domain.Provider(p)
		if !provider.Valid() {
			errorJSON(c, http.StatusBadRequest, "unknown provider: "+p)
			return
		}
		stats, err := h.store.Stats(ctx, provider)
		if err != nil {
			internalError(c, "Failed to read credential stats", err)
			return
		}
		c.JSON(http.StatusOK, []*credential.Stats{stats})
		return
	}

	stats, err := h.store.AllStats(ctx)
	if err != nil {
		internalError(c, "Failed to read credential stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
