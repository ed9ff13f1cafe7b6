package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/linkwatch/internal/logger"
)

// Envelope is the response shape of the get_recent endpoints.
type Envelope struct {
	Success bool        `json:"success"`
	Body    interface{} `json:"body"`
	Error   *string     `json:"error"`
}

func envelopeOK(c *gin.Context, status int, body interface{}) {
	c.JSON(status, Envelope{Success: true, Body: body})
}

func envelopeError(c *gin.Context, status int, msg string) {
	c.JSON(status, Envelope{Success: false, Body: gin.H{}, Error: &msg})
}

func errorJSON(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// parseID reads a positive numeric path parameter.
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		errorJSON(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// internalError logs err against the request and writes a generic 500.
func internalError(c *gin.Context, msg string, err error) {
	_ = c.Error(err)
	logger.CtxError(c.Request.Context(), "%s: %v", msg, err)
	errorJSON(c, http.StatusInternalServerError, msg)
}
