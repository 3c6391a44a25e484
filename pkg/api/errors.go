package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flowforge/orchestrator/pkg/store"
)

// respondError maps a domain error to an HTTP status, mirroring the
// teacher's pkg/api error-translation helpers — handlers never write their
// own status-code guesswork.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

var errMissingChatID = errors.New("api: chatId query parameter required")
