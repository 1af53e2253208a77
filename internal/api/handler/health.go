package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// IndexSizer reports how many reference examples retrieval can search.
type IndexSizer interface {
	Size() int
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	index IndexSizer
}

// NewHealthHandler creates a new health handler. index may be nil.
func NewHealthHandler(index IndexSizer) *HealthHandler {
	return &HealthHandler{index: index}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	size := 0
	if h.index != nil {
		size = h.index.Size()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"index_size": size,
	})
}
