package handlers

import (
	"github.com/clubstack/memberhub/internal/models"
	"github.com/clubstack/memberhub/internal/store"
	"github.com/gin-gonic/gin"
)

// HealthHandler reports service and store health.
type HealthHandler struct {
	store store.Store
}

func NewHealthHandler(st store.Store) *HealthHandler {
	return &HealthHandler{store: st}
}

// CheckHealth probes the record store with a cheap read.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	storeStatus := "ok"

	if _, err := h.store.Keys(c.Request.Context(), models.ProjectKeyPrefix); err != nil {
		storeStatus = "error: " + err.Error()
		overall = "unhealthy"
	}

	c.JSON(200, gin.H{
		"status":  overall,
		"service": "memberhub",
		"components": gin.H{
			"store": storeStatus,
		},
	})
}
