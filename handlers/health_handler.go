package handlers

import (
	"net/http"

	"github.com/NomadCrew/dojo-portal/types"
	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	healthService HealthChecker
}

func NewHealthHandler(healthService HealthChecker) *HealthHandler {
	return &HealthHandler{
		healthService: healthService,
	}
}

// LivenessCheck answers as long as the process serves requests.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.Status(http.StatusOK)
}

// ReadinessCheck fails while the document store is unreachable.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if !h.healthService.IsReady(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": types.HealthStatusDown})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": types.HealthStatusUp})
}

// DetailedHealth reports every component. A degraded service still answers 200.
func (h *HealthHandler) DetailedHealth(c *gin.Context) {
	health := h.healthService.CheckHealth(c.Request.Context())

	if health.Status == types.HealthStatusDown {
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}
	c.JSON(http.StatusOK, health)
}
