package controllers

import (
	"net/http"

	"go_jobs_backend/health"
	"go_jobs_backend/services"

	"github.com/gin-gonic/gin"
)

// HealthController exposes queue health to operators and automation
type HealthController struct {
	monitor *health.Monitor
	stream  *services.HealthStream
}

// NewHealthController creates a new health controller
func NewHealthController(monitor *health.Monitor, stream *services.HealthStream) *HealthController {
	return &HealthController{monitor: monitor, stream: stream}
}

// GetHealth returns a freshly computed health snapshot
// GET /api/v1/health
func (hc *HealthController) GetHealth(c *gin.Context) {
	snapshot, err := hc.monitor.GetHealthStatus()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute health status"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// LiveHealth upgrades to a WebSocket stream of health snapshots
// GET /api/v1/health/live
func (hc *HealthController) LiveHealth(c *gin.Context) {
	hc.stream.HandleWebSocket(c.Writer, c.Request)
}
