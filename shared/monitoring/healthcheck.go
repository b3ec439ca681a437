package monitoring

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthServer struct {
	monitor *Monitor
}

func NewHealthServer(monitor *Monitor) *HealthServer {
	return &HealthServer{monitor: monitor}
}

// Register mounts /health and /status on the router
func (h *HealthServer) Register(r gin.IRoutes) {
	r.GET("/health", h.healthHandler)
	r.GET("/status", h.statusHandler)
}

func (h *HealthServer) healthHandler(c *gin.Context) {
	if h.monitor.IsHealthy() {
		c.String(http.StatusOK, "OK - %s", h.monitor.GetStatusSummary())
	} else {
		c.String(http.StatusServiceUnavailable, "Service unhealthy - %s", h.monitor.GetStatusSummary())
	}
}

func (h *HealthServer) statusHandler(c *gin.Context) {
	c.String(http.StatusOK, "%s", h.monitor.GetStatusSummary())
}
