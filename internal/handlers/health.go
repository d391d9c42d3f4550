package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"discord-issue-bot/internal/services"
)

// HealthHandler serves the liveness and status endpoints polled by the supervisor.
type HealthHandler struct {
	registry *services.Registry
	restart  *RestartSignal
	started  time.Time
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(registry *services.Registry, restart *RestartSignal) *HealthHandler {
	return &HealthHandler{
		registry: registry,
		restart:  restart,
		started:  time.Now(),
	}
}

// RegisterRoutes mounts the endpoints on a router.
func (h *HealthHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/health", h.Health)
	router.GET("/status", h.Status)
}

// Health reports that the process is serving.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Status reports registry counters and whether a restart is pending.
func (h *HealthHandler) Status(c *gin.Context) {
	stats := h.registry.Stats()
	c.JSON(http.StatusOK, gin.H{
		"servers":           stats.Servers,
		"open_threads":      stats.OpenThreads,
		"restart_requested": h.restart != nil && h.restart.Requested(),
		"uptime_seconds":    int64(time.Since(h.started).Seconds()),
	})
}
