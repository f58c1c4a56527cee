package handlers

import (
	"net/http"

	"github.com/burrowgate/burrowgate/internal/api/dto/common"
	"github.com/burrowgate/burrowgate/internal/tunnel"

	"github.com/gin-gonic/gin"
)

// MaintenanceHandler runs registry maintenance on demand.
type MaintenanceHandler struct {
	registry *tunnel.Registry
}

func NewMaintenanceHandler(registry *tunnel.Registry) *MaintenanceHandler {
	return &MaintenanceHandler{registry: registry}
}

// Cleanup serves POST /api/cleanup-connections: a synchronous health sweep.
// Heartbeat probes queue behind in-flight forwards, so this can take up to a
// dispatch deadline per stuck agent.
func (h *MaintenanceHandler) Cleanup(c *gin.Context) {
	result := h.registry.Sweep()

	c.JSON(http.StatusOK, gin.H{
		"message":           "Connection cleanup completed",
		"connectionsBefore": result.Before,
		"removed":           result.Removed,
		"connectionsAfter":  result.After,
		"timestamp":         common.Timestamp(),
	})
}
