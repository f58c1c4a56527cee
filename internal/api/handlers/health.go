package handlers

import (
	"net/http"
	"time"

	"github.com/burrowgate/burrowgate/internal/api/dto/common"
	"github.com/burrowgate/burrowgate/internal/tunnel"
	"github.com/burrowgate/burrowgate/internal/utils"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports gateway and per-agent connectivity. Both endpoints
// are unauthenticated: monitoring systems poll them.
type HealthHandler struct {
	registry  *tunnel.Registry
	startedAt time.Time
}

func NewHealthHandler(registry *tunnel.Registry, startedAt time.Time) *HealthHandler {
	return &HealthHandler{registry: registry, startedAt: startedAt}
}

type clientDetail struct {
	Name        string `json:"name"`
	ConnectedAt string `json:"connectedAt"`
	Uptime      string `json:"uptime"`
	Connected   bool   `json:"connected"`
}

// Check serves GET /api/health. The gateway counts as healthy when at least
// one agent is registered; an empty registry answers 503 so load balancers
// stop routing forwards at it.
func (h *HealthHandler) Check(c *gin.Context) {
	details := h.registry.Details()

	clients := make([]clientDetail, 0, len(details))
	names := make([]string, 0, len(details))
	for _, d := range details {
		names = append(names, d.Name)
		clients = append(clients, clientDetail{
			Name:        d.Name,
			ConnectedAt: d.ConnectedAt.Format(common.TimestampLayout),
			Uptime:      d.Uptime,
			Connected:   true,
		})
	}

	status := "healthy"
	code := http.StatusOK
	if len(details) == 0 {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":               status,
		"connectedClients":     len(details),
		"connectedClientNames": names,
		"clientDetails":        clients,
		"uptime":               utils.FormatUptime(time.Since(h.startedAt)),
		"timestamp":            common.Timestamp(),
	})
}

// CheckClient serves GET /api/health/:name for one agent. Healthy means the
// session exists and passes the local socket check; no probe is sent.
func (h *HealthHandler) CheckClient(c *gin.Context) {
	name := c.Param("name")

	s := h.registry.Lookup(name)
	if s == nil || !s.SocketHealthy() {
		c.JSON(http.StatusNotFound, gin.H{
			"status":     "disconnected",
			"connected":  false,
			"clientName": name,
			"timestamp":  common.Timestamp(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"connected":   true,
		"clientName":  name,
		"connectedAt": s.ConnectedAt().Format(common.TimestampLayout),
		"uptime":      s.Uptime(),
		"timestamp":   common.Timestamp(),
	})
}
