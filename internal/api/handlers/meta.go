package handlers

import (
	"net/http"

	"github.com/burrowgate/burrowgate/internal/api/dto/common"
	"github.com/burrowgate/burrowgate/internal/version"

	"github.com/gin-gonic/gin"
)

// MetaHandler serves the index and version endpoints.
type MetaHandler struct{}

func NewMetaHandler() *MetaHandler {
	return &MetaHandler{}
}

// Index serves GET /: a short service description for anyone poking at the
// API port with a browser.
func (h *MetaHandler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "burrowgate",
		"message": "Reverse HTTP tunnel gateway. POST /api/forward to reach a connected agent.",
		"endpoints": gin.H{
			"forward":   "POST /api/forward",
			"health":    "GET /api/health",
			"perClient": "GET /api/health/{name}",
			"version":   "GET /api/version",
		},
		"timestamp": common.Timestamp(),
	})
}

// Version serves GET /api/version.
func (h *MetaHandler) Version(c *gin.Context) {
	info := version.GetBuildInfo()
	c.JSON(http.StatusOK, gin.H{
		"version":   info.Version,
		"buildTime": info.BuildTime,
		"gitCommit": info.GitCommit,
		"goVersion": info.GoVersion,
		"platform":  info.Platform,
		"timestamp": common.Timestamp(),
	})
}
