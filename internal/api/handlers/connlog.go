package handlers

import (
	"net/http"
	"strconv"

	"github.com/burrowgate/burrowgate/internal/api/dto/common"
	"github.com/burrowgate/burrowgate/internal/connlog"

	"github.com/gin-gonic/gin"
)

// ConnLogHandler exposes the connection event ring to the admin API.
type ConnLogHandler struct {
	log *connlog.Log
}

func NewConnLogHandler(log *connlog.Log) *ConnLogHandler {
	return &ConnLogHandler{log: log}
}

// List serves GET /api/admin/connection-logs. Query parameters: eventType
// (CONNECT or DISCONNECT), clientName, limit (most recent N after filtering).
func (h *ConnLogHandler) List(c *gin.Context) {
	eventType := c.Query("eventType")
	clientName := c.Query("clientName")
	limitParam := c.Query("limit")

	var entries []connlog.Entry
	switch {
	case eventType != "":
		event := connlog.Event(eventType)
		if event != connlog.EventConnect && event != connlog.EventDisconnect {
			c.JSON(http.StatusBadRequest, common.NewErrorResponse(
				common.ErrBadRequest,
				"eventType must be CONNECT or DISCONNECT",
				nil))
			return
		}
		entries = h.log.ByEvent(event)
	case clientName != "":
		entries = h.log.ByClient(clientName)
	default:
		entries = h.log.All()
	}

	// Both filters given: narrow the event slice by name.
	if eventType != "" && clientName != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.ClientName == clientName {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	if limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, common.NewErrorResponse(
				common.ErrBadRequest, "limit must be a non-negative integer", nil))
			return
		}
		if limit < len(entries) {
			entries = entries[len(entries)-limit:]
		}
	}

	if entries == nil {
		entries = []connlog.Entry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":       entries,
		"count":      len(entries),
		"statistics": h.log.Stats(),
		"timestamp":  common.Timestamp(),
	})
}

// Clear serves POST /api/admin/connection-logs/clear.
func (h *ConnLogHandler) Clear(c *gin.Context) {
	h.log.Clear()
	c.JSON(http.StatusOK, common.NewMessageResponse("Connection logs cleared"))
}
