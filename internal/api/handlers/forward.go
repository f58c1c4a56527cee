package handlers

import (
	"errors"
	"net/http"

	"github.com/burrowgate/burrowgate/internal/api/dto/common"
	forwarddto "github.com/burrowgate/burrowgate/internal/api/dto/v1/forward"
	"github.com/burrowgate/burrowgate/internal/api/validation"
	"github.com/burrowgate/burrowgate/internal/proto"
	"github.com/burrowgate/burrowgate/internal/tunnel"
	"github.com/burrowgate/burrowgate/internal/utils"

	"github.com/gin-gonic/gin"
)

// ForwardHandler serves POST /api/forward: it hands the request to the named
// agent's tunnel and relays whatever comes back.
type ForwardHandler struct {
	registry *tunnel.Registry
}

func NewForwardHandler(registry *tunnel.Registry) *ForwardHandler {
	return &ForwardHandler{registry: registry}
}

// Forward dispatches one HTTP exchange through an agent tunnel. When the
// agent's reply carries the header/body envelope it is unpacked into a real
// HTTP response; anything else is relayed verbatim. A caller that hangs up
// early does not cancel the dispatch: the response is simply discarded, so
// the tunnel stream stays in sync.
func (h *ForwardHandler) Forward(c *gin.Context) {
	var body forwarddto.Request
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(
			common.ErrBadRequest, "Invalid forward request", validation.FormatError(err)))
		return
	}

	resp, err := h.registry.ForwardToNamed(&proto.Request{
		ClientName: body.ClientName,
		Method:     body.Method,
		URL:        body.URL,
		Body:       body.Body,
	})
	if err != nil {
		h.writeForwardError(c, body.ClientName, err)
		return
	}

	if headers, raw, ok := proto.DecodeEnvelope(resp.Body); ok {
		contentType := headers.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		for key, values := range headers {
			if key == "Content-Type" || key == "Content-Length" {
				continue
			}
			for _, v := range values {
				c.Writer.Header().Add(key, v)
			}
		}
		c.Data(resp.Status, contentType, raw)
		return
	}

	c.Data(resp.Status, "text/plain; charset=utf-8", []byte(resp.Body))
}

func (h *ForwardHandler) writeForwardError(c *gin.Context, clientName string, err error) {
	switch {
	case errors.Is(err, tunnel.ErrNotRegistered):
		c.JSON(http.StatusNotFound, gin.H{
			"error":      common.ErrClientNotConnected,
			"clientName": clientName,
			"timestamp":  common.Timestamp(),
		})
	case errors.Is(err, tunnel.ErrDispatchTimeout):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Dispatch timeout",
			"message":    "The agent did not answer within the dispatch deadline",
			"clientName": clientName,
			"timestamp":  common.Timestamp(),
		})
	case errors.Is(err, tunnel.ErrUnhealthy), errors.Is(err, tunnel.ErrSessionClosed):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Connection unhealthy",
			"message":    "The agent connection failed its health check and was removed",
			"clientName": clientName,
			"timestamp":  common.Timestamp(),
		})
	default:
		utils.HandleAPIError(c, err, http.StatusInternalServerError,
			common.ErrInternal, "Forwarding to agent '"+clientName+"' failed")
	}
}
