package handlers

import (
	"net/http"

	"github.com/burrowgate/burrowgate/internal/api/dto/common"
	securitydto "github.com/burrowgate/burrowgate/internal/api/dto/v1/security"
	"github.com/burrowgate/burrowgate/internal/api/validation"
	"github.com/burrowgate/burrowgate/internal/security"

	"github.com/gin-gonic/gin"
)

// SecurityHandler exposes the ban ledger to the admin API.
type SecurityHandler struct {
	ledger *security.Ledger
}

func NewSecurityHandler(ledger *security.Ledger) *SecurityHandler {
	return &SecurityHandler{ledger: ledger}
}

// Status serves GET /api/security-status: the full ledger snapshot plus the
// thresholds it operates under.
func (h *SecurityHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.statusPayload())
}

// Action serves POST /api/admin/security. Supported actions: ban, unban,
// status, check.
func (h *SecurityHandler) Action(c *gin.Context) {
	var body securitydto.ActionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(
			common.ErrBadRequest, "Invalid security action request", validation.FormatError(err)))
		return
	}

	if body.Action != securitydto.ActionStatus && body.IP == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     common.ErrBadRequest,
			"message":   "Action '" + body.Action + "' requires an ip",
			"timestamp": common.Timestamp(),
		})
		return
	}

	switch body.Action {
	case securitydto.ActionBan:
		h.ledger.Ban(body.IP)
		c.JSON(http.StatusOK, gin.H{
			"message":   "IP " + body.IP + " banned",
			"ip":        body.IP,
			"timestamp": common.Timestamp(),
		})

	case securitydto.ActionUnban:
		wasBanned := h.ledger.Unban(body.IP)
		c.JSON(http.StatusOK, gin.H{
			"message":           "IP " + body.IP + " unbanned",
			"ip":                body.IP,
			"wasActuallyBanned": wasBanned,
			"timestamp":         common.Timestamp(),
		})

	case securitydto.ActionStatus:
		c.JSON(http.StatusOK, h.statusPayload())

	case securitydto.ActionCheck:
		status := h.ledger.CheckAutoBanStatus(body.IP)
		payload := gin.H{
			"ip":           status.IP,
			"banned":       status.Banned,
			"inGrace":      status.InGrace,
			"attempts":     status.Attempts,
			"wouldAutoBan": status.WouldAutoBan,
			"reason":       status.Reason,
			"timestamp":    common.Timestamp(),
		}
		if status.InGrace {
			payload["graceRemaining"] = status.GraceRemaining.String()
		}
		if !status.FirstAttempt.IsZero() {
			payload["firstAttempt"] = status.FirstAttempt.Format(common.TimestampLayout)
			payload["lastAttempt"] = status.LastAttempt.Format(common.TimestampLayout)
		}
		c.JSON(http.StatusOK, payload)

	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":        common.ErrBadRequest,
			"message":      "Unknown action '" + body.Action + "'",
			"validActions": securitydto.ValidActions,
			"timestamp":    common.Timestamp(),
		})
	}
}

func (h *SecurityHandler) statusPayload() gin.H {
	snap := h.ledger.Snapshot()

	tracked := make([]gin.H, 0, len(snap.Tracked))
	for _, t := range snap.Tracked {
		tracked = append(tracked, gin.H{
			"ip":           t.IP,
			"attempts":     t.Attempts,
			"firstAttempt": t.FirstAttempt.Format(common.TimestampLayout),
			"lastAttempt":  t.LastAttempt.Format(common.TimestampLayout),
		})
	}

	graced := make(map[string]string, len(snap.Graced))
	for ip, at := range snap.Graced {
		graced[ip] = at.Format(common.TimestampLayout)
	}

	return gin.H{
		"bannedIPs":  snap.BannedIPs,
		"trackedIPs": tracked,
		"gracedIPs":  graced,
		"thresholds": gin.H{
			"maxAttempts":   snap.Thresholds.MaxAttempts,
			"authTolerance": snap.Thresholds.AuthTolerance,
			"window":        snap.Thresholds.Window.String(),
			"permanent":     snap.Thresholds.Permanent,
			"grace":         snap.Thresholds.Grace.String(),
			"gc":            snap.Thresholds.GC.String(),
		},
		"timestamp": common.Timestamp(),
	}
}
