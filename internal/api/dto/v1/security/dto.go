// Package security holds the request shapes for the security admin endpoint.
package security

// Admin actions accepted by POST /api/admin/security.
const (
	ActionBan    = "ban"
	ActionUnban  = "unban"
	ActionStatus = "status"
	ActionCheck  = "check"
)

// ValidActions lists the accepted actions, returned verbatim on a bad request.
var ValidActions = []string{ActionBan, ActionUnban, ActionStatus, ActionCheck}

// ActionRequest is the body of POST /api/admin/security. IP is required for
// every action except "status".
type ActionRequest struct {
	Action string `json:"action" binding:"required"`
	IP     string `json:"ip"`
}
