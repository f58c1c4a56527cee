// Package forward holds the request shape for the forward endpoint.
package forward

// Request is the body of POST /api/forward: which agent to reach and the
// HTTP exchange it should perform on its local network.
type Request struct {
	ClientName string `json:"clientName" binding:"required,agentname"`
	Method     string `json:"method" binding:"required,httpverb"`
	URL        string `json:"url" binding:"required"`
	Body       string `json:"body"`
}
