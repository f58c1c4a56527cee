package common

import "time"

// TimestampLayout is ISO-8601 local date-time, used for the timestamp field
// every JSON response carries.
const TimestampLayout = "2006-01-02T15:04:05"

// Timestamp returns the current local time in the response format.
func Timestamp() string {
	return time.Now().Format(TimestampLayout)
}

// ErrorResponse is the standard error payload: an error keyword, an optional
// human message, and a machine timestamp. Stack traces are never included.
type ErrorResponse struct {
	Error     string      `json:"error"`
	Message   string      `json:"message,omitempty"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// MessageResponse is the standard success payload for actions that return
// no data beyond an acknowledgement.
type MessageResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ValidationError represents a validation error detail
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// Standard error keywords
const (
	ErrUnauthorized       = "Unauthorized"
	ErrClientNotConnected = "Client not connected"
	ErrBadRequest         = "Bad request"
	ErrInternal           = "Internal server error"
)

// NewErrorResponse creates a new error payload
func NewErrorResponse(errKeyword, message string, details interface{}) ErrorResponse {
	return ErrorResponse{
		Error:     errKeyword,
		Message:   message,
		Details:   details,
		Timestamp: Timestamp(),
	}
}

// NewMessageResponse creates a new acknowledgement payload
func NewMessageResponse(message string) MessageResponse {
	return MessageResponse{
		Message:   message,
		Timestamp: Timestamp(),
	}
}
