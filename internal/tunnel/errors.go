package tunnel

import "errors"

// Domain errors surfaced by sessions and the registry. The HTTP layer maps
// these onto response codes.
var (
	// ErrNotRegistered means no session exists for the requested agent name.
	ErrNotRegistered = errors.New("agent not connected")

	// ErrDuplicateName means a second session tried to register a name that
	// is already in use while the duplicate policy is "reject".
	ErrDuplicateName = errors.New("agent name already registered")

	// ErrSessionClosed means the session was closed before the operation ran.
	ErrSessionClosed = errors.New("tunnel session closed")

	// ErrUnhealthy means the pre-dispatch health check failed. Callers that
	// see this should treat the session as gone.
	ErrUnhealthy = errors.New("tunnel connection unhealthy")

	// ErrDispatchTimeout means the agent did not answer within the dispatch
	// deadline. The session is flagged unhealthy but its socket stays open
	// until the next operation trips over the flag.
	ErrDispatchTimeout = errors.New("dispatch deadline exceeded")
)
