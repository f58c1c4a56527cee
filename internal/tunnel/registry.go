package tunnel

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/burrowgate/burrowgate/internal/logging"
	"github.com/burrowgate/burrowgate/internal/metrics"
	"github.com/burrowgate/burrowgate/internal/proto"
)

// SessionDetail is a point-in-time view of one registered session.
type SessionDetail struct {
	Name        string
	RemoteAddr  string
	ConnectedAt time.Time
	LastActive  time.Time
	Requests    uint64
	Uptime      string
}

// SweepResult summarizes one health sweep over the registry.
type SweepResult struct {
	Before  int
	Removed int
	After   int
}

// Registry maps agent names to their live tunnel sessions. At most one
// session holds a name at any time.
type Registry struct {
	mu               sync.RWMutex
	sessions         map[string]*Session
	rejectDuplicates bool

	logger  *logging.Logger
	metrics *metrics.Metrics
}

func NewRegistry(rejectDuplicates bool, logger *logging.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		sessions:         make(map[string]*Session),
		rejectDuplicates: rejectDuplicates,
		logger:           logger,
		metrics:          m,
	}
}

// Register inserts the session under its name. Under the evict policy the
// prior holder of the name is closed and returned; under the reject policy
// an in-use name fails with ErrDuplicateName and the registry is untouched.
func (r *Registry) Register(s *Session) (*Session, error) {
	r.mu.Lock()
	prior := r.sessions[s.Name()]
	if prior != nil && r.rejectDuplicates {
		r.mu.Unlock()
		return nil, ErrDuplicateName
	}
	r.sessions[s.Name()] = s
	r.mu.Unlock()

	if prior != nil {
		prior.Close("replaced by a new connection")
		r.metrics.SessionEvicted()
		return prior, nil
	}
	r.metrics.SessionRegistered()
	return nil, nil
}

// remove deletes the entry only while it still points at this exact session,
// so a session that was evicted cannot knock out its replacement.
func (r *Registry) remove(s *Session) bool {
	r.mu.Lock()
	current, ok := r.sessions[s.Name()]
	if !ok || current != s {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, s.Name())
	r.mu.Unlock()

	r.metrics.SessionRemoved()
	return true
}

// Lookup returns the session registered under name, or nil.
func (r *Registry) Lookup(name string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[name]
}

// Has reports whether an agent with this name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[name]
	return ok
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Names returns the registered agent names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Sessions returns a snapshot of the registered sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Details returns a per-agent view for health reporting, sorted by name.
func (r *Registry) Details() []SessionDetail {
	sessions := r.Sessions()
	details := make([]SessionDetail, 0, len(sessions))
	for _, s := range sessions {
		details = append(details, SessionDetail{
			Name:        s.Name(),
			RemoteAddr:  s.RemoteIP(),
			ConnectedAt: s.ConnectedAt(),
			LastActive:  s.LastActive(),
			Requests:    s.Requests(),
			Uptime:      s.Uptime(),
		})
	}
	sort.Slice(details, func(i, j int) bool { return details[i].Name < details[j].Name })
	return details
}

// ForwardToNamed looks up the target agent and dispatches the request. A
// session that fails its health check is dropped from the registry before
// the error is returned; other dispatch errors leave the entry to the
// session's own cleanup.
func (r *Registry) ForwardToNamed(req *proto.Request) (*proto.Response, error) {
	s := r.Lookup(req.ClientName)
	if s == nil {
		r.metrics.ForwardObserved("not_registered", 0)
		return nil, ErrNotRegistered
	}

	r.logger.Info("Forwarding %s %s to agent '%s'", req.Method, req.URL, req.ClientName)
	start := time.Now()
	resp, err := s.Dispatch(req)
	if err != nil {
		r.metrics.ForwardObserved(forwardOutcome(err), 0)
		if errors.Is(err, ErrUnhealthy) {
			if r.remove(s) {
				r.logger.Warn("Removed unhealthy agent '%s' after failed forward", req.ClientName)
			}
		}
		return nil, err
	}
	r.metrics.ForwardObserved("ok", time.Since(start).Seconds())
	return resp, nil
}

func forwardOutcome(err error) string {
	switch {
	case errors.Is(err, ErrDispatchTimeout):
		return "timeout"
	case errors.Is(err, ErrUnhealthy):
		return "unhealthy"
	case errors.Is(err, ErrSessionClosed):
		return "closed"
	default:
		return "error"
	}
}

// Sweep walks every registered session, drops the ones that fail the local
// socket check and heartbeat-probes the rest, removing probe failures.
// Probes queue behind in-flight forwards on each session's request mutex, so
// a sweep never yanks a session out from under a running dispatch.
func (r *Registry) Sweep() SweepResult {
	sessions := r.Sessions()
	result := SweepResult{Before: len(sessions)}

	for _, s := range sessions {
		if !s.SocketHealthy() {
			s.Close("failed socket health check")
			if r.remove(s) {
				result.Removed++
				r.logger.Warn("Swept agent '%s': socket no longer healthy", s.Name())
			}
			continue
		}
		if err := s.Heartbeat(); err != nil {
			s.Close("heartbeat probe failed")
			if r.remove(s) {
				result.Removed++
				r.logger.Warn("Swept agent '%s': heartbeat failed: %v", s.Name(), err)
			}
		}
	}

	result.After = r.Count()
	if result.Removed > 0 {
		r.metrics.SweepRemoved(result.Removed)
	}
	return result
}

// CloseAll closes every registered session, for gateway shutdown.
func (r *Registry) CloseAll(reason string) {
	for _, s := range r.Sessions() {
		s.Close(reason)
	}
}
