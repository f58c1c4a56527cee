package tunnel

import (
	"sync/atomic"
	"time"
)

// SessionState tracks where a session is in its lifecycle.
type SessionState uint32

const (
	StateNew SessionState = iota
	StateHandshaking
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionStats is a point-in-time copy of one session's activity counters.
type SessionStats struct {
	BytesIn        uint64
	BytesOut       uint64
	RequestCount   uint64
	LastActivity   int64 // Unix timestamp
	ConnectedAt    int64
	HandshakeNanos int64
	TotalErrors    uint32
}

// stateTracker holds lifecycle state and activity counters for one session.
// Everything is atomic; it is touched from the session goroutine, dispatch
// callers and the sweeper.
type stateTracker struct {
	state uint32
	stats SessionStats
}

func newStateTracker() *stateTracker {
	return &stateTracker{
		stats: SessionStats{ConnectedAt: time.Now().Unix()},
	}
}

func (t *stateTracker) set(s SessionState) {
	atomic.StoreUint32(&t.state, uint32(s))
}

func (t *stateTracker) get() SessionState {
	return SessionState(atomic.LoadUint32(&t.state))
}

// cas transitions from -> to and reports whether it won the swap.
func (t *stateTracker) cas(from, to SessionState) bool {
	return atomic.CompareAndSwapUint32(&t.state, uint32(from), uint32(to))
}

func (t *stateTracker) addBytes(in, out uint64) {
	atomic.AddUint64(&t.stats.BytesIn, in)
	atomic.AddUint64(&t.stats.BytesOut, out)
	t.touch()
}

func (t *stateTracker) touch() {
	atomic.StoreInt64(&t.stats.LastActivity, time.Now().Unix())
}

func (t *stateTracker) incRequests() {
	atomic.AddUint64(&t.stats.RequestCount, 1)
}

func (t *stateTracker) incErrors() {
	atomic.AddUint32(&t.stats.TotalErrors, 1)
}

func (t *stateTracker) markHandshakeDone(d time.Duration) {
	atomic.StoreInt64(&t.stats.HandshakeNanos, d.Nanoseconds())
	t.touch()
}

// snapshot returns a consistent-enough copy for reporting.
func (t *stateTracker) snapshot() SessionStats {
	return SessionStats{
		BytesIn:        atomic.LoadUint64(&t.stats.BytesIn),
		BytesOut:       atomic.LoadUint64(&t.stats.BytesOut),
		RequestCount:   atomic.LoadUint64(&t.stats.RequestCount),
		LastActivity:   atomic.LoadInt64(&t.stats.LastActivity),
		ConnectedAt:    t.stats.ConnectedAt,
		HandshakeNanos: atomic.LoadInt64(&t.stats.HandshakeNanos),
		TotalErrors:    atomic.LoadUint32(&t.stats.TotalErrors),
	}
}
