// Package connlog keeps a bounded in-memory log of agent connect and
// disconnect events for the admin API. Oldest entries fall off when the
// ring is full; nothing is persisted.
package connlog

import (
	"fmt"
	"sync"
	"time"

	"github.com/burrowgate/burrowgate/internal/logging"
)

// Event classifies a log entry.
type Event string

const (
	EventConnect    Event = "CONNECT"
	EventDisconnect Event = "DISCONNECT"
)

const timestampLayout = "2006-01-02T15:04:05.000"

// Entry is one connection event.
type Entry struct {
	Event      Event  `json:"event"`
	Timestamp  string `json:"timestamp"`
	ClientName string `json:"clientName"`
	ClientIP   string `json:"clientIP"`
	Reason     string `json:"reason,omitempty"`
	Message    string `json:"message"`
}

// Stats aggregates the current ring contents. Always computed by scanning
// the snapshot, never maintained incrementally.
type Stats struct {
	TotalConnections    int `json:"totalConnections"`
	TotalDisconnections int `json:"totalDisconnections"`
	UniqueClients       int `json:"uniqueClients"`
	TotalLogEntries     int `json:"totalLogEntries"`
	MaxLogEntries       int `json:"maxLogEntries"`
}

// Log is the bounded connection event ring.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	max     int
	logger  *logging.Logger
}

// NewLog creates an empty ring holding at most max entries.
func NewLog(max int) *Log {
	if max <= 0 {
		max = 1000
	}
	return &Log{
		max:    max,
		logger: logging.GetGlobalLogger(),
	}
}

// LogConnect records a successful agent registration.
func (l *Log) LogConnect(name, ip string) {
	entry := Entry{
		Event:      EventConnect,
		Timestamp:  time.Now().Format(timestampLayout),
		ClientName: name,
		ClientIP:   ip,
		Message:    fmt.Sprintf("Client '%s' connected from %s", name, ip),
	}
	l.append(entry)
	l.logger.Info("CONNECTION_LOG: %s", entry.Message)
}

// LogDisconnect records an agent disconnect. Disconnects without a client
// name (the handshake never completed) are dropped silently so port
// scanners and probes do not flood the ring.
func (l *Log) LogDisconnect(name, ip, reason string) {
	if name == "" {
		return
	}

	entry := Entry{
		Event:      EventDisconnect,
		Timestamp:  time.Now().Format(timestampLayout),
		ClientName: name,
		ClientIP:   ip,
		Message:    fmt.Sprintf("Client '%s' disconnected from %s", name, ip),
	}
	if reason != "" {
		entry.Reason = reason
		entry.Message += " - Reason: " + reason
	}
	l.append(entry)
	l.logger.Info("CONNECTION_LOG: %s", entry.Message)
}

// All returns a copy of every entry, oldest first.
func (l *Log) All() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// ByEvent returns the entries matching one event type, oldest first.
func (l *Log) ByEvent(event Event) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// ByClient returns the entries for one client name, oldest first.
func (l *Log) ByClient(name string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.ClientName == name {
			out = append(out, e)
		}
	}
	return out
}

// Stats scans the current contents and aggregates totals.
func (l *Log) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		TotalLogEntries: len(l.entries),
		MaxLogEntries:   l.max,
	}

	names := make(map[string]struct{})
	for _, e := range l.entries {
		switch e.Event {
		case EventConnect:
			stats.TotalConnections++
		case EventDisconnect:
			stats.TotalDisconnections++
		}
		if e.ClientName != "" {
			names[e.ClientName] = struct{}{}
		}
	}
	stats.UniqueClients = len(names)
	return stats
}

// Clear empties the ring.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
	l.logger.Info("CONNECTION_LOG: All connection logs cleared")
}

func (l *Log) append(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}
