// Package security tracks suspicious tunnel activity per source IP and
// decides when an IP gets banned. All state is in memory; nothing survives
// a restart.
package security

import (
	"sort"
	"sync"
	"time"

	"github.com/burrowgate/burrowgate/internal/logging"
)

// Suspicious activity kinds accepted by RecordSuspicious.
const (
	KindAuthFailed            = "AUTH_FAILED"
	KindInvalidProtocol       = "INVALID_PROTOCOL"
	KindStreamCorruption      = "STREAM_CORRUPTION"
	KindVersionMismatch       = "CLASS_VERSION_MISMATCH"
	KindUnexpectedTermination = "UNEXPECTED_TERMINATION"
)

// timeNow is swapped out in tests.
var timeNow = time.Now

// Thresholds configures the auto-ban policy.
type Thresholds struct {
	// MaxAttempts is the auto-ban threshold for non-auth kinds.
	MaxAttempts int
	// AuthTolerance is the (higher) auto-ban threshold for AUTH_FAILED,
	// so an operator fumbling a token rollout does not ban a whole site.
	AuthTolerance int
	// Window is how close together attempts must be to trip the threshold.
	Window time.Duration
	// Permanent bans unconditionally once the counter reaches it.
	Permanent int
	// Grace suppresses auto-bans this long after an admin unban.
	Grace time.Duration
	// GC drops tracking entries idle longer than this.
	GC time.Duration
}

// Ledger is the per-IP suspicious activity ledger. Banned IPs are rejected
// at accept time before any bytes are exchanged.
type Ledger struct {
	mu         sync.RWMutex
	thresholds Thresholds

	bannedIPs          map[string]struct{}
	attempts           map[string]int
	firstAttemptAt     map[string]time.Time
	lastAttemptAt      map[string]time.Time
	recentlyUnbannedAt map[string]time.Time

	logger *logging.Logger
}

// NewLedger creates an empty ledger with the given thresholds.
func NewLedger(t Thresholds) *Ledger {
	return &Ledger{
		thresholds:         t,
		bannedIPs:          make(map[string]struct{}),
		attempts:           make(map[string]int),
		firstAttemptAt:     make(map[string]time.Time),
		lastAttemptAt:      make(map[string]time.Time),
		recentlyUnbannedAt: make(map[string]time.Time),
		logger:             logging.GetGlobalLogger(),
	}
}

// IsBanned reports whether ip is currently banned.
func (l *Ledger) IsBanned(ip string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, banned := l.bannedIPs[ip]
	return banned
}

// RecordSuspicious counts one suspicious event from ip and applies the
// auto-ban policy. Events from an IP inside its post-unban grace window are
// ignored entirely. Stale tracking entries are swept opportunistically.
func (l *Ledger) RecordSuspicious(ip, kind string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := timeNow()
	l.sweepLocked(now)

	if at, ok := l.recentlyUnbannedAt[ip]; ok && now.Sub(at) <= l.thresholds.Grace {
		remaining := l.thresholds.Grace - now.Sub(at)
		l.logger.Debug("Security: ignoring %s from recently unbanned IP %s (%s of grace left)", kind, ip, remaining.Round(time.Second))
		return
	}

	l.attempts[ip]++
	if _, ok := l.firstAttemptAt[ip]; !ok {
		l.firstAttemptAt[ip] = now
	}
	l.lastAttemptAt[ip] = now

	n := l.attempts[ip]
	threshold := l.thresholds.MaxAttempts
	if kind == KindAuthFailed {
		threshold = l.thresholds.AuthTolerance
	}

	sinceFirst := now.Sub(l.firstAttemptAt[ip])
	if (n >= threshold && sinceFirst <= l.thresholds.Window) || n >= l.thresholds.Permanent {
		if _, already := l.bannedIPs[ip]; !already {
			l.bannedIPs[ip] = struct{}{}
			l.logger.Warn("Security: auto-banned %s after %d suspicious events (last: %s)", ip, n, kind)
		}
		return
	}

	l.logger.Info("Security: recorded %s from %s (%d within %s, threshold %d)", kind, ip, n, sinceFirst.Round(time.Second), threshold)
}

// Ban adds ip to the ban set immediately. Admin action; it overrides any
// grace window.
func (l *Ledger) Ban(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.bannedIPs[ip] = struct{}{}
	delete(l.recentlyUnbannedAt, ip)
	l.logger.Warn("Security: banned %s by admin request", ip)
}

// Unban removes ip from the ban set, clears its tracking entries, and opens
// a grace window during which the IP cannot be auto-banned. The return
// value reports whether the IP was actually in the ban set.
func (l *Ledger) Unban(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, wasBanned := l.bannedIPs[ip]
	delete(l.bannedIPs, ip)
	delete(l.attempts, ip)
	delete(l.firstAttemptAt, ip)
	delete(l.lastAttemptAt, ip)
	l.recentlyUnbannedAt[ip] = timeNow()

	if wasBanned {
		l.logger.Info("Security: unbanned %s (grace window %s)", ip, l.thresholds.Grace)
	}
	return wasBanned
}

// AutoBanStatus describes where one IP stands against the auto-ban policy.
type AutoBanStatus struct {
	IP             string
	Banned         bool
	InGrace        bool
	GraceRemaining time.Duration
	Attempts       int
	FirstAttempt   time.Time
	LastAttempt    time.Time
	WouldAutoBan   bool
	Reason         string
}

// CheckAutoBanStatus is a pure diagnostic read; it never mutates the ledger.
// WouldAutoBan reports whether one more non-auth suspicious event would trip
// the policy.
func (l *Ledger) CheckAutoBanStatus(ip string) AutoBanStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := timeNow()
	status := AutoBanStatus{
		IP:           ip,
		Attempts:     l.attempts[ip],
		FirstAttempt: l.firstAttemptAt[ip],
		LastAttempt:  l.lastAttemptAt[ip],
	}

	if _, banned := l.bannedIPs[ip]; banned {
		status.Banned = true
		status.Reason = "already banned"
		return status
	}

	if at, ok := l.recentlyUnbannedAt[ip]; ok && now.Sub(at) <= l.thresholds.Grace {
		status.InGrace = true
		status.GraceRemaining = l.thresholds.Grace - now.Sub(at)
		status.Reason = "in post-unban grace window"
		return status
	}

	if status.Attempts == 0 {
		status.Reason = "no suspicious activity recorded"
		return status
	}

	next := status.Attempts + 1
	withinWindow := now.Sub(status.FirstAttempt) <= l.thresholds.Window
	switch {
	case next >= l.thresholds.Permanent:
		status.WouldAutoBan = true
		status.Reason = "next event reaches permanent threshold"
	case next >= l.thresholds.MaxAttempts && withinWindow:
		status.WouldAutoBan = true
		status.Reason = "next event reaches threshold within window"
	case withinWindow:
		status.Reason = "below threshold"
	default:
		status.Reason = "attempt window expired"
	}
	return status
}

// TrackedIP is one row of the security status snapshot.
type TrackedIP struct {
	IP           string
	Attempts     int
	FirstAttempt time.Time
	LastAttempt  time.Time
}

// Snapshot is the full ledger state for the security status endpoint.
type Snapshot struct {
	BannedIPs  []string
	Tracked    []TrackedIP
	Graced     map[string]time.Time
	Thresholds Thresholds
}

// Snapshot returns a copy of the ledger state, sorted for stable output.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := Snapshot{
		BannedIPs:  make([]string, 0, len(l.bannedIPs)),
		Tracked:    make([]TrackedIP, 0, len(l.attempts)),
		Graced:     make(map[string]time.Time, len(l.recentlyUnbannedAt)),
		Thresholds: l.thresholds,
	}

	for ip := range l.bannedIPs {
		snap.BannedIPs = append(snap.BannedIPs, ip)
	}
	sort.Strings(snap.BannedIPs)

	for ip, n := range l.attempts {
		snap.Tracked = append(snap.Tracked, TrackedIP{
			IP:           ip,
			Attempts:     n,
			FirstAttempt: l.firstAttemptAt[ip],
			LastAttempt:  l.lastAttemptAt[ip],
		})
	}
	sort.Slice(snap.Tracked, func(i, j int) bool { return snap.Tracked[i].IP < snap.Tracked[j].IP })

	for ip, at := range l.recentlyUnbannedAt {
		snap.Graced[ip] = at
	}

	return snap
}

// sweepLocked drops tracking entries idle past GC and grace entries past
// their window. Caller holds the write lock.
func (l *Ledger) sweepLocked(now time.Time) {
	for ip, last := range l.lastAttemptAt {
		if now.Sub(last) > l.thresholds.GC {
			delete(l.attempts, ip)
			delete(l.firstAttemptAt, ip)
			delete(l.lastAttemptAt, ip)
		}
	}
	for ip, at := range l.recentlyUnbannedAt {
		if now.Sub(at) > l.thresholds.Grace {
			delete(l.recentlyUnbannedAt, ip)
		}
	}
}
