package tunnel

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/burrowgate/burrowgate/internal/connlog"
	"github.com/burrowgate/burrowgate/internal/logging"
	"github.com/burrowgate/burrowgate/internal/metrics"
	"github.com/burrowgate/burrowgate/internal/proto"
	"github.com/burrowgate/burrowgate/internal/security"
	"github.com/burrowgate/burrowgate/internal/utils"
)

// probeWriteTimeout bounds the courtesy reply sent to HTTP clients that hit
// the tunnel port.
const probeWriteTimeout = 5 * time.Second

// Session owns one agent socket from accept to close. All request writes and
// their paired response reads happen under requestMu, so at most one request
// is in flight per agent at any instant. There is no separate reader
// goroutine: the caller that wrote the request reads its response.
type Session struct {
	conn net.Conn
	br   *bufio.Reader
	cfg  Config

	registry *Registry
	ledger   *security.Ledger
	connLog  *connlog.Log
	metrics  *metrics.Metrics
	logger   *logging.Logger

	name        string
	remoteIP    string
	connectedAt time.Time

	requestMu sync.Mutex
	state     *stateTracker

	mu     sync.Mutex
	reason string

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn net.Conn, cfg Config, deps Deps) *Session {
	return &Session{
		conn:        conn,
		br:          bufio.NewReader(conn),
		cfg:         cfg,
		registry:    deps.Registry,
		ledger:      deps.Ledger,
		connLog:     deps.ConnLog,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		remoteIP:    remoteIP(conn),
		connectedAt: time.Now(),
		state:       newStateTracker(),
		done:        make(chan struct{}),
	}
}

// Run drives the handshake and then parks until the session is closed. It
// is the only goroutine that touches the socket outside of a dispatch.
func (s *Session) Run() {
	defer s.cleanup()

	s.state.set(StateHandshaking)
	if err := s.handshake(); err != nil {
		s.logger.Debug("Tunnel handshake from %s did not complete: %v", s.remoteIP, err)
		return
	}

	<-s.done
}

// handshake reads the token frame, answers it, reads the name frame and
// registers the session. Suspicious activity is reported to the ledger at
// the exact point it is detected; plain disconnects from scanners are not.
func (s *Session) handshake() error {
	start := time.Now()
	if err := s.conn.SetReadDeadline(start.Add(s.cfg.HandshakeTimeout)); err != nil {
		return fmt.Errorf("handshake deadline: %w", err)
	}

	// Browsers and curl end up here when someone mixes up the ports. Sniff
	// the first bytes before the codec chokes on them so we can answer with
	// a readable hint instead of silence.
	head, err := s.br.Peek(4)
	if len(head) > 0 && isHTTPGreeting(head) {
		s.rejectHTTPProbe()
		s.recordSuspicious(security.KindInvalidProtocol)
		s.metrics.HandshakeResult("invalid_protocol")
		s.setReason("http request on tunnel port")
		return fmt.Errorf("http request on tunnel port from %s", s.remoteIP)
	}
	if err != nil {
		s.metrics.HandshakeResult("io_error")
		return fmt.Errorf("greeting read: %w", err)
	}

	token, err := proto.ReadString(s.br)
	if err != nil {
		return s.handshakeReadError("token", err, false)
	}
	if token != s.cfg.AuthToken {
		_ = proto.WriteString(s.conn, proto.AuthFailed)
		s.recordSuspicious(security.KindAuthFailed)
		s.metrics.HandshakeResult("auth_failed")
		s.setReason("authentication failed")
		s.logger.Warn("Tunnel authentication failed from %s", s.remoteIP)
		return errors.New("token mismatch")
	}
	if err := proto.WriteString(s.conn, proto.AuthSuccess); err != nil {
		s.recordSuspicious(security.KindUnexpectedTermination)
		s.metrics.HandshakeResult("terminated")
		return fmt.Errorf("auth reply write: %w", err)
	}

	rawName, err := proto.ReadString(s.br)
	if err != nil {
		return s.handshakeReadError("name", err, true)
	}
	name := strings.TrimSpace(rawName)
	if name == "" {
		s.recordSuspicious(security.KindInvalidProtocol)
		s.metrics.HandshakeResult("invalid_protocol")
		s.setReason("empty agent name")
		return errors.New("empty agent name")
	}

	// Handshake reads are done; from here the socket only sees dispatch
	// deadlines.
	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		return fmt.Errorf("clear handshake deadline: %w", err)
	}

	s.name = name
	s.state.markHandshakeDone(time.Since(start))
	s.state.set(StateActive)

	prior, err := s.registry.Register(s)
	if err != nil {
		s.metrics.HandshakeResult("duplicate_rejected")
		s.setReason("duplicate agent name rejected")
		s.logger.Warn("Rejected duplicate agent name '%s' from %s", name, s.remoteIP)
		return err
	}
	if prior != nil {
		s.logger.Info("Agent '%s' reconnected, replacing session from %s", name, prior.RemoteIP())
	}

	s.connLog.LogConnect(name, s.remoteIP)
	s.metrics.HandshakeResult("registered")
	s.logger.Info("Agent '%s' registered from %s", name, s.remoteIP)
	return nil
}

// handshakeReadError classifies a failed handshake read. Malformed frames
// and version mismatches are always suspicious. Bare IO errors are only
// suspicious once the peer has proven it speaks the protocol: a torn frame,
// or any error after the token was accepted.
func (s *Session) handshakeReadError(phase string, err error, authed bool) error {
	switch {
	case errors.Is(err, proto.ErrVersionMismatch):
		s.recordSuspicious(security.KindVersionMismatch)
		s.metrics.HandshakeResult("version_mismatch")
		s.setReason("protocol version mismatch")
	case errors.Is(err, proto.ErrFrameCorrupt), errors.Is(err, proto.ErrFrameTooLarge):
		s.recordSuspicious(security.KindInvalidProtocol)
		s.metrics.HandshakeResult("invalid_protocol")
		s.setReason("malformed handshake frame")
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.recordSuspicious(security.KindUnexpectedTermination)
		s.metrics.HandshakeResult("terminated")
		s.setReason("connection dropped mid-frame")
	default:
		if authed {
			s.recordSuspicious(security.KindUnexpectedTermination)
			s.metrics.HandshakeResult("terminated")
			s.setReason("connection dropped after authentication")
		} else {
			s.metrics.HandshakeResult("io_error")
		}
	}
	return fmt.Errorf("%s read: %w", phase, err)
}

// Dispatch sends the request down the tunnel and waits for its response.
func (s *Session) Dispatch(req *proto.Request) (*proto.Response, error) {
	resp, err := s.dispatch(req, s.cfg.DispatchTimeout)
	if err != nil {
		return nil, err
	}
	s.state.incRequests()
	return resp, nil
}

// Heartbeat probes the agent with the reserved HEARTBEAT request. Anything
// other than a prompt heartbeat_ok counts as a failure.
func (s *Session) Heartbeat() error {
	req := &proto.Request{
		ClientName: s.name,
		Method:     proto.MethodHeartbeat,
		URL:        proto.HeartbeatURL,
	}
	resp, err := s.dispatch(req, s.cfg.HeartbeatTimeout)
	if err != nil {
		s.metrics.HeartbeatResult("failed")
		return err
	}
	if resp.Body != proto.HeartbeatOK {
		s.metrics.HeartbeatResult("failed")
		s.Close("unexpected heartbeat reply")
		return fmt.Errorf("heartbeat reply %q: %w", resp.Body, ErrUnhealthy)
	}
	s.metrics.HeartbeatResult("ok")
	return nil
}

func (s *Session) dispatch(req *proto.Request, timeout time.Duration) (*proto.Response, error) {
	s.requestMu.Lock()
	defer s.requestMu.Unlock()

	if s.state.get() == StateClosed {
		return nil, ErrSessionClosed
	}
	if !s.SocketHealthy() {
		s.Close("unhealthy connection detected")
		return nil, ErrUnhealthy
	}

	if err := s.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		s.Close("socket rejected deadline")
		return nil, ErrUnhealthy
	}
	if err := proto.WriteRequest(s.conn, req); err != nil {
		return nil, s.dispatchFailure("request write", err)
	}
	resp, err := proto.ReadResponse(s.br)
	if err != nil {
		return nil, s.dispatchFailure("response read", err)
	}
	_ = s.conn.SetDeadline(time.Time{})

	s.state.addBytes(uint64(len(resp.Body)), uint64(len(req.Body)))
	return resp, nil
}

// dispatchFailure maps a mid-dispatch error onto the domain error model. A
// deadline hit flags the session unhealthy but leaves the socket open; any
// other failure closes it on the spot.
func (s *Session) dispatchFailure(phase string, err error) error {
	s.state.incErrors()

	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		s.markUnhealthy("dispatch deadline exceeded")
		s.logger.Warn("Dispatch to agent '%s' timed out during %s", s.name, phase)
		return ErrDispatchTimeout
	case errors.Is(err, proto.ErrVersionMismatch):
		s.recordSuspicious(security.KindVersionMismatch)
		s.Close("protocol version mismatch")
		return fmt.Errorf("dispatch %s: %w", phase, err)
	case errors.Is(err, proto.ErrFrameCorrupt), errors.Is(err, proto.ErrFrameTooLarge):
		s.recordSuspicious(security.KindStreamCorruption)
		s.Close("corrupted response stream")
		return fmt.Errorf("dispatch %s: %w", phase, err)
	default:
		// EOF, reset, broken pipe: the peer is gone. Not suspicious.
		s.Close("connection lost")
		return fmt.Errorf("dispatch %s: %w", phase, err)
	}
}

// SocketHealthy reports whether the session can accept a dispatch. The check
// is purely local: lifecycle state plus socket accessibility. It never does
// I/O on the connection, so it cannot corrupt the framed stream.
func (s *Session) SocketHealthy() bool {
	if s.state.get() != StateActive {
		return false
	}
	if s.conn == nil {
		return false
	}
	if sc, ok := s.conn.(syscall.Conn); ok {
		if _, err := sc.SyscallConn(); err != nil {
			return false
		}
	}
	return true
}

// markUnhealthy flags the session so the next operation refuses it. The
// socket stays open; whoever trips over the flag closes it.
func (s *Session) markUnhealthy(reason string) {
	s.setReason(reason)
	s.state.cas(StateActive, StateClosing)
}

// Close shuts the socket and wakes the owning goroutine. The first reason
// recorded for the session wins; later calls only ensure closure.
func (s *Session) Close(reason string) {
	s.setReason(reason)
	s.closeOnce.Do(func() {
		s.state.set(StateClosed)
		s.conn.Close()
		close(s.done)
	})
}

func (s *Session) cleanup() {
	s.Close("connection closed")
	s.registry.remove(s)
	s.connLog.LogDisconnect(s.name, s.remoteIP, s.closeReason())
}

func (s *Session) setReason(reason string) {
	s.mu.Lock()
	if s.reason == "" {
		s.reason = reason
	}
	s.mu.Unlock()
}

func (s *Session) closeReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) recordSuspicious(kind string) {
	s.ledger.RecordSuspicious(s.remoteIP, kind)
	s.metrics.SuspiciousEvent(kind)
}

// rejectHTTPProbe answers an HTTP client that dialed the tunnel port with a
// short JSON hint pointing at the API port, then lets cleanup close the
// socket.
func (s *Session) rejectHTTPProbe() {
	body := fmt.Sprintf(
		`{"error":"Invalid protocol","message":"This port (%d) accepts tunnel agent connections only. Use port %d for the HTTP API."}`,
		s.cfg.TunnelPort, s.cfg.HTTPPort,
	)
	reply := fmt.Sprintf(
		"HTTP/1.1 400 Bad Request\r\nContent-Type: application/json\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		len(body), body,
	)
	_ = s.conn.SetWriteDeadline(time.Now().Add(probeWriteTimeout))
	_, _ = io.WriteString(s.conn, reply)
	s.logger.Warn("HTTP request received on tunnel port from %s", s.remoteIP)
}

// Accessors used by the registry and the HTTP surface.

func (s *Session) Name() string { return s.name }

func (s *Session) RemoteIP() string { return s.remoteIP }

func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

func (s *Session) State() SessionState { return s.state.get() }

func (s *Session) Stats() SessionStats { return s.state.snapshot() }

// LastActive returns the time of the last completed dispatch, or the
// connect time when nothing has been dispatched yet.
func (s *Session) LastActive() time.Time {
	if ts := s.state.snapshot().LastActivity; ts > 0 {
		return time.Unix(ts, 0)
	}
	return s.connectedAt
}

func (s *Session) Requests() uint64 {
	return s.state.snapshot().RequestCount
}

// Uptime renders the session age in its coarsest sensible unit.
func (s *Session) Uptime() string {
	return utils.FormatUptime(time.Since(s.connectedAt))
}

// isHTTPGreeting reports whether the first bytes on the socket look like a
// plaintext HTTP request line rather than a tunnel frame.
func isHTTPGreeting(head []byte) bool {
	for _, prefix := range []string{"GET", "POST", "PUT", "HEAD", "DELE", "OPTI"} {
		if len(head) >= len(prefix) && string(head[:len(prefix)]) == prefix {
			return true
		}
	}
	return false
}

func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
