package tunnel

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"

	"golang.org/x/time/rate"
)

// Listener accepts tunnel connections and spins up one session per socket.
// Banned IPs are dropped before a session is ever built.
type Listener struct {
	cfg     Config
	deps    Deps
	limiter *rate.Limiter

	mu sync.Mutex
	ln net.Listener
}

func NewListener(cfg Config, deps Deps) *Listener {
	return &Listener{
		cfg:     cfg,
		deps:    deps,
		limiter: rate.NewLimiter(rate.Limit(cfg.AcceptRPS), cfg.AcceptBurst),
	}
}

// Start binds the tunnel port and launches the accept loop. A bind failure
// is fatal for the gateway and comes back classified for the operator.
func (l *Listener) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", l.cfg.TunnelPort))
	if err != nil {
		switch {
		case errors.Is(err, syscall.EADDRINUSE):
			return fmt.Errorf("tunnel port %d is already in use: %w", l.cfg.TunnelPort, err)
		case errors.Is(err, syscall.EACCES):
			return fmt.Errorf("tunnel port %d requires elevated privileges: %w", l.cfg.TunnelPort, err)
		default:
			return fmt.Errorf("failed to bind tunnel port %d: %w", l.cfg.TunnelPort, err)
		}
	}

	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()

	l.deps.Logger.Info("Tunnel listener ready on %s", ln.Addr())
	go l.acceptLoop(ln)
	return nil
}

func (l *Listener) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.deps.Logger.Error("Tunnel accept failed: %v", err)
			continue
		}

		ip := remoteIP(conn)
		if l.deps.Ledger.IsBanned(ip) {
			conn.Close()
			l.deps.Metrics.BannedRejection()
			continue
		}
		if !l.limiter.Allow() {
			l.deps.Logger.Warn("Tunnel accept rate exceeded, dropping connection from %s", ip)
			conn.Close()
			continue
		}

		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetKeepAlive(true)
			if l.cfg.IdleReadTimeout > 0 {
				_ = tc.SetKeepAlivePeriod(l.cfg.IdleReadTimeout)
			}
		}

		go newSession(conn, l.cfg, l.deps).Run()
	}
}

// Addr returns the bound address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Close stops accepting new connections. Existing sessions stay up; the
// registry owns their shutdown.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	err := l.ln.Close()
	l.ln = nil
	return err
}
