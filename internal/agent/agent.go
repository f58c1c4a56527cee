// Package agent implements the LAN-side tunnel client: it dials the gateway,
// authenticates, registers its name and then answers forwarded requests by
// performing them against services it can reach.
package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/burrowgate/burrowgate/internal/logging"
	"github.com/burrowgate/burrowgate/internal/proto"
)

// Config carries the agent's startup parameters.
type Config struct {
	// Name is how the gateway addresses this agent.
	Name string
	// Host and Port locate the gateway's tunnel listener.
	Host string
	Port int
	// Token is the shared secret sent as the first frame.
	Token string

	// InsecureTLS disables certificate verification on LAN fetches. Many
	// internal devices run self-signed certificates.
	InsecureTLS bool

	// MaxResponseSize caps the raw bytes read from a LAN response before
	// base64 encoding. Zero means the 50 MiB default.
	MaxResponseSize int64

	// RequestTimeout bounds one LAN fetch.
	RequestTimeout time.Duration
	// DialTimeout bounds one connection attempt to the gateway.
	DialTimeout time.Duration
	// ReconnectMin and ReconnectMax bound the backoff between attempts.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

const (
	defaultMaxResponseSize = 50 << 20
	defaultRequestTimeout  = 30 * time.Second
	defaultDialTimeout     = 10 * time.Second
	defaultReconnectMin    = time.Second
	defaultReconnectMax    = time.Minute
)

// ErrAuthRejected is returned when the gateway refuses the token. There is
// no point reconnecting with the same credentials.
var ErrAuthRejected = errors.New("gateway rejected auth token")

// Agent is the tunnel client. One Agent drives one connection at a time.
type Agent struct {
	cfg     Config
	fetcher *fetcher
	logger  *logging.Logger
}

// New creates an agent, filling in defaults for unset limits.
func New(cfg Config) *Agent {
	if cfg.MaxResponseSize <= 0 {
		cfg.MaxResponseSize = defaultMaxResponseSize
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = defaultReconnectMin
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = defaultReconnectMax
	}

	return &Agent{
		cfg:     cfg,
		fetcher: newFetcher(cfg.InsecureTLS, cfg.MaxResponseSize, cfg.RequestTimeout),
		logger:  logging.GetGlobalLogger(),
	}
}

// Run connects to the gateway and serves forwarded requests until the
// context is cancelled, reconnecting with exponential backoff after every
// lost connection. A rejected token stops the loop: retrying it would only
// get the agent's IP banned.
func (a *Agent) Run(ctx context.Context) error {
	backoff := a.cfg.ReconnectMin

	for {
		err := a.RunOnce(ctx)
		switch {
		case errors.Is(err, ErrAuthRejected):
			return err
		case ctx.Err() != nil:
			return nil
		}

		if err != nil {
			a.logger.Warn("Tunnel to %s:%d lost: %v (retrying in %s)", a.cfg.Host, a.cfg.Port, err, backoff)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > a.cfg.ReconnectMax {
			backoff = a.cfg.ReconnectMax
		}
	}
}

// RunOnce performs a single connect-handshake-serve cycle and returns when
// the connection dies or the context is cancelled.
func (a *Agent) RunOnce(ctx context.Context) error {
	dialer := net.Dialer{Timeout: a.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port))
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer conn.Close()

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAlive(true)
	}

	br := bufio.NewReader(conn)
	if err := a.handshake(conn, br); err != nil {
		return err
	}
	a.logger.Info("Registered with gateway %s:%d as '%s'", a.cfg.Host, a.cfg.Port, a.cfg.Name)

	// Unblock the serve loop's read when the context goes.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	return a.serve(ctx, conn, br)
}

func (a *Agent) handshake(conn net.Conn, br *bufio.Reader) error {
	if err := proto.WriteString(conn, a.cfg.Token); err != nil {
		return fmt.Errorf("send token: %w", err)
	}

	reply, err := proto.ReadString(br)
	if err != nil {
		return fmt.Errorf("read auth reply: %w", err)
	}
	if reply != proto.AuthSuccess {
		return ErrAuthRejected
	}

	if err := proto.WriteString(conn, a.cfg.Name); err != nil {
		return fmt.Errorf("send name: %w", err)
	}
	return nil
}

// serve answers forwarded requests one at a time, mirroring the gateway's
// one-in-flight-per-tunnel contract.
func (a *Agent) serve(ctx context.Context, conn net.Conn, br *bufio.Reader) error {
	for {
		req, err := proto.ReadRequest(br)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read request: %w", err)
		}

		resp := a.handle(ctx, req)
		if err := proto.WriteResponse(conn, resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

// handle produces the response for one forwarded request. Heartbeats are
// answered inline and never touch the network.
func (a *Agent) handle(ctx context.Context, req *proto.Request) *proto.Response {
	if proto.IsHeartbeat(req) {
		return &proto.Response{Status: 200, Body: proto.HeartbeatOK}
	}

	a.logger.Info("Forwarding %s %s", req.Method, req.URL)
	resp, err := a.fetcher.fetch(ctx, req)
	if err != nil {
		a.logger.Warn("Fetch %s %s failed: %v", req.Method, req.URL, err)
		return &proto.Response{
			Status: 502,
			Body:   fmt.Sprintf("agent fetch failed: %v", err),
		}
	}
	return resp
}
