package tunnel

import (
	"bufio"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/burrowgate/burrowgate/internal/connlog"
	"github.com/burrowgate/burrowgate/internal/logging"
	"github.com/burrowgate/burrowgate/internal/metrics"
	"github.com/burrowgate/burrowgate/internal/proto"
	"github.com/burrowgate/burrowgate/internal/security"
)

func TestMain(m *testing.M) {
	logging.InitLogger(&logging.LogConfig{
		File:       filepath.Join(os.TempDir(), "burrowgate-tunnel-test.log"),
		MaxSize:    1,
		MaxBackups: 1,
		MaxAge:     1,
	})
	os.Exit(m.Run())
}

const testToken = "T"

func testConfig() Config {
	return Config{
		TunnelPort:       0, // ephemeral
		HTTPPort:         8084,
		AuthToken:        testToken,
		HandshakeTimeout: 2 * time.Second,
		DispatchTimeout:  2 * time.Second,
		HeartbeatTimeout: time.Second,
		IdleReadTimeout:  60 * time.Second,
		AcceptRPS:        1000,
		AcceptBurst:      1000,
	}
}

func testThresholds() security.Thresholds {
	return security.Thresholds{
		MaxAttempts:   5,
		AuthTolerance: 8,
		Window:        15 * time.Minute,
		Permanent:     15,
		Grace:         30 * time.Minute,
		GC:            24 * time.Hour,
	}
}

func newTestDeps(t *testing.T, rejectDuplicates bool) Deps {
	t.Helper()
	logger := logging.GetGlobalLogger()
	m := metrics.New()
	return Deps{
		Registry: NewRegistry(rejectDuplicates, logger, m),
		Ledger:   security.NewLedger(testThresholds()),
		ConnLog:  connlog.NewLog(1000),
		Metrics:  m,
		Logger:   logger,
	}
}

// startListener binds an ephemeral tunnel port and tears it down with the test.
func startListener(t *testing.T, cfg Config, deps Deps) *Listener {
	t.Helper()
	l := NewListener(cfg, deps)
	if err := l.Start(); err != nil {
		t.Fatalf("listener start: %v", err)
	}
	t.Cleanup(func() {
		l.Close()
		deps.Registry.CloseAll("test teardown")
	})
	return l
}

// dialTunnel connects over IPv4 loopback explicitly: on dual-stack hosts the
// listener's own address dials as ::1, which breaks every assertion keyed on
// the session's recorded remote IP.
func dialTunnel(t *testing.T, l *Listener) net.Conn {
	t.Helper()
	_, port, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		t.Fatalf("split listener addr: %v", err)
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", port), 2*time.Second)
	if err != nil {
		t.Fatalf("dial tunnel: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// agentHandshake performs the client side of the handshake and returns the
// gateway's auth reply.
func agentHandshake(t *testing.T, conn net.Conn, br *bufio.Reader, token, name string) string {
	t.Helper()
	if err := proto.WriteString(conn, token); err != nil {
		t.Fatalf("send token: %v", err)
	}
	reply, err := proto.ReadString(br)
	if err != nil {
		t.Fatalf("read auth reply: %v", err)
	}
	if reply == proto.AuthSuccess {
		if err := proto.WriteString(conn, name); err != nil {
			t.Fatalf("send name: %v", err)
		}
	}
	return reply
}

// connectEchoAgent registers an agent that answers heartbeats and echoes
// other requests as "METHOD URL BODY" with status 200.
func connectEchoAgent(t *testing.T, l *Listener, name string) net.Conn {
	t.Helper()
	conn := dialTunnel(t, l)
	br := bufio.NewReader(conn)
	if reply := agentHandshake(t, conn, br, testToken, name); reply != proto.AuthSuccess {
		t.Fatalf("handshake reply = %q", reply)
	}

	go func() {
		for {
			req, err := proto.ReadRequest(br)
			if err != nil {
				return
			}
			resp := &proto.Response{Status: 200, Body: req.Method + " " + req.URL + " " + req.Body}
			if proto.IsHeartbeat(req) {
				resp.Body = proto.HeartbeatOK
			}
			if err := proto.WriteResponse(conn, resp); err != nil {
				return
			}
		}
	}()
	return conn
}

// connectEnvelopeAgent registers an agent that answers every non-heartbeat
// request with a fixed header/body envelope.
func connectEnvelopeAgent(t *testing.T, l *Listener, name string, headers http.Header, body []byte) net.Conn {
	t.Helper()
	conn := dialTunnel(t, l)
	br := bufio.NewReader(conn)
	if reply := agentHandshake(t, conn, br, testToken, name); reply != proto.AuthSuccess {
		t.Fatalf("handshake reply = %q", reply)
	}

	go func() {
		for {
			req, err := proto.ReadRequest(br)
			if err != nil {
				return
			}
			resp := &proto.Response{Status: 200, Body: proto.EncodeEnvelope(headers, body)}
			if proto.IsHeartbeat(req) {
				resp.Body = proto.HeartbeatOK
			}
			if err := proto.WriteResponse(conn, resp); err != nil {
				return
			}
		}
	}()
	return conn
}

// waitRegistered polls until the name shows up in the registry. Registration
// happens on the session goroutine after the handshake frames are written,
// so tests have to wait for it.
func waitRegistered(t *testing.T, r *Registry, name string) *Session {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := r.Lookup(name); s != nil {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("agent %q never registered", name)
	return nil
}

func waitGone(t *testing.T, r *Registry, name string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.Lookup(name) == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("agent %q still registered", name)
}
