package tunnel

import (
	"bufio"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/burrowgate/burrowgate/internal/proto"
)

func TestForwardToNamedUnknownAgent(t *testing.T) {
	deps := newTestDeps(t, false)

	_, err := deps.Registry.ForwardToNamed(&proto.Request{ClientName: "ghost", Method: "GET", URL: "http://x"})
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("error = %v, want ErrNotRegistered", err)
	}
}

func TestForwardToNamedEcho(t *testing.T) {
	deps := newTestDeps(t, false)
	l := startListener(t, testConfig(), deps)

	connectEchoAgent(t, l, "cam1")
	waitRegistered(t, deps.Registry, "cam1")

	resp, err := deps.Registry.ForwardToNamed(&proto.Request{
		ClientName: "cam1",
		Method:     "POST",
		URL:        "http://lan/api",
		Body:       "data",
	})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if resp.Status != 200 || resp.Body != "POST http://lan/api data" {
		t.Errorf("response = %d %q", resp.Status, resp.Body)
	}
}

func TestForwardToNamedRemovesUnhealthySession(t *testing.T) {
	deps := newTestDeps(t, false)
	l := startListener(t, testConfig(), deps)

	conn := connectEchoAgent(t, l, "cam1")
	s := waitRegistered(t, deps.Registry, "cam1")

	// Kill the socket, then force the session into the unhealthy state the
	// pre-dispatch check looks for.
	conn.Close()
	s.markUnhealthy("test: socket killed")

	_, err := deps.Registry.ForwardToNamed(&proto.Request{ClientName: "cam1", Method: "GET", URL: "http://x"})
	if !errors.Is(err, ErrUnhealthy) {
		t.Fatalf("error = %v, want ErrUnhealthy", err)
	}
	waitGone(t, deps.Registry, "cam1")
}

func TestNamesAndDetailsSorted(t *testing.T) {
	deps := newTestDeps(t, false)
	l := startListener(t, testConfig(), deps)

	connectEchoAgent(t, l, "zebra")
	connectEchoAgent(t, l, "alpha")
	waitRegistered(t, deps.Registry, "zebra")
	waitRegistered(t, deps.Registry, "alpha")

	names := deps.Registry.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zebra" {
		t.Errorf("names = %v", names)
	}

	details := deps.Registry.Details()
	if len(details) != 2 || details[0].Name != "alpha" {
		t.Errorf("details = %+v", details)
	}
	for _, d := range details {
		if d.Uptime == "" {
			t.Errorf("detail %s has empty uptime", d.Name)
		}
	}
}

func TestSweepRemovesDeadAgents(t *testing.T) {
	deps := newTestDeps(t, false)
	cfg := testConfig()
	cfg.HeartbeatTimeout = 200 * time.Millisecond
	l := startListener(t, cfg, deps)

	connectEchoAgent(t, l, "alive")
	waitRegistered(t, deps.Registry, "alive")

	// An agent that registered but never answers probes.
	muteConn := dialTunnel(t, l)
	muteBr := bufio.NewReader(muteConn)
	if reply := agentHandshake(t, muteConn, muteBr, testToken, "mute"); reply != proto.AuthSuccess {
		t.Fatalf("auth reply = %q", reply)
	}
	waitRegistered(t, deps.Registry, "mute")

	result := deps.Registry.Sweep()
	if result.Before != 2 || result.Removed != 1 || result.After != 1 {
		t.Errorf("sweep result = %+v", result)
	}
	if deps.Registry.Lookup("alive") == nil {
		t.Error("healthy agent was swept")
	}
	if deps.Registry.Lookup("mute") != nil {
		t.Error("dead agent survived sweep")
	}

	// The swept agent's socket is closed. The reader still buffers the
	// unanswered probe frame, so drain to EOF instead of reading one byte.
	muteConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.Copy(io.Discard, muteBr); err != nil {
		t.Errorf("drain swept connection = %v, want EOF", err)
	}
}

func TestSweepWaitsForInFlightForward(t *testing.T) {
	deps := newTestDeps(t, false)
	l := startListener(t, testConfig(), deps)

	// Agent that delays its echo so the forward is still holding the
	// request mutex when the sweep's probe arrives.
	conn := dialTunnel(t, l)
	br := bufio.NewReader(conn)
	if reply := agentHandshake(t, conn, br, testToken, "slow"); reply != proto.AuthSuccess {
		t.Fatalf("auth reply = %q", reply)
	}
	go func() {
		for {
			req, err := proto.ReadRequest(br)
			if err != nil {
				return
			}
			if !proto.IsHeartbeat(req) {
				time.Sleep(300 * time.Millisecond)
			}
			resp := &proto.Response{Status: 200, Body: proto.HeartbeatOK}
			if err := proto.WriteResponse(conn, resp); err != nil {
				return
			}
		}
	}()
	waitRegistered(t, deps.Registry, "slow")

	forwardDone := make(chan error, 1)
	go func() {
		_, err := deps.Registry.ForwardToNamed(&proto.Request{ClientName: "slow", Method: "GET", URL: "http://x"})
		forwardDone <- err
	}()

	time.Sleep(50 * time.Millisecond) // let the forward take the mutex
	result := deps.Registry.Sweep()

	if err := <-forwardDone; err != nil {
		t.Errorf("forward during sweep: %v", err)
	}
	if result.Removed != 0 {
		t.Errorf("sweep removed %d sessions during in-flight forward", result.Removed)
	}
	if deps.Registry.Lookup("slow") == nil {
		t.Error("session removed while forward in progress")
	}
}
