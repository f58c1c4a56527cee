package tunnel

import (
	"bufio"
	"testing"
	"time"

	"github.com/burrowgate/burrowgate/internal/logging"
	"github.com/burrowgate/burrowgate/internal/proto"
)

func TestSweeperRemovesDeadSessionsPeriodically(t *testing.T) {
	deps := newTestDeps(t, false)
	cfg := testConfig()
	cfg.HeartbeatTimeout = 100 * time.Millisecond
	l := startListener(t, cfg, deps)

	// Healthy echo agent plus one that never answers probes.
	connectEchoAgent(t, l, "alive")
	muteConn := dialTunnel(t, l)
	muteBr := bufio.NewReader(muteConn)
	if reply := agentHandshake(t, muteConn, muteBr, testToken, "mute"); reply != proto.AuthSuccess {
		t.Fatalf("auth reply = %q", reply)
	}
	waitRegistered(t, deps.Registry, "alive")
	waitRegistered(t, deps.Registry, "mute")

	sw := NewSweeper(deps.Registry, 50*time.Millisecond, logging.GetGlobalLogger())
	sw.Start()
	defer sw.Stop()

	waitGone(t, deps.Registry, "mute")
	if deps.Registry.Lookup("alive") == nil {
		t.Error("healthy agent was swept")
	}
}

func TestSweeperStopHaltsTicks(t *testing.T) {
	deps := newTestDeps(t, false)

	sw := NewSweeper(deps.Registry, 10*time.Millisecond, logging.GetGlobalLogger())
	sw.Start()
	sw.Stop()
	// Stop is idempotent.
	sw.Stop()

	// Give any straggling tick time to fire; an empty registry makes this a
	// no-op either way, the point is that Stop does not panic or deadlock.
	time.Sleep(30 * time.Millisecond)
}
