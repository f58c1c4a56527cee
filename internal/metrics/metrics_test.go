package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAccumulate(t *testing.T) {
	m := New()

	m.SessionRegistered()
	m.SessionRegistered()
	m.SessionRemoved()
	if got := testutil.ToFloat64(m.activeSessions); got != 1 {
		t.Fatalf("active sessions = %v, want 1", got)
	}

	m.HandshakeResult("registered")
	m.HandshakeResult("registered")
	m.HandshakeResult("auth_failed")
	if got := testutil.ToFloat64(m.handshakes.WithLabelValues("registered")); got != 2 {
		t.Fatalf("registered handshakes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.handshakes.WithLabelValues("auth_failed")); got != 1 {
		t.Fatalf("failed handshakes = %v, want 1", got)
	}

	m.ForwardObserved("ok", 0.25)
	m.ForwardObserved("timeout", 30)
	if got := testutil.ToFloat64(m.forwards.WithLabelValues("ok")); got != 1 {
		t.Fatalf("ok forwards = %v, want 1", got)
	}

	m.SweepRemoved(3)
	if got := testutil.ToFloat64(m.sweepRemovals); got != 3 {
		t.Fatalf("sweep removals = %v, want 3", got)
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	a := New()
	b := New()

	a.SessionRegistered()
	if got := testutil.ToFloat64(b.activeSessions); got != 0 {
		t.Fatalf("second instance saw %v sessions, want 0", got)
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	m := New()
	m.HandshakeResult("registered")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "burrowgate_tunnel_handshakes_total") {
		t.Fatalf("metrics output missing handshake counter:\n%s", rec.Body.String())
	}
}
