package security

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/burrowgate/burrowgate/internal/logging"
)

func TestMain(m *testing.M) {
	logging.InitLogger(&logging.LogConfig{
		File:       filepath.Join(os.TempDir(), "burrowgate-security-test.log"),
		MaxSize:    1,
		MaxBackups: 1,
		MaxAge:     1,
	})
	os.Exit(m.Run())
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func withFakeClock(t *testing.T) *fakeClock {
	t.Helper()
	fc := &fakeClock{now: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)}
	orig := timeNow
	timeNow = fc.Now
	t.Cleanup(func() { timeNow = orig })
	return fc
}

func testThresholds() Thresholds {
	return Thresholds{
		MaxAttempts:   5,
		AuthTolerance: 8,
		Window:        15 * time.Minute,
		Permanent:     15,
		Grace:         30 * time.Minute,
		GC:            24 * time.Hour,
	}
}

func TestAuthFailuresUseHigherTolerance(t *testing.T) {
	fc := withFakeClock(t)
	ledger := NewLedger(testThresholds())

	// Five wrong tokens inside two minutes must not ban yet.
	for i := 0; i < 5; i++ {
		ledger.RecordSuspicious("1.2.3.4", KindAuthFailed)
		fc.Advance(20 * time.Second)
	}
	if ledger.IsBanned("1.2.3.4") {
		t.Fatal("banned after 5 auth failures, tolerance is 8")
	}

	for i := 0; i < 3; i++ {
		ledger.RecordSuspicious("1.2.3.4", KindAuthFailed)
	}
	if !ledger.IsBanned("1.2.3.4") {
		t.Fatal("not banned after 8 auth failures")
	}
}

func TestNonAuthKindsBanAtMaxAttempts(t *testing.T) {
	kinds := []string{
		KindInvalidProtocol,
		KindStreamCorruption,
		KindVersionMismatch,
		KindUnexpectedTermination,
	}

	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			withFakeClock(t)
			ledger := NewLedger(testThresholds())

			for i := 0; i < 4; i++ {
				ledger.RecordSuspicious("5.6.7.8", kind)
			}
			if ledger.IsBanned("5.6.7.8") {
				t.Fatal("banned before reaching MaxAttempts")
			}

			ledger.RecordSuspicious("5.6.7.8", kind)
			if !ledger.IsBanned("5.6.7.8") {
				t.Fatal("not banned at MaxAttempts within window")
			}
		})
	}
}

func TestWindowExpiryPreventsThresholdBan(t *testing.T) {
	fc := withFakeClock(t)
	ledger := NewLedger(testThresholds())

	// Five events spread over 40 minutes: threshold met but window long gone.
	for i := 0; i < 5; i++ {
		ledger.RecordSuspicious("9.9.9.9", KindInvalidProtocol)
		fc.Advance(10 * time.Minute)
	}
	if ledger.IsBanned("9.9.9.9") {
		t.Fatal("banned although attempts fell outside the window")
	}
}

func TestPermanentThresholdIgnoresWindow(t *testing.T) {
	fc := withFakeClock(t)
	ledger := NewLedger(testThresholds())

	// Slow drip: one event per hour still accumulates toward the
	// permanent threshold.
	for i := 0; i < 15; i++ {
		ledger.RecordSuspicious("8.8.8.8", KindStreamCorruption)
		if i < 14 {
			fc.Advance(time.Hour)
		}
	}
	if !ledger.IsBanned("8.8.8.8") {
		t.Fatal("not banned at permanent threshold")
	}
}

func TestUnbanReportsWhetherBanned(t *testing.T) {
	withFakeClock(t)
	ledger := NewLedger(testThresholds())

	if ledger.Unban("10.0.0.1") {
		t.Error("Unban() = true for IP that was never banned")
	}

	ledger.Ban("10.0.0.1")
	if !ledger.IsBanned("10.0.0.1") {
		t.Fatal("IsBanned() = false after Ban()")
	}
	if !ledger.Unban("10.0.0.1") {
		t.Error("Unban() = false for banned IP")
	}
	if ledger.IsBanned("10.0.0.1") {
		t.Error("still banned after Unban()")
	}
}

func TestGraceWindowSuppressesAutoBan(t *testing.T) {
	fc := withFakeClock(t)
	ledger := NewLedger(testThresholds())

	ledger.Ban("1.2.3.4")
	ledger.Unban("1.2.3.4")

	// Eight more auth failures inside the grace window change nothing.
	for i := 0; i < 8; i++ {
		ledger.RecordSuspicious("1.2.3.4", KindAuthFailed)
		fc.Advance(time.Minute)
	}
	if ledger.IsBanned("1.2.3.4") {
		t.Fatal("auto-banned inside grace window")
	}
	if got := ledger.CheckAutoBanStatus("1.2.3.4").Attempts; got != 0 {
		t.Fatalf("attempts = %d inside grace window, want 0", got)
	}

	// Once grace expires the counter runs again.
	fc.Advance(testThresholds().Grace)
	for i := 0; i < 8; i++ {
		ledger.RecordSuspicious("1.2.3.4", KindAuthFailed)
	}
	if !ledger.IsBanned("1.2.3.4") {
		t.Fatal("not re-banned after grace expired")
	}
}

func TestTrackingEntriesGarbageCollected(t *testing.T) {
	fc := withFakeClock(t)
	ledger := NewLedger(testThresholds())

	ledger.RecordSuspicious("7.7.7.7", KindInvalidProtocol)
	fc.Advance(25 * time.Hour)

	// The next record sweeps the stale entry first, so the count restarts.
	ledger.RecordSuspicious("7.7.7.7", KindInvalidProtocol)
	if got := ledger.CheckAutoBanStatus("7.7.7.7").Attempts; got != 1 {
		t.Errorf("attempts = %d after GC, want 1", got)
	}
}

func TestCheckAutoBanStatusDoesNotMutate(t *testing.T) {
	fc := withFakeClock(t)
	ledger := NewLedger(testThresholds())

	ledger.RecordSuspicious("2.2.2.2", KindAuthFailed)
	fc.Advance(time.Second)

	first := ledger.CheckAutoBanStatus("2.2.2.2")
	second := ledger.CheckAutoBanStatus("2.2.2.2")
	if first != second {
		t.Errorf("status changed between reads: %+v vs %+v", first, second)
	}
	if first.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", first.Attempts)
	}
}

func TestCheckAutoBanStatusReasons(t *testing.T) {
	fc := withFakeClock(t)
	ledger := NewLedger(testThresholds())

	if got := ledger.CheckAutoBanStatus("3.3.3.3"); got.Reason != "no suspicious activity recorded" {
		t.Errorf("fresh IP reason = %q", got.Reason)
	}

	ledger.Ban("3.3.3.3")
	if got := ledger.CheckAutoBanStatus("3.3.3.3"); !got.Banned || got.Reason != "already banned" {
		t.Errorf("banned IP status = %+v", got)
	}

	ledger.Unban("3.3.3.3")
	got := ledger.CheckAutoBanStatus("3.3.3.3")
	if !got.InGrace {
		t.Errorf("InGrace = false right after unban")
	}
	if got.GraceRemaining <= 0 || got.GraceRemaining > testThresholds().Grace {
		t.Errorf("GraceRemaining = %v", got.GraceRemaining)
	}

	fc.Advance(testThresholds().Grace + time.Minute)
	for i := 0; i < 4; i++ {
		ledger.RecordSuspicious("3.3.3.3", KindInvalidProtocol)
	}
	if got := ledger.CheckAutoBanStatus("3.3.3.3"); !got.WouldAutoBan {
		t.Errorf("WouldAutoBan = false at %d attempts, want true (next event bans)", got.Attempts)
	}
}

func TestSnapshotIsSortedAndComplete(t *testing.T) {
	withFakeClock(t)
	ledger := NewLedger(testThresholds())

	ledger.Ban("9.0.0.2")
	ledger.Ban("1.0.0.1")
	ledger.RecordSuspicious("5.5.5.5", KindAuthFailed)
	ledger.RecordSuspicious("4.4.4.4", KindInvalidProtocol)

	snap := ledger.Snapshot()

	wantBanned := []string{"1.0.0.1", "9.0.0.2"}
	if len(snap.BannedIPs) != 2 || snap.BannedIPs[0] != wantBanned[0] || snap.BannedIPs[1] != wantBanned[1] {
		t.Errorf("BannedIPs = %v, want %v", snap.BannedIPs, wantBanned)
	}
	if len(snap.Tracked) != 2 || snap.Tracked[0].IP != "4.4.4.4" || snap.Tracked[1].IP != "5.5.5.5" {
		t.Errorf("Tracked = %+v", snap.Tracked)
	}
	if snap.Thresholds != testThresholds() {
		t.Errorf("Thresholds = %+v", snap.Thresholds)
	}
}
