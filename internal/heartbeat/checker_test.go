package heartbeat

import (
	"testing"
	"time"

	"github.com/constellation-daq/constellation-go/internal/fsm"
)

func TestScanOnceReportsMissingPeerAsFailed(t *testing.T) {
	var failed string
	c := NewChecker(nil, func(name string) { failed = name }, testLogger(t))

	c.peers["alpha"] = &peer{
		interval: 10 * time.Millisecond,
		lastSeen: time.Now().Add(-1 * time.Second),
	}
	c.scanOnce()

	if failed != "alpha" {
		t.Fatalf("expected peer 'alpha' reported failed, got %q", failed)
	}
}

func TestScanOnceReportsSafePeerAsInterrupt(t *testing.T) {
	var safe string
	c := NewChecker(func(name string) { safe = name }, nil, testLogger(t))

	c.peers["beta"] = &peer{
		interval:  10 * time.Millisecond,
		lastSeen:  time.Now(),
		lastState: fsm.Safe,
	}
	c.scanOnce()

	if safe != "beta" {
		t.Fatalf("expected peer 'beta' reported safe, got %q", safe)
	}
}

func TestScanOnceDoesNotReReportAfterFirstFailure(t *testing.T) {
	calls := 0
	c := NewChecker(nil, func(string) { calls++ }, testLogger(t))

	c.peers["gamma"] = &peer{
		interval: 10 * time.Millisecond,
		lastSeen: time.Now().Add(-1 * time.Second),
	}
	c.scanOnce()
	c.scanOnce()

	if calls != 1 {
		t.Fatalf("expected exactly one failure report, got %d", calls)
	}
}
