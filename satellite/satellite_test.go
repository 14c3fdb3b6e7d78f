package satellite

import (
	"strings"
	"testing"
)

// testCHIRPPort gives each test satellite its own CHIRP UDP port: the
// beacon binds a fixed port that is only released by Run's shutdown path,
// so satellites built in one test process cannot share the default port.
var testCHIRPPort = 47123

func newTestSatellite(t *testing.T) *Satellite {
	t.Helper()
	testCHIRPPort++
	s, err := New("test_sat", "test_group", "127.0.0.1", DefaultHooks{}, WithCHIRPPort(testCHIRPPort))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestRunCycleUpdatesStateAndRunID(t *testing.T) {
	s := newTestSatellite(t)

	if _, err := s.doInitialize(map[string]any{"a": 1}); err != nil {
		t.Fatalf("doInitialize: %v", err)
	}
	if _, err := s.doLaunch(nil); err != nil {
		t.Fatalf("doLaunch: %v", err)
	}
	if _, err := s.doStart("run_42"); err != nil {
		t.Fatalf("doStart: %v", err)
	}
	if _, err := s.doStop(nil); err != nil {
		t.Fatalf("doStop: %v", err)
	}

	if s.runID != "run_42" {
		t.Fatalf("expected run id 'run_42', got %q", s.runID)
	}
	if got := s.machine.State().String(); got != "ORBIT" {
		t.Fatalf("expected ORBIT after stop, got %s", got)
	}
}

func TestUnknownCommandIsNotRegistered(t *testing.T) {
	s := newTestSatellite(t)
	if _, known := s.cscpReg.Commands()["not_a_real_command"]; known {
		t.Fatal("unexpected command registered")
	}
}

func TestDisallowedTransitionKeepsStateUnchanged(t *testing.T) {
	s := newTestSatellite(t)
	if _, err := s.doLaunch(nil); err == nil {
		t.Fatal("expected launch from NEW to be disallowed")
	}
	if got := s.machine.State().String(); got != "NEW" {
		t.Fatalf("state must be unchanged after disallowed transition, got %s", got)
	}
}

func TestUnusedConfigKeyIsReportedInReply(t *testing.T) {
	s := newTestSatellite(t)
	reply, err := s.doInitialize(map[string]any{"used": 1, "unused": 2})
	if err != nil {
		t.Fatalf("doInitialize: %v", err)
	}
	if !strings.Contains(reply, "unused") {
		t.Fatalf("expected reply to mention unused key, got %q", reply)
	}
}
