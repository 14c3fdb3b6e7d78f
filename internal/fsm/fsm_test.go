package fsm

import "testing"

func TestRunCycle(t *testing.T) {
	m := NewMachine()

	steps := []struct {
		event Event
		want  State
	}{
		{EventInitialize, Init},
		{EventLaunch, Orbit},
		{EventStart, Run},
		{EventStop, Orbit},
		{EventLand, Init},
	}

	for _, step := range steps {
		if _, err := m.Begin(step.event); err != nil {
			t.Fatalf("Begin(%s): %v", step.event, err)
		}
		m.Complete(step.event)
		if got := m.State(); got != step.want {
			t.Fatalf("after %s: got %s, want %s", step.event, got, step.want)
		}
	}
}

func TestDisallowedTransition(t *testing.T) {
	m := NewMachine()
	if _, err := m.Begin(EventLaunch); err == nil {
		t.Fatal("expected launch from NEW to be disallowed")
	}
	if got := m.State(); got != New {
		t.Fatalf("disallowed Begin must not move state, got %s", got)
	}
}

func TestFailureFromAnyNonTerminalState(t *testing.T) {
	m := NewMachine()
	if _, ok := m.Allowed(EventFailure); !ok {
		t.Fatal("failure must be allowed from NEW")
	}
	m.Fail()
	if got := m.State(); got != Error {
		t.Fatalf("Fail() did not reach ERROR, got %s", got)
	}
}

func TestFailureIdempotentInError(t *testing.T) {
	m := NewMachine()
	m.Fail()
	if _, ok := m.Allowed(EventFailure); ok {
		t.Fatal("failure from ERROR must not be allowed (idempotence)")
	}
}

func TestInterruptFromOrbitAndRun(t *testing.T) {
	for _, start := range []State{Orbit, Run} {
		m := NewMachine()
		m.current.Store(uint32(start))
		if _, ok := m.Allowed(EventInterrupt); !ok {
			t.Fatalf("interrupt must be allowed from %s", start)
		}
		if _, err := m.Begin(EventInterrupt); err != nil {
			t.Fatalf("Begin(interrupt) from %s: %v", start, err)
		}
		m.Complete(EventInterrupt)
		if got := m.State(); got != Safe {
			t.Fatalf("interrupt from %s: got %s, want SAFE", start, got)
		}
	}
}
