// Package fsm implements the satellite lifecycle state machine: the
// steady/transitional state graph, the allowed-transition table, and a
// thread-safe Machine tracking the current state.
//
// The transition-wrapper protocol itself (precondition work, invoking the
// user hook, completing or failing the transition) lives one level up in
// the satellite package, which is the only code that knows what each
// transition's precondition and hook actually do; fsm only enforces which
// transitions are legal from which state.
package fsm

import (
	"fmt"
	"sync/atomic"
)

// State is a lifecycle state. Steady states are reported over CSCP;
// transitional ("-ing") states are held only while a transition wrapper is
// running.
type State uint8

const (
	New State = iota
	Initializing
	Init
	Launching
	Orbit
	Starting
	Run
	Stopping
	Landing
	Interrupting
	Safe
	Recovering
	Reconfiguring
	Error
)

func (s State) String() string {
	switch s {
	case New:
		return "NEW"
	case Initializing:
		return "initializing"
	case Init:
		return "INIT"
	case Launching:
		return "launching"
	case Orbit:
		return "ORBIT"
	case Starting:
		return "starting"
	case Run:
		return "RUN"
	case Stopping:
		return "stopping"
	case Landing:
		return "landing"
	case Interrupting:
		return "interrupting"
	case Safe:
		return "SAFE"
	case Recovering:
		return "recovering"
	case Reconfiguring:
		return "reconfiguring"
	case Error:
		return "ERROR"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Steady reports whether s is one of the six reportable, non-transitional
// states.
func (s State) Steady() bool {
	switch s {
	case New, Init, Orbit, Run, Safe, Error:
		return true
	default:
		return false
	}
}

// Event is a transition verb, named after the CSCP command that triggers
// it.
type Event uint8

const (
	EventInitialize Event = iota
	EventLaunch
	EventLand
	EventReconfigure
	EventStart
	EventStop
	EventInterrupt
	EventRecover
	EventFailure
)

func (e Event) String() string {
	switch e {
	case EventInitialize:
		return "initialize"
	case EventLaunch:
		return "launch"
	case EventLand:
		return "land"
	case EventReconfigure:
		return "reconfigure"
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventInterrupt:
		return "interrupt"
	case EventRecover:
		return "recover"
	case EventFailure:
		return "failure"
	default:
		return fmt.Sprintf("Event(%d)", uint8(e))
	}
}

type transition struct {
	from         State
	event        Event
	transitional State
	to           State
}

// table enumerates every legal (state, event) pair. failure is handled
// separately below: it is legal from every non-terminal state and bypasses
// the transitional state entirely.
var table = []transition{
	{New, EventInitialize, Initializing, Init},
	{Init, EventInitialize, Initializing, Init},
	{Init, EventLaunch, Launching, Orbit},
	{Orbit, EventStart, Starting, Run},
	{Run, EventStop, Stopping, Orbit},
	{Orbit, EventLand, Landing, Init},
	{Orbit, EventReconfigure, Reconfiguring, Orbit},
	{Orbit, EventInterrupt, Interrupting, Safe},
	{Run, EventInterrupt, Interrupting, Safe},
	{Safe, EventRecover, Recovering, Init},
}

func lookup(from State, event Event) (transition, bool) {
	for _, t := range table {
		if t.from == from && t.event == event {
			return t, true
		}
	}
	return transition{}, false
}

// Machine tracks the current lifecycle state with lock-free reads: CSCP
// command handlers query State() constantly and must never block on the
// task-loop goroutine that drives transitions.
type Machine struct {
	current atomic.Uint32
}

// NewMachine returns a Machine starting in the NEW state.
func NewMachine() *Machine {
	m := &Machine{}
	m.current.Store(uint32(New))
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	return State(m.current.Load())
}

// Allowed reports whether event may be fired from the current state, and if
// so, the transitional state it moves through.
func (m *Machine) Allowed(event Event) (transitional State, ok bool) {
	if event == EventFailure {
		cur := m.State()
		return Error, cur != Error
	}
	t, ok := lookup(m.State(), event)
	return t.transitional, ok
}

// Begin moves into the transitional state for event, returning an error if
// the transition is not allowed from the current state. Call Complete or
// Fail to leave the transitional state.
func (m *Machine) Begin(event Event) (State, error) {
	transitional, ok := m.Allowed(event)
	if !ok {
		return 0, fmt.Errorf("transition %q not allowed from state %s", event, m.State())
	}
	m.current.Store(uint32(transitional))
	return transitional, nil
}

// Complete finishes the transition for event, moving from its transitional
// state to its target steady state. Must only be called after a matching
// Begin.
func (m *Machine) Complete(event Event) {
	if event == EventFailure {
		m.current.Store(uint32(Error))
		return
	}
	// Every row for a given event shares the same target steady state
	// regardless of which state it started from (e.g. interrupt from
	// ORBIT or RUN both land in SAFE), so any matching row will do.
	for _, row := range table {
		if row.event == event {
			m.current.Store(uint32(row.to))
			return
		}
	}
}

// Fail drives the machine directly into ERROR. Idempotent: calling it while
// already in ERROR is a no-op, matching the failure idempotence invariant.
func (m *Machine) Fail() {
	m.current.Store(uint32(Error))
}
