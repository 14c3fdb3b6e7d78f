package satellite

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/constellation-daq/constellation-go/internal/cscp"
	"github.com/constellation-daq/constellation-go/internal/fsm"
)

// registerStandardCommands installs the CSCP commands every satellite must
// expose, mirroring the upstream CommandReceiver/Satellite command set.
func (s *Satellite) registerStandardCommands() {
	reg := s.cscpReg

	reg.Register("get_commands", s.cmdGetCommands, nil, "Return all public commands known to this satellite.")
	reg.Register("_get_commands", s.cmdGetHiddenCommands, nil, "Return all hidden commands known to this satellite.")
	reg.Register("get_name", s.cmdGetName, nil, "Return the canonical name of the satellite.")
	reg.Register("get_version", s.cmdGetVersion, nil, "Return the Constellation version.")
	reg.Register("get_state", s.cmdGetState, nil, "Return the current FSM state.")
	reg.Register("get_status", s.cmdGetStatus, nil, "Return a human-readable status summary.")
	reg.Register("get_run_id", s.cmdGetRunID, nil, "Return the current run identifier.")
	reg.Register("shutdown", s.cmdShutdown, nil, "Queue the satellite's re-entry.")
	reg.Register("register", s.cmdRegister, nil, "Register a heartbeat peer via CSCP request.")

	reg.Register("initialize", s.cmdInitialize, s.allowedByEvent(fsm.EventInitialize), "Initialize the satellite with the given configuration.")
	reg.Register("launch", s.cmdLaunch, s.allowedByEvent(fsm.EventLaunch), "Prepare the satellite for data acquisition.")
	reg.Register("reconfigure", s.cmdReconfigure, s.allowedByEvent(fsm.EventReconfigure), "Merge new configuration values into the running satellite.")
	reg.Register("land", s.cmdLand, s.allowedByEvent(fsm.EventLand), "Return the satellite to the INIT state.")
	reg.Register("start", s.cmdStart, s.allowedByEvent(fsm.EventStart), "Start a data acquisition run.")
	reg.Register("stop", s.cmdStop, s.allowedByEvent(fsm.EventStop), "Stop the current data acquisition run.")
	reg.Register("interrupt", s.cmdInterrupt, s.allowedByEvent(fsm.EventInterrupt), "Interrupt acquisition and move to the SAFE state.")
	reg.Register("recover", s.cmdRecover, s.allowedByEvent(fsm.EventRecover), "Recover from the SAFE state back to INIT.")
}

// allowedByEvent builds the sibling "_<command>_is_allowed" predicate as a
// plain Go closure over the FSM, rather than relying on reflection to find
// a same-named method.
func (s *Satellite) allowedByEvent(event fsm.Event) cscp.AllowedFunc {
	return func(cscp.Message) bool {
		_, ok := s.machine.Allowed(event)
		return ok
	}
}

func payloadAsMap(msg cscp.Message) (map[string]any, error) {
	if msg.Payload == nil {
		return map[string]any{}, nil
	}
	m, ok := msg.Payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a configuration map, got %T", cscp.ErrIncomplete, msg.Payload)
	}
	return m, nil
}

func payloadAsString(msg cscp.Message) (string, error) {
	s, ok := msg.Payload.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected a string payload, got %T", cscp.ErrIncomplete, msg.Payload)
	}
	return s, nil
}

func (s *Satellite) cmdGetCommands(cscp.Message) (string, any, map[string]any, error) {
	cmds := s.cscpReg.Commands()
	return fmt.Sprintf("%d commands known", len(cmds)), cmds, nil, nil
}

func (s *Satellite) cmdGetHiddenCommands(cscp.Message) (string, any, map[string]any, error) {
	cmds := s.cscpReg.HiddenCommands()
	return fmt.Sprintf("%d commands known", len(cmds)), cmds, nil, nil
}

func (s *Satellite) cmdGetName(cscp.Message) (string, any, map[string]any, error) {
	return s.id.Name, nil, nil, nil
}

func (s *Satellite) cmdGetVersion(cscp.Message) (string, any, map[string]any, error) {
	return Version, nil, nil, nil
}

func (s *Satellite) cmdGetState(cscp.Message) (string, any, map[string]any, error) {
	return s.machine.State().String(), nil, nil, nil
}

func (s *Satellite) cmdGetStatus(cscp.Message) (string, any, map[string]any, error) {
	status := fmt.Sprintf("%s is %s", s.id, s.machine.State())
	return status, nil, nil, nil
}

func (s *Satellite) cmdGetRunID(cscp.Message) (string, any, map[string]any, error) {
	return s.runID, nil, nil, nil
}

func (s *Satellite) cmdShutdown(cscp.Message) (string, any, map[string]any, error) {
	s.tq.Push(func() {
		time.Sleep(500 * time.Millisecond)
		s.Shutdown()
	}, "cscp:shutdown")
	return fmt.Sprintf("%s queued for reentry", s.id.Name), nil, nil, nil
}

func (s *Satellite) cmdRegister(msg cscp.Message) (string, any, map[string]any, error) {
	payload, err := payloadAsString(msg)
	if err != nil {
		return "", nil, nil, err
	}
	var name, addr, port string
	if n, err := fmt.Sscanf(payload, "%s %s %s", &name, &addr, &port); err != nil || n != 3 {
		return "", nil, nil, fmt.Errorf("%w: expected \"name host port\", got %q", cscp.ErrIncomplete, payload)
	}
	endpoint := fmt.Sprintf("tcp://%s:%s", addr, port)
	s.tq.Push(func() {
		if err := s.hbChecker.Register(name, endpoint); err != nil {
			s.log.Error("failed to register heartbeat peer via CSCP", zap.String("peer", name), zap.Error(err))
		}
	}, "cscp:register")
	return "registering", name, nil, nil
}

func (s *Satellite) cmdInitialize(msg cscp.Message) (string, any, map[string]any, error) {
	cfg, err := payloadAsMap(msg)
	if err != nil {
		return "", nil, nil, err
	}
	reply, err := s.doInitialize(cfg)
	return reply, nil, nil, err
}

func (s *Satellite) cmdLaunch(msg cscp.Message) (string, any, map[string]any, error) {
	reply, err := s.doLaunch(msg.Payload)
	return reply, nil, nil, err
}

func (s *Satellite) cmdReconfigure(msg cscp.Message) (string, any, map[string]any, error) {
	cfg, err := payloadAsMap(msg)
	if err != nil {
		return "", nil, nil, err
	}
	reply, err := s.doReconfigure(cfg)
	return reply, nil, nil, err
}

func (s *Satellite) cmdLand(msg cscp.Message) (string, any, map[string]any, error) {
	reply, err := s.doLand(msg.Payload)
	return reply, nil, nil, err
}

func (s *Satellite) cmdStart(msg cscp.Message) (string, any, map[string]any, error) {
	runID, err := payloadAsString(msg)
	if err != nil {
		return "", nil, nil, err
	}
	reply, err := s.doStart(runID)
	return reply, nil, nil, err
}

func (s *Satellite) cmdStop(msg cscp.Message) (string, any, map[string]any, error) {
	reply, err := s.doStop(msg.Payload)
	return reply, nil, nil, err
}

func (s *Satellite) cmdInterrupt(msg cscp.Message) (string, any, map[string]any, error) {
	reply, err := s.doInterrupt(msg.Payload)
	return reply, nil, nil, err
}

func (s *Satellite) cmdRecover(cscp.Message) (string, any, map[string]any, error) {
	reply, err := s.doRecover()
	return reply, nil, nil, err
}
