package satellite

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/constellation-daq/constellation-go/internal/config"
	"github.com/constellation-daq/constellation-go/internal/fsm"
)

// stopTimeout bounds how long a stop/interrupt waits for the acquisition
// goroutine to observe cancellation before driving the FSM to ERROR.
const stopTimeout = 10 * time.Second

// reinitializeJoinTimeout bounds the shorter wait applied when
// re-initializing finds a leftover acquisition goroutine from a prior run.
const reinitializeJoinTimeout = 2 * time.Second

// runTransition is the shared wrapper: it verifies the event is allowed
// from the current state, moves into the transitional state, runs body,
// and on success completes to the target steady state with body's reply
// (augmented with any unused configuration keys); on error, or a panic in
// body, it drives the FSM into ERROR and returns the error to the caller. A
// panic in body never escapes runTransition.
func (s *Satellite) runTransition(event fsm.Event, cfg *config.Config, body func() (string, error)) (string, error) {
	if _, err := s.machine.Begin(event); err != nil {
		return "", err
	}

	reply, err := func() (reply string, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic during %s: %v", event, r)
			}
		}()
		return body()
	}()

	if err != nil {
		s.log.Error("transition failed", zap.Stringer("event", event), zap.Error(err))
		s.wrapFailure(err.Error())
		return "", err
	}

	if cfg != nil && cfg.HasUnusedValues() {
		unused := cfg.UnusedKeys()
		for _, key := range unused {
			s.log.Warn("satellite ignored configuration value", zap.String("key", key))
		}
		reply += " IGNORED parameters: " + strings.Join(unused, ",")
	}

	s.machine.Complete(event)
	s.log.Info("transition completed", zap.Stringer("event", event), zap.Stringer("state", s.machine.State()))
	return reply, nil
}

// doInitialize implements the 'initializing' transition: join any leftover
// acquisition goroutine from a previous run (bounded by
// reinitializeJoinTimeout), install the new configuration, and call the
// device hook.
func (s *Satellite) doInitialize(raw map[string]any) (string, error) {
	if s.acq != nil {
		s.acq.cancel()
		select {
		case <-s.acq.done:
		case <-time.After(reinitializeJoinTimeout):
			return "", errors.New("timed out waiting for leftover acquisition goroutine to stop")
		}
		s.acq = nil
	}

	cfg := config.New(raw)
	return s.runTransition(fsm.EventInitialize, cfg, func() (string, error) {
		s.cfg = cfg
		return s.hooks.DoInitializing(cfg)
	})
}

// doLaunch implements the 'launching' transition: prepare for acquisition
// and start the heartbeat checker.
func (s *Satellite) doLaunch(payload any) (string, error) {
	return s.runTransition(fsm.EventLaunch, nil, func() (string, error) {
		s.hbChecker.StartAll(s.stopAll)
		return s.hooks.DoLaunching(payload)
	})
}

// doReconfigure implements the 'reconfigure' transition: merge into the
// existing configuration, preserving used-key tracking for keys untouched
// by the update.
func (s *Satellite) doReconfigure(raw map[string]any) (string, error) {
	if s.cfg == nil {
		return "", errors.New("cannot reconfigure before initialize")
	}
	s.cfg.Update(raw)
	return s.runTransition(fsm.EventReconfigure, s.cfg, func() (string, error) {
		return s.hooks.DoReconfigure(s.cfg)
	})
}

// doLand implements the 'landing' transition: stop the heartbeat checker
// and return to INIT.
func (s *Satellite) doLand(payload any) (string, error) {
	return s.runTransition(fsm.EventLand, nil, func() (string, error) {
		s.hbChecker.Stop()
		return s.hooks.DoLanding(payload)
	})
}

// doStop implements the 'stopping' transition: signal the acquisition
// goroutine to stop and wait up to stopTimeout for it to finish.
func (s *Satellite) doStop(payload any) (string, error) {
	return s.runTransition(fsm.EventStop, nil, func() (string, error) {
		if s.acq == nil {
			return "", errors.New("stop requested but no acquisition is running")
		}
		s.acq.cancel()
		select {
		case runErr := <-s.acq.done:
			s.acq = nil
			if runErr != nil {
				return "", fmt.Errorf("acquisition goroutine reported an error: %w", runErr)
			}
		case <-time.After(stopTimeout):
			return "", errors.New("timed out waiting for acquisition to stop")
		}
		return s.hooks.DoStopping(payload)
	})
}

// doStart implements the 'start' transition into RUN: invoke the starting
// hook, complete the transitional state, then launch the acquisition
// goroutine running Hooks.DoRun for the duration of RUN.
func (s *Satellite) doStart(runID string) (string, error) {
	if _, err := s.machine.Begin(fsm.EventStart); err != nil {
		return "", err
	}

	s.runID = runID
	startReply, err := s.hooks.DoStarting(runID)
	if err != nil {
		s.log.Error("start transition failed", zap.Error(err))
		s.wrapFailure(err.Error())
		return "", err
	}
	s.machine.Complete(fsm.EventStart)
	s.log.Info("transition completed", zap.String("event", "start"), zap.Stringer("state", s.machine.State()))

	acq, ctx := newAcquisitionContext()
	s.acq = acq
	s.goGuarded("acquisition", func() {
		_, runErr := s.hooks.DoRun(ctx, runID)
		acq.done <- runErr
	})

	return startReply, nil
}

// doInterrupt implements the 'interrupting' transition into SAFE: stop any
// running acquisition, stop the heartbeat checker, and invoke the device
// interrupt hook.
func (s *Satellite) doInterrupt(payload any) (string, error) {
	return s.runTransition(fsm.EventInterrupt, nil, func() (string, error) {
		if s.acq != nil {
			s.acq.cancel()
			select {
			case <-s.acq.done:
			case <-time.After(stopTimeout):
				return "", errors.New("timed out waiting for acquisition to stop during interrupt")
			}
			s.acq = nil
		}
		s.hbChecker.Stop()
		return s.hooks.DoInterrupting()
	})
}

// doRecover implements the 'recovering' transition: the SAFE -> INIT
// transition has no required side effects beyond the wrapper itself.
func (s *Satellite) doRecover() (string, error) {
	return s.runTransition(fsm.EventRecover, nil, func() (string, error) {
		return "Recovered.", nil
	})
}

// wrapFailure drives the FSM into ERROR, stopping the heartbeat checker and
// any running acquisition first. It never panics or returns an error: a
// failure handler that itself fails must not block the transition to
// ERROR.
func (s *Satellite) wrapFailure(reason string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic during failure handling", zap.Any("panic", r))
		}
	}()

	s.hbChecker.Stop()
	if s.acq != nil {
		s.acq.cancel()
		select {
		case <-s.acq.done:
		case <-time.After(time.Second):
		}
		s.acq = nil
	}

	if msg, err := s.hooks.FailGracefully(); err != nil {
		s.log.Error("fail_gracefully hook returned an error", zap.Error(err))
	} else {
		s.log.Warn("satellite entering ERROR", zap.String("reason", reason), zap.String("message", msg))
	}
	s.machine.Fail()
}
