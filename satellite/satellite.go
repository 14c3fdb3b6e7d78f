// Package satellite is the composition root: it wires together CHIRP
// discovery, the CSCP command channel, the lifecycle FSM, the task queue,
// and the heartbeat sender/checker into one controllable process.
package satellite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/constellation-daq/constellation-go/internal/chirp"
	"github.com/constellation-daq/constellation-go/internal/config"
	"github.com/constellation-daq/constellation-go/internal/cscp"
	"github.com/constellation-daq/constellation-go/internal/fsm"
	"github.com/constellation-daq/constellation-go/internal/heartbeat"
	"github.com/constellation-daq/constellation-go/internal/logx"
	"github.com/constellation-daq/constellation-go/internal/queue"
)

// Satellite is a controllable Constellation endpoint: the composition of
// BroadcastManager, CommandReceiver, FSM, task queue, and heartbeat
// sender/checker.
type Satellite struct {
	id       Identity
	hostUUID uuid.UUID
	log      *zap.Logger
	hooks    Hooks

	machine *fsm.Machine
	tq      *queue.Queue

	chirpMgr *chirp.Manager
	cscpReg  *cscp.Registry
	cscpRecv *cscp.Receiver
	hbSender *heartbeat.Sender
	hbChecker *heartbeat.Checker

	cfg   *config.Config
	runID string
	acq   *acquisitionContext

	stopAll chan struct{}

	cmdPort    int
	hbPort     int
	monPort    int
	chirpPort  int
	hbInterval time.Duration
	logLevel   string
}

// New constructs a Satellite and binds its sockets, but does not yet start
// any background goroutine or broadcast its presence; call Run for that.
func New(name, group, iface string, hooks Hooks, opts ...Option) (*Satellite, error) {
	if hooks == nil {
		hooks = DefaultHooks{}
	}

	s := &Satellite{
		id:       Identity{Name: name, Group: group, Interface: iface},
		hostUUID: uuid.New(),
		hooks:    hooks,
		machine:  fsm.NewMachine(),
		tq:       queue.New(),
		stopAll:  make(chan struct{}),
		logLevel: "info",
	}
	for _, opt := range opts {
		opt(s)
	}

	log, err := logx.New(name, s.logLevel)
	if err != nil {
		return nil, fmt.Errorf("set up logger: %w", err)
	}
	s.log = log

	s.cscpReg = cscp.NewRegistry()
	s.registerStandardCommands()

	cscpRecv, err := cscp.NewReceiver(name, iface, s.cmdPort, s.cscpReg, logx.Named(log, "CSCP"))
	if err != nil {
		return nil, fmt.Errorf("set up command receiver: %w", err)
	}
	s.cscpRecv = cscpRecv
	s.cmdPort = cscpRecv.Port()

	hbSender, err := heartbeat.NewSender(name, iface, s.hbPort, s.hbInterval, s.machine.State, logx.Named(log, "CHP"))
	if err != nil {
		return nil, fmt.Errorf("set up heartbeat sender: %w", err)
	}
	s.hbSender = hbSender
	s.hbPort = hbSender.Port()

	s.hbChecker = heartbeat.NewChecker(s.onPeerSafe, s.onPeerFailed, logx.Named(log, "CHP"))

	chirpMgr, err := chirp.New(s.hostUUID, group, iface, s.chirpPort, s.tq, logx.Named(log, "CHIRP"))
	if err != nil {
		return nil, fmt.Errorf("set up CHIRP broadcast manager: %w", err)
	}
	s.chirpMgr = chirpMgr
	s.chirpMgr.RegisterOffer(chirp.ServiceControl, uint16(s.cmdPort))
	s.chirpMgr.RegisterOffer(chirp.ServiceHeartbeat, uint16(s.hbPort))
	if s.monPort != 0 {
		s.chirpMgr.RegisterOffer(chirp.ServiceMonitoring, uint16(s.monPort))
	}
	s.chirpMgr.RegisterRequest(chirp.ServiceHeartbeat, s.onHeartbeatPeerDiscovered)

	log.Info("satellite ready to launch", zap.Stringer("identity", s.id))
	return s, nil
}

// goGuarded launches fn on its own goroutine, recovering any panic and
// driving the FSM into ERROR instead of crashing the process — the Go
// analogue of installing a global thread-exception hook.
func (s *Satellite) goGuarded(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("background goroutine panicked", zap.String("goroutine", name), zap.Any("panic", r))
				s.wrapFailure(fmt.Sprintf("goroutine %s panicked: %v", name, r))
			}
		}()
		fn()
	}()
}

// Run broadcasts this satellite's presence, starts every background
// goroutine, and then runs the task loop until Shutdown is requested or the
// process receives a request to reenter. It blocks until shutdown.
func (s *Satellite) Run() {
	discoveryCtx, cancelDiscovery := context.WithCancel(context.Background())
	defer cancelDiscovery()

	s.goGuarded("chirp-listener", func() { s.chirpMgr.Run(discoveryCtx, s.hostUUID) })
	s.goGuarded("cscp-receiver", func() { s.cscpRecv.Run(s.stopAll) })
	s.goGuarded("heartbeat-sender", func() { s.hbSender.Run(s.stopAll) })

	s.chirpMgr.BroadcastOffers(nil)

	s.taskLoop()
}

// taskLoop sequentially executes tasks queued by CHIRP, CSCP, or the
// heartbeat checker. It is the only goroutine allowed to mutate FSM state
// or configuration directly.
func (s *Satellite) taskLoop() {
	for {
		select {
		case <-s.stopAll:
			return
		default:
		}

		task, ok := s.tq.Pop(500 * time.Millisecond)
		if !ok {
			continue
		}
		s.runTask(task)
	}
}

func (s *Satellite) runTask(task queue.Task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task panicked", zap.String("task", task.Desc), zap.Any("panic", r))
		}
	}()
	task.Fn()
}

// Shutdown stops every background goroutine and unblocks Run. Equivalent to
// the upstream reentry() sequence: if the satellite isn't in a state that
// permits a clean exit, it is driven to ERROR first.
func (s *Satellite) Shutdown() {
	switch s.machine.State() {
	case fsm.New, fsm.Init, fsm.Safe, fsm.Error:
	default:
		s.log.Info("performing controlled re-entry and self-destruction")
		s.wrapFailure("controlled re-entry")
	}
	s.tq.Close()
	close(s.stopAll)
	s.hbChecker.Stop()
	s.chirpMgr.BroadcastDepart()
}

func (s *Satellite) onPeerSafe(peerName string) {
	s.tq.Push(func() {
		s.log.Warn("peer reported SAFE, interrupting locally", zap.String("peer", peerName))
		s.doInterrupt(nil)
	}, "heartbeat:peer-safe")
}

func (s *Satellite) onPeerFailed(peerName string) {
	s.tq.Push(func() {
		s.wrapFailure(fmt.Sprintf("heartbeat peer %s failed or went silent", peerName))
	}, "heartbeat:peer-failed")
}

func (s *Satellite) onHeartbeatPeerDiscovered(svc chirp.DiscoveredService) {
	name := fmt.Sprintf("%s:%d", svc.HostUUID, svc.Port)
	if !svc.Alive {
		s.hbChecker.Unregister(name)
		return
	}
	endpoint := fmt.Sprintf("tcp://%s:%d", svc.Address, svc.Port)
	if err := s.hbChecker.Register(name, endpoint); err != nil {
		s.log.Error("failed to register discovered heartbeat peer", zap.String("peer", name), zap.Error(err))
	}
}
