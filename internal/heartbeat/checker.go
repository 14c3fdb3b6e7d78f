package heartbeat

import (
	"fmt"
	"sync"
	"time"

	"github.com/pebbe/zmq4"
	"go.uber.org/zap"

	"github.com/constellation-daq/constellation-go/internal/fsm"
)

// FailureThreshold is the number of missed intervals (k in k×interval)
// after which a silent peer is considered failed.
const FailureThreshold = 3

type peer struct {
	socket    *zmq4.Socket
	interval  time.Duration
	lastSeen  time.Time
	lastState fsm.State
	reported  bool // failure already enqueued for this peer
}

// Checker subscribes to peer heartbeats discovered via CHIRP's HEARTBEAT
// service and periodically scans for silence or degraded remote state,
// enqueuing the appropriate local FSM reaction.
type Checker struct {
	log      *zap.Logger
	onSafe   func(peerName string) // peer reports SAFE -> local interrupt
	onFailed func(peerName string) // peer missing or reports ERROR -> local failure

	mu      sync.Mutex
	peers   map[string]*peer
	stopped bool
}

// NewChecker returns a Checker. onSafe and onFailed are invoked (from the
// checker's scan goroutine) when a registered peer is found to be in SAFE
// or failed/ERROR respectively; callers should enqueue these onto the task
// queue rather than act on them directly.
func NewChecker(onSafe, onFailed func(peerName string), log *zap.Logger) *Checker {
	return &Checker{
		log:      log,
		onSafe:   onSafe,
		onFailed: onFailed,
		peers:    map[string]*peer{},
	}
}

// Register subscribes to a newly discovered HEARTBEAT peer at endpoint
// (e.g. "tcp://10.0.0.5:61234").
func (c *Checker) Register(name, endpoint string) error {
	sock, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		return fmt.Errorf("create heartbeat subscriber for %s: %w", name, err)
	}
	if err := sock.Connect(endpoint); err != nil {
		_ = sock.Close()
		return fmt.Errorf("connect heartbeat subscriber to %s: %w", endpoint, err)
	}
	if err := sock.SetSubscribe(""); err != nil {
		_ = sock.Close()
		return fmt.Errorf("subscribe heartbeat socket for %s: %w", name, err)
	}

	c.mu.Lock()
	c.peers[name] = &peer{socket: sock, interval: DefaultInterval, lastSeen: time.Now()}
	c.mu.Unlock()
	c.log.Info("registered heartbeat peer", zap.String("peer", name), zap.String("endpoint", endpoint))
	return nil
}

// Unregister closes and removes a peer, e.g. on an explicit DEPART.
func (c *Checker) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.peers[name]; ok {
		_ = p.socket.Close()
		delete(c.peers, name)
	}
}

// StartAll begins polling every registered peer for heartbeat frames. Must
// be called after Register; safe to call once per launch.
func (c *Checker) StartAll(stop <-chan struct{}) {
	go c.pollLoop(stop)
	go c.scanLoop(stop)
}

// Stop closes every peer socket and halts polling/scanning.
func (c *Checker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for name, p := range c.peers {
		_ = p.socket.Close()
		delete(c.peers, name)
	}
}

func (c *Checker) pollLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.pollOnce()
		}
	}
}

func (c *Checker) pollOnce() {
	c.mu.Lock()
	snapshot := make(map[string]*peer, len(c.peers))
	for k, v := range c.peers {
		snapshot[k] = v
	}
	c.mu.Unlock()

	for name, p := range snapshot {
		raw, err := p.socket.RecvBytes(zmq4.DONTWAIT)
		if err != nil {
			continue
		}
		_, state, intervalMS, _, err := Decode(raw)
		if err != nil {
			c.log.Warn("malformed heartbeat", zap.String("peer", name), zap.Error(err))
			continue
		}
		c.mu.Lock()
		if live, ok := c.peers[name]; ok {
			live.lastSeen = time.Now()
			live.lastState = state
			live.reported = false
			if intervalMS > 0 {
				live.interval = time.Duration(intervalMS) * time.Millisecond
			}
		}
		c.mu.Unlock()
	}
}

func (c *Checker) scanLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.scanOnce()
		}
	}
}

func (c *Checker) scanOnce() {
	now := time.Now()
	c.mu.Lock()
	type action struct {
		name   string
		safe   bool
		failed bool
	}
	var actions []action
	for name, p := range c.peers {
		if p.reported {
			continue
		}
		switch {
		case p.lastState == fsm.Error:
			p.reported = true
			actions = append(actions, action{name: name, failed: true})
		case p.lastState == fsm.Safe:
			p.reported = true
			actions = append(actions, action{name: name, safe: true})
		case now.Sub(p.lastSeen) > time.Duration(FailureThreshold)*p.interval:
			p.reported = true
			actions = append(actions, action{name: name, failed: true})
		}
	}
	c.mu.Unlock()

	for _, a := range actions {
		switch {
		case a.failed:
			c.log.Warn("heartbeat peer considered failed", zap.String("peer", a.name))
			if c.onFailed != nil {
				c.onFailed(a.name)
			}
		case a.safe:
			c.log.Warn("heartbeat peer reported SAFE", zap.String("peer", a.name))
			if c.onSafe != nil {
				c.onSafe(a.name)
			}
		}
	}
}
