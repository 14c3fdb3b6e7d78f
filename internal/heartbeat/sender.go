package heartbeat

import (
	"bytes"
	"fmt"
	"time"

	"github.com/pebbe/zmq4"
	"go.uber.org/zap"

	"github.com/constellation-daq/constellation-go/internal/fsm"
	"github.com/constellation-daq/constellation-go/internal/wire"
)

// DefaultInterval is the default period between heartbeat publications.
const DefaultInterval = time.Second

// StateFunc reads the satellite's current lifecycle state. Called from the
// sender's own goroutine on every tick, so it must be safe to call
// concurrently with whatever else reads/writes that state.
type StateFunc func() fsm.State

// Sender periodically publishes the satellite's state over a bound PUB
// socket, implementing the CHP wire protocol.
type Sender struct {
	log      *zap.Logger
	socket   *zmq4.Socket
	name     string
	state    StateFunc
	interval time.Duration
	port     int
}

// NewSender binds a PUB socket on interface:port (ephemeral when port is 0).
func NewSender(name, iface string, port int, interval time.Duration, state StateFunc, log *zap.Logger) (*Sender, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	sock, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, fmt.Errorf("create CHP socket: %w", err)
	}
	if port == 0 {
		boundPort, err := sock.BindToRandomPort(fmt.Sprintf("tcp://%s", iface))
		if err != nil {
			_ = sock.Close()
			return nil, fmt.Errorf("bind CHP socket to random port: %w", err)
		}
		port = boundPort
	} else if err := sock.Bind(fmt.Sprintf("tcp://%s:%d", iface, port)); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("bind CHP socket on %s:%d: %w", iface, port, err)
	}

	return &Sender{log: log, socket: sock, name: name, state: state, interval: interval, port: port}, nil
}

// Port returns the bound TCP port.
func (s *Sender) Port() int { return s.port }

// Run publishes a heartbeat every interval until stop is closed.
func (s *Sender) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			s.log.Info("heartbeat sender shutting down")
			_ = s.socket.Close()
			return
		case <-ticker.C:
			if err := s.publish(); err != nil {
				s.log.Error("failed to publish heartbeat", zap.Error(err))
			}
		}
	}
}

func (s *Sender) publish() error {
	var buf bytes.Buffer
	enc := wire.NewEncoder(&buf)
	if err := wire.EncodeHeader(enc, wire.Header{
		Protocol:  wire.ProtocolCHP,
		Sender:    s.name,
		Timestamp: time.Now(),
	}); err != nil {
		return fmt.Errorf("encode heartbeat header: %w", err)
	}
	if err := enc.EncodeUint8(uint8(s.state())); err != nil {
		return fmt.Errorf("encode heartbeat state: %w", err)
	}
	if err := enc.EncodeUint32(uint32(s.interval.Milliseconds())); err != nil {
		return fmt.Errorf("encode heartbeat interval: %w", err)
	}
	if _, err := s.socket.SendBytes(buf.Bytes(), 0); err != nil {
		return fmt.Errorf("send heartbeat: %w", err)
	}
	return nil
}

// Decode parses a heartbeat payload as published by Run.
func Decode(raw []byte) (sender string, state fsm.State, intervalMS uint32, ts time.Time, err error) {
	dec := wire.NewDecoder(raw)
	hdr, err := wire.DecodeHeader(dec, wire.ProtocolCHP)
	if err != nil {
		return "", 0, 0, time.Time{}, err
	}
	stateRaw, err := dec.DecodeUint8()
	if err != nil {
		return "", 0, 0, time.Time{}, fmt.Errorf("decode heartbeat state: %w", err)
	}
	interval, err := dec.DecodeUint32()
	if err != nil {
		return "", 0, 0, time.Time{}, fmt.Errorf("decode heartbeat interval: %w", err)
	}
	return hdr.Sender, fsm.State(stateRaw), interval, hdr.Timestamp, nil
}
