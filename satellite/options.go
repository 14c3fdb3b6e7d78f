package satellite

import (
	"time"

	"github.com/constellation-daq/constellation-go/internal/heartbeat"
)

// DefaultHeartbeatInterval is the heartbeat publish period used unless
// overridden with WithHeartbeatInterval.
const DefaultHeartbeatInterval = heartbeat.DefaultInterval

// Option configures a Satellite during New. Applied in order before any
// background thread starts.
type Option func(*Satellite)

// WithCommandPort binds the CSCP REP socket to a fixed port instead of an
// ephemeral one.
func WithCommandPort(port int) Option {
	return func(s *Satellite) { s.cmdPort = port }
}

// WithHeartbeatPort binds the CHP PUB socket to a fixed port.
func WithHeartbeatPort(port int) Option {
	return func(s *Satellite) { s.hbPort = port }
}

// WithMonitoringPort reserves the port a future monitoring plane (CMDP)
// would bind to. Not currently served; kept so the CHIRP MONITORING offer
// advertises a stable port even though nothing answers on it yet.
func WithMonitoringPort(port int) Option {
	return func(s *Satellite) { s.monPort = port }
}

// WithCHIRPPort overrides the UDP port CHIRP broadcasts/listens on.
func WithCHIRPPort(port int) Option {
	return func(s *Satellite) { s.chirpPort = port }
}

// WithHeartbeatInterval overrides the default ~1s heartbeat publish period.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Satellite) { s.hbInterval = d }
}

// WithLogLevel sets the zap log level (debug, info, warn, error). Defaults
// to "info".
func WithLogLevel(level string) Option {
	return func(s *Satellite) { s.logLevel = level }
}
