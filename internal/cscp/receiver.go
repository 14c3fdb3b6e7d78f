package cscp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pebbe/zmq4"
	"go.uber.org/zap"
)

// Handler implements one CSCP command. It returns a human-readable reply
// string, an optional payload, and optional reply meta, or an error.
//
// ErrNotImplemented and ErrIncomplete carry special meaning: the Receiver
// maps them to the NOTIMPLEMENTED and INCOMPLETE verbs respectively. Any
// other error maps to INVALID.
type Handler func(Message) (reply string, payload any, meta map[string]any, err error)

// AllowedFunc reports whether a command may run given the satellite's
// current state. Registered alongside a Handler; consulted before it runs.
type AllowedFunc func(Message) bool

// ErrNotImplemented marks a Handler error as CSCP NOTIMPLEMENTED.
var ErrNotImplemented = errors.New("command not implemented")

// ErrIncomplete marks a Handler error as CSCP INCOMPLETE (e.g. a required
// argument was missing from the payload).
var ErrIncomplete = errors.New("incomplete command arguments")

type registration struct {
	handler Handler
	allowed AllowedFunc
	doc     string
	hidden  bool
}

// Registry holds the commands a Receiver will dispatch. Safe for
// registration during setup only; not safe to mutate concurrently with
// Receiver.Run.
type Registry struct {
	cmds map[string]registration
}

// NewRegistry returns an empty command Registry.
func NewRegistry() *Registry {
	return &Registry{cmds: map[string]registration{}}
}

// Register adds a command under name (matched case-insensitively on the
// wire). allowed may be nil, meaning the command is always allowed. hidden
// commands are omitted from get_commands but included in _get_commands.
func (r *Registry) Register(name string, h Handler, allowed AllowedFunc, doc string) {
	name = strings.ToLower(name)
	r.cmds[name] = registration{handler: h, allowed: allowed, doc: doc, hidden: name[0] == '_'}
}

// Commands returns the public (non-underscore) command names and their doc
// strings.
func (r *Registry) Commands() map[string]string {
	out := map[string]string{}
	for name, reg := range r.cmds {
		if !reg.hidden {
			out[name] = reg.doc
		}
	}
	return out
}

// HiddenCommands returns the underscore-prefixed command names and their
// doc strings.
func (r *Registry) HiddenCommands() map[string]string {
	out := map[string]string{}
	for name, reg := range r.cmds {
		if reg.hidden {
			out[name] = reg.doc
		}
	}
	return out
}

// Receiver is the CSCP command channel: a bound REP socket plus the
// registry of handlers it dispatches incoming REQUESTs to.
type Receiver struct {
	log      *zap.Logger
	socket   *zmq4.Socket
	tx       *transmitter
	registry *Registry
	port     int
}

// NewReceiver binds a REP socket on interface:port (an ephemeral port when
// port is 0) and returns a Receiver ready to serve reg.
func NewReceiver(name, iface string, port int, reg *Registry, log *zap.Logger) (*Receiver, error) {
	sock, err := zmq4.NewSocket(zmq4.REP)
	if err != nil {
		return nil, fmt.Errorf("create CSCP socket: %w", err)
	}
	endpoint := fmt.Sprintf("tcp://%s:%d", iface, port)
	if port == 0 {
		boundPort, err := sock.BindToRandomPort(fmt.Sprintf("tcp://%s", iface))
		if err != nil {
			_ = sock.Close()
			return nil, fmt.Errorf("bind CSCP socket to random port: %w", err)
		}
		port = boundPort
	} else if err := sock.Bind(endpoint); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("bind CSCP socket on %s: %w", endpoint, err)
	}

	log.Info("satellite listening on command port", zap.Int("port", port))
	return &Receiver{
		log:      log,
		socket:   sock,
		tx:       newTransmitter(name, sock),
		registry: reg,
		port:     port,
	}, nil
}

// Port returns the bound TCP port.
func (r *Receiver) Port() int { return r.port }

// Run services CSCP requests until stop is closed. It is intended to run on
// its own goroutine; handler bodies execute synchronously on that same
// goroutine, so handlers that must touch shared satellite state should
// enqueue onto the task queue rather than mutate directly.
func (r *Receiver) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			r.log.Info("command receiver shutting down")
			_ = r.socket.Close()
			return
		default:
		}

		req, ok, err := r.tx.recvMessage(zmq4.DONTWAIT)
		if err != nil {
			r.log.Error("CSCP receive error", zap.Error(err))
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if !ok {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		r.handle(req)
	}
}

func (r *Receiver) handle(req Message) {
	if req.Verb != VerbRequest {
		r.log.Error("received malformed request", zap.Stringer("verb", req.Verb))
		r.reply(fmt.Sprintf("received malformed request with msg verb: %s", req.Verb), VerbInvalid, nil, nil)
		return
	}

	reg, known := r.registry.cmds[req.Command]
	if !known {
		r.log.Error("unknown command", zap.String("command", req.Command))
		r.reply(fmt.Sprintf("unknown command: %s", req.Command), VerbUnknown, nil, nil)
		return
	}

	if reg.allowed != nil && !reg.allowed(req) {
		r.log.Error("command not allowed in current state", zap.String("command", req.Command))
		r.reply("command not allowed (in current state)", VerbInvalid, nil, nil)
		return
	}

	r.log.Debug("dispatching command", zap.String("command", req.Command))
	reply, payload, meta, err := reg.handler(req)
	switch {
	case errors.Is(err, ErrNotImplemented):
		r.log.Error("command not implemented", zap.String("command", req.Command))
		r.reply(fmt.Sprintf("not implemented: %v", err), VerbNotImplemented, nil, nil)
	case errors.Is(err, ErrIncomplete):
		r.log.Error("command missing arguments", zap.String("command", req.Command), zap.Error(err))
		r.reply(fmt.Sprintf("incomplete: %v", err), VerbIncomplete, nil, nil)
	case err != nil:
		r.log.Error("command failed", zap.String("command", req.Command), zap.Error(err))
		r.reply(fmt.Sprintf("exception: %v", err), VerbInvalid, nil, nil)
	case reply == "":
		r.log.Error("command returned nothing", zap.String("command", req.Command))
		r.reply("command returned nothing", VerbIncomplete, nil, nil)
	default:
		r.log.Debug("command succeeded", zap.String("command", req.Command), zap.String("reply", reply))
		r.reply(reply, VerbSuccess, payload, meta)
	}
}

func (r *Receiver) reply(msg string, verb Verb, payload any, meta map[string]any) {
	if err := r.tx.sendReply(msg, verb, payload, meta); err != nil {
		r.log.Error("failed to send CSCP reply", zap.Error(err))
	}
}
