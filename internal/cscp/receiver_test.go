package cscp

import (
	"fmt"
	"testing"

	"github.com/pebbe/zmq4"
	"go.uber.org/zap"
)

func TestRegistryHiddenVsPublicCommands(t *testing.T) {
	reg := NewRegistry()
	reg.Register("get_state", func(Message) (string, any, map[string]any, error) { return "NEW", nil, nil, nil }, nil, "current FSM state")
	reg.Register("_register", func(Message) (string, any, map[string]any, error) { return "ok", nil, nil, nil }, nil, "internal peer registration")

	pub := reg.Commands()
	if _, ok := pub["get_state"]; !ok {
		t.Fatal("expected get_state in public commands")
	}
	if _, ok := pub["_register"]; ok {
		t.Fatal("did not expect _register in public commands")
	}

	hidden := reg.HiddenCommands()
	if _, ok := hidden["_register"]; !ok {
		t.Fatal("expected _register in hidden commands")
	}
}

// newLoopbackPair wires a REP-backed Receiver to a bare REQ socket connected
// to it over tcp loopback, returning both plus a teardown func.
func newLoopbackPair(t *testing.T, reg *Registry) (*Receiver, *transmitter, func()) {
	t.Helper()
	recv, err := NewReceiver("test_sat", "127.0.0.1", 0, reg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}

	req, err := zmq4.NewSocket(zmq4.REQ)
	if err != nil {
		t.Fatalf("NewSocket(REQ): %v", err)
	}
	if err := req.Connect(fmt.Sprintf("tcp://127.0.0.1:%d", recv.Port())); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	tx := newTransmitter("test_ctrl", req)
	return recv, tx, func() {
		_ = req.Close()
		_ = recv.socket.Close()
	}
}

func roundtrip(t *testing.T, recv *Receiver, tx *transmitter, command string, payload any) Message {
	t.Helper()
	if err := tx.sendRequest(command, payload, nil); err != nil {
		t.Fatalf("sendRequest: %v", err)
	}
	req, ok, err := recv.tx.recvMessage(0)
	if err != nil || !ok {
		t.Fatalf("recvMessage on receiver side: ok=%v err=%v", ok, err)
	}
	recv.handle(req)

	reply, ok, err := tx.recvMessage(0)
	if err != nil || !ok {
		t.Fatalf("recvMessage on requester side: ok=%v err=%v", ok, err)
	}
	return reply
}

func TestUnknownCommandYieldsUnknownVerb(t *testing.T) {
	reg := NewRegistry()
	recv, tx, teardown := newLoopbackPair(t, reg)
	defer teardown()

	reply := roundtrip(t, recv, tx, "nonexistent", nil)
	if reply.Verb != VerbUnknown {
		t.Fatalf("expected UNKNOWN, got %s", reply.Verb)
	}
}

func TestDisallowedCommandYieldsInvalidVerb(t *testing.T) {
	reg := NewRegistry()
	reg.Register("launch", func(Message) (string, any, map[string]any, error) { return "launching", nil, nil, nil },
		func(Message) bool { return false }, "launch the satellite")
	recv, tx, teardown := newLoopbackPair(t, reg)
	defer teardown()

	reply := roundtrip(t, recv, tx, "launch", nil)
	if reply.Verb != VerbInvalid {
		t.Fatalf("expected INVALID for disallowed command, got %s", reply.Verb)
	}
}

func TestNotImplementedErrorMapsToNotImplementedVerb(t *testing.T) {
	reg := NewRegistry()
	reg.Register("start", func(Message) (string, any, map[string]any, error) { return "", nil, nil, ErrNotImplemented },
		nil, "start a run")
	recv, tx, teardown := newLoopbackPair(t, reg)
	defer teardown()

	reply := roundtrip(t, recv, tx, "start", nil)
	if reply.Verb != VerbNotImplemented {
		t.Fatalf("expected NOTIMPLEMENTED, got %s", reply.Verb)
	}
}

func TestSuccessfulCommandEchoesPayload(t *testing.T) {
	reg := NewRegistry()
	reg.Register("get_name", func(Message) (string, any, map[string]any, error) { return "ok", "test_sat", nil, nil },
		nil, "satellite name")
	recv, tx, teardown := newLoopbackPair(t, reg)
	defer teardown()

	reply := roundtrip(t, recv, tx, "get_name", nil)
	if reply.Verb != VerbSuccess {
		t.Fatalf("expected SUCCESS, got %s", reply.Verb)
	}
	if reply.Payload != "test_sat" {
		t.Fatalf("expected echoed payload %q, got %v", "test_sat", reply.Payload)
	}
}

func TestMalformedVerbIsRejectedAsInvalid(t *testing.T) {
	reg := NewRegistry()
	recv, tx, teardown := newLoopbackPair(t, reg)
	defer teardown()

	if err := tx.sendReply("not a request", VerbSuccess, nil, nil); err != nil {
		t.Fatalf("sendReply: %v", err)
	}
	req, ok, err := recv.tx.recvMessage(0)
	if err != nil || !ok {
		t.Fatalf("recvMessage: ok=%v err=%v", ok, err)
	}
	recv.handle(req)

	reply, ok, err := tx.recvMessage(0)
	if err != nil || !ok {
		t.Fatalf("recvMessage reply: ok=%v err=%v", ok, err)
	}
	if reply.Verb != VerbInvalid {
		t.Fatalf("expected INVALID for malformed verb, got %s", reply.Verb)
	}
}
