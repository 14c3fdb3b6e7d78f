package cscp

import (
	"bytes"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/constellation-daq/constellation-go/internal/wire"
)

// transmitter sends and receives CSCP frames over a REQ or REP socket. Every
// CSCP exchange is three frames: the shared wire header, (verb, command),
// and an optional payload.
type transmitter struct {
	name   string
	socket *zmq4.Socket
}

func newTransmitter(name string, socket *zmq4.Socket) *transmitter {
	return &transmitter{name: name, socket: socket}
}

// sendRequest dispatches a REQUEST for command with an optional payload.
func (t *transmitter) sendRequest(command string, payload any, meta map[string]any) error {
	return t.dispatch(command, VerbRequest, payload, meta)
}

// sendReply dispatches a reply of the given verb, e.g. the result of a
// command handler.
func (t *transmitter) sendReply(response string, verb Verb, payload any, meta map[string]any) error {
	return t.dispatch(response, verb, payload, meta)
}

func (t *transmitter) dispatch(msg string, verb Verb, payload any, meta map[string]any) error {
	var hdrBuf bytes.Buffer
	enc := wire.NewEncoder(&hdrBuf)
	if err := wire.EncodeHeader(enc, wire.Header{
		Protocol:  wire.ProtocolCSCP,
		Sender:    t.name,
		Timestamp: time.Now(),
		Meta:      meta,
	}); err != nil {
		return fmt.Errorf("encode CSCP header: %w", err)
	}

	var bodyBuf bytes.Buffer
	bodyEnc := msgpack.NewEncoder(&bodyBuf)
	if err := bodyEnc.EncodeUint8(uint8(verb)); err != nil {
		return fmt.Errorf("encode CSCP verb: %w", err)
	}
	if err := bodyEnc.EncodeString(msg); err != nil {
		return fmt.Errorf("encode CSCP message: %w", err)
	}

	frames := [][]byte{hdrBuf.Bytes(), bodyBuf.Bytes()}
	flags := zmq4.SNDMORE
	if payload == nil {
		if _, err := t.socket.SendBytes(frames[0], flags); err != nil {
			return fmt.Errorf("send CSCP header frame: %w", err)
		}
		if _, err := t.socket.SendBytes(frames[1], 0); err != nil {
			return fmt.Errorf("send CSCP body frame: %w", err)
		}
		return nil
	}

	var payloadBuf bytes.Buffer
	if err := msgpack.NewEncoder(&payloadBuf).Encode(payload); err != nil {
		return fmt.Errorf("encode CSCP payload: %w", err)
	}
	if _, err := t.socket.SendBytes(frames[0], flags); err != nil {
		return fmt.Errorf("send CSCP header frame: %w", err)
	}
	if _, err := t.socket.SendBytes(frames[1], flags); err != nil {
		return fmt.Errorf("send CSCP body frame: %w", err)
	}
	if _, err := t.socket.SendBytes(payloadBuf.Bytes(), 0); err != nil {
		return fmt.Errorf("send CSCP payload frame: %w", err)
	}
	return nil
}

// recvMessage reads one CSCP frame set. Under NOBLOCK, EAGAIN (no message
// waiting) is reported as (Message{}, false, nil), not an error.
func (t *transmitter) recvMessage(flags zmq4.Flag) (Message, bool, error) {
	frames, err := t.socket.RecvMessageBytes(flags)
	if err != nil {
		if errno, ok := err.(zmq4.Errno); ok && errno == zmq4.Errno(syscall.EAGAIN) {
			return Message{}, false, nil
		}
		return Message{}, false, fmt.Errorf("receive CSCP frames: %w", err)
	}
	if len(frames) < 2 {
		return Message{}, false, fmt.Errorf("malformed CSCP message: got %d frames", len(frames))
	}

	dec := wire.NewDecoder(frames[0])
	hdr, err := wire.DecodeHeader(dec, wire.ProtocolCSCP)
	if err != nil {
		return Message{}, false, err
	}

	bodyDec := msgpack.NewDecoder(bytes.NewReader(frames[1]))
	verbRaw, err := bodyDec.DecodeUint8()
	if err != nil {
		return Message{}, false, fmt.Errorf("decode CSCP verb: %w", err)
	}
	cmd, err := bodyDec.DecodeString()
	if err != nil {
		return Message{}, false, fmt.Errorf("decode CSCP command: %w", err)
	}
	verb := Verb(verbRaw)
	if verb > VerbError {
		return Message{}, false, fmt.Errorf("received invalid CSCP verb: %d", verbRaw)
	}

	msg := Message{
		Verb:      verb,
		Command:   strings.ToLower(cmd),
		FromHost:  hdr.Sender,
		Timestamp: hdr.Timestamp,
		Meta:      hdr.Meta,
	}

	if len(frames) > 2 && len(frames[2]) > 0 {
		var payload any
		if err := msgpack.NewDecoder(bytes.NewReader(frames[2])).Decode(&payload); err != nil {
			return Message{}, false, fmt.Errorf("decode CSCP payload: %w", err)
		}
		msg.Payload = payload
	}
	return msg, true, nil
}
