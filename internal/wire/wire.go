// Package wire implements the packed, tagged message header shared by the
// CHIRP and CSCP protocols.
//
// Every Constellation frame starts with the same four-field header used by
// the upstream Python implementation's protocol.py: a protocol tag, the
// sender's name, a timestamp, and a free-form metadata map. Component-
// specific fields follow the header in the same msgpack stream.
package wire

import (
	"bytes"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Protocol is the short string tag (protocol name plus a version byte)
// identifying a Constellation wire protocol.
type Protocol string

// Protocol tags. CDTP and CMDP are out of scope for this module but their
// tags are kept so a future data/monitoring plane can reuse this package.
const (
	ProtocolCDTP Protocol = "CDTP\x01"
	ProtocolCSCP Protocol = "CSCP\x01"
	ProtocolCMDP Protocol = "CMDP\x01"
	ProtocolCHP  Protocol = "CHP\x01"
	ProtocolCHIRP Protocol = "CHIRP\x01"
)

// Header is the common prefix of every Constellation message.
type Header struct {
	Protocol  Protocol
	Sender    string
	Timestamp time.Time
	Meta      map[string]any
}

// EncodeHeader appends the encoded header to an msgpack stream.
func EncodeHeader(enc *msgpack.Encoder, h Header) error {
	if h.Meta == nil {
		h.Meta = map[string]any{}
	}
	if err := enc.EncodeString(string(h.Protocol)); err != nil {
		return fmt.Errorf("encode protocol tag: %w", err)
	}
	if err := enc.EncodeString(h.Sender); err != nil {
		return fmt.Errorf("encode sender: %w", err)
	}
	if err := enc.EncodeTime(h.Timestamp); err != nil {
		return fmt.Errorf("encode timestamp: %w", err)
	}
	if err := enc.Encode(h.Meta); err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	return nil
}

// DecodeHeader reads a header off an msgpack stream and verifies the
// protocol tag matches want.
func DecodeHeader(dec *msgpack.Decoder, want Protocol) (Header, error) {
	var h Header
	tag, err := dec.DecodeString()
	if err != nil {
		return h, fmt.Errorf("decode protocol tag: %w", err)
	}
	if Protocol(tag) != want {
		return h, fmt.Errorf("malformed %s header: got protocol tag %q", want, tag)
	}
	h.Protocol = want
	if h.Sender, err = dec.DecodeString(); err != nil {
		return h, fmt.Errorf("decode sender: %w", err)
	}
	if h.Timestamp, err = dec.DecodeTime(); err != nil {
		return h, fmt.Errorf("decode timestamp: %w", err)
	}
	meta, err := dec.DecodeMap()
	if err != nil {
		return h, fmt.Errorf("decode meta: %w", err)
	}
	h.Meta = meta
	return h, nil
}

// NewEncoder returns an msgpack encoder writing into buf.
func NewEncoder(buf *bytes.Buffer) *msgpack.Encoder {
	return msgpack.NewEncoder(buf)
}

// NewDecoder returns an msgpack decoder reading b.
func NewDecoder(b []byte) *msgpack.Decoder {
	return msgpack.NewDecoder(bytes.NewReader(b))
}
