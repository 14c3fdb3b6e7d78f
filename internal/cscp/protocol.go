// Package cscp implements the Constellation Satellite Control Protocol:
// a ZeroMQ REQ/REP command channel carrying typed verb/command/payload
// frames, and the CommandReceiver that dispatches them to registered
// satellite command handlers.
package cscp

import (
	"fmt"
	"time"
)

// Verb is the CSCP message-verb tag, fixed by the protocol.
type Verb uint8

// The seven CSCP verbs. REQUEST is sent by controllers; the rest are
// reply-only.
const (
	VerbRequest Verb = iota
	VerbSuccess
	VerbNotImplemented
	VerbIncomplete
	VerbInvalid
	VerbUnknown
	VerbError
)

func (v Verb) String() string {
	switch v {
	case VerbRequest:
		return "REQUEST"
	case VerbSuccess:
		return "SUCCESS"
	case VerbNotImplemented:
		return "NOTIMPLEMENTED"
	case VerbIncomplete:
		return "INCOMPLETE"
	case VerbInvalid:
		return "INVALID"
	case VerbUnknown:
		return "UNKNOWN"
	case VerbError:
		return "ERROR"
	default:
		return fmt.Sprintf("Verb(%d)", uint8(v))
	}
}

// Message is a decoded CSCP request or reply.
type Message struct {
	Verb      Verb
	Command   string // lower-cased; the command name on a request, the reply text on a reply
	FromHost  string
	Timestamp time.Time
	Meta      map[string]any
	Payload   any
}

func (m Message) String() string {
	has := "without a"
	if m.Payload != nil {
		has = "with a"
	}
	return fmt.Sprintf("message %q from %s (%s) received %s %s payload and meta %v",
		m.Command, m.FromHost, m.Verb, m.Timestamp, has, m.Meta)
}
