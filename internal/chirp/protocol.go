package chirp

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/constellation-daq/constellation-go/internal/wire"
)

// DefaultPort is the well-known UDP port CHIRP broadcasts on.
const DefaultPort = 7123

// ServiceIdentifier enumerates the well-known service kinds a satellite can
// offer or request discovery of.
type ServiceIdentifier uint8

// Known service identifiers. Stable across the wire; do not renumber.
const (
	ServiceControl ServiceIdentifier = iota
	ServiceHeartbeat
	ServiceMonitoring
	ServiceData
)

func (s ServiceIdentifier) String() string {
	switch s {
	case ServiceControl:
		return "CONTROL"
	case ServiceHeartbeat:
		return "HEARTBEAT"
	case ServiceMonitoring:
		return "MONITORING"
	case ServiceData:
		return "DATA"
	default:
		return fmt.Sprintf("ServiceIdentifier(%d)", uint8(s))
	}
}

// MessageType enumerates the three CHIRP verbs.
type MessageType uint8

// Wire codes for MessageType, fixed by the protocol.
const (
	TypeRequest MessageType = 1
	TypeOffer   MessageType = 2
	TypeDepart  MessageType = 3
)

func (t MessageType) String() string {
	switch t {
	case TypeRequest:
		return "REQUEST"
	case TypeOffer:
		return "OFFER"
	case TypeDepart:
		return "DEPART"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// Message is a decoded CHIRP datagram.
type Message struct {
	HostUUID  uuid.UUID
	Group     string
	ServiceID ServiceIdentifier
	Type      MessageType
	Port      uint16
	FromAddr  net.IP
}

// encode serializes a CHIRP message: the shared wire header (protocol tag,
// host UUID as sender, timestamp) followed by (group, service id, msg type,
// port).
func encode(hostUUID uuid.UUID, group string, sid ServiceIdentifier, mt MessageType, port uint16) ([]byte, error) {
	var buf bytes.Buffer
	enc := wire.NewEncoder(&buf)
	if err := wire.EncodeHeader(enc, wire.Header{
		Protocol:  wire.ProtocolCHIRP,
		Sender:    hostUUID.String(),
		Timestamp: time.Now(),
	}); err != nil {
		return nil, err
	}
	if err := enc.EncodeString(group); err != nil {
		return nil, fmt.Errorf("encode group: %w", err)
	}
	if err := enc.EncodeUint8(uint8(sid)); err != nil {
		return nil, fmt.Errorf("encode service id: %w", err)
	}
	if err := enc.EncodeUint8(uint8(mt)); err != nil {
		return nil, fmt.Errorf("encode msg type: %w", err)
	}
	if err := enc.EncodeUint16(port); err != nil {
		return nil, fmt.Errorf("encode port: %w", err)
	}
	return buf.Bytes(), nil
}

// decode parses a CHIRP datagram received from fromAddr.
func decode(raw []byte, fromAddr net.IP) (Message, error) {
	dec := wire.NewDecoder(raw)
	hdr, err := wire.DecodeHeader(dec, wire.ProtocolCHIRP)
	if err != nil {
		return Message{}, err
	}
	hostUUID, err := uuid.Parse(hdr.Sender)
	if err != nil {
		return Message{}, fmt.Errorf("malformed CHIRP sender uuid %q: %w", hdr.Sender, err)
	}
	group, err := dec.DecodeString()
	if err != nil {
		return Message{}, fmt.Errorf("decode group: %w", err)
	}
	sid, err := dec.DecodeUint8()
	if err != nil {
		return Message{}, fmt.Errorf("decode service id: %w", err)
	}
	mt, err := dec.DecodeUint8()
	if err != nil {
		return Message{}, fmt.Errorf("decode msg type: %w", err)
	}
	port, err := dec.DecodeUint16()
	if err != nil {
		return Message{}, fmt.Errorf("decode port: %w", err)
	}
	return Message{
		HostUUID:  hostUUID,
		Group:     group,
		ServiceID: ServiceIdentifier(sid),
		Type:      MessageType(mt),
		Port:      port,
		FromAddr:  fromAddr,
	}, nil
}
