package chirp

import (
	"net"
	"testing"

	"github.com/google/uuid"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	host := uuid.New()
	raw, err := encode(host, "my_group", ServiceControl, TypeOffer, 23999)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	msg, err := decode(raw, net.ParseIP("192.0.2.1"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.HostUUID != host {
		t.Fatalf("host uuid mismatch: got %s, want %s", msg.HostUUID, host)
	}
	if msg.Group != "my_group" {
		t.Fatalf("group mismatch: got %q", msg.Group)
	}
	if msg.ServiceID != ServiceControl || msg.Type != TypeOffer || msg.Port != 23999 {
		t.Fatalf("unexpected decoded message: %+v", msg)
	}
}

func TestServiceIdentifierString(t *testing.T) {
	cases := map[ServiceIdentifier]string{
		ServiceControl:    "CONTROL",
		ServiceHeartbeat:  "HEARTBEAT",
		ServiceMonitoring: "MONITORING",
		ServiceData:       "DATA",
	}
	for id, want := range cases {
		if got := id.String(); got != want {
			t.Fatalf("ServiceIdentifier(%d).String() = %q, want %q", id, got, want)
		}
	}
}
