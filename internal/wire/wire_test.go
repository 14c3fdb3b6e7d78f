package wire

import (
	"bytes"
	"testing"
	"time"
)

func TestEncodeDecodeHeaderRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	want := Header{
		Protocol:  ProtocolCSCP,
		Sender:    "satellite_demo",
		Timestamp: time.Now().Round(time.Millisecond),
		Meta:      map[string]any{"key": "value"},
	}
	if err := EncodeHeader(enc, want); err != nil {
		t.Fatalf("EncodeHeader: %v", err)
	}

	dec := NewDecoder(buf.Bytes())
	got, err := DecodeHeader(dec, ProtocolCSCP)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if got.Sender != want.Sender {
		t.Fatalf("sender mismatch: got %q, want %q", got.Sender, want.Sender)
	}
	if !got.Timestamp.Equal(want.Timestamp) {
		t.Fatalf("timestamp mismatch: got %v, want %v", got.Timestamp, want.Timestamp)
	}
}

func TestDecodeHeaderRejectsWrongProtocol(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := EncodeHeader(enc, Header{Protocol: ProtocolCHIRP, Sender: "x", Timestamp: time.Now()}); err != nil {
		t.Fatalf("EncodeHeader: %v", err)
	}
	dec := NewDecoder(buf.Bytes())
	if _, err := DecodeHeader(dec, ProtocolCSCP); err == nil {
		t.Fatal("expected protocol mismatch error")
	}
}
