package protocol

import (
	"bytes"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	e := Envelope{
		Topic:     TopicStaticImage,
		Timestamp: "2026-07-30_01-00-00_AM",
		Message:   "08/08/2024, 12:56:36 am, 0",
		Data: &FilePayload{
			Filename: "frame0001.jpg",
			File:     []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01},
		},
	}

	encoded, err := e.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.Topic != e.Topic {
		t.Errorf("Topic = %q, want %q", decoded.Topic, e.Topic)
	}
	if decoded.Message != e.Message {
		t.Errorf("Message = %q, want %q", decoded.Message, e.Message)
	}
	if decoded.Data == nil {
		t.Fatal("Data = nil, want non-nil")
	}
	if decoded.Data.Filename != e.Data.Filename {
		t.Errorf("Filename = %q, want %q", decoded.Data.Filename, e.Data.Filename)
	}
	if !bytes.Equal(decoded.Data.File, e.Data.File) {
		t.Errorf("File = %x, want %x", decoded.Data.File, e.Data.File)
	}
}

func TestEnvelopeNoData(t *testing.T) {
	e := Envelope{Topic: TopicHi}
	encoded, err := e.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if bytes.Contains(encoded, []byte(`"data"`)) {
		t.Errorf("expected no data field, got %s", encoded)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Data != nil {
		t.Errorf("Data = %+v, want nil", decoded.Data)
	}
}
