package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestAckRoundTrip(t *testing.T) {
	cases := []Ack{AckOK, AckNACK}
	for _, want := range cases {
		var buf bytes.Buffer
		if err := WriteAck(&buf, want); err != nil {
			t.Fatalf("WriteAck(%v): %v", want, err)
		}
		got, err := ReadAck(&buf)
		if err != nil {
			t.Fatalf("ReadAck: %v", err)
		}
		if got != want {
			t.Errorf("ReadAck = %v, want %v", got, want)
		}
	}
}

func TestReadAckInvalid(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("XYZZ")

	_, err := ReadAck(&buf)
	if !errors.Is(err, ErrInvalidAck) {
		t.Fatalf("err = %v, want ErrInvalidAck", err)
	}
}

// TestReadAckShortRead documents the §9/open-question-1 resolution: the
// original sends exactly 3 bytes for ACK, and a Read that only sees those 3
// bytes must still match, because no 4th byte is ever coming.
func TestReadAckShortRead(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("ACK") // exactly 3 bytes, no trailing byte

	got, err := ReadAck(&buf)
	if err != nil {
		t.Fatalf("ReadAck: %v", err)
	}
	if got != AckOK {
		t.Errorf("ReadAck = %v, want AckOK", got)
	}
}
