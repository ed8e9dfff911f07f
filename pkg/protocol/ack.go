package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Ack is the acknowledgement sent after every application message.
type Ack int

const (
	AckOK Ack = iota
	AckNACK
)

// ErrInvalidAck is returned when the acknowledgement frame matches neither
// "ACK" nor "NACK".
var ErrInvalidAck = errors.New("protocol: invalid acknowledgement")

var (
	ackBytes  = []byte("ACK")
	nackBytes = []byte("NACK")
)

// WriteAck writes the literal ACK/NACK bytes for the given Ack value. The
// original sender writes exactly 3 bytes for ACK and 4 for NACK via a single
// sendall call; we match that exactly rather than padding, since the peer
// reads whatever is available (see ReadAck).
func WriteAck(w io.Writer, ack Ack) error {
	var payload []byte
	switch ack {
	case AckOK:
		payload = ackBytes
	case AckNACK:
		payload = nackBytes
	default:
		return fmt.Errorf("protocol: unknown ack value %d", ack)
	}
	_, err := w.Write(payload)
	return err
}

// ReadAck reads up to 4 bytes in one Read and requires the bytes returned to
// be exactly "ACK" or "NACK".
//
// The original sends 3 ASCII bytes for "ACK" via sendall but its peer always
// issues a recv(4). On a stream socket, recv (like Go's net.Conn.Read) returns
// whatever is currently available up to the requested size rather than
// blocking for an exact count, so this only ever works because nothing else
// is in flight on the connection at that instant - there is no real 4th byte.
// We reproduce that behavior faithfully: one Read into a 4-byte buffer,
// then match the n bytes returned exactly, instead of requiring an exact 4-byte
// frame that the original protocol never actually sends for ACK.
func ReadAck(r io.Reader) (Ack, error) {
	buf := make([]byte, 4)
	n, err := r.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("protocol: read ack: %w", err)
	}
	got := buf[:n]
	switch {
	case bytes.Equal(got, ackBytes):
		return AckOK, nil
	case bytes.Equal(got, nackBytes):
		return AckNACK, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidAck, got)
	}
}
