package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidFrameSize is returned when a frame's declared length is not
// strictly positive, per the "exactly one message per frame; length must be
// > 0" invariant.
var ErrInvalidFrameSize = errors.New("protocol: frame size must be > 0")

// ErrConnectionClosedPrematurely is returned when the stream ends before a
// declared-size frame has been fully read.
var ErrConnectionClosedPrematurely = errors.New("protocol: connection closed before all data was received")

// WriteFrame writes a 4-byte big-endian length prefix followed by payload.
func WriteFrame(w io.Writer, payload []byte) error {
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(len(payload)))
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return fmt.Errorf("protocol: write frame size: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("protocol: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads a 4-byte big-endian length prefix then that many bytes,
// looping until satisfied. It mirrors the original `recv_all` helper.
func ReadFrame(r io.Reader) ([]byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrConnectionClosedPrematurely
		}
		return nil, fmt.Errorf("protocol: read frame size: %w", err)
	}

	size := binary.BigEndian.Uint32(sizeBuf[:])
	if size == 0 {
		return nil, ErrInvalidFrameSize
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrConnectionClosedPrematurely
		}
		return nil, fmt.Errorf("protocol: read frame payload: %w", err)
	}
	return payload, nil
}
