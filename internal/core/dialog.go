package core

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/flockd-project/flockd/internal/transport"
	"github.com/flockd-project/flockd/pkg/protocol"
)

// MaxAttempts bounds the local (sender- or receiver-side) retry loop for a
// single send/recv exchange, matching the original's max_attempts=3 default.
const MaxAttempts = 3

// MaxNackAttempts bounds the number of times a sender will resend after
// receiving a NACK before giving up, per SPEC_FULL.md §9 (open question #3).
// The original's send_message recurses on NACK with no outer bound; this caps
// it to avoid livelock against a peer that never stops NACKing.
const MaxNackAttempts = 25

func timestamp() string {
	return time.Now().Format("2006-01-02_03-04-05_PM")
}

// sendOpts configures a single Send call; zero value sends a bare topic with
// no message or file.
type sendOpts struct {
	message  string
	filePath string
}

// send transmits one envelope over conn and waits for ACK/NACK, retrying on
// local I/O failure up to MaxAttempts and on NACK up to MaxNackAttempts.
// Mirrors send_message in original_source/networking.py.
func send(ctx context.Context, conn transport.Conn, topic protocol.Topic, opts sendOpts) error {
	var lastErr error
	nackAttempts := 0

	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return newErr(UserInterrupt, "send cancelled", err)
		}

		env := protocol.Envelope{
			Topic:     topic,
			Timestamp: timestamp(),
			Message:   opts.message,
		}
		if opts.filePath != "" {
			data, err := os.ReadFile(opts.filePath)
			if err != nil {
				return newErr(TransientIO, "read file "+opts.filePath, err)
			}
			env.Data = &protocol.FilePayload{
				Filename: filepath.Base(opts.filePath),
				File:     data,
			}
		}

		payload, err := env.Encode()
		if err != nil {
			return newErr(DecodePayloadFailed, "encode envelope", err)
		}

		if err := protocol.WriteFrame(conn, payload); err != nil {
			lastErr = err
			continue
		}

		ack, err := protocol.ReadAck(conn)
		if err != nil {
			lastErr = err
			continue
		}

		switch ack {
		case protocol.AckOK:
			return nil
		case protocol.AckNACK:
			nackAttempts++
			if nackAttempts >= MaxNackAttempts {
				return newErr(NegativeAck, "peer kept NACKing", nil)
			}
			// A NACK is the peer's problem, not ours: retry the same frame
			// without consuming a local attempt (matches the original, which
			// recurses unconditionally on NACK).
			attempt--
			continue
		default:
			return newErr(InvalidAck, "unrecognized ack frame", nil)
		}
	}

	return newErr(SendExhausted, "ran out of local retry attempts", lastErr)
}

// recvResult is the outcome of a successful recv: the decoded envelope and,
// if Data was present, the path the file was saved to.
type recvResult struct {
	Envelope protocol.Envelope
	SavedTo  string
}

// recv reads one envelope from conn, ACKs it, and optionally saves its file
// payload under saveDir. Mirrors receive_message in
// original_source/networking.py, including its NACK-and-retry-on-failure and
// clear_buffer-before-retry behavior.
func recv(ctx context.Context, conn transport.Conn, saveDir string) (recvResult, error) {
	var lastErr error

	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return recvResult{}, newErr(UserInterrupt, "recv cancelled", err)
		}

		payload, err := protocol.ReadFrame(conn)
		if err != nil {
			lastErr = err
			_ = protocol.WriteAck(conn, protocol.AckNACK)
			clearBuffer(conn)
			continue
		}

		env, err := protocol.Decode(payload)
		if err != nil {
			lastErr = newErr(DecodePayloadFailed, "decode envelope", err)
			_ = protocol.WriteAck(conn, protocol.AckNACK)
			clearBuffer(conn)
			continue
		}

		var savedTo string
		if saveDir != "" && env.Data != nil {
			if err := os.MkdirAll(saveDir, 0755); err != nil {
				lastErr = newErr(TransientIO, "create save dir", err)
				_ = protocol.WriteAck(conn, protocol.AckNACK)
				clearBuffer(conn)
				continue
			}
			savedTo = filepath.Join(saveDir, env.Data.Filename)
			if err := os.WriteFile(savedTo, env.Data.File, 0644); err != nil {
				lastErr = newErr(TransientIO, "save received file", err)
				_ = protocol.WriteAck(conn, protocol.AckNACK)
				clearBuffer(conn)
				continue
			}
		}

		if err := protocol.WriteAck(conn, protocol.AckOK); err != nil {
			return recvResult{}, newErr(TransientIO, "write ack", err)
		}

		return recvResult{Envelope: env, SavedTo: savedTo}, nil
	}

	return recvResult{}, newErr(RecvExhausted, "ran out of local retry attempts", lastErr)
}

// clearBuffer drains whatever is immediately available on conn without
// blocking, so a stale partial frame doesn't desync the next attempt.
// Mirrors clear_buffer in original_source/networking.py, which flips the
// socket briefly non-blocking and drains until it would block.
func clearBuffer(conn transport.Conn) {
	type deadliner interface {
		SetReadDeadline(time.Time) error
	}
	d, ok := conn.(deadliner)
	if !ok {
		return
	}
	_ = d.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	buf := make([]byte, 4096)
	for {
		if _, err := conn.Read(buf); err != nil {
			break
		}
	}
	_ = d.SetReadDeadline(time.Time{})
}

// expectTopic returns an OutOfSyncError wrapped as *Error{Kind: OutOfSync} if
// got doesn't match want, matching handle_recv's topic check.
func expectTopic(want, got protocol.Topic) error {
	if want == got {
		return nil
	}
	return &Error{
		Kind:    OutOfSync,
		Message: "unexpected topic",
		Err:     &OutOfSyncError{Expected: string(want), Actual: string(got)},
	}
}
