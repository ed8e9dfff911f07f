package core

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/flockd-project/flockd/internal/simulation"
	"github.com/flockd-project/flockd/pkg/protocol"
)

// net.Pipe's ends are net.Conn values and satisfy transport.Conn directly
// (they already implement Read/Write/Close/RemoteAddr).

func TestSendRecvRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx := context.Background()
	done := make(chan error, 1)
	go func() {
		done <- send(ctx, client, protocol.TopicHi, sendOpts{message: "hello"})
	}()

	res, err := recv(ctx, server, "")
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Envelope.Topic != protocol.TopicHi || res.Envelope.Message != "hello" {
		t.Errorf("got %+v", res.Envelope)
	}
}

func TestSendRecvWithFile(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "source.bin")
	if err := os.WriteFile(srcPath, []byte("binary-content"), 0644); err != nil {
		t.Fatal(err)
	}
	saveDir := filepath.Join(dir, "saved")

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx := context.Background()
	done := make(chan error, 1)
	go func() {
		done <- send(ctx, client, protocol.TopicPickle, sendOpts{filePath: srcPath})
	}()

	res, err := recv(ctx, server, saveDir)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}

	got, err := os.ReadFile(res.SavedTo)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(got) != "binary-content" {
		t.Errorf("saved content = %q", got)
	}
}

func TestExpectTopicMismatchIsOutOfSync(t *testing.T) {
	err := expectTopic(protocol.TopicHi, protocol.TopicSetup)
	if err == nil {
		t.Fatal("expected an error")
	}
	var coreErr *Error
	if !assertAs(err, &coreErr) {
		t.Fatalf("error is not *Error: %v", err)
	}
	if coreErr.Kind != OutOfSync {
		t.Errorf("Kind = %v, want OutOfSync", coreErr.Kind)
	}
}

func assertAs(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}

func TestSendReceivesNack(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx := context.Background()
	sendDone := make(chan error, 1)
	go func() {
		sendDone <- send(ctx, client, protocol.TopicHi, sendOpts{message: "x"})
	}()

	// First attempt: NACK it.
	if _, err := protocol.ReadFrame(server); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if err := protocol.WriteAck(server, protocol.AckNACK); err != nil {
		t.Fatalf("write nack: %v", err)
	}

	// Second attempt: ACK it.
	if _, err := protocol.ReadFrame(server); err != nil {
		t.Fatalf("read frame retry: %v", err)
	}
	if err := protocol.WriteAck(server, protocol.AckOK); err != nil {
		t.Fatalf("write ack: %v", err)
	}

	if err := <-sendDone; err != nil {
		t.Fatalf("send: %v", err)
	}
}

// TestSendGivesUpAfterNackStorm drives send over a connection that always
// corrupts the envelope payload (but never the 4-byte length prefix), against
// a test peer that reads each frame and answers it with a NACK. send should
// give up once nackAttempts reaches MaxNackAttempts rather than retrying
// forever.
func TestSendGivesUpAfterNackStorm(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	flakyClient := simulation.NewFlakyConn(client, 1.0)

	ctx := context.Background()
	sendDone := make(chan error, 1)
	go func() {
		sendDone <- send(ctx, flakyClient, protocol.TopicHi, sendOpts{message: "corrupt me"})
	}()

	for i := 0; i < MaxNackAttempts; i++ {
		if _, err := protocol.ReadFrame(server); err != nil {
			t.Fatalf("read frame %d: %v", i, err)
		}
		if err := protocol.WriteAck(server, protocol.AckNACK); err != nil {
			t.Fatalf("write nack %d: %v", i, err)
		}
	}

	err := <-sendDone
	if err == nil {
		t.Fatal("expected send to fail after a NACK storm")
	}
	var coreErr *Error
	if !assertAs(err, &coreErr) {
		t.Fatalf("error is not *Error: %v", err)
	}
	if coreErr.Kind != NegativeAck {
		t.Errorf("Kind = %v, want NegativeAck", coreErr.Kind)
	}
}

func TestResultRecordRoundTripsRaw(t *testing.T) {
	raw := json.RawMessage(`{"people_present":["a","b"]}`)
	wrapped, err := json.Marshal([]json.RawMessage{raw})
	if err != nil {
		t.Fatal(err)
	}
	if string(wrapped) != `[{"people_present":["a","b"]}]` {
		t.Errorf("got %s", wrapped)
	}
}
