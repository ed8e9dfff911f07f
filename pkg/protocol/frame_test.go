package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"topic":"Hi","timestamp":"now"}`)

	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadFrame = %s, want %s", got, payload)
	}
}

func TestReadFrameZeroSize(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0})

	_, err := ReadFrame(&buf)
	if !errors.Is(err, ErrInvalidFrameSize) {
		t.Fatalf("err = %v, want ErrInvalidFrameSize", err)
	}
}

func TestReadFrameShortStream(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 10})
	buf.WriteString("short")

	_, err := ReadFrame(&buf)
	if !errors.Is(err, ErrConnectionClosedPrematurely) {
		t.Fatalf("err = %v, want ErrConnectionClosedPrematurely", err)
	}
}

func TestReadFrameLargePayload(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte("x"), 10*1024*1024) // 10 MiB, S6 scenario
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(got) != len(payload) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(payload))
	}
	if !strings.HasPrefix(string(got), "xxxx") {
		t.Errorf("unexpected payload prefix: %q", got[:4])
	}
}
