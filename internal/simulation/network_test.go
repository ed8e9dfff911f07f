package simulation

import (
	"net"
	"testing"
)

func TestFlakyConnCorruptsAtFullRate(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	flaky := NewFlakyConn(a, 1.0)

	msg := []byte("hello")
	done := make(chan struct{})
	go func() {
		flaky.Write(msg)
		close(done)
	}()

	buf := make([]byte, len(msg))
	if _, err := b.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	<-done

	if string(buf) == string(msg) {
		t.Fatal("expected corrupted output to differ from input at corrupt rate 1.0")
	}
}

func TestFlakyConnPassesThroughAtZeroRate(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	flaky := NewFlakyConn(a, 0.0)

	msg := []byte("hello")
	done := make(chan struct{})
	go func() {
		flaky.Write(msg)
		close(done)
	}()

	buf := make([]byte, len(msg))
	if _, err := b.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	<-done

	if string(buf) != string(msg) {
		t.Fatalf("got %q, want %q unchanged", buf, msg)
	}
}
