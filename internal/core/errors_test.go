package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newErr(NegativeAck, "peer refused", nil))
	if !errors.Is(err, ErrNegativeAck) {
		t.Fatal("expected errors.Is to match ErrNegativeAck")
	}
	if errors.Is(err, ErrInvalidAck) {
		t.Fatal("did not expect errors.Is to match ErrInvalidAck")
	}
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("socket reset")
	err := newErr(TransientIO, "write failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to reach the wrapped cause")
	}
}

func TestOutOfSyncErrorMessage(t *testing.T) {
	err := expectTopic("Hi", "setup")
	var coreErr *Error
	if !errors.As(err, &coreErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if coreErr.Kind != OutOfSync {
		t.Errorf("Kind = %v, want OutOfSync", coreErr.Kind)
	}
	want := `out of sync: expected topic "Hi", got "setup"`
	if coreErr.Err.Error() != want {
		t.Errorf("message = %q, want %q", coreErr.Err.Error(), want)
	}
}
