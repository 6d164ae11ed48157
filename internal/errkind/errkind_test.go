package errkind

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(SessionNotFound, "s1"))
	if !Is(err, SessionNotFound) {
		t.Errorf("Is() = false, want true for wrapped SessionNotFound")
	}
	if Is(err, AgentNotFound) {
		t.Errorf("Is() = true, want false for mismatched kind")
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	if Is(errors.New("boom"), SessionNotFound) {
		t.Errorf("Is() = true, want false for a non-Error")
	}
}

func TestKindOf(t *testing.T) {
	kind, ok := KindOf(Wrap(RefreshFailure, "refresh failed", errors.New("network down")))
	if !ok {
		t.Fatalf("KindOf() ok = false, want true")
	}
	if kind != RefreshFailure {
		t.Errorf("KindOf() = %v, want %v", kind, RefreshFailure)
	}

	if _, ok := KindOf(errors.New("plain")); ok {
		t.Errorf("KindOf() ok = true, want false for a plain error")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(ModelAdapterError, "stream failed", cause)
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(ToolInvocationError, "tool failed", errors.New("bad input"))
	got := err.Error()
	want := "ToolInvocationError: tool failed: bad input"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorMessageWithoutCause(t *testing.T) {
	err := New(AgentNotFound, "explore")
	want := "AgentNotFound: explore"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
