package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("close ticket: %w", ErrInvalidState)
	if KindOf(err) != InvalidState {
		t.Fatalf("expected invalid_state, got %s", KindOf(err))
	}
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected errors.Is to match sentinel")
	}
	if errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected no match for a different sentinel")
	}
}

func TestUserMessageHidesExternalDetail(t *testing.T) {
	err := Wrap(External, "discord request failed", errors.New("HTTP 500"))
	if UserMessage(err) != genericMessage {
		t.Fatalf("expected generic message, got %q", UserMessage(err))
	}
	if UserMessage(errors.New("boom")) != genericMessage {
		t.Fatalf("expected generic message for unclassified error")
	}
	if UserMessage(ErrAlreadyBanned) != ErrAlreadyBanned.Message {
		t.Fatalf("expected specific message, got %q", UserMessage(ErrAlreadyBanned))
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("missing access")
	err := Wrap(PermissionDenied, "cannot edit channel", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if err.Error() != "cannot edit channel: missing access" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
