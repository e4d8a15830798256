package transfer

import (
	"errors"
	"net/http"
	"testing"
)

func TestStateIgnoresUnknownModes(t *testing.T) {
	state := NewState()
	if state.Mode() != ModeIdle {
		t.Fatalf("expected IDLE, got %s", state.Mode())
	}

	if !state.Set(ModeSendArmed) {
		t.Fatalf("expected SEND_ARMED to be accepted")
	}
	if state.Set(Mode("DANCING")) {
		t.Fatalf("expected unknown mode to be rejected")
	}
	if state.Mode() != ModeSendArmed {
		t.Fatalf("expected SEND_ARMED to remain, got %s", state.Mode())
	}

	var zero State
	if zero.Mode() != ModeIdle {
		t.Fatalf("expected zero State to read IDLE")
	}
}

func TestRemoteErrorClassification(t *testing.T) {
	forbidden := &RemoteError{StatusCode: http.StatusForbidden, Message: "Auth failed"}
	if !errors.Is(forbidden, ErrRejected) || !errors.Is(forbidden, ErrUnauthorized) {
		t.Fatalf("expected 403 to match ErrRejected and ErrUnauthorized")
	}
	if errors.Is(forbidden, ErrValidation) {
		t.Fatalf("403 must not match ErrValidation")
	}

	badRequest := &RemoteError{StatusCode: http.StatusBadRequest, Message: "Missing fields"}
	if !errors.Is(badRequest, ErrValidation) {
		t.Fatalf("expected 400 to match ErrValidation")
	}
	if badRequest.Error() != "peer responded 400: Missing fields" {
		t.Fatalf("unexpected message %q", badRequest.Error())
	}
}
