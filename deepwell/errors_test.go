package deepwell

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("login: %w", WrapError(KindAuthenticationFailed, "bad", errors.New("hash mismatch")))
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected wrapped error to match by kind")
	}
	if errors.Is(err, ErrInvalidSession) {
		t.Fatalf("did not expect a match on a different kind")
	}
}

func TestNormalize(t *testing.T) {
	if Normalize(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	if got := Normalize(ErrUserNotFound); got != ErrUserNotFound {
		t.Fatalf("domain errors must pass through, got %v", got)
	}
	raw := errors.New("disk on fire")
	got := Normalize(raw)
	if KindOf(got) != KindInternal {
		t.Fatalf("expected internal kind, got %s", KindOf(got))
	}
	if !errors.Is(got, raw) {
		t.Fatalf("expected cause to be kept")
	}
}
