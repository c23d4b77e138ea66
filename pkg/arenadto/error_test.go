package arenadto

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrappedDomainErrorMatches(t *testing.T) {
	err := fmt.Errorf("%w: e2e5 is not legal here", ErrInvalidMove)
	if !errors.Is(err, ErrInvalidMove) {
		t.Fatalf("errors.Is failed for %v", err)
	}
	if errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("matched the wrong sentinel")
	}
	if Code(err) != "invalid_move" {
		t.Fatalf("code=%q", Code(err))
	}
}

func TestCustomMessageStillMatches(t *testing.T) {
	err := DomainError{Code: ErrConflict.Code, Message: "session g1 changed", Retryable: true}
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("code match failed")
	}
	if err.Error() != "session g1 changed" {
		t.Fatalf("message=%q", err.Error())
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if Code(errors.New("boom")) != "" || Code(nil) != "" {
		t.Fatalf("plain errors have no code")
	}
	if (DomainError{}).Error() != "arena error" {
		t.Fatalf("empty error text")
	}
}
