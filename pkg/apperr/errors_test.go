package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOfWalksWrapChain(t *testing.T) {
	inner := NotFound("team %s not found", "t-1")
	wrapped := fmt.Errorf("handling request: %w", inner)

	if CodeOf(wrapped) != CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", CodeOf(wrapped))
	}
}

func TestCodeOfUnknownErrorIsInternal(t *testing.T) {
	if CodeOf(errors.New("boom")) != CodeInternal {
		t.Fatal("plain errors must report INTERNAL")
	}
}

func TestIsCode(t *testing.T) {
	err := Expired("token expired")

	if !IsCode(err, CodeExpired) {
		t.Fatal("expected EXPIRED match")
	}
	if IsCode(err, CodeNotFound) {
		t.Fatal("unexpected NOT_FOUND match")
	}
	if IsCode(nil, CodeInternal) {
		t.Fatal("nil error must never match")
	}
}

func TestInternalUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Internal(cause, "failed to load team")

	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable")
	}
}
