package rpaerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyPrefersTaggedError(t *testing.T) {
	err := New(KindTimeout, "waited too long")
	if got := Classify(err); got != KindTimeout {
		t.Fatalf("expected KindTimeout, got %v", got)
	}
}

func TestClassifyFallsBackToSentinelMatching(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ErrCancelled)
	if got := Classify(err); got != KindCancelled {
		t.Fatalf("expected KindCancelled, got %v", got)
	}
}

func TestClassifyDefaultsToExternalIOForUnrecognizedErrors(t *testing.T) {
	err := errors.New("some network hiccup")
	if got := Classify(err); got != KindExternalIO {
		t.Fatalf("expected KindExternalIO as the conservative default, got %v", got)
	}
}

func TestClassifyNilReturnsEmptyKind(t *testing.T) {
	if got := Classify(nil); got != "" {
		t.Fatalf("expected an empty Kind for a nil error, got %v", got)
	}
}

func TestIsFatalOnlyForFatalKind(t *testing.T) {
	if !IsFatal(New(KindFatal, "invariant broken")) {
		t.Fatalf("expected a fatal-tagged error to be fatal")
	}
	if IsFatal(New(KindValidation, "bad config")) {
		t.Fatalf("expected a validation error not to be fatal")
	}
}

func TestErrNoStartNodeClassifiesAsFatal(t *testing.T) {
	if !IsFatal(ErrNoStartNode) {
		t.Fatalf("expected ErrNoStartNode to classify as fatal")
	}
}

func TestIsCancelledOnlyForCancelledKind(t *testing.T) {
	if !IsCancelled(New(KindCancelled, "run stopped")) {
		t.Fatalf("expected a cancelled-tagged error to report cancelled")
	}
	if IsCancelled(New(KindTimeout, "too slow")) {
		t.Fatalf("expected a timeout error not to report cancelled")
	}
}

func TestTaggedErrorUnwrapsToUnderlyingError(t *testing.T) {
	underlying := errors.New("root cause")
	tagged := &TaggedError{Kind: KindExternalIO, Err: underlying}
	if !errors.Is(tagged, underlying) {
		t.Fatalf("expected errors.Is to see through TaggedError.Unwrap")
	}
}
