package gameerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfUnwrapsThroughWrappedErrors(t *testing.T) {
	base := New(InsufficientFunds, "not enough cash")
	wrapped := fmt.Errorf("trade failed: %w", base)

	if got := KindOf(wrapped); got != InsufficientFunds {
		t.Fatalf("KindOf(wrapped)=%v, expected %v", got, InsufficientFunds)
	}
}

func TestKindOfDefaultsToInternalForPlainErrors(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != Internal {
		t.Fatalf("KindOf(plain)=%v, expected %v", got, Internal)
	}
}

func TestWrapHidesCauseFromMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(StoreUnavailable, "failed to load game status", cause)

	if err.Message != "failed to load game status" {
		t.Fatalf("Message=%q, expected no leak of cause", err.Message)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{Validation, 400},
		{Auth, 401},
		{Permission, 403},
		{NotFound, 404},
		{Conflict, 409},
		{InsufficientFunds, 400},
		{InsufficientHoldings, 400},
		{QuotaExceeded, 400},
		{Precondition, 400},
		{StoreUnavailable, 503},
		{Internal, 500},
		{Kind("SOMETHING_UNKNOWN"), 500},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := HTTPStatus(tt.kind); got != tt.want {
				t.Fatalf("HTTPStatus(%v)=%d, expected %d", tt.kind, got, tt.want)
			}
		})
	}
}

func TestValidationfFormatsMessage(t *testing.T) {
	err := Validationf("quantity must be at least %d", 1)
	if err.Kind != Validation {
		t.Fatalf("Kind=%v, expected %v", err.Kind, Validation)
	}
	if err.Message != "quantity must be at least 1" {
		t.Fatalf("Message=%q, unexpected", err.Message)
	}
}
