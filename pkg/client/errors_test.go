package client

import (
	"errors"
	"testing"
)

func TestErrorKind_Transient(t *testing.T) {
	tests := []struct {
		kind      ErrorKind
		transient bool
	}{
		{KindRateLimited, true},
		{KindReadOnly, true},
		{KindNetwork, true},
		{KindServer, true},
		{KindLag, false}, // proactive, handled outside the budget
		{KindPermission, false},
		{KindBlocked, false},
		{KindAssert, false},
		{KindConflict, false},
		{KindNothingToDo, false},
		{KindHTTP, false},
		{KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Transient(); got != tt.transient {
				t.Errorf("%s.Transient() = %v, want %v", tt.kind, got, tt.transient)
			}
		})
	}
}

func TestErrorKind_Fatal(t *testing.T) {
	fatal := []ErrorKind{KindPermission, KindProtected, KindBlocked, KindAssert, KindConflict, KindHTTP, KindUnknown}
	for _, k := range fatal {
		if !k.Fatal() {
			t.Errorf("%s.Fatal() = false, want true", k)
		}
	}

	nonFatal := []ErrorKind{KindLag, KindRateLimited, KindReadOnly, KindNetwork, KindServer, KindNothingToDo}
	for _, k := range nonFatal {
		if k.Fatal() {
			t.Errorf("%s.Fatal() = true, want false", k)
		}
	}
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{
		Kind:    KindBlocked,
		Code:    "blocked",
		Message: "account is blocked",
	}

	msg := err.Error()
	if msg != `api blocked error (code "blocked"): account is blocked` {
		t.Errorf("Unexpected error message: %s", msg)
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := &APIError{Kind: KindLag, Code: "maxlag", Message: "lagged", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}

	var apiErr *APIError
	wrapped := &APIError{Kind: KindAssert, Err: err}
	if !errors.As(wrapped, &apiErr) {
		t.Error("errors.As should match *APIError")
	}
}
