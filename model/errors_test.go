package model

import (
	"fmt"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrNotFound, Message: "Unidade não encontrada"}
	want := "NOT_FOUND: Unidade não encontrada"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
}

func TestNewValidationError(t *testing.T) {
	details := []FieldError{
		{Field: "username", Code: FieldRequired, Message: "Campo obrigatório"},
	}
	e := NewValidationError(details)
	if e.Code != ErrValidationError {
		t.Errorf("Code = %q, want %q", e.Code, ErrValidationError)
	}
	if len(e.Details) != 1 {
		t.Fatalf("Details length = %d, want 1", len(e.Details))
	}
	if e.Details[0].Field != "username" {
		t.Errorf("Details[0].Field = %q, want %q", e.Details[0].Field, "username")
	}
}

func TestNewBackendRejectedError_default_message(t *testing.T) {
	e := NewBackendRejectedError("")
	if e.Message == "" {
		t.Error("Message should not be empty")
	}
	e = NewBackendRejectedError("Usuário já existe")
	if e.Message != "Usuário já existe" {
		t.Errorf("Message = %q, want %q", e.Message, "Usuário já existe")
	}
}

func TestAsEnvelope(t *testing.T) {
	wrapped := fmt.Errorf("verify unit: %w", NewBackendTimeoutError())
	if got := AsEnvelope(wrapped); got.Code != ErrBackendTimeout {
		t.Errorf("AsEnvelope().Code = %q, want %q", got.Code, ErrBackendTimeout)
	}
	if got := AsEnvelope(fmt.Errorf("plain")); got.Code != ErrInternalError {
		t.Errorf("AsEnvelope(plain).Code = %q, want %q", got.Code, ErrInternalError)
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NewNotFoundError("cnes"))
	if !HasCode(err, ErrNotFound) {
		t.Error("HasCode(NOT_FOUND) = false, want true")
	}
	if HasCode(err, ErrBackendTimeout) {
		t.Error("HasCode(BACKEND_TIMEOUT) = true, want false")
	}
}

func TestScreenErrors(t *testing.T) {
	tests := []struct {
		err  *ErrorEnvelope
		code string
		msg  string
	}{
		{NewScreenNotFoundError("s-1"), ErrScreenNotFound, `screen session "s-1" not found`},
		{NewScreenClosedError(""), ErrScreenClosed, "screen session is closed"},
		{NewScreenClosedError("s-1"), ErrScreenClosed, `screen session "s-1" is closed`},
		{NewScreenLimitError(20), ErrScreenLimit, "no more than 20 screens may be open"},
		{NewUnknownEventError("reports", "advance"), ErrUnknownEvent, `screen "reports" does not handle event "advance"`},
	}
	for _, tt := range tests {
		if tt.err.Code != tt.code || tt.err.Message != tt.msg {
			t.Errorf("got %s, want %s: %s", tt.err, tt.code, tt.msg)
		}
	}
}
