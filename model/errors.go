package model

import (
	"errors"
	"fmt"
)

// Error codes carried in ErrorEnvelope.Code. Each maps to one HTTP status in
// the transport layer.
const (
	ErrBadRequest         = "BAD_REQUEST"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrNotFound           = "NOT_FOUND"
	ErrConflict           = "CONFLICT"
	ErrValidationError    = "VALIDATION_ERROR"
	ErrInvalidTransition  = "INVALID_TRANSITION"
	ErrInternalError      = "INTERNAL_ERROR"
	ErrBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrBackendTimeout     = "BACKEND_TIMEOUT"
	ErrBackendRejected    = "BACKEND_REJECTED"
	ErrMalformedResponse  = "MALFORMED_RESPONSE"
)

// Codes raised by the screen session machinery itself.
const (
	ErrScreenNotFound = "SCREEN_NOT_FOUND"
	ErrScreenClosed   = "SCREEN_CLOSED"
	ErrScreenLimit    = "SCREEN_LIMIT"
	ErrUnknownEvent   = "UNKNOWN_EVENT"
)

// Field error codes used in FieldError.Code.
const (
	FieldRequired  = "REQUIRED"
	FieldMinLength = "MIN_LENGTH"
	FieldPattern   = "PATTERN"
	FieldFormat    = "FORMAT"
	FieldMismatch  = "MISMATCH"
	FieldGate      = "GATE"
	FieldInvalid   = "INVALID"
)

// ErrorEnvelope is the error body of every failed screen request and the
// error value passed between backend, screens and transport.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError points a validation failure at one form field. Message is shown
// to the operator as is.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AsEnvelope finds the ErrorEnvelope in err's chain. Anything else is reported
// as INTERNAL_ERROR so internal details never reach the operator.
func AsEnvelope(err error) *ErrorEnvelope {
	var env *ErrorEnvelope
	if errors.As(err, &env) {
		return env
	}
	return NewInternalError()
}

// HasCode reports whether err wraps an ErrorEnvelope with the given code.
func HasCode(err error, code string) bool {
	var env *ErrorEnvelope
	return errors.As(err, &env) && env.Code == code
}

func envelope(code, msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: code, Message: msg}
}

func NewBadRequestError(msg string) *ErrorEnvelope   { return envelope(ErrBadRequest, msg) }
func NewUnauthorizedError(msg string) *ErrorEnvelope { return envelope(ErrUnauthorized, msg) }
func NewNotFoundError(msg string) *ErrorEnvelope     { return envelope(ErrNotFound, msg) }

// NewInvalidTransitionError reports a wizard move the current step forbids.
func NewInvalidTransitionError(msg string) *ErrorEnvelope {
	return envelope(ErrInvalidTransition, msg)
}

// NewValidationError carries the failing fields of a form.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	e := envelope(ErrValidationError, "Um ou mais campos são inválidos")
	e.Details = details
	return e
}

func NewInternalError() *ErrorEnvelope {
	return envelope(ErrInternalError, "Ocorreu um erro inesperado")
}

// Backend failures. The messages are shown to the operator verbatim.

func NewBackendUnavailableError() *ErrorEnvelope {
	return envelope(ErrBackendUnavailable, "O servidor está temporariamente indisponível")
}

func NewBackendTimeoutError() *ErrorEnvelope {
	return envelope(ErrBackendTimeout, "O servidor não respondeu a tempo")
}

// NewBackendRejectedError wraps the message the backend sent with
// sucesso=false or a 4xx status.
func NewBackendRejectedError(msg string) *ErrorEnvelope {
	if msg == "" {
		msg = "A operação foi recusada pelo servidor"
	}
	return envelope(ErrBackendRejected, msg)
}

// NewMalformedResponseError reports a backend answer that could not be read;
// what names the part that failed.
func NewMalformedResponseError(what string) *ErrorEnvelope {
	return envelope(ErrMalformedResponse, fmt.Sprintf("Resposta inesperada do servidor (%s)", what))
}

// Screen session failures.

func NewScreenNotFoundError(id string) *ErrorEnvelope {
	return envelope(ErrScreenNotFound, fmt.Sprintf("screen session %q not found", id))
}

// NewScreenClosedError reports an event for a session that has shut down. An
// empty id gives the generic message.
func NewScreenClosedError(id string) *ErrorEnvelope {
	if id == "" {
		return envelope(ErrScreenClosed, "screen session is closed")
	}
	return envelope(ErrScreenClosed, fmt.Sprintf("screen session %q is closed", id))
}

func NewScreenLimitError(limit int) *ErrorEnvelope {
	return envelope(ErrScreenLimit, fmt.Sprintf("no more than %d screens may be open", limit))
}

func NewUnknownEventError(screen, event string) *ErrorEnvelope {
	return envelope(ErrUnknownEvent, fmt.Sprintf("screen %q does not handle event %q", screen, event))
}
