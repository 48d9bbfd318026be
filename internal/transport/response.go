// Package transport contains the HTTP router, middleware chain, and the
// handlers of the screen API.
package transport

import (
	"encoding/json"
	"net/http"

	"github.com/pitabwire/callcenter/internal/observability"
	"github.com/pitabwire/callcenter/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:         http.StatusBadRequest,
	model.ErrUnauthorized:       http.StatusUnauthorized,
	model.ErrNotFound:           http.StatusNotFound,
	model.ErrConflict:           http.StatusConflict,
	model.ErrValidationError:    http.StatusUnprocessableEntity,
	model.ErrInvalidTransition:  http.StatusUnprocessableEntity,
	model.ErrInternalError:      http.StatusInternalServerError,
	model.ErrBackendUnavailable: http.StatusBadGateway,
	model.ErrBackendTimeout:     http.StatusGatewayTimeout,
	model.ErrBackendRejected:    http.StatusUnprocessableEntity,
	model.ErrMalformedResponse:  http.StatusBadGateway,
	model.ErrScreenNotFound:     http.StatusNotFound,
	model.ErrScreenClosed:       http.StatusGone,
	model.ErrScreenLimit:        http.StatusTooManyRequests,
	model.ErrUnknownEvent:       http.StatusBadRequest,
}

// StatusFor returns the HTTP status for an error code.
func StatusFor(code string) int {
	if status, ok := statusForCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteData wraps body in a {"data": ...} envelope.
func WriteData(w http.ResponseWriter, status int, body any) {
	type dataResponse struct {
		Data any `json:"data"`
	}
	WriteJSON(w, status, dataResponse{Data: body})
}

// WriteError writes err as a {"error": ...} envelope with the matching HTTP
// status code. Errors that carry no envelope become a generic 500.
func WriteError(w http.ResponseWriter, err error) {
	writeEnvelope(w, model.AsEnvelope(err))
}

// WriteRequestError is WriteError with the trace ID of the request attached.
func WriteRequestError(w http.ResponseWriter, r *http.Request, err error) {
	ee := *model.AsEnvelope(err)
	if ee.TraceID == "" {
		ee.TraceID = observability.TraceIDFromContext(r.Context())
	}
	writeEnvelope(w, &ee)
}

func writeEnvelope(w http.ResponseWriter, ee *model.ErrorEnvelope) {
	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, StatusFor(ee.Code), errorResponse{Error: ee})
}

// WriteNotFound writes a NOT_FOUND envelope.
func WriteNotFound(w http.ResponseWriter, msg string) {
	WriteError(w, model.NewNotFoundError(msg))
}
