package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/pitabwire/callcenter/model"
)

// envelope is the status part shared by every backend JSON answer. The
// backend is inconsistent about naming, so both spellings are accepted.
type envelope struct {
	Sucesso  *bool          `json:"sucesso"`
	Success  *bool          `json:"success"`
	Erro     string         `json:"erro"`
	Error    string         `json:"error"`
	Message  string         `json:"message"`
	Mensagem string         `json:"mensagem"`
	Errors   map[string]any `json:"errors"`
}

// hasFlag reports whether the answer carried a success flag at all.
func (e envelope) hasFlag() bool {
	return e.Sucesso != nil || e.Success != nil
}

func (e envelope) ok() bool {
	if e.Sucesso != nil {
		return *e.Sucesso
	}
	return e.Success != nil && *e.Success
}

// message returns the human-readable message of the answer.
func (e envelope) message() string {
	for _, m := range []string{e.Erro, e.Error, e.Mensagem, e.Message} {
		if m != "" {
			return m
		}
	}
	if general, ok := e.Errors["general"]; ok {
		return errorText(general)
	}
	keys := make([]string, 0, len(e.Errors))
	for k := range e.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, errorText(e.Errors[k]))
	}
	return strings.Join(parts, "; ")
}

// fieldErrors returns the per-field errors of a rejected submission.
func (e envelope) fieldErrors() []model.FieldError {
	var out []model.FieldError
	for field, v := range e.Errors {
		if field == "general" || field == "__all__" {
			continue
		}
		out = append(out, model.FieldError{Field: field, Code: model.FieldInvalid, Message: errorText(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// rejection turns a sucesso=false answer into an error.
func (e envelope) rejection() error {
	env := model.NewBackendRejectedError(e.message())
	env.Details = e.fieldErrors()
	return env
}

// errorText flattens Django-style error values: a string, a list of strings
// or a list of {message} objects.
func errorText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := errorText(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case map[string]any:
		if m, ok := t["message"]; ok {
			return errorText(m)
		}
	}
	return model.Stringify(v)
}

// decodeJSON decodes a response body into v. Empty and invalid bodies fail
// closed.
func decodeJSON(body []byte, v any, what string) error {
	if len(body) == 0 {
		return model.NewMalformedResponseError(what + ": corpo vazio")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %w", model.NewMalformedResponseError(what), err)
	}
	return nil
}

// statusError maps an unexpected status to an error, keeping the backend's
// own message when it sent one.
func statusError(status int, body []byte) error {
	switch status {
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return model.NewBackendTimeoutError()
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return model.NewBackendUnavailableError()
	}
	var env envelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		if msg := env.message(); msg != "" {
			rejected := model.NewBackendRejectedError(msg)
			rejected.Details = env.fieldErrors()
			return rejected
		}
	}
	return model.NewBackendRejectedError(fmt.Sprintf("Erro %d", status))
}
