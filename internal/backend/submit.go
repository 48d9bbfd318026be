package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/form"

	"github.com/pitabwire/callcenter/model"
)

// Export formats accepted by ExportURL.
var exportFormats = map[string]bool{"pdf": true, "excel": true, "csv": true}

// newFormEncoder returns an encoder that renders checkboxes the way browsers
// post them: "on" when checked, absent otherwise.
func newFormEncoder() *form.Encoder {
	enc := form.NewEncoder()
	enc.RegisterCustomTypeFunc(func(x interface{}) ([]string, error) {
		if x.(model.Checkbox) {
			return []string{"on"}, nil
		}
		return nil, nil
	}, model.Checkbox(false))
	return enc
}

// EncodeForm renders payload as form values. Structs use their form tags;
// snapshots and url.Values are copied as they are.
func (c *Client) EncodeForm(payload any) (url.Values, error) {
	switch p := payload.(type) {
	case url.Values:
		return p, nil
	case model.FormSnapshot:
		vals := make(url.Values, len(p))
		for k, v := range p {
			vals.Set(k, v)
		}
		return vals, nil
	}
	vals, err := c.forms.Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("backend: encode form: %w", err)
	}
	for k, v := range vals {
		if len(v) == 0 {
			delete(vals, k)
		}
	}
	return vals, nil
}

// Submit posts payload to target and interprets the backend's answer.
// sucesso=false surfaces as a BACKEND_REJECTED error carrying the backend's
// message and field errors.
func (c *Client) Submit(ctx context.Context, target model.SubmitTarget, payload any) (model.SubmitResult, error) {
	req := request{
		operation: OpSubmit,
		method:    http.MethodPost,
		path:      target.Path,
	}
	switch target.Encoding {
	case model.EncodingForm:
		vals, err := c.EncodeForm(payload)
		if err != nil {
			return model.SubmitResult{}, err
		}
		req.body = []byte(vals.Encode())
		req.contentType = "application/x-www-form-urlencoded"
	case model.EncodingJSON, "":
		body, err := json.Marshal(payload)
		if err != nil {
			return model.SubmitResult{}, fmt.Errorf("backend: marshal submission: %w", err)
		}
		req.body = body
		req.contentType = "application/json"
	default:
		return model.SubmitResult{}, fmt.Errorf("backend: unsupported encoding %q", target.Encoding)
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return model.SubmitResult{}, err
	}
	if resp.status < 200 || resp.status >= 300 {
		return model.SubmitResult{}, statusError(resp.status, resp.body)
	}

	var env envelope
	if err := decodeJSON(resp.body, &env, "envio"); err != nil {
		return model.SubmitResult{}, err
	}
	if !env.hasFlag() {
		return model.SubmitResult{}, model.NewMalformedResponseError("envio: indicador de sucesso ausente")
	}
	if !env.ok() {
		return model.SubmitResult{}, env.rejection()
	}

	var data map[string]any
	if err := json.Unmarshal(resp.body, &data); err != nil {
		return model.SubmitResult{}, fmt.Errorf("%w: %w", model.NewMalformedResponseError("envio"), err)
	}
	for _, k := range []string{"sucesso", "success", "erro", "error", "message", "mensagem", "errors"} {
		delete(data, k)
	}
	return model.SubmitResult{Success: true, Message: env.message(), Data: data}, nil
}

// FetchRecords loads a record listing. The body is either a JSON array or an
// object holding the array under results, dados, data or items.
func (c *Client) FetchRecords(ctx context.Context, path string) ([]model.Record, error) {
	resp, err := c.do(ctx, request{
		operation: OpFetchRecords,
		method:    http.MethodGet,
		path:      path,
	})
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, statusError(resp.status, resp.body)
	}

	var list []model.Record
	if json.Unmarshal(resp.body, &list) == nil {
		return list, nil
	}
	var wrapped map[string]json.RawMessage
	if err := decodeJSON(resp.body, &wrapped, "registros"); err != nil {
		return nil, err
	}
	for _, key := range []string{"results", "dados", "data", "items"} {
		raw, ok := wrapped[key]
		if !ok {
			continue
		}
		if err := decodeJSON(raw, &list, "registros"); err != nil {
			return nil, err
		}
		return list, nil
	}
	return nil, model.NewMalformedResponseError("registros: lista ausente")
}

// ExportURL builds the absolute download URL for format from a screen's
// export targets. Empty filters are left out of the query.
func (c *Client) ExportURL(exports map[string]string, format string, filters map[string]string) (string, error) {
	if !exportFormats[format] {
		return "", model.NewBadRequestError(fmt.Sprintf("formato de exportação %q inválido", format))
	}
	path, ok := exports[format]
	if !ok || path == "" {
		return "", model.NewNotFoundError(fmt.Sprintf("exportação %s não disponível", strings.ToUpper(format)))
	}

	q := make(url.Values, len(filters))
	for k, v := range filters {
		if v = strings.TrimSpace(v); v != "" {
			q.Set(k, v)
		}
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u, nil
}
