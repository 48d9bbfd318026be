package integration

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// Operations of the fake call-center backend.
const (
	OpVerifyUnit       = "verifyUnit"
	OpLookupCNES       = "lookupCNES"
	OpMunicipios       = "municipios"
	OpCheckUsername    = "checkUsername"
	OpRegisterCall     = "registerCall"
	OpCreateUnit       = "createUnit"
	OpCreateUser       = "createUser"
	OpSaveNotification = "saveNotificationSettings"
)

type route struct{ method, pattern string }

// backendRoutes are the endpoints the screens reach through the backend
// client.
var backendRoutes = map[string]route{
	OpVerifyUnit:       {http.MethodPost, "/accounts/api/unidade-saude/"},
	OpLookupCNES:       {http.MethodGet, "/accounts/api/cnes/{code}/"},
	OpMunicipios:       {http.MethodGet, "/api/municipios/autocomplete/"},
	OpCheckUsername:    {http.MethodGet, "/accounts/api/username/"},
	OpRegisterCall:     {http.MethodPost, "/accounts/registro-chamada/"},
	OpCreateUnit:       {http.MethodPost, "/accounts/unidades-saude/criar/"},
	OpCreateUser:       {http.MethodPost, "/accounts/usuarios/criar/"},
	OpSaveNotification: {http.MethodPost, "/accounts/configuracoes/notificacoes/"},
}

// MockBackend plays scripted replies per operation and records every request
// it receives. An operation without a script answers {"sucesso": true}.
type MockBackend struct {
	server *httptest.Server

	mu       sync.Mutex
	scripts  map[string]*script
	received map[string][]*RecordedRequest
}

// RecordedRequest is one request as the backend saw it. Body holds JSON
// payloads, Form holds url-encoded ones.
type RecordedRequest struct {
	Method      string
	Path        string
	QueryParams map[string]string
	Headers     http.Header
	Body        map[string]any
	Form        url.Values
}

// script replays its replies in order, then keeps repeating the last one.
type script struct {
	replies []reply
	next    int
}

func (s *script) pop() reply {
	r := s.replies[min(s.next, len(s.replies)-1)]
	if s.next < len(s.replies) {
		s.next++
	}
	return r
}

type reply struct {
	status int
	body   any
	delay  time.Duration
	drop   bool
}

// OperationMock appends replies to one operation's script.
type OperationMock struct {
	backend *MockBackend
	op      string
}

func newMockBackend(t *testing.T) *MockBackend {
	t.Helper()
	mb := &MockBackend{
		scripts:  make(map[string]*script),
		received: make(map[string][]*RecordedRequest),
	}

	r := chi.NewRouter()
	for op, rt := range backendRoutes {
		r.Method(rt.method, rt.pattern, mb.serve(op))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeBackendJSON(w, http.StatusNotFound, map[string]any{
			"erro": "mock: nothing at " + r.Method + " " + r.URL.Path,
		})
	})

	mb.server = httptest.NewServer(r)
	t.Cleanup(mb.server.Close)
	return mb
}

// URL is the backend base URL.
func (mb *MockBackend) URL() string { return mb.server.URL }

func (mb *MockBackend) OnOperation(op string) *OperationMock {
	return &OperationMock{backend: mb, op: op}
}

// RespondWith answers with status and body encoded as JSON.
func (om *OperationMock) RespondWith(status int, body any) *OperationMock {
	return om.add(reply{status: status, body: body})
}

// RespondWithDelay answers like RespondWith after delay, or not at all if the
// caller gives up first.
func (om *OperationMock) RespondWithDelay(delay time.Duration, status int, body any) *OperationMock {
	return om.add(reply{status: status, body: body, delay: delay})
}

// RespondWithConnectionError drops the connection without answering.
func (om *OperationMock) RespondWithConnectionError() *OperationMock {
	return om.add(reply{drop: true})
}

func (om *OperationMock) add(r reply) *OperationMock {
	mb := om.backend
	mb.mu.Lock()
	defer mb.mu.Unlock()
	s := mb.scripts[om.op]
	if s == nil {
		s = &script{}
		mb.scripts[om.op] = s
	}
	s.replies = append(s.replies, r)
	return om
}

func (mb *MockBackend) serve(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := record(r)

		mb.mu.Lock()
		mb.received[op] = append(mb.received[op], rec)
		next := reply{status: http.StatusOK, body: map[string]any{"sucesso": true}}
		if s := mb.scripts[op]; s != nil {
			next = s.pop()
		}
		mb.mu.Unlock()

		switch {
		case next.drop:
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					conn.Close()
				}
			}
			return
		case next.delay > 0:
			select {
			case <-time.After(next.delay):
			case <-r.Context().Done():
				return
			}
		}
		writeBackendJSON(w, next.status, next.body)
	}
}

func record(r *http.Request) *RecordedRequest {
	rec := &RecordedRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		QueryParams: make(map[string]string),
		Headers:     r.Header.Clone(),
	}
	for k, v := range r.URL.Query() {
		rec.QueryParams[k] = v[0]
	}

	raw, _ := io.ReadAll(r.Body)
	if len(raw) == 0 {
		return rec
	}
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mt == "application/x-www-form-urlencoded":
		rec.Form, _ = url.ParseQuery(string(raw))
	case strings.HasSuffix(mt, "json"):
		_ = json.Unmarshal(raw, &rec.Body)
	}
	return rec
}

func writeBackendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func (mb *MockBackend) calls(op string) []*RecordedRequest {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.received[op]
}

// AssertCalled fails t unless op was called exactly want times.
func (mb *MockBackend) AssertCalled(t *testing.T, op string, want int) {
	t.Helper()
	if got := len(mb.calls(op)); got != want {
		t.Errorf("backend: %s called %d times, want %d", op, got, want)
	}
}

func (mb *MockBackend) AssertNotCalled(t *testing.T, op string) {
	t.Helper()
	mb.AssertCalled(t, op, 0)
}

// LastRequest returns the most recent request for op, or nil.
func (mb *MockBackend) LastRequest(op string) *RecordedRequest {
	reqs := mb.calls(op)
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}
