// Package integration provides a reusable test harness for end-to-end
// integration testing of the call-center screen server. It starts the full
// HTTP stack with a mock call-center backend, a Redis-backed lookup cache and
// a test JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pitabwire/callcenter/internal/backend"
	"github.com/pitabwire/callcenter/internal/config"
	"github.com/pitabwire/callcenter/internal/debounce"
	"github.com/pitabwire/callcenter/internal/definition"
	"github.com/pitabwire/callcenter/internal/lookup"
	"github.com/pitabwire/callcenter/internal/observability"
	"github.com/pitabwire/callcenter/internal/screen"
	"github.com/pitabwire/callcenter/internal/transport"
)

// FixedNow is the clock every harness screen sees.
var FixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// TestHarness encapsulates a fully wired server with a mock backend.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Registry  *definition.Registry
	Client    *backend.Client
	Lookups   *lookup.Service
	Screens   *screen.Manager
	Scheduler *debounce.ManualScheduler
	Redis     *miniredis.Miniredis
	Metrics   *prometheus.Registry

	backend *MockBackend
	cfg     *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	circuitBreaker config.CircuitBreakerConfig
	handlerTimeout time.Duration
	backendTimeout time.Duration
	maxSessions    int
}

// WithCircuitBreaker overrides the backend circuit breaker settings.
func WithCircuitBreaker(cb config.CircuitBreakerConfig) HarnessOption {
	return func(c *harnessConfig) {
		c.circuitBreaker = cb
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithBackendTimeout sets the backend client timeout.
func WithBackendTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.backendTimeout = d
	}
}

// WithMaxSessions caps the number of open screens.
func WithMaxSessions(n int) HarnessOption {
	return func(c *harnessConfig) {
		c.maxSessions = n
	}
}

// NewTestHarness creates and starts a full test instance. The server is
// automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout: 10 * time.Second,
		backendTimeout: 5 * time.Second,
		maxSessions:    50,
		circuitBreaker: config.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 1,
			Timeout:          30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(hc)
	}

	h := &TestHarness{
		t:         t,
		backend:   newMockBackend(t),
		issuer:    newTokenIssuer(),
		Scheduler: debounce.NewManualScheduler(),
		Redis:     miniredis.RunT(t),
		Metrics:   prometheus.NewRegistry(),
	}

	// Step 1: Build config.
	cfg := config.Defaults()
	cfg.Identity = config.IdentityConfig{
		Enabled:          true,
		Issuer:           h.issuer.Issuer(),
		Audience:         h.issuer.Audience(),
		Secret:           h.issuer.secret,
		UsernameClaim:    "preferred_username",
		DisplayNameClaim: "name",
	}
	cfg.Server.HandlerTimeout = hc.handlerTimeout
	cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	cfg.Backend.BaseURL = h.backend.URL()
	cfg.Backend.Timeout = hc.backendTimeout
	cfg.Backend.CircuitBreaker = hc.circuitBreaker
	cfg.Backend.Retry.MaxAttempts = 1
	cfg.Backend.Paths.UsernameCheck = "/accounts/api/username/"
	cfg.Lookup.Cache.Driver = "redis"
	cfg.Lookup.Cache.RedisAddr = h.Redis.Addr()
	cfg.Screens.MaxSessions = hc.maxSessions
	h.cfg = cfg

	metrics := observability.InitMetrics(h.Metrics)

	// Step 2: Load and validate definitions.
	reloader := &definition.Reloader{
		Loader:    definition.NewLoader(),
		Validator: definition.NewValidator(screen.Gates()...),
		Registry:  definition.NewRegistry(nil),
		Metrics:   metrics,
	}
	if err := reloader.Reload(); err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	h.Registry = reloader.Registry

	// Step 3: Backend client and lookups.
	client, err := backend.New(cfg.Backend, backend.WithMetrics(metrics))
	if err != nil {
		t.Fatalf("backend client: %v", err)
	}
	h.Client = client

	cache, closeCache, err := lookup.NewCache(cfg.Lookup.Cache)
	if err != nil {
		t.Fatalf("lookup cache: %v", err)
	}
	t.Cleanup(func() { closeCache() })
	h.Lookups = lookup.NewService(client, cache, cfg.Lookup, metrics, nil)

	// Step 4: Screen sessions.
	h.Screens = screen.NewManager(h.Registry, screen.Deps{
		Backend:   client,
		Lookups:   h.Lookups,
		Metrics:   metrics,
		Scheduler: h.Scheduler,
		Now:       func() time.Time { return FixedNow },
		Lookup:    cfg.Lookup,
	}, cfg.Screens, screen.WithSettle())
	t.Cleanup(h.Screens.CloseAll)

	// Step 5: Build router with full middleware chain.
	router := transport.NewRouter(transport.Dependencies{
		Config:   cfg,
		Metrics:  metrics,
		Gatherer: h.Metrics,
		Readiness: observability.ReadinessChecks{
			Definitions: h.Registry.Len,
			Sessions:    h.Screens.Len,
			Required: map[string]observability.HealthChecker{
				"backend": observability.HealthCheckFunc(client.Ping),
			},
		},
		Screens: h.Screens,
	})

	// Step 6: Start test server.
	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// Backend returns the mock call-center backend.
func (h *TestHarness) Backend() *MockBackend {
	return h.backend
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// Wait advances the debounce clock so pending lookups fire.
func (h *TestHarness) Wait(d time.Duration) {
	h.Scheduler.Advance(d)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, nil)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, nil)
}

// POSTWithHeaders performs an authenticated POST request with additional headers.
func (h *TestHarness) POSTWithHeaders(path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, headers)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("DELETE", path, nil, token, nil)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// --- Screen helpers ---

// View is a screen view as seen by the browser.
type View struct {
	ID            string           `json:"id"`
	Screen        string           `json:"screen"`
	Title         string           `json:"title"`
	Version       uint64           `json:"version"`
	Busy          bool             `json:"busy"`
	State         map[string]any   `json:"state"`
	Notifications []map[string]any `json:"notifications"`
}

// Values returns the form values of a form screen view.
func (v View) Values() map[string]any {
	vals, _ := v.State["values"].(map[string]any)
	return vals
}

// Errors returns the field errors of a form screen view.
func (v View) Errors() map[string]any {
	errs, _ := v.State["errors"].(map[string]any)
	return errs
}

// Messages returns the notification messages of the view.
func (v View) Messages() []string {
	out := make([]string, 0, len(v.Notifications))
	for _, n := range v.Notifications {
		if m, ok := n["message"].(string); ok {
			out = append(out, m)
		}
	}
	return out
}

// Mount opens a screen and returns its first view.
func (h *TestHarness) Mount(t *testing.T, kind, token string, props map[string]any) View {
	t.Helper()
	var body any
	if props != nil {
		body = map[string]any{"props": props}
	}
	var v View
	h.AssertData(t, h.POST("/ui/screens/"+kind, body, token), http.StatusCreated, &v)
	return v
}

// Send dispatches an event and returns the resulting view.
func (h *TestHarness) Send(t *testing.T, id, token string, ev map[string]any) View {
	t.Helper()
	var v View
	h.AssertData(t, h.POST("/ui/screens/"+id+"/events", ev, token), http.StatusOK, &v)
	return v
}

// Input types value into field.
func (h *TestHarness) Input(t *testing.T, id, token, field, value string) View {
	t.Helper()
	return h.Send(t, id, token, map[string]any{"type": "input", "field": field, "value": value})
}

// Current fetches the current view of a screen.
func (h *TestHarness) Current(t *testing.T, id, token string) View {
	t.Helper()
	var v View
	h.AssertData(t, h.GET("/ui/screens/"+id, token), http.StatusOK, &v)
	return v
}

// --- Response helpers ---

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertData checks the status and decodes the {"data": ...} envelope.
func (h *TestHarness) AssertData(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	h.ParseJSON(resp, &env)
	if err := json.Unmarshal(env.Data, target); err != nil {
		t.Fatalf("unmarshal data: %v\nbody: %s", err, string(env.Data))
	}
}

// AssertError checks the status and returns the error envelope's code and
// message.
func (h *TestHarness) AssertError(t *testing.T, resp *http.Response, expected int) (code, message string) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	h.ParseJSON(resp, &env)
	return env.Error.Code, env.Error.Message
}

// --- Default test claims ---

// AttendantClaims returns TestClaims for a call-center attendant.
func AttendantClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-attendant",
		Username:  "joana",
		Name:      "Joana Lima",
		Email:     "joana@saude.example.com",
		Roles:     []string{"atendente"},
	}
}

// SupervisorClaims returns TestClaims for a supervisor.
func SupervisorClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-supervisor",
		Username:  "carlos",
		Email:     "carlos@saude.example.com",
		Roles:     []string{"supervisor"},
	}
}

// --- Fixtures ---

// SuccessFixture is the backend's answer to an accepted submission.
func SuccessFixture(message string) map[string]any {
	return map[string]any{"sucesso": true, "mensagem": message}
}

// RejectionFixture is the backend's answer to a rejected submission.
func RejectionFixture(message string, fieldErrors map[string]any) map[string]any {
	body := map[string]any{"sucesso": false, "erro": message}
	if fieldErrors != nil {
		body["errors"] = fieldErrors
	}
	return body
}

// CNESFixture is a registry answer for the given code.
func CNESFixture(code, name string) map[string]any {
	return map[string]any{
		"sucesso": true,
		"fonte":   "cnes",
		"dados": map[string]any{
			"codigo_cnes":                     code,
			"nome_fantasia":                   name,
			"descricao_municipio":             "CAMPO GRANDE",
			"sigla_uf":                        "MS",
			"numero_telefone_estabelecimento": "6734112000",
		},
	}
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
