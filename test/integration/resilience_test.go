package integration

import (
	"net/http"
	"slices"
	"testing"
	"time"

	"github.com/pitabwire/callcenter/internal/config"
)

const unavailableMessage = "O servidor está temporariamente indisponível"

// ==========================================================================
// Circuit Breaker Tests
// ==========================================================================

func TestResilience_CircuitBreakerTripsOnConsecutiveFailures(t *testing.T) {
	h := NewTestHarness(t,
		WithCircuitBreaker(config.CircuitBreakerConfig{
			FailureThreshold: 2,
			SuccessThreshold: 1,
			Timeout:          time.Minute,
		}),
	)
	token := h.GenerateToken(AttendantClaims())

	h.Backend().OnOperation(OpRegisterCall).
		RespondWith(http.StatusServiceUnavailable, map[string]any{"erro": "manutenção"})

	v := h.Mount(t, "call_registration", token, nil)
	fillValidCall(t, h, v.ID, token)

	for range 2 {
		v = submit(t, h, v.ID, token)
		if got := submitError(v); got != unavailableMessage {
			t.Fatalf("submit error = %q, want %q", got, unavailableMessage)
		}
	}
	h.Backend().AssertCalled(t, OpRegisterCall, 2)

	// The open breaker answers without reaching the backend.
	v = submit(t, h, v.ID, token)
	if got := submitError(v); got != unavailableMessage {
		t.Errorf("submit error = %q, want %q", got, unavailableMessage)
	}
	if !slices.Contains(v.Messages(), unavailableMessage) {
		t.Errorf("messages = %v, want unavailable notification", v.Messages())
	}
	h.Backend().AssertCalled(t, OpRegisterCall, 2)

	// Readiness reports the backend as down while the breaker is open.
	h.AssertStatus(t, h.GET("/ui/ready", ""), http.StatusServiceUnavailable)
}

func TestResilience_CircuitBreakerRecoveryAfterTimeout(t *testing.T) {
	h := NewTestHarness(t,
		WithCircuitBreaker(config.CircuitBreakerConfig{
			FailureThreshold: 1,
			SuccessThreshold: 1,
			Timeout:          200 * time.Millisecond,
		}),
	)
	token := h.GenerateToken(AttendantClaims())

	h.Backend().OnOperation(OpRegisterCall).
		RespondWith(http.StatusBadGateway, nil).
		RespondWith(http.StatusOK, SuccessFixture("ok"))

	v := h.Mount(t, "call_registration", token, nil)
	fillValidCall(t, h, v.ID, token)

	v = submit(t, h, v.ID, token)
	if got := submitError(v); got != unavailableMessage {
		t.Fatalf("submit error = %q, want %q", got, unavailableMessage)
	}

	time.Sleep(300 * time.Millisecond)

	v = submit(t, h, v.ID, token)
	if got := submitError(v); got != "" {
		t.Errorf("submit error after recovery = %q, want none", got)
	}
	if !slices.Contains(v.Messages(), "Chamada registrada com sucesso no sistema!") {
		t.Errorf("messages = %v, want success notification", v.Messages())
	}
	h.Backend().AssertCalled(t, OpRegisterCall, 2)
}

// ==========================================================================
// Transport failures
// ==========================================================================

func TestResilience_ConnectionDroppedByBackend(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AttendantClaims())

	h.Backend().OnOperation(OpRegisterCall).RespondWithConnectionError()

	v := h.Mount(t, "call_registration", token, nil)
	fillValidCall(t, h, v.ID, token)
	v = submit(t, h, v.ID, token)

	if got := submitError(v); got != unavailableMessage {
		t.Errorf("submit error = %q, want %q", got, unavailableMessage)
	}
	if got := v.Values()["nome"]; got != "Carlos Pereira" {
		t.Errorf("nome = %v, want values kept after failure", got)
	}
}

func TestResilience_SlowBackendTimesOut(t *testing.T) {
	h := NewTestHarness(t, WithBackendTimeout(100*time.Millisecond))
	token := h.GenerateToken(AttendantClaims())

	h.Backend().OnOperation(OpRegisterCall).
		RespondWithDelay(2*time.Second, http.StatusOK, SuccessFixture("tarde demais"))

	v := h.Mount(t, "call_registration", token, nil)
	fillValidCall(t, h, v.ID, token)

	start := time.Now()
	v = submit(t, h, v.ID, token)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("submit took %v, want the backend timeout to cut it short", elapsed)
	}

	want := "O servidor não respondeu a tempo"
	if got := submitError(v); got != want {
		t.Errorf("submit error = %q, want %q", got, want)
	}
}

func TestResilience_LookupFailureLeavesFormUsable(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AttendantClaims())

	h.Backend().OnOperation(OpMunicipios).
		RespondWith(http.StatusInternalServerError, map[string]any{"erro": "falha"})
	h.Backend().OnOperation(OpRegisterCall).
		RespondWith(http.StatusOK, SuccessFixture("ok"))

	v := h.Mount(t, "call_registration", token, nil)
	h.Input(t, v.ID, token, "municipio", "Camp")
	h.Wait(quietPeriod)
	v = h.Current(t, v.ID, token)

	if got := suggestions(v); len(got) != 0 {
		t.Errorf("suggestions = %v, want none after a failed lookup", got)
	}
	if h.Redis.Exists("callcenter:lookup:municipios:camp") {
		t.Error("failed lookups must not be cached")
	}

	fillValidCall(t, h, v.ID, token)
	v = submit(t, h, v.ID, token)
	if !slices.Contains(v.Messages(), "Chamada registrada com sucesso no sistema!") {
		t.Errorf("messages = %v, want success notification", v.Messages())
	}
}
