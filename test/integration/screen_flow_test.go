package integration

import (
	"net/http"
	"slices"
	"testing"
	"time"
)

// quietPeriod is the lookup debounce the shipped definitions use.
const quietPeriod = 300 * time.Millisecond

// ==========================================================================
// Call Registration
// ==========================================================================

// fillValidCall types a complete call into the registration screen.
func fillValidCall(t *testing.T, h *TestHarness, id, token string) {
	t.Helper()
	for _, kv := range [][2]string{
		{"nome", "Carlos Pereira"},
		{"telefone", "67992644308"},
		{"unidade", "Hospital Regional"},
		{"municipio", "Campo Grande"},
		{"tipo_chamada", "sistema_lento"},
		{"descricao", "Sistema muito lento desde a manhã"},
	} {
		h.Input(t, id, token, kv[0], kv[1])
	}
}

func submit(t *testing.T, h *TestHarness, id, token string) View {
	t.Helper()
	return h.Send(t, id, token, map[string]any{"type": "submit"})
}

func suggestions(v View) []string {
	ac, _ := v.State["municipios"].(map[string]any)
	raw, _ := ac["suggestions"].([]any)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if name, ok := s.(string); ok {
			out = append(out, name)
		}
	}
	return out
}

func submitError(v View) string {
	sub, _ := v.State["submit"].(map[string]any)
	msg, _ := sub["error"].(string)
	return msg
}

func TestCallRegistration_SubmitsToBackend(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AttendantClaims())
	h.Backend().OnOperation(OpRegisterCall).
		RespondWith(http.StatusOK, SuccessFixture("Chamada registrada"))

	resp := h.POSTWithHeaders("/ui/screens/call_registration", nil, token, map[string]string{
		"X-CSRFToken": "csrf-123",
		"Cookie":      "sessionid=abc",
	})
	var v View
	h.AssertData(t, resp, http.StatusCreated, &v)

	if got := v.Values()["nome_atendente"]; got != "Joana Lima" {
		t.Errorf("nome_atendente = %v, want %q", got, "Joana Lima")
	}

	fillValidCall(t, h, v.ID, token)
	v = submit(t, h, v.ID, token)

	h.Backend().AssertCalled(t, OpRegisterCall, 1)
	req := h.Backend().LastRequest(OpRegisterCall)
	if req == nil {
		t.Fatal("expected a registration request")
	}
	for field, want := range map[string]string{
		"nome":           "Carlos Pereira",
		"telefone":       "(67) 99264-4308",
		"nome_atendente": "Joana Lima",
		"tipo_chamada":   "sistema_lento",
	} {
		if got := req.Body[field]; got != want {
			t.Errorf("submitted %s = %v, want %q", field, got, want)
		}
	}
	if got := req.Headers.Get("X-CSRFToken"); got != "csrf-123" {
		t.Errorf("forwarded X-CSRFToken = %q, want %q", got, "csrf-123")
	}
	if got := req.Headers.Get("Cookie"); got != "sessionid=abc" {
		t.Errorf("forwarded Cookie = %q, want %q", got, "sessionid=abc")
	}

	if !slices.Contains(v.Messages(), "Chamada registrada com sucesso no sistema!") {
		t.Errorf("messages = %v, want success notification", v.Messages())
	}
	if got := v.Values()["nome"]; got != nil && got != "" {
		t.Errorf("nome after submit = %v, want form reset", got)
	}
	if got := v.Values()["nome_atendente"]; got != "Joana Lima" {
		t.Errorf("nome_atendente after reset = %v, want %q", got, "Joana Lima")
	}
}

func TestCallRegistration_InvalidFormIsNotSubmitted(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AttendantClaims())
	v := h.Mount(t, "call_registration", token, nil)

	h.Input(t, v.ID, token, "telefone", "6799")
	v = submit(t, h, v.ID, token)

	h.Backend().AssertNotCalled(t, OpRegisterCall)
	if !slices.Contains(v.Messages(), "Por favor, corrija os campos destacados.") {
		t.Errorf("messages = %v, want validation warning", v.Messages())
	}
	errs := v.Errors()
	if errs["telefone"] != "Telefone deve estar no formato (XX) XXXXX-XXXX" {
		t.Errorf("telefone error = %v", errs["telefone"])
	}
	if _, ok := errs["nome"]; !ok {
		t.Error("expected an error for the required nome field")
	}
}

func TestCallRegistration_BackendRejectionIsShown(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AttendantClaims())
	h.Backend().OnOperation(OpRegisterCall).
		RespondWith(http.StatusOK, RejectionFixture("Unidade inativa no sistema", nil))

	v := h.Mount(t, "call_registration", token, nil)
	fillValidCall(t, h, v.ID, token)
	v = submit(t, h, v.ID, token)

	if got := submitError(v); got != "Unidade inativa no sistema" {
		t.Errorf("submit error = %q, want backend message", got)
	}
	if !slices.Contains(v.Messages(), "Unidade inativa no sistema") {
		t.Errorf("messages = %v, want backend message", v.Messages())
	}
	if got := v.Values()["nome"]; got != "Carlos Pereira" {
		t.Errorf("nome = %v, want values kept after rejection", got)
	}
}

// ==========================================================================
// Lookups
// ==========================================================================

func TestCallRegistration_MunicipioSuggestionsAreCached(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AttendantClaims())
	h.Backend().OnOperation(OpMunicipios).
		RespondWith(http.StatusOK, map[string]any{"results": []string{"Campo Grande", "Campinas"}})

	v := h.Mount(t, "call_registration", token, nil)
	h.Input(t, v.ID, token, "municipio", "Camp")
	h.Backend().AssertNotCalled(t, OpMunicipios)

	h.Wait(quietPeriod)
	v = h.Current(t, v.ID, token)

	if got := suggestions(v); !slices.Equal(got, []string{"Campo Grande", "Campinas"}) {
		t.Errorf("suggestions = %v", got)
	}
	h.Backend().AssertCalled(t, OpMunicipios, 1)
	if req := h.Backend().LastRequest(OpMunicipios); req != nil && req.QueryParams["q"] != "Camp" {
		t.Errorf("query = %q, want %q", req.QueryParams["q"], "Camp")
	}
	if !h.Redis.Exists("callcenter:lookup:municipios:camp") {
		t.Errorf("expected cached municipios, keys = %v", h.Redis.Keys())
	}

	// A second screen asking the same question is answered from the cache.
	other := h.Mount(t, "call_registration", token, nil)
	h.Input(t, other.ID, token, "municipio", "camp")
	h.Wait(quietPeriod)
	other = h.Current(t, other.ID, token)

	if got := suggestions(other); len(got) != 2 {
		t.Errorf("cached suggestions = %v", got)
	}
	h.Backend().AssertCalled(t, OpMunicipios, 1)

	v = h.Send(t, v.ID, token, map[string]any{"type": "choose", "field": "municipio", "value": "Campinas"})
	if got := v.Values()["municipio"]; got != "Campinas" {
		t.Errorf("municipio = %v, want %q", got, "Campinas")
	}
}

func TestCallRegistration_ShortMunicipioQueryIsNotSent(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AttendantClaims())

	v := h.Mount(t, "call_registration", token, nil)
	h.Input(t, v.ID, token, "municipio", "C")
	h.Wait(quietPeriod)
	h.Current(t, v.ID, token)

	h.Backend().AssertNotCalled(t, OpMunicipios)
}

func TestCallRegistration_CNESLookupFillsForm(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AttendantClaims())
	h.Backend().OnOperation(OpLookupCNES).
		RespondWith(http.StatusOK, CNESFixture("2345678", "HOSPITAL REGIONAL DE MATO GROSSO DO SUL"))

	v := h.Mount(t, "call_registration", token, nil)
	h.Input(t, v.ID, token, "cnes", "234567")
	h.Wait(quietPeriod)
	h.Backend().AssertNotCalled(t, OpLookupCNES)

	h.Input(t, v.ID, token, "cnes", "2345678")
	h.Wait(quietPeriod)
	v = h.Current(t, v.ID, token)

	req := h.Backend().LastRequest(OpLookupCNES)
	if req == nil || req.Path != "/accounts/api/cnes/2345678/" {
		t.Fatalf("cnes request = %+v", req)
	}
	cnes, _ := v.State["cnes"].(map[string]any)
	result, _ := cnes["result"].(map[string]any)
	if result["nome"] != "HOSPITAL REGIONAL DE MATO GROSSO DO SUL" {
		t.Fatalf("cnes state = %s", FormatJSON(cnes))
	}

	v = h.Send(t, v.ID, token, map[string]any{"type": "choose", "field": "cnes"})
	for field, want := range map[string]string{
		"unidade":                 "HOSPITAL REGIONAL DE MATO GROSSO DO SUL",
		"municipio":               "CAMPO GRANDE",
		"contato_telefonico_cnes": "(67) 3411-2000",
	} {
		if got := v.Values()[field]; got != want {
			t.Errorf("%s = %v, want %q", field, got, want)
		}
	}
	if !slices.Contains(v.Messages(), "Dados do CNES aplicados ao formulário") {
		t.Errorf("messages = %v", v.Messages())
	}
	if !h.Redis.Exists("callcenter:lookup:cnes:2345678") {
		t.Errorf("expected cached establishment, keys = %v", h.Redis.Keys())
	}
}

func TestCallRegistration_UnknownCNESShowsMessage(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AttendantClaims())
	h.Backend().OnOperation(OpLookupCNES).
		RespondWith(http.StatusNotFound, map[string]any{"erro": "não encontrado"})

	v := h.Mount(t, "call_registration", token, nil)
	h.Input(t, v.ID, token, "cnes", "7654321")
	h.Wait(quietPeriod)
	v = h.Current(t, v.ID, token)

	cnes, _ := v.State["cnes"].(map[string]any)
	want := "Código CNES não encontrado na base de dados do Ministério da Saúde"
	if cnes["message"] != want {
		t.Errorf("cnes message = %v, want %q", cnes["message"], want)
	}
	if h.Redis.Exists("callcenter:lookup:cnes:7654321") {
		t.Error("not-found answers must not be cached")
	}
}

// ==========================================================================
// Session lifecycle
// ==========================================================================

func TestScreens_UnmountClosesSession(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AttendantClaims())
	v := h.Mount(t, "call_registration", token, nil)

	h.AssertStatus(t, h.DELETE("/ui/screens/"+v.ID, token), http.StatusNoContent)

	code, _ := h.AssertError(t, h.GET("/ui/screens/"+v.ID, token), http.StatusNotFound)
	if code != "SCREEN_NOT_FOUND" {
		t.Errorf("code = %q, want SCREEN_NOT_FOUND", code)
	}
	code, _ = h.AssertError(t, h.POST("/ui/screens/"+v.ID+"/events", map[string]any{"type": "submit"}, token), http.StatusNotFound)
	if code != "SCREEN_NOT_FOUND" {
		t.Errorf("event code = %q, want SCREEN_NOT_FOUND", code)
	}
}

func TestScreens_SessionLimit(t *testing.T) {
	h := NewTestHarness(t, WithMaxSessions(1))
	token := h.GenerateToken(AttendantClaims())
	h.Mount(t, "call_registration", token, nil)

	code, _ := h.AssertError(t, h.POST("/ui/screens/call_registration", nil, token), http.StatusTooManyRequests)
	if code != "SCREEN_LIMIT" {
		t.Errorf("code = %q, want SCREEN_LIMIT", code)
	}
}

func TestScreens_UnknownKind(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AttendantClaims())

	code, _ := h.AssertError(t, h.POST("/ui/screens/does_not_exist", nil, token), http.StatusNotFound)
	if code != "NOT_FOUND" {
		t.Errorf("code = %q, want NOT_FOUND", code)
	}
}

func TestScreens_UnknownEvent(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AttendantClaims())
	v := h.Mount(t, "call_registration", token, nil)

	code, _ := h.AssertError(t, h.POST("/ui/screens/"+v.ID+"/events", map[string]any{"type": "advance"}, token), http.StatusBadRequest)
	if code != "UNKNOWN_EVENT" {
		t.Errorf("code = %q, want UNKNOWN_EVENT", code)
	}
}
