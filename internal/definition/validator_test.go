package definition

import (
	"testing"

	"github.com/pitabwire/callcenter/model"
)

func validWizard() model.ScreenDefinition {
	return model.ScreenDefinition{
		ID:    "user_creation",
		Kind:  model.ScreenKindWizard,
		Title: "Criar Usuário",
		Fields: []model.FieldDefinition{
			{Name: "username", FieldRule: model.FieldRule{Required: true, Pattern: `^[a-z0-9_]+$`}},
			{Name: "password1", FieldRule: model.FieldRule{Required: true, MinLength: 8}},
			{Name: "password2", FieldRule: model.FieldRule{Required: true, MatchField: "password1"}},
			{Name: "telefone", FieldRule: model.FieldRule{Mask: "phone", Tag: "br_phone"}},
		},
		Steps: []model.StepDefinition{
			{ID: "identity", Fields: []string{"username", "telefone"}, Gates: []string{"username_available"}},
			{ID: "password", Fields: []string{"password1", "password2"}},
		},
		Lookups: map[string]model.LookupDefinition{
			"username": {Source: model.LookupUsername, MinLength: 3},
		},
		Submit: &model.SubmitTarget{Path: "/accounts/usuarios/criar/", Encoding: model.EncodingForm},
	}
}

func hasCode(errs []VError, code string) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}

func TestValidator_valid(t *testing.T) {
	v := NewValidator("username_available")
	errs := v.Validate([]model.ScreenDefinition{validWizard()})
	if len(errs) > 0 {
		for _, e := range errs {
			t.Logf("  %s", e)
		}
		t.Fatalf("Validate() returned %d errors, want 0", len(errs))
	}
}

func TestValidator_errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.ScreenDefinition)
		code   string
	}{
		{"missing id", func(d *model.ScreenDefinition) { d.ID = "" }, "REQUIRED"},
		{"bad kind", func(d *model.ScreenDefinition) { d.Kind = "modal" }, "INVALID_VALUE"},
		{"bad pattern", func(d *model.ScreenDefinition) { d.Fields[0].Pattern = "([" }, "INVALID_PATTERN"},
		{"unknown match field", func(d *model.ScreenDefinition) { d.Fields[2].MatchField = "senha" }, "UNKNOWN_FIELD"},
		{"self match", func(d *model.ScreenDefinition) { d.Fields[2].MatchField = "password2" }, "INVALID_VALUE"},
		{"unknown mask", func(d *model.ScreenDefinition) { d.Fields[3].Mask = "cpf" }, "INVALID_VALUE"},
		{"unknown tag", func(d *model.ScreenDefinition) { d.Fields[3].Tag = "no_such_tag" }, "INVALID_TAG"},
		{"duplicate field", func(d *model.ScreenDefinition) { d.Fields[1].Name = "username" }, "DUPLICATE"},
		{"no steps", func(d *model.ScreenDefinition) { d.Steps = nil }, "REQUIRED"},
		{"unknown step field", func(d *model.ScreenDefinition) { d.Steps[1].Fields = []string{"senha"} }, "UNKNOWN_FIELD"},
		{"unknown gate", func(d *model.ScreenDefinition) { d.Steps[1].Gates = []string{"strength"} }, "UNKNOWN_GATE"},
		{"duplicate step", func(d *model.ScreenDefinition) { d.Steps[1].ID = "identity" }, "DUPLICATE"},
		{"lookup on unknown field", func(d *model.ScreenDefinition) {
			d.Lookups["apelido"] = model.LookupDefinition{Source: model.LookupUsername}
		}, "UNKNOWN_FIELD"},
		{"bad lookup source", func(d *model.ScreenDefinition) {
			d.Lookups["username"] = model.LookupDefinition{Source: "ldap"}
		}, "INVALID_VALUE"},
		{"relative submit path", func(d *model.ScreenDefinition) { d.Submit.Path = "usuarios/criar/" }, "INVALID_VALUE"},
		{"bad encoding", func(d *model.ScreenDefinition) { d.Submit.Encoding = "xml" }, "INVALID_VALUE"},
		{"bad export format", func(d *model.ScreenDefinition) {
			d.Exports = map[string]string{"docx": "/x/"}
		}, "INVALID_VALUE"},
		{"default outside options", func(d *model.ScreenDefinition) {
			d.Fields[0].Options = []model.OptionDefinition{{Label: "A", Value: "a"}}
			d.Fields[0].Default = "b"
		}, "INVALID_VALUE"},
	}

	v := NewValidator("username_available")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validWizard()
			def.Fields = append([]model.FieldDefinition(nil), def.Fields...)
			def.Steps = append([]model.StepDefinition(nil), def.Steps...)
			def.Lookups = map[string]model.LookupDefinition{"username": def.Lookups["username"]}
			submit := *def.Submit
			def.Submit = &submit
			tt.mutate(&def)

			errs := v.Validate([]model.ScreenDefinition{def})
			if !hasCode(errs, tt.code) {
				t.Errorf("expected %s error, got %v", tt.code, errs)
			}
		})
	}
}

func TestValidator_duplicate_screen(t *testing.T) {
	a := validWizard()
	a.SourceFile = "a.yaml"
	b := validWizard()
	b.SourceFile = "b.yaml"
	errs := NewValidator().Validate([]model.ScreenDefinition{a, b})
	if !hasCode(errs, "DUPLICATE") {
		t.Errorf("expected DUPLICATE error, got %v", errs)
	}
}

func TestValidator_list(t *testing.T) {
	def := model.ScreenDefinition{ID: "call_history", Kind: model.ScreenKindList}
	if errs := NewValidator().Validate([]model.ScreenDefinition{def}); !hasCode(errs, "REQUIRED") {
		t.Errorf("list without list section: got %v", errs)
	}

	def.List = &model.ListDefinition{
		SearchFields: []string{"a.b.c"},
		DefaultSort:  model.SortState{Field: "data", Direction: "sideways"},
		PageSize:     -1,
	}
	errs := NewValidator().Validate([]model.ScreenDefinition{def})
	if len(errs) != 3 {
		for _, e := range errs {
			t.Logf("  %s", e)
		}
		t.Fatalf("Validate() returned %d errors, want 3", len(errs))
	}
}

func TestValidator_report(t *testing.T) {
	def := model.ScreenDefinition{ID: "reports", Kind: model.ScreenKindReport}
	if errs := NewValidator().Validate([]model.ScreenDefinition{def}); !hasCode(errs, "REQUIRED") {
		t.Errorf("report without report section: got %v", errs)
	}

	def.Report = &model.ReportDefinition{
		StatsFields:   []string{"status"},
		DateField:     "data_criacao",
		Periods:       []string{"30d", "2w"},
		DefaultPeriod: "12m",
	}
	errs := NewValidator().Validate([]model.ScreenDefinition{def})
	if len(errs) != 2 {
		for _, e := range errs {
			t.Logf("  %s", e)
		}
		t.Fatalf("Validate() returned %d errors, want 2 (bad period, unlisted default)", len(errs))
	}
}

func TestVError_Error(t *testing.T) {
	e := VError{Path: "screens[0].id", Code: "REQUIRED", Message: "id is required"}
	if got := e.Error(); got != "screens[0].id: id is required" {
		t.Errorf("Error() = %q", got)
	}
}
