package model

import (
	"testing"
	"time"
)

func TestRecord_Value_nested(t *testing.T) {
	r := Record{
		"nome_contato":        "Maria",
		"unidade_solicitante": map[string]any{"nome": "UBS Centro"},
		"unidade_executante":  Record{"nome": "Hospital Regional"},
	}

	if got := r.Value("nome_contato"); got != "Maria" {
		t.Errorf("Value(nome_contato) = %v, want Maria", got)
	}
	if got := r.Value("unidade_solicitante.nome"); got != "UBS Centro" {
		t.Errorf("Value(unidade_solicitante.nome) = %v, want UBS Centro", got)
	}
	if got := r.Value("unidade_executante.nome"); got != "Hospital Regional" {
		t.Errorf("Value(unidade_executante.nome) = %v, want Hospital Regional", got)
	}
	if got := r.Value("nome_contato.nome"); got != nil {
		t.Errorf("Value on scalar parent = %v, want nil", got)
	}
	if got := r.Value("missing"); got != nil {
		t.Errorf("Value(missing) = %v, want nil", got)
	}
}

func TestRecord_Text(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	r := Record{
		"ativo":     true,
		"total":     float64(12),
		"criado":    created,
		"unidade":   map[string]any{"nome": "UPA Norte"},
		"sem_valor": nil,
	}

	cases := map[string]string{
		"ativo":     "true",
		"total":     "12",
		"criado":    "2024-03-01T10:00:00Z",
		"unidade":   "UPA Norte",
		"sem_valor": "",
	}
	for path, want := range cases {
		if got := r.Text(path); got != want {
			t.Errorf("Text(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestSortState_Toggle(t *testing.T) {
	s := SortState{Field: "nome", Direction: SortAsc}

	s = s.Toggle("nome")
	if s.Direction != SortDesc {
		t.Errorf("same field toggle: Direction = %q, want desc", s.Direction)
	}
	s = s.Toggle("nome")
	if s.Direction != SortAsc {
		t.Errorf("second toggle: Direction = %q, want asc", s.Direction)
	}
	s = SortState{Field: "nome", Direction: SortDesc}.Toggle("municipio")
	if s.Field != "municipio" || s.Direction != SortAsc {
		t.Errorf("new field toggle = %+v, want municipio asc", s)
	}
}

func TestFilterSpec_Equal_ignores_empty_filters(t *testing.T) {
	a := FilterSpec{SearchFields: []string{"nome"}, ExactFilters: map[string]string{"tipo": ""}}
	b := FilterSpec{SearchFields: []string{"nome"}}
	if !a.Equal(b) {
		t.Error("specs differing only by empty filter values should be equal")
	}
	c := b.WithExact("tipo", "UNIDADE_EXECUTANTE")
	if c.Equal(b) {
		t.Error("spec with an active exact filter should differ")
	}
	if len(b.ExactFilters) != 0 {
		t.Error("WithExact must not mutate the receiver")
	}
	if d := c.WithExact("tipo", ""); !d.Equal(b) {
		t.Error("clearing the filter should restore the original spec")
	}
}
