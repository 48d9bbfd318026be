package records

import (
	"fmt"
	"slices"
	"testing"

	"github.com/pitabwire/callcenter/model"
)

func sampleCalls() []model.Record {
	return []model.Record{
		{
			"id": "1", "nome_contato": "Maria Souza", "telefone": "(67) 99264-4308",
			"unidade_solicitante": map[string]any{"nome": "UBS Centro"},
			"unidade_executante":  map[string]any{"nome": "Hospital Regional"},
			"tipo_chamada":        "contato", "status": model.StatusReceived,
			"descricao": "Pedido de leito", "nome_atendente": "João",
			"data_criacao": "2024-05-02T13:00:00Z",
		},
		{
			"id": "2", "nome_contato": "álvaro Lima", "telefone": "(67) 3321-4308",
			"unidade_solicitante": map[string]any{"nome": "UPA Norte"},
			"unidade_executante":  map[string]any{"nome": "Santa Casa"},
			"tipo_chamada":        "emergencia", "status": model.StatusPlaced,
			"descricao": "Transferência urgente", "nome_atendente": "Carla",
			"data_criacao": "2024-05-01T09:00:00Z",
		},
		{
			"id": "3", "nome_contato": "Bruno Alves", "telefone": "(67) 98888-1111",
			"unidade_solicitante": map[string]any{"nome": "Hospital Regional"},
			"unidade_executante":  map[string]any{"nome": "UBS Centro"},
			"tipo_chamada":        "contato", "status": model.StatusPlaced,
			"descricao": "Retorno de contato", "nome_atendente": "João",
			"data_criacao": "2024-05-03T18:30:00Z",
		},
	}
}

var callSearchFields = []string{
	"nome_contato", "telefone", "unidade_solicitante.nome", "unidade_executante.nome",
	"descricao", "nome_atendente",
}

func ids(records []model.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Text("id"))
	}
	return out
}

func checkIDs(t *testing.T, what string, got []model.Record, want ...string) {
	t.Helper()
	if g := ids(got); !slices.Equal(g, want) {
		t.Errorf("%s = %v, want %v", what, g, want)
	}
}

func TestFilter(t *testing.T) {
	calls := sampleCalls()

	tests := []struct {
		name string
		spec model.FilterSpec
		want []string
	}{
		{"empty spec is identity", model.FilterSpec{SearchFields: callSearchFields}, []string{"1", "2", "3"}},
		{"search nested field", model.FilterSpec{SearchFields: callSearchFields, SearchText: "regional"}, []string{"1", "3"}},
		{"search case insensitive", model.FilterSpec{SearchFields: callSearchFields, SearchText: "MARIA"}, []string{"1"}},
		{"search phone digits", model.FilterSpec{SearchFields: callSearchFields, SearchText: "3321"}, []string{"2"}},
		{"inner space matches", model.FilterSpec{SearchFields: callSearchFields, SearchText: "maria s"}, []string{"1"}},
		{"trailing space is part of the text", model.FilterSpec{SearchFields: callSearchFields, SearchText: "souza "}, nil},
		{"blank search still filters", model.FilterSpec{SearchFields: callSearchFields, SearchText: "   "}, nil},
		{"exact filter", model.FilterSpec{ExactFilters: map[string]string{"tipo_chamada": "contato"}}, []string{"1", "3"}},
		{"exact filters are ANDed", model.FilterSpec{ExactFilters: map[string]string{
			"tipo_chamada": "contato", "status": model.StatusPlaced,
		}}, []string{"3"}},
		{"empty exact value ignored", model.FilterSpec{ExactFilters: map[string]string{"status": ""}}, []string{"1", "2", "3"}},
		{"search and exact intersect", model.FilterSpec{
			SearchFields: callSearchFields, SearchText: "joão",
			ExactFilters: map[string]string{"status": model.StatusReceived},
		}, []string{"1"}},
		{"no match", model.FilterSpec{SearchFields: callSearchFields, SearchText: "inexistente"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkIDs(t, "Filter", Filter(calls, tt.spec), tt.want...)
		})
	}
	checkIDs(t, "input after Filter", calls, "1", "2", "3")
}

func TestDateRange(t *testing.T) {
	from, err := ParseDay("2024-05-02")
	if err != nil {
		t.Fatal(err)
	}
	to, err := ParseDay("2024-05-03")
	if err != nil {
		t.Fatal(err)
	}

	r := DateRange{Field: "data_criacao", From: from, To: to}
	checkIDs(t, "bounded range", r.Apply(sampleCalls()), "1", "3")

	open := DateRange{Field: "data_criacao"}
	if !open.IsZero() {
		t.Error("range without bounds should be zero")
	}
	if n := len(open.Apply(sampleCalls())); n != 3 {
		t.Errorf("open range kept %d records, want 3", n)
	}

	zero, err := ParseDay(" ")
	if err != nil || !zero.IsZero() {
		t.Errorf("ParseDay(blank) = %v, %v; want zero time", zero, err)
	}
}

func TestSort(t *testing.T) {
	calls := sampleCalls()

	tests := []struct {
		name  string
		state model.SortState
		want  []string
	}{
		{"collation ignores case and accents", model.SortState{Field: "nome_contato", Direction: model.SortAsc}, []string{"2", "3", "1"}},
		{"descending", model.SortState{Field: "nome_contato", Direction: model.SortDesc}, []string{"1", "3", "2"}},
		{"dates by value", model.SortState{Field: "data_criacao", Direction: model.SortDesc}, []string{"3", "1", "2"}},
		{"nested record by display field", model.SortState{Field: "unidade_solicitante", Direction: model.SortAsc}, []string{"3", "1", "2"}},
		{"nested path", model.SortState{Field: "unidade_executante.nome", Direction: model.SortAsc}, []string{"1", "2", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkIDs(t, "Sort", Sort(calls, tt.state), tt.want...)
		})
	}
	checkIDs(t, "input after Sort", calls, "1", "2", "3")
}

func TestSort_stableAndReversible(t *testing.T) {
	records := []model.Record{
		{"id": "a", "tipo": "B"},
		{"id": "b", "tipo": "A"},
		{"id": "c", "tipo": "B"},
		{"id": "d", "tipo": "A"},
	}
	state := model.SortState{}.Toggle("tipo")
	checkIDs(t, "ascending", Sort(records, state), "b", "d", "a", "c")
	checkIDs(t, "descending", Sort(records, state.Toggle("tipo")), "a", "c", "b", "d")
}

func TestSort_numbersAndMissing(t *testing.T) {
	records := []model.Record{
		{"id": "a", "total": float64(10)},
		{"id": "b"},
		{"id": "c", "total": 2},
		{"id": "d", "total": int64(7)},
	}
	checkIDs(t, "Sort", Sort(records, model.SortState{Field: "total", Direction: model.SortAsc}), "b", "c", "d", "a")
}

func TestSort_numericText(t *testing.T) {
	records := []model.Record{
		{"id": "a", "total": "10", "nome": "UBS 10"},
		{"id": "b", "total": "9", "nome": "UBS 9"},
		{"id": "c", "total": " 100 ", "nome": "ubs 100"},
		{"id": "d", "total": "2.5", "nome": "UBS 2"},
	}
	checkIDs(t, "numeric strings", Sort(records, model.SortState{Field: "total", Direction: model.SortAsc}), "d", "b", "a", "c")
	checkIDs(t, "digit runs in text", Sort(records, model.SortState{Field: "nome", Direction: model.SortAsc}), "d", "b", "a", "c")
}

func makeRecords(n int) []model.Record {
	out := make([]model.Record, n)
	for i := range out {
		out[i] = model.Record{"id": fmt.Sprint(i + 1)}
	}
	return out
}

func TestPaginate(t *testing.T) {
	items := makeRecords(23)

	p := Paginate(items, model.PageState{CurrentPage: 3, ItemsPerPage: 10})
	if p.TotalPages != 3 || len(p.Items) != 3 {
		t.Errorf("page 3: TotalPages = %d, items = %d; want 3, 3", p.TotalPages, len(p.Items))
	}
	if p.FirstItem != 21 || p.LastItem != 23 {
		t.Errorf("page 3 shows %d-%d, want 21-23", p.FirstItem, p.LastItem)
	}

	p = Paginate(items, model.PageState{CurrentPage: 1, ItemsPerPage: 10})
	checkIDs(t, "page 1", p.Items, "1", "2", "3", "4", "5", "6", "7", "8", "9", "10")

	p = Paginate(items, model.PageState{CurrentPage: 9, ItemsPerPage: 10})
	if p.CurrentPage != 3 {
		t.Errorf("out of range page = %d, want clamped to 3", p.CurrentPage)
	}

	empty := Paginate(nil, model.PageState{CurrentPage: 1, ItemsPerPage: 10})
	if empty.TotalPages != 0 || len(empty.Items) != 0 {
		t.Errorf("empty: TotalPages = %d, items = %d", empty.TotalPages, len(empty.Items))
	}
	if empty.Window == nil || len(empty.Window) != 0 {
		t.Errorf("empty window = %#v, want []int{}", empty.Window)
	}

	if got := TotalPages(1, 10); got != 1 {
		t.Errorf("TotalPages(1, 10) = %d, want 1", got)
	}
	if got := TotalPages(0, 10); got != 0 {
		t.Errorf("TotalPages(0, 10) = %d, want 0", got)
	}
}

func TestPageWindow(t *testing.T) {
	tests := []struct {
		current, total int
		want           []int
	}{
		{1, 10, []int{1, 2, 3, 4, 5}},
		{3, 10, []int{1, 2, 3, 4, 5}},
		{5, 10, []int{3, 4, 5, 6, 7}},
		{8, 10, []int{6, 7, 8, 9, 10}},
		{10, 10, []int{6, 7, 8, 9, 10}},
		{2, 3, []int{1, 2, 3}},
		{1, 5, []int{1, 2, 3, 4, 5}},
		{1, 1, []int{1}},
	}
	for _, tt := range tests {
		if got := PageWindow(tt.current, tt.total); !slices.Equal(got, tt.want) {
			t.Errorf("PageWindow(%d, %d) = %v, want %v", tt.current, tt.total, got, tt.want)
		}
	}
}

func TestCounts(t *testing.T) {
	counts := Counts(sampleCalls(), "tipo_chamada", model.CallTypes)
	want := []model.Count{
		{Value: "contato", Label: "Contato", Total: 2, Percent: 66.7},
		{Value: "emergencia", Label: "Emergência", Total: 1, Percent: 33.3},
	}
	if !slices.Equal(counts, want) {
		t.Errorf("Counts = %+v, want %+v", counts, want)
	}

	if got := CountOf(sampleCalls(), "status", model.StatusPlaced); got != 2 {
		t.Errorf("CountOf(placed) = %d, want 2", got)
	}
	if got := Counts(nil, "status", nil); len(got) != 0 {
		t.Errorf("Counts(nil) = %v, want empty", got)
	}
}
