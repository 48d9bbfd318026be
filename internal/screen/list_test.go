package screen

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/callcenter/internal/definition"
	"github.com/pitabwire/callcenter/model"
)

func listState(t *testing.T, v View) ListState {
	t.Helper()
	st, ok := v.State.(ListState)
	require.True(t, ok, "state is %T", v.State)
	return st
}

func historyRecords() []model.Record {
	var out []model.Record
	for i := 1; i <= 25; i++ {
		status := model.StatusReceived
		if i%5 == 0 {
			status = model.StatusPlaced
		}
		tipo := "sistema_lento"
		if i%2 == 0 {
			tipo = "reset_senha_usuario"
		}
		out = append(out, model.Record{
			"id":                  fmt.Sprint(i),
			"nome_contato":        fmt.Sprintf("Contato %02d", i),
			"telefone":            "(67) 99264-43" + fmt.Sprintf("%02d", i),
			"tipo_chamada":        tipo,
			"status":              status,
			"data_criacao":        time.Date(2024, 5, i, 9, 0, 0, 0, time.UTC).Format(time.RFC3339),
			"unidade_solicitante": map[string]any{"nome": fmt.Sprintf("UBS %02d", i)},
		})
	}
	return out
}

func ids(page model.Page) []string {
	out := make([]string, len(page.Items))
	for i, r := range page.Items {
		out[i] = r.Text("id")
	}
	return out
}

func TestCallHistory_DefaultOrderAndPaging(t *testing.T) {
	h := newHarness(t)
	st := listState(t, h.mount(t, "call_history", Props{Records: historyRecords()}))

	assert.Equal(t, 25, st.Total)
	assert.Equal(t, 3, st.Page.TotalPages)
	assert.Equal(t, []string{"25", "24", "23", "22", "21", "20", "19", "18", "17", "16"}, ids(st.Page))
	assert.Equal(t, model.SortState{Field: "data_criacao", Direction: model.SortDesc}, st.Sort)
}

func TestCallHistory_StatsAndOptions(t *testing.T) {
	h := newHarness(t)
	st := listState(t, h.mount(t, "call_history", Props{Records: historyRecords()}))

	require.Len(t, st.Stats, 2)
	assert.Equal(t, model.StatusReceived, st.Stats[0].Value)
	assert.Equal(t, "Chamada Recebida", st.Stats[0].Label)
	assert.Equal(t, 20, st.Stats[0].Total)
	assert.Equal(t, 80.0, st.Stats[0].Percent)

	tipos := st.Options["tipo_chamada"]
	require.NotEmpty(t, tipos)
	assert.Equal(t, "sistema_lento", tipos[0].Value)
	assert.Equal(t, 13, tipos[0].Count)
	assert.Len(t, tipos, len(model.CallTypes))
}

func TestCallHistory_SearchFilterSortPage(t *testing.T) {
	h := newHarness(t)
	v := h.mount(t, "call_history", Props{Records: historyRecords()})

	st := listState(t, h.dispatch(t, v.ID, Event{Type: EventPage, Page: 3}))
	assert.Equal(t, 3, st.Page.CurrentPage)

	st = listState(t, h.dispatch(t, v.ID, Event{Type: EventSearch, Value: "ubs 1"}))
	assert.Equal(t, 1, st.Page.CurrentPage)
	assert.Equal(t, 10, st.Page.TotalItems)

	st = listState(t, h.dispatch(t, v.ID, Event{Type: EventFilter, Field: "status", Value: model.StatusPlaced}))
	assert.Equal(t, []string{"15", "10"}, ids(st.Page))

	st = listState(t, h.dispatch(t, v.ID, Event{Type: EventSort, Field: "data_criacao"}))
	assert.Equal(t, model.SortAsc, st.Sort.Direction)
	assert.Equal(t, []string{"10", "15"}, ids(st.Page))
	st = listState(t, h.dispatch(t, v.ID, Event{Type: EventSort, Field: "nome_contato"}))
	assert.Equal(t, model.SortState{Field: "nome_contato", Direction: model.SortAsc}, st.Sort)
	assert.Equal(t, []string{"10", "15"}, ids(st.Page))

	st = listState(t, h.dispatch(t, v.ID, Event{Type: EventClearFilters}))
	assert.Equal(t, 25, st.Page.TotalItems)
	assert.Empty(t, st.SearchInput)

	_, err := h.m.Dispatch(h.ctx, v.ID, Event{Type: EventSort, Field: "descricao"})
	assert.True(t, model.HasCode(err, model.ErrBadRequest))
	_, err = h.m.Dispatch(h.ctx, v.ID, Event{Type: EventFilter, Field: "funcao", Value: "x"})
	assert.True(t, model.HasCode(err, model.ErrBadRequest))
}

func TestCallHistory_DateRange(t *testing.T) {
	h := newHarness(t)
	v := h.mount(t, "call_history", Props{Records: historyRecords()})

	h.dispatch(t, v.ID, Event{Type: EventFilter, Field: "data_inicio", Value: "2024-05-10"})
	st := listState(t, h.dispatch(t, v.ID, Event{Type: EventFilter, Field: "data_fim", Value: "2024-05-12"}))
	assert.Equal(t, []string{"12", "11", "10"}, ids(st.Page))
	assert.Equal(t, map[string]string{"data_inicio": "2024-05-10", "data_fim": "2024-05-12"}, st.DateFilters)

	_, err := h.m.Dispatch(h.ctx, v.ID, Event{Type: EventFilter, Field: "data_fim", Value: "12/05/2024"})
	assert.True(t, model.HasCode(err, model.ErrBadRequest))

	st = listState(t, h.dispatch(t, v.ID, Event{Type: EventFilter, Field: "data_inicio", Value: ""}))
	assert.Equal(t, 12, st.Page.TotalItems)
	assert.Equal(t, map[string]string{"data_fim": "2024-05-12"}, st.DateFilters)
}

func TestCallHistory_SelectPage(t *testing.T) {
	h := newHarness(t)
	v := h.mount(t, "call_history", Props{Records: historyRecords()})

	st := listState(t, h.dispatch(t, v.ID, Event{Type: EventSelect, ID: "25"}))
	assert.Equal(t, []string{"25"}, st.Selected)
	assert.False(t, st.PageSelected)

	st = listState(t, h.dispatch(t, v.ID, Event{Type: EventSelectPage}))
	assert.Len(t, st.Selected, 10)
	assert.True(t, st.PageSelected)

	st = listState(t, h.dispatch(t, v.ID, Event{Type: EventPage, Page: 2}))
	assert.False(t, st.PageSelected)
	assert.Len(t, st.Selected, 10)

	h.dispatch(t, v.ID, Event{Type: EventPage, Page: 1})
	st = listState(t, h.dispatch(t, v.ID, Event{Type: EventSelectPage}))
	assert.Empty(t, st.Selected)
}

func TestCallHistory_Export(t *testing.T) {
	h := newHarness(t)
	v := h.mount(t, "call_history", Props{Records: historyRecords()})
	h.dispatch(t, v.ID, Event{Type: EventFilter, Field: "tipo_chamada", Value: "sistema_lento"})
	h.dispatch(t, v.ID, Event{Type: EventSearch, Value: "UBS"})

	v = h.dispatch(t, v.ID, Event{Type: EventExport, Format: "pdf"})
	st := listState(t, v)
	assert.Equal(t, "http://backend/accounts/historico-chamadas/export_pdf/?busca=UBS&tipo=sistema_lento", st.ExportURL)
	assert.Equal(t, []string{"Exportação PDF iniciada!"}, messages(v.Notifications))

	v = h.dispatch(t, v.ID, Event{Type: EventExport, Format: "xml"})
	require.Len(t, v.Notifications, 1)
	assert.Equal(t, model.ErrNotFound, v.Notifications[0].Code)
}

func TestCallHistory_LoadsFromSource(t *testing.T) {
	defs, err := definition.NewLoader().LoadEmbedded()
	require.NoError(t, err)
	for i, def := range defs {
		if def.ID == "call_history" {
			list := *def.List
			list.Source = "/accounts/api/chamadas/"
			defs[i].List = &list
		}
	}

	h := newHarness(t)
	h.backend.records["/accounts/api/chamadas/"] = historyRecords()[:3]
	m := NewManager(definition.NewRegistry(defs), Deps{Backend: h.backend, Lookups: h.lookups, Scheduler: h.sched}, h.m.cfg, WithSettle())
	defer m.CloseAll()

	v, err := m.Mount(h.ctx, "call_history", Props{})
	require.NoError(t, err)
	st := listState(t, v)
	assert.False(t, st.Loading)
	assert.Equal(t, 3, st.Total)
}

func TestUnitDirectory_DebouncedSearch(t *testing.T) {
	h := newHarness(t)
	units := []model.Record{
		{"id": "1", "nome": "UBS Centro", "municipio": "Dourados", "tipo": model.UnitRequester, "telefone": "(67) 3411-2000"},
		{"id": "2", "nome": "Hospital Regional", "municipio": "Campo Grande", "tipo": model.UnitExecutor},
		{"id": "3", "nome": "Policlínica", "municipio": "Corumbá", "tipo": model.UnitExecutor},
	}
	v := h.mount(t, "unit_directory", Props{Records: units})

	st := listState(t, h.dispatch(t, v.ID, Event{Type: EventSearch, Value: "dourados"}))
	assert.Equal(t, "dourados", st.SearchInput)
	assert.Equal(t, 3, st.Page.TotalItems)

	st = listState(t, h.wait(t, v.ID, 300*time.Millisecond))
	require.Equal(t, 1, st.Page.TotalItems)
	row := st.Page.Items[0]
	assert.Equal(t, "tel:+556734112000", row["telefone_link"])
	assert.Equal(t, "Unidade Solicitante", row["tipo_label"])
	_, leaked := units[0]["telefone_link"]
	assert.False(t, leaked)

	require.Len(t, st.Stats, 2)
	assert.Equal(t, model.UnitExecutor, st.Stats[0].Value)
	assert.Equal(t, 2, st.Stats[0].Total)

	_, err := h.m.Dispatch(h.ctx, v.ID, Event{Type: EventExport, Format: "pdf"})
	assert.True(t, model.HasCode(err, model.ErrUnknownEvent))
}

func TestUnitDirectory_ClearCancelsPendingSearch(t *testing.T) {
	h := newHarness(t)
	units := []model.Record{
		{"id": "1", "nome": "UBS Centro", "tipo": model.UnitRequester},
		{"id": "2", "nome": "Hospital Regional", "tipo": model.UnitExecutor},
	}
	v := h.mount(t, "unit_directory", Props{Records: units})

	h.dispatch(t, v.ID, Event{Type: EventSearch, Value: "ubs"})
	h.dispatch(t, v.ID, Event{Type: EventClearFilters})
	st := listState(t, h.wait(t, v.ID, time.Second))
	assert.Equal(t, 2, st.Page.TotalItems)
}
