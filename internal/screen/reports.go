package screen

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/pitabwire/callcenter/internal/records"
	"github.com/pitabwire/callcenter/model"
)

// filterPeriod selects the reporting window of a report screen.
const filterPeriod = "periodo"

var reportTabTitles = map[string]string{
	"geral":    "Visão Geral",
	"usuarios": "Usuários",
	"unidades": "Unidades",
	"chamadas": "Chamadas",
	"analises": "Insights",
}

// reports shows how calls are distributed by type and status over a
// reporting period, with links to the exported general report.
type reports struct {
	*list
	def    model.ReportDefinition
	period string
	tab    string
}

func newReports(env *Env, props Props) (Screen, error) {
	if env.Def.Report == nil {
		return nil, fmt.Errorf("screen %q has no report definition", env.Def.ID)
	}
	s := &reports{def: *env.Def.Report}
	l, err := newList(env, props, listOptions{
		labels:      map[string]map[string]string{"tipo_chamada": model.CallTypes, "status": model.CallStatuses},
		exportNames: map[string]string{"tipo_chamada": "tipo", "search": "busca"},
		exportExtra: func() map[string]string { return map[string]string{filterPeriod: s.period} },
	})
	if err != nil {
		return nil, err
	}
	s.list = l
	if len(s.def.Tabs) > 0 {
		s.tab = s.def.Tabs[0]
	}
	if err := s.setPeriod(s.def.DefaultPeriod); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *reports) Handle(_ context.Context, ev Event) error {
	switch {
	case ev.Type == EventFilter && ev.Field == filterPeriod:
		return s.setPeriod(ev.Value)
	case ev.Type == EventChoose && ev.Field == "tab":
		if !slices.Contains(s.def.Tabs, ev.Value) {
			return model.NewBadRequestError(fmt.Sprintf("aba %q desconhecida", ev.Value))
		}
		s.tab = ev.Value
		return nil
	case ev.Type == EventClearFilters:
		s.handle(ev)
		return s.setPeriod(s.def.DefaultPeriod)
	}
	handled, err := s.handle(ev)
	if !handled && err == nil {
		return unknownEvent(s.env.Def.ID, ev)
	}
	return err
}

// setPeriod restricts the report to records dated within the period. An
// empty period covers every record.
func (s *reports) setPeriod(period string) error {
	r := records.DateRange{Field: s.def.DateField}
	if period != "" {
		if !slices.Contains(s.def.Periods, period) {
			return model.NewBadRequestError(fmt.Sprintf("período %q indisponível", period))
		}
		p, err := model.ParsePeriod(period)
		if err != nil {
			return model.NewBadRequestError(err.Error())
		}
		r.From = p.Since(s.env.Now())
	}
	s.period = period
	s.view.SetDateRange(r)
	return nil
}

// periodLabel renders "30d" as "Últimos 30 dias" and "1m" as "Último mês".
func periodLabel(period string) string {
	p, err := model.ParsePeriod(period)
	if err != nil {
		return period
	}
	switch {
	case p.Unit == 'd':
		return "Últimos " + strconv.Itoa(p.Count) + " dias"
	case p.Count == 1:
		return "Último mês"
	}
	return "Últimos " + strconv.Itoa(p.Count) + " meses"
}

// Distribution is the breakdown of one categorical field.
type Distribution struct {
	Field  string        `json:"field"`
	Counts []model.Count `json:"counts"`
}

// ChoiceState is a selectable option of a report control.
type ChoiceState struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// ReportState is the snapshot of a report screen.
type ReportState struct {
	ListState
	Period        string         `json:"period"`
	Periods       []ChoiceState  `json:"periods"`
	Tab           string         `json:"tab"`
	Tabs          []ChoiceState  `json:"tabs"`
	Calls         int            `json:"calls"`
	Distributions []Distribution `json:"distributions"`
}

func (s *reports) Snapshot() any {
	visible := s.view.Visible()
	st := ReportState{
		ListState: s.state(),
		Period:    s.period,
		Tab:       s.tab,
		Calls:     len(visible),
	}
	for _, p := range s.def.Periods {
		st.Periods = append(st.Periods, ChoiceState{Value: p, Label: periodLabel(p), Selected: p == s.period})
	}
	for _, t := range s.def.Tabs {
		st.Tabs = append(st.Tabs, ChoiceState{Value: t, Label: labelOr(reportTabTitles[t], t), Selected: t == s.tab})
	}
	for _, field := range s.def.StatsFields {
		st.Distributions = append(st.Distributions, Distribution{
			Field:  field,
			Counts: records.Counts(visible, field, s.opts.labels[field]),
		})
	}
	return st
}
