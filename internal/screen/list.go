package screen

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/pitabwire/callcenter/internal/debounce"
	"github.com/pitabwire/callcenter/internal/mask"
	"github.com/pitabwire/callcenter/internal/notify"
	"github.com/pitabwire/callcenter/internal/records"
	"github.com/pitabwire/callcenter/model"
)

// Date filter fields accepted by lists with a date field.
const (
	filterDateFrom = "data_inicio"
	filterDateTo   = "data_fim"
)

// listOptions specialise a list screen.
type listOptions struct {
	// dateField enables the data_inicio/data_fim filters on that field.
	dateField string
	// labels translate the values of categorical fields.
	labels map[string]map[string]string
	// exportNames renames filters in export links.
	exportNames map[string]string
	// decorate adds derived columns to each visible row.
	decorate func(model.Record) model.Record
	// exportExtra adds screen-specific parameters to export links.
	exportExtra func() map[string]string
}

// list is a filterable, sortable, paginated collection with optional row
// selection, debounced search and export links.
type list struct {
	env  *Env
	def  model.ListDefinition
	opts listOptions
	view *records.View

	search      *debounce.Debouncer
	searchInput string
	dateInputs  map[string]string

	loading   bool
	loadError string
	exportURL string
}

func newList(env *Env, props Props, opts listOptions) (*list, error) {
	if env.Def.List == nil {
		return nil, fmt.Errorf("screen %q has no list definition", env.Def.ID)
	}
	def := *env.Def.List
	l := &list{
		env:        env,
		def:        def,
		opts:       opts,
		dateInputs: make(map[string]string),
		view: records.NewView(props.Records, records.ViewOptions{
			SearchFields: def.SearchFields,
			DefaultSort:  def.DefaultSort,
			PageSize:     def.PageSize,
			IDField:      def.IDField,
		}),
	}
	if def.SearchDebounce > 0 {
		l.search = env.Debouncer(debounce.Config{
			QuietPeriod: def.SearchDebounce,
			Source:      model.LookupSearch,
		}, l.applySearch)
	}
	if def.Source != "" && props.Records == nil {
		l.load()
	}
	return l, nil
}

// load fetches the collection from the backend list endpoint.
func (l *list) load() {
	l.loading = true
	run(l.env, func(ctx context.Context) ([]model.Record, error) {
		return l.env.Backend.FetchRecords(ctx, l.def.Source)
	}, func(recs []model.Record, err error) {
		l.loading = false
		if err != nil {
			l.loadError = model.AsEnvelope(err).Message
			l.env.NotifyError("Erro ao carregar dados", err)
			return
		}
		l.loadError = ""
		l.view.SetRecords(recs)
	})
}

// handle applies list events. It reports false for events it does not
// know so screens can layer their own.
func (l *list) handle(ev Event) (bool, error) {
	switch ev.Type {
	case EventSearch:
		l.searchInput = ev.Value
		if l.search == nil || !l.search.OnInput(ev.Value) {
			l.applySearch(ev.Value)
		}
	case EventFilter:
		return true, l.filter(ev.Field, ev.Value)
	case EventClearFilters:
		if l.search != nil {
			l.search.Cancel()
		}
		l.searchInput = ""
		l.dateInputs = make(map[string]string)
		l.view.ClearFilters()
	case EventSort:
		if len(l.def.SortFields) > 0 && !slices.Contains(l.def.SortFields, ev.Field) {
			return true, model.NewBadRequestError(fmt.Sprintf("campo %q não é ordenável", ev.Field))
		}
		l.view.SortBy(ev.Field)
	case EventPage:
		l.view.GoTo(ev.Page)
	case EventSelect:
		l.view.ToggleSelect(ev.ID)
	case EventSelectPage:
		l.view.TogglePage()
	case EventExport:
		if len(l.env.Def.Exports) == 0 {
			return false, nil
		}
		l.export(ev.Format)
	default:
		return false, nil
	}
	return true, nil
}

func (l *list) applySearch(text string) {
	l.view.SetSearch(text)
}

func (l *list) filter(field, value string) error {
	switch {
	case slices.Contains(l.def.ExactFilters, field):
		l.view.SetExact(field, value)
		return nil
	case l.opts.dateField != "" && (field == filterDateFrom || field == filterDateTo):
		day, err := records.ParseDay(value)
		if err != nil {
			return model.NewBadRequestError(fmt.Sprintf("data %q inválida, use AAAA-MM-DD", value))
		}
		if v := strings.TrimSpace(value); v != "" {
			l.dateInputs[field] = v
		} else {
			delete(l.dateInputs, field)
		}
		r := l.dateRange()
		if field == filterDateFrom {
			r.From = day
		} else {
			r.To = day
		}
		l.view.SetDateRange(r)
		return nil
	}
	return unknownField(field)
}

func (l *list) dateRange() records.DateRange {
	r := records.DateRange{Field: l.opts.dateField}
	r.From, _ = records.ParseDay(l.dateInputs[filterDateFrom])
	r.To, _ = records.ParseDay(l.dateInputs[filterDateTo])
	return r
}

// exportFilters are the active filters under their export parameter names.
func (l *list) exportFilters() map[string]string {
	out := make(map[string]string)
	name := func(field string) string {
		if n, ok := l.opts.exportNames[field]; ok {
			return n
		}
		return field
	}
	for field, value := range l.view.Filter().ExactFilters {
		out[name(field)] = value
	}
	for field, value := range l.dateInputs {
		out[name(field)] = value
	}
	out[name("search")] = l.view.Filter().SearchText
	if l.opts.exportExtra != nil {
		maps.Copy(out, l.opts.exportExtra())
	}
	return out
}

func (l *list) export(format string) {
	url, err := l.env.Backend.ExportURL(l.env.Def.Exports, format, l.exportFilters())
	if err != nil {
		l.env.NotifyError("Exportação", err)
		return
	}
	l.exportURL = url
	l.env.Notify(notify.LevelSuccess, "", fmt.Sprintf("Exportação %s iniciada!", strings.ToUpper(format)))
}

// ListState is the snapshot of a list screen.
type ListState struct {
	Page         model.Page               `json:"page"`
	Filter       model.FilterSpec         `json:"filter"`
	SearchInput  string                   `json:"search_input"`
	DateFilters  map[string]string        `json:"date_filters,omitempty"`
	Sort         model.SortState          `json:"sort"`
	Selected     []string                 `json:"selected,omitempty"`
	PageSelected bool                     `json:"page_selected"`
	Total        int                      `json:"total"`
	Stats        []model.Count            `json:"stats,omitempty"`
	Options      map[string][]OptionState `json:"options,omitempty"`
	Loading      bool                     `json:"loading"`
	Error        string                   `json:"error,omitempty"`
	ExportURL    string                   `json:"export_url,omitempty"`
}

// OptionState is one choice of an exact filter.
type OptionState struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

func (l *list) state() ListState {
	page := l.view.Page()
	if l.opts.decorate != nil {
		items := make([]model.Record, len(page.Items))
		for i, r := range page.Items {
			items[i] = l.opts.decorate(r.Clone())
		}
		page.Items = items
	}

	s := ListState{
		Page:         page,
		Filter:       l.view.Filter(),
		SearchInput:  l.searchInput,
		Sort:         l.view.SortState(),
		Selected:     l.view.Selected(),
		PageSelected: l.view.PageSelected(),
		Total:        len(l.view.All()),
		Loading:      l.loading,
		Error:        l.loadError,
		ExportURL:    l.exportURL,
	}
	if len(l.dateInputs) > 0 {
		s.DateFilters = maps.Clone(l.dateInputs)
	}
	if l.def.StatsField != "" {
		s.Stats = records.Counts(l.view.All(), l.def.StatsField, l.opts.labels[l.def.StatsField])
	}
	if len(l.def.ExactFilters) > 0 {
		s.Options = make(map[string][]OptionState, len(l.def.ExactFilters))
		for _, field := range l.def.ExactFilters {
			s.Options[field] = l.options(field)
		}
	}
	return s
}

// options lists the values of field present in the collection, plus every
// labelled value, with their counts.
func (l *list) options(field string) []OptionState {
	labels := l.opts.labels[field]
	seen := make(map[string]bool)
	var out []OptionState
	for _, c := range records.Counts(l.view.All(), field, labels) {
		if c.Value == "" {
			continue
		}
		seen[c.Value] = true
		out = append(out, OptionState{Value: c.Value, Label: labelOr(c.Label, c.Value), Count: c.Total})
	}
	for value, label := range labels {
		if !seen[value] {
			out = append(out, OptionState{Value: value, Label: label})
		}
	}
	slices.SortStableFunc(out, func(a, b OptionState) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Label, b.Label)
	})
	return out
}

func labelOr(label, value string) string {
	if label != "" {
		return label
	}
	return value
}

// --- call history ---

type callHistory struct {
	*list
}

func newCallHistory(env *Env, props Props) (Screen, error) {
	l, err := newList(env, props, listOptions{
		dateField:   "data_criacao",
		labels:      map[string]map[string]string{"tipo_chamada": model.CallTypes, "status": model.CallStatuses},
		exportNames: map[string]string{"tipo_chamada": "tipo", "search": "busca"},
	})
	if err != nil {
		return nil, err
	}
	return &callHistory{list: l}, nil
}

func (s *callHistory) Handle(_ context.Context, ev Event) error {
	handled, err := s.handle(ev)
	if !handled && err == nil {
		return unknownEvent(s.env.Def.ID, ev)
	}
	return err
}

func (s *callHistory) Snapshot() any { return s.state() }

// --- unit directory ---

type unitDirectory struct {
	*list
}

func newUnitDirectory(env *Env, props Props) (Screen, error) {
	l, err := newList(env, props, listOptions{
		labels:   map[string]map[string]string{"tipo": model.UnitTypes},
		decorate: decorateUnit,
	})
	if err != nil {
		return nil, err
	}
	return &unitDirectory{list: l}, nil
}

// decorateUnit adds the tel: link and the type label of a directory row.
func decorateUnit(r model.Record) model.Record {
	if link := mask.TelLink(r.Text("telefone")); link != "" {
		r["telefone_link"] = link
	}
	if label, ok := model.UnitTypes[r.Text("tipo")]; ok {
		r["tipo_label"] = label
	}
	return r
}

func (s *unitDirectory) Handle(_ context.Context, ev Event) error {
	if ev.Type == EventExport {
		return unknownEvent(s.env.Def.ID, ev)
	}
	handled, err := s.handle(ev)
	if !handled && err == nil {
		return unknownEvent(s.env.Def.ID, ev)
	}
	return err
}

func (s *unitDirectory) Snapshot() any { return s.state() }
