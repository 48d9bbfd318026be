package records

import (
	"slices"

	"github.com/pitabwire/callcenter/model"
)

// ViewOptions configure a View.
type ViewOptions struct {
	SearchFields []string
	DefaultSort  model.SortState
	PageSize     int
	// IDField names the record field used for selection. Empty disables
	// selection.
	IDField string
}

// View is the state of one list screen: the full collection, the active
// filter, ordering and page, and the selected rows. A View is owned by a
// single screen and is not safe for concurrent use.
type View struct {
	opts     ViewOptions
	all      []model.Record
	filter   model.FilterSpec
	dates    DateRange
	sort     model.SortState
	page     model.PageState
	selected map[string]bool

	visible []model.Record
}

// NewView creates a View over records.
func NewView(records []model.Record, opts ViewOptions) *View {
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	v := &View{
		opts:     opts,
		all:      records,
		filter:   model.FilterSpec{SearchFields: opts.SearchFields},
		sort:     opts.DefaultSort,
		page:     model.PageState{CurrentPage: 1, ItemsPerPage: opts.PageSize},
		selected: make(map[string]bool),
	}
	v.recompute()
	return v
}

// SetRecords replaces the collection. The current page is kept but clamped
// into the new page range; selections of rows that disappeared are dropped.
func (v *View) SetRecords(records []model.Record) {
	v.all = records
	v.recompute()
	v.page.CurrentPage = clampPage(v.page.CurrentPage, v.totalPages())
	v.pruneSelection()
}

// SetFilter applies a new filter. Any change returns to the first page.
func (v *View) SetFilter(spec model.FilterSpec) {
	if spec.SearchFields == nil {
		spec.SearchFields = v.opts.SearchFields
	}
	if spec.Equal(v.filter) {
		return
	}
	v.filter = spec
	v.page.CurrentPage = 1
	v.recompute()
}

// SetSearch changes the free-text search.
func (v *View) SetSearch(text string) {
	spec := v.filter
	spec.SearchText = text
	v.SetFilter(spec)
}

// SetExact changes one exact-match filter. An empty value removes it.
func (v *View) SetExact(field, value string) {
	v.SetFilter(v.filter.WithExact(field, value))
}

// SetDateRange restricts the collection to a date range.
func (v *View) SetDateRange(r DateRange) {
	if r == v.dates {
		return
	}
	v.dates = r
	v.page.CurrentPage = 1
	v.recompute()
}

// ClearFilters removes the search text, every exact filter and the date
// range.
func (v *View) ClearFilters() {
	v.dates = DateRange{Field: v.dates.Field}
	v.filter = model.FilterSpec{SearchFields: v.opts.SearchFields}
	v.page.CurrentPage = 1
	v.recompute()
}

// SortBy toggles the ordering on field the way a header click does.
func (v *View) SortBy(field string) {
	v.sort = v.sort.Toggle(field)
	v.recompute()
}

// GoTo moves to page p, clamped into the valid range.
func (v *View) GoTo(p int) {
	v.page.CurrentPage = clampPage(p, v.totalPages())
}

// SetPageSize changes the number of rows per page and returns to the first
// page.
func (v *View) SetPageSize(n int) {
	if n <= 0 || n == v.page.ItemsPerPage {
		return
	}
	v.page.ItemsPerPage = n
	v.page.CurrentPage = 1
}

// Filter returns the active filter.
func (v *View) Filter() model.FilterSpec { return v.filter }

// SortState returns the active ordering.
func (v *View) SortState() model.SortState { return v.sort }

// PageState returns the pagination position.
func (v *View) PageState() model.PageState { return v.page }

// Visible returns the filtered and sorted records.
func (v *View) Visible() []model.Record { return v.visible }

// All returns the unfiltered collection.
func (v *View) All() []model.Record { return v.all }

// Page returns the current page.
func (v *View) Page() model.Page {
	return Paginate(v.visible, v.page)
}

// ToggleSelect flips the selection of the row with id.
func (v *View) ToggleSelect(id string) {
	if v.opts.IDField == "" || id == "" {
		return
	}
	if v.selected[id] {
		delete(v.selected, id)
		return
	}
	if v.indexOf(id) >= 0 {
		v.selected[id] = true
	}
}

// TogglePage selects every row of the current page, or clears them when they
// are all selected already. Rows on other pages are not affected.
func (v *View) TogglePage() {
	if v.opts.IDField == "" {
		return
	}
	ids := v.pageIDs()
	if len(ids) == 0 {
		return
	}
	all := true
	for _, id := range ids {
		if !v.selected[id] {
			all = false
			break
		}
	}
	for _, id := range ids {
		if all {
			delete(v.selected, id)
		} else {
			v.selected[id] = true
		}
	}
}

// PageSelected reports whether every row of the current page is selected.
func (v *View) PageSelected() bool {
	ids := v.pageIDs()
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if !v.selected[id] {
			return false
		}
	}
	return true
}

// Selected returns the selected ids in collection order.
func (v *View) Selected() []string {
	out := make([]string, 0, len(v.selected))
	for _, r := range v.all {
		if id := r.Text(v.opts.IDField); v.selected[id] {
			out = append(out, id)
		}
	}
	return out
}

func (v *View) recompute() {
	filtered := Filter(v.dates.Apply(v.all), v.filter)
	v.visible = Sort(filtered, v.sort)
}

func (v *View) totalPages() int {
	return TotalPages(len(v.visible), v.page.ItemsPerPage)
}

func (v *View) pageIDs() []string {
	items := v.Page().Items
	ids := make([]string, 0, len(items))
	for _, r := range items {
		if id := r.Text(v.opts.IDField); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (v *View) indexOf(id string) int {
	return slices.IndexFunc(v.all, func(r model.Record) bool {
		return r.Text(v.opts.IDField) == id
	})
}

func (v *View) pruneSelection() {
	for id := range v.selected {
		if v.indexOf(id) < 0 {
			delete(v.selected, id)
		}
	}
}
