package model

import "maps"

// SortDirection is the direction of a SortState.
type SortDirection string

// Sort directions.
const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// FilterSpec selects records from a collection. SearchFields support one level
// of nesting ("unidade_executante.nome"). Empty SearchText and empty
// ExactFilters values are not applied.
type FilterSpec struct {
	SearchFields []string          `json:"search_fields,omitempty"`
	SearchText   string            `json:"search_text"`
	ExactFilters map[string]string `json:"exact_filters,omitempty"`
}

// Equal reports whether two specs select the same records.
func (s FilterSpec) Equal(o FilterSpec) bool {
	if s.SearchText != o.SearchText || len(s.SearchFields) != len(o.SearchFields) {
		return false
	}
	for i := range s.SearchFields {
		if s.SearchFields[i] != o.SearchFields[i] {
			return false
		}
	}
	return maps.Equal(activeFilters(s.ExactFilters), activeFilters(o.ExactFilters))
}

// WithExact returns a copy of s with field set to value. An empty value
// removes the filter.
func (s FilterSpec) WithExact(field, value string) FilterSpec {
	out := s
	out.ExactFilters = make(map[string]string, len(s.ExactFilters)+1)
	maps.Copy(out.ExactFilters, s.ExactFilters)
	if value == "" {
		delete(out.ExactFilters, field)
	} else {
		out.ExactFilters[field] = value
	}
	return out
}

func activeFilters(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// SortState is the active ordering of a list.
type SortState struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// Toggle returns the state after a click on the header of field: the same
// field flips direction, a new field starts ascending.
func (s SortState) Toggle(field string) SortState {
	if s.Field == field {
		if s.Direction == SortAsc {
			return SortState{Field: field, Direction: SortDesc}
		}
		return SortState{Field: field, Direction: SortAsc}
	}
	return SortState{Field: field, Direction: SortAsc}
}

// PageState is the pagination position of a list.
type PageState struct {
	CurrentPage  int `json:"current_page"`
	ItemsPerPage int `json:"items_per_page"`
}

// Page is one slice of a paginated collection with the metadata needed by
// page controls.
type Page struct {
	Items       []Record `json:"items"`
	TotalItems  int      `json:"total_items"`
	TotalPages  int      `json:"total_pages"`
	CurrentPage int      `json:"current_page"`
	PerPage     int      `json:"per_page"`
	Window      []int    `json:"window"`
	FirstItem   int      `json:"first_item"`
	LastItem    int      `json:"last_item"`
}

// Count is the number of records sharing one value of a categorical field.
type Count struct {
	Value   string  `json:"value"`
	Label   string  `json:"label,omitempty"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}
