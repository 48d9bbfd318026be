package model

import (
	"fmt"
	"strconv"
	"time"
)

// Screen kinds.
const (
	ScreenKindForm   = "form"
	ScreenKindList   = "list"
	ScreenKindWizard = "wizard"
	ScreenKindReport = "report"
)

// ScreenDefinition declares one screen: its fields and their rules, wizard
// steps, list behaviour, lookups, submission and export targets.
type ScreenDefinition struct {
	ID         string                      `yaml:"id" json:"id"`
	Kind       string                      `yaml:"kind" json:"kind"`
	Title      string                      `yaml:"title" json:"title"`
	Fields     []FieldDefinition           `yaml:"fields,omitempty" json:"fields,omitempty"`
	Steps      []StepDefinition            `yaml:"steps,omitempty" json:"steps,omitempty"`
	List       *ListDefinition             `yaml:"list,omitempty" json:"list,omitempty"`
	Lookups    map[string]LookupDefinition `yaml:"lookups,omitempty" json:"lookups,omitempty"`
	Submit     *SubmitTarget               `yaml:"submit,omitempty" json:"submit,omitempty"`
	Exports    map[string]string           `yaml:"exports,omitempty" json:"exports,omitempty"`
	Report     *ReportDefinition           `yaml:"report,omitempty" json:"report,omitempty"`
	Checksum   string                      `yaml:"-" json:"-"`
	SourceFile string                      `yaml:"-" json:"-"`
}

// FieldDefinition is one form field. The embedded rule is inlined in YAML.
type FieldDefinition struct {
	Name      string             `yaml:"name" json:"name"`
	Label     string             `yaml:"label" json:"label"`
	Type      string             `yaml:"type,omitempty" json:"type,omitempty"`
	Default   string             `yaml:"default,omitempty" json:"default,omitempty"`
	Options   []OptionDefinition `yaml:"options,omitempty" json:"options,omitempty"`
	FieldRule `yaml:",inline"`
}

// OptionDefinition is one choice of a select field.
type OptionDefinition struct {
	Label string `yaml:"label" json:"label"`
	Value string `yaml:"value" json:"value"`
}

// StepDefinition is one wizard step. Gates name extra conditions, beyond the
// field rules, that must hold before leaving the step.
type StepDefinition struct {
	ID     string   `yaml:"id" json:"id"`
	Title  string   `yaml:"title" json:"title"`
	Fields []string `yaml:"fields" json:"fields"`
	Gates  []string `yaml:"gates,omitempty" json:"gates,omitempty"`
}

// ListDefinition configures filtering, sorting and pagination of a list
// screen.
type ListDefinition struct {
	Source         string        `yaml:"source,omitempty" json:"-"`
	SearchFields   []string      `yaml:"search_fields" json:"search_fields"`
	ExactFilters   []string      `yaml:"exact_filters,omitempty" json:"exact_filters,omitempty"`
	SortFields     []string      `yaml:"sort_fields,omitempty" json:"sort_fields,omitempty"`
	DefaultSort    SortState     `yaml:"default_sort,omitempty" json:"default_sort"`
	PageSize       int           `yaml:"page_size,omitempty" json:"page_size"`
	SearchDebounce time.Duration `yaml:"search_debounce,omitempty" json:"-"`
	StatsField     string        `yaml:"stats_field,omitempty" json:"stats_field,omitempty"`
	IDField        string        `yaml:"id_field,omitempty" json:"id_field,omitempty"`
}

// ReportDefinition configures the distribution statistics of a report
// screen. Periods are written as a count and a unit: "30d", "6m".
type ReportDefinition struct {
	StatsFields   []string `yaml:"stats_fields" json:"stats_fields"`
	DateField     string   `yaml:"date_field" json:"date_field"`
	Periods       []string `yaml:"periods" json:"periods"`
	DefaultPeriod string   `yaml:"default_period" json:"default_period"`
	Tabs          []string `yaml:"tabs,omitempty" json:"tabs,omitempty"`
}

// Lookup sources.
const (
	LookupMunicipios = "municipios"
	LookupCNES       = "cnes"
	LookupUsername   = "username"
	LookupSearch     = "search"
)

// LookupDefinition configures the debounced remote lookup bound to a field.
type LookupDefinition struct {
	Source      string        `yaml:"source" json:"source"`
	MinLength   int           `yaml:"min_length,omitempty" json:"min_length"`
	QuietPeriod time.Duration `yaml:"quiet_period,omitempty" json:"-"`
}

// RuleSet collects the rules of every field that declares one.
func (d ScreenDefinition) RuleSet() RuleSet {
	rules := make(RuleSet, len(d.Fields))
	for _, f := range d.Fields {
		if f.FieldRule != (FieldRule{}) {
			rules[f.Name] = f.FieldRule
		}
	}
	return rules
}

// Field returns the definition of the named field.
func (d ScreenDefinition) Field(name string) (FieldDefinition, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// Defaults returns the initial form snapshot: every field with its default.
func (d ScreenDefinition) Defaults() FormSnapshot {
	form := make(FormSnapshot, len(d.Fields))
	for _, f := range d.Fields {
		form[f.Name] = f.Default
	}
	return form
}

// Period is a reporting window counted back from now.
type Period struct {
	Count int
	Unit  byte // 'd' for days, 'm' for months
}

// ParsePeriod parses periods such as "30d" and "6m".
func ParsePeriod(s string) (Period, error) {
	if len(s) < 2 {
		return Period{}, fmt.Errorf("invalid period %q", s)
	}
	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 || (unit != 'd' && unit != 'm') {
		return Period{}, fmt.Errorf("invalid period %q", s)
	}
	return Period{Count: n, Unit: unit}, nil
}

// Since returns the start of the period ending at now.
func (p Period) Since(now time.Time) time.Time {
	if p.Unit == 'm' {
		return now.AddDate(0, -p.Count, 0)
	}
	return now.AddDate(0, 0, -p.Count)
}
