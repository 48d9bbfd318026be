// Package records filters, sorts and paginates in-memory record collections
// for the list screens.
package records

import (
	"strings"
	"time"

	"github.com/pitabwire/callcenter/model"
)

// Filter returns the records matching spec, preserving their relative order.
// A record matches the search text when any search field contains it
// (case-insensitive, spaces included); it must also match every non-empty exact filter. The
// input slice is never modified.
func Filter(records []model.Record, spec model.FilterSpec) []model.Record {
	search := strings.ToLower(spec.SearchText)
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if search != "" && !matchesSearch(r, spec.SearchFields, search) {
			continue
		}
		if !matchesExact(r, spec.ExactFilters) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesSearch(r model.Record, fields []string, search string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(r.Text(f)), search) {
			return true
		}
	}
	return false
}

func matchesExact(r model.Record, filters map[string]string) bool {
	for field, want := range filters {
		if want == "" {
			continue
		}
		if r.Text(field) != want {
			return false
		}
	}
	return true
}

// DateRange keeps the records whose field falls within [from, to], both
// inclusive and compared by calendar day. A zero bound is open. Records whose
// field is not a date are kept only when both bounds are open.
type DateRange struct {
	Field string
	From  time.Time
	To    time.Time
}

// IsZero reports whether the range applies no bound.
func (d DateRange) IsZero() bool {
	return d.From.IsZero() && d.To.IsZero()
}

// Apply filters records by the range.
func (d DateRange) Apply(records []model.Record) []model.Record {
	if d.IsZero() {
		return records
	}
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		t, ok := asTime(r.Value(d.Field))
		if !ok {
			continue
		}
		day := truncateDay(t)
		if !d.From.IsZero() && day.Before(truncateDay(d.From)) {
			continue
		}
		if !d.To.IsZero() && day.After(truncateDay(d.To)) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ParseDay parses a YYYY-MM-DD date as sent by date inputs. An empty string
// yields the zero time.
func ParseDay(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, strings.TrimSpace(s))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
