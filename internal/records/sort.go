package records

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/pitabwire/callcenter/model"
)

// Collators keep internal buffers and are not safe for concurrent use.
var collators = sync.Pool{
	New: func() any {
		return collate.New(language.BrazilianPortuguese, collate.IgnoreCase, collate.Numeric)
	},
}

// Sort returns a sorted copy of records. Equal keys keep their input order.
// Strings compare case-insensitively under Brazilian Portuguese collation
// with digit runs compared by value ("UBS 9" before "UBS 10"). Numbers,
// numeric strings and dates compare by value, nested records by their
// display field.
// Missing values sort first in ascending order.
func Sort(records []model.Record, state model.SortState) []model.Record {
	out := slices.Clone(records)
	if state.Field == "" {
		return out
	}

	col := collators.Get().(*collate.Collator)
	defer collators.Put(col)

	sign := 1
	if state.Direction == model.SortDesc {
		sign = -1
	}
	slices.SortStableFunc(out, func(a, b model.Record) int {
		return sign * compareValues(col, a.Value(state.Field), b.Value(state.Field))
	})
	return out
}

// compareValues orders two field values. Values of different kinds fall back
// to comparing their text.
func compareValues(col *collate.Collator, a, b any) int {
	a, b = resolveNested(a), resolveNested(b)

	aEmpty, bEmpty := isEmpty(a), isEmpty(b)
	switch {
	case aEmpty && bEmpty:
		return 0
	case aEmpty:
		return -1
	case bEmpty:
		return 1
	}

	if x, ok := asNumber(a); ok {
		if y, ok := asNumber(b); ok {
			return cmp.Compare(x, y)
		}
	}
	if x, ok := asTime(a); ok {
		if y, ok := asTime(b); ok {
			return x.Compare(y)
		}
	}
	if x, ok := a.(bool); ok {
		if y, ok := b.(bool); ok {
			return compareBool(x, y)
		}
	}
	return col.CompareString(model.Stringify(a), model.Stringify(b))
}

// resolveNested replaces a nested record by its display value.
func resolveNested(v any) any {
	if m := model.AsMap(v); m != nil {
		return model.DisplayValue(m)
	}
	return v
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", time.DateTime, time.DateOnly}

// asTime accepts time values and strings in the date formats the backend
// emits.
func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	case fmt.Stringer:
		return asTime(t.String())
	}
	return time.Time{}, false
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
