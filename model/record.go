package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is one domain entity (a call, a health unit, a user) as a field/value
// mapping. Values are strings, booleans, numbers, time.Time or a nested Record
// (JSON-decoded nested objects arrive as map[string]any and are treated the
// same way).
type Record map[string]any

// DisplayFields are the keys consulted, in order, when a nested record has to
// be reduced to a single comparable or searchable value.
var DisplayFields = []string{"nome", "name"}

// Value resolves path against the record. A path supports one level of
// nesting ("unidade_solicitante.nome"); deeper paths keep the remainder as a
// single key of the nested record. Missing fields resolve to nil.
func (r Record) Value(path string) any {
	if r == nil {
		return nil
	}
	head, rest, nested := strings.Cut(path, ".")
	v, ok := r[head]
	if !ok {
		return nil
	}
	if !nested {
		return v
	}
	if m := asMap(v); m != nil {
		return m[rest]
	}
	return nil
}

// Text renders the value at path as the string a user would see, used for
// text search and exact-filter comparison.
func (r Record) Text(path string) string {
	return Stringify(r.Value(path))
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Stringify converts a record value into display text. Nested records reduce
// to their display field.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case time.Time:
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	}
	if m := asMap(v); m != nil {
		return Stringify(DisplayValue(m))
	}
	return fmt.Sprint(v)
}

// DisplayValue returns the first present display field of a nested record.
func DisplayValue(m map[string]any) any {
	for _, key := range DisplayFields {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return nil
}

// AsMap returns v as a map when it is a Record or a decoded JSON object.
func AsMap(v any) map[string]any {
	return asMap(v)
}

func asMap(v any) map[string]any {
	switch t := v.(type) {
	case Record:
		return t
	case map[string]any:
		return t
	}
	return nil
}
