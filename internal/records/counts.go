package records

import (
	"cmp"
	"math"
	"slices"

	"github.com/pitabwire/callcenter/model"
)

// Counts tallies records by the text of field. Labels are looked up in
// labels when present. Results are ordered by descending total, then value.
// Percentages are rounded to one decimal place.
func Counts(records []model.Record, field string, labels map[string]string) []model.Count {
	totals := make(map[string]int)
	for _, r := range records {
		totals[r.Text(field)]++
	}

	counts := make([]model.Count, 0, len(totals))
	for value, n := range totals {
		counts = append(counts, model.Count{
			Value:   value,
			Label:   labels[value],
			Total:   n,
			Percent: percent(n, len(records)),
		})
	}
	slices.SortFunc(counts, func(a, b model.Count) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Value, b.Value)
	})
	return counts
}

// CountOf returns the number of records whose field equals value.
func CountOf(records []model.Record, field, value string) int {
	n := 0
	for _, r := range records {
		if r.Text(field) == value {
			n++
		}
	}
	return n
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)*1000/float64(whole)) / 10
}
