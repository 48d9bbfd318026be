package records

import "github.com/pitabwire/callcenter/model"

// WindowSize is the maximum number of page buttons shown by list controls.
const WindowSize = 5

// TotalPages returns ceil(n/perPage), 0 for an empty collection.
func TotalPages(n, perPage int) int {
	if n <= 0 || perPage <= 0 {
		return 0
	}
	return (n + perPage - 1) / perPage
}

// Paginate slices records into the page selected by state. The current page
// is clamped into [1, TotalPages]; ItemsPerPage below 1 is treated as 1.
func Paginate(records []model.Record, state model.PageState) model.Page {
	per := max(state.ItemsPerPage, 1)
	total := TotalPages(len(records), per)
	current := clampPage(state.CurrentPage, total)

	page := model.Page{
		Items:       []model.Record{},
		TotalItems:  len(records),
		TotalPages:  total,
		CurrentPage: current,
		PerPage:     per,
		Window:      PageWindow(current, total),
	}
	if total == 0 {
		return page
	}

	start := (current - 1) * per
	end := min(start+per, len(records))
	page.Items = records[start:end]
	page.FirstItem = start + 1
	page.LastItem = end
	return page
}

// PageWindow returns the page numbers shown around current: all pages when
// there are at most five, the first five near the start, the last five near
// the end, and current±2 otherwise.
func PageWindow(current, total int) []int {
	if total <= 0 {
		return []int{}
	}
	var first, last int
	switch {
	case total <= WindowSize:
		first, last = 1, total
	case current <= 3:
		first, last = 1, WindowSize
	case current >= total-2:
		first, last = total-WindowSize+1, total
	default:
		first, last = current-2, current+2
	}
	window := make([]int, 0, last-first+1)
	for p := first; p <= last; p++ {
		window = append(window, p)
	}
	return window
}

func clampPage(page, total int) int {
	if total == 0 || page < 1 {
		return 1
	}
	if page > total {
		return total
	}
	return page
}
