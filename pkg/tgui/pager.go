package tgui

import "fmt"

// PaginateSlice returns the 0-based page of items plus navigation flags.
// Pages past the end clamp to the last page so a stale keyboard still lands
// somewhere sensible. A non-positive size falls back to 10. The returned
// page is the clamped one; feed it back into prev/next button payloads.
func PaginateSlice[T any](items []T, page, size int) (sub []T, clamped int, hasPrev, hasNext bool) {
	if size <= 0 {
		size = 10
	}
	if page < 0 {
		page = 0
	}
	last := 0
	if len(items) > 0 {
		last = (len(items) - 1) / size
	}
	if page > last {
		page = last
	}
	start := page * size
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], page, page > 0, end < len(items)
}

// PageLabel renders a compact footer like "Page 2/5 (11-20 of 47)".
// page is 0-based.
func PageLabel(page, size, total int) string {
	if size <= 0 {
		size = 10
	}
	if total <= 0 {
		return "Page 1/1"
	}
	pages := (total + size - 1) / size
	if page < 0 {
		page = 0
	}
	if page >= pages {
		page = pages - 1
	}
	from := page*size + 1
	to := (page + 1) * size
	if to > total {
		to = total
	}
	return fmt.Sprintf("Page %d/%d (%d-%d of %d)", page+1, pages, from, to, total)
}
