// Package query filters and paginates the records of a day file.
package query

import (
	"strings"

	"github.com/rsclarke/hookcatch/internal/models"
)

// PageSize is the number of items per page.
const PageSize = 10

// visibleRadius is how many pages either side of the current page are listed.
const visibleRadius = 2

// Filter narrows a record sequence. Zero fields match everything.
type Filter struct {
	// Method must equal the record method exactly.
	Method string
	// ContentType must be a substring of the record content type.
	ContentType string
	// Search is matched case-insensitively against method, path and
	// content type, and as a plain substring of the remote IP.
	Search string
}

// Item is a record paired with its position in the unfiltered file.
type Item struct {
	Index  int                  `json:"index"`
	Record models.CaptureRecord `json:"record"`
}

// Page is one page of filtered items.
type Page struct {
	Items        []Item `json:"items"`
	Page         int    `json:"page"`
	PageSize     int    `json:"page_size"`
	Total        int    `json:"total"`
	Filtered     int    `json:"filtered"`
	TotalPages   int    `json:"total_pages"`
	VisiblePages []int  `json:"visible_pages"`
}

// IsZero reports whether f matches everything.
func (f Filter) IsZero() bool {
	return f.Method == "" && f.ContentType == "" && f.Search == ""
}

// Match reports whether rec passes every filter.
func (f Filter) Match(rec models.CaptureRecord) bool {
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(rec.Method), q) &&
			!strings.Contains(strings.ToLower(rec.Path), q) &&
			!(rec.ContentType != "" && strings.Contains(strings.ToLower(rec.ContentType), q)) &&
			!(rec.RemoteIP != "" && strings.Contains(rec.RemoteIP, q)) {
			return false
		}
	}
	if f.Method != "" && rec.Method != f.Method {
		return false
	}
	if f.ContentType != "" && !strings.Contains(rec.ContentType, f.ContentType) {
		return false
	}
	return true
}

// Apply returns the records passing f, in order, each tagged with its
// index in records.
func Apply(records []models.CaptureRecord, f Filter) []Item {
	items := make([]Item, 0, len(records))
	for i, rec := range records {
		if f.Match(rec) {
			items = append(items, Item{Index: i, Record: rec})
		}
	}
	return items
}

// TotalPages is ceil(n / PageSize).
func TotalPages(n int) int {
	return (n + PageSize - 1) / PageSize
}

// Paginate returns the requested 1-based page of items. Out of range pages
// are clamped.
func Paginate(items []Item, page int) Page {
	total := TotalPages(len(items))
	page = max(1, min(page, total))

	start := min((page-1)*PageSize, len(items))
	end := min(start+PageSize, len(items))

	return Page{
		Items:        append([]Item{}, items[start:end]...),
		Page:         page,
		PageSize:     PageSize,
		Total:        len(items),
		Filtered:     len(items),
		TotalPages:   total,
		VisiblePages: VisiblePages(page, total),
	}
}

// Run filters records and returns the requested page. Total counts the
// unfiltered records.
func Run(records []models.CaptureRecord, f Filter, page int) Page {
	p := Paginate(Apply(records, f), page)
	p.Total = len(records)
	return p
}

// VisiblePages lists the page numbers to offer: the first, the last, and
// those within two of current, ascending.
func VisiblePages(current, total int) []int {
	pages := []int{}
	if total <= 0 {
		return pages
	}
	pages = append(pages, 1)
	for i := max(2, current-visibleRadius); i <= min(total-1, current+visibleRadius); i++ {
		pages = append(pages, i)
	}
	if total > 1 {
		pages = append(pages, total)
	}
	return pages
}
