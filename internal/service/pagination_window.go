package service

import (
	"github.com/noah-isme/volunteer-hub-web/internal/dto"
	"github.com/noah-isme/volunteer-hub-web/pkg/activityapi"
)

const paginationRadius = 2

// PageWindow returns the page numbers shown around current. A zero entry
// stands for an ellipsis.
func PageWindow(current, total int) []int {
	if total <= 0 {
		return nil
	}
	current = clampInt(current, 1, total)

	start := maxInt(1, current-paginationRadius)
	end := minInt(total, current+paginationRadius)

	pages := make([]int, 0, end-start+5)
	if start > 1 {
		pages = append(pages, 1)
		if start > 2 {
			pages = append(pages, 0)
		}
	}
	for p := start; p <= end; p++ {
		pages = append(pages, p)
	}
	if end < total {
		if end < total-1 {
			pages = append(pages, 0)
		}
		pages = append(pages, total)
	}
	return pages
}

// BuildPaginationControl derives the pagination bar from server metadata.
func BuildPaginationControl(info *activityapi.PaginationInfo) dto.PaginationControl {
	if info == nil {
		return dto.PaginationControl{Pages: []dto.PageItem{}}
	}

	control := dto.PaginationControl{
		Visible:     info.TotalPages > 1,
		CurrentPage: info.CurrentPage,
		TotalPages:  info.TotalPages,
		TotalItems:  info.TotalItems,
		StartIndex:  info.StartIndex,
		EndIndex:    info.EndIndex,
		CanFirst:    info.HasPrevPage,
		CanPrev:     info.HasPrevPage,
		CanNext:     info.HasNextPage,
		CanLast:     info.HasNextPage,
		Pages:       []dto.PageItem{},
	}
	for _, page := range PageWindow(info.CurrentPage, info.TotalPages) {
		if page == 0 {
			control.Pages = append(control.Pages, dto.PageItem{Ellipsis: true})
			continue
		}
		control.Pages = append(control.Pages, dto.PageItem{Number: page, Current: page == info.CurrentPage})
	}
	return control
}

// PageChangeTarget reports whether a click on page should trigger a change.
// Clicks on the current page or outside the range are ignored.
func PageChangeTarget(info *activityapi.PaginationInfo, page int) (int, bool) {
	if info == nil || page < 1 || page > info.TotalPages || page == info.CurrentPage {
		return 0, false
	}
	return page, true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
