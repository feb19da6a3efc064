package pagination

// View is the page-number window for one render. It is derived data: build
// a fresh one with Window whenever the total count or page changes.
type View struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	StartPage   int   `json:"startPage"`
	EndPage     int   `json:"endPage"`
	Pages       []int `json:"pages"`
}

// Window maps a result count and a requested page to the run of page
// buttons to render around it.
//
// Out of range input is clamped instead of rejected: a negative count is 0,
// page sizes and window sizes below 1 are 1, and the current page is pulled
// into [1, TotalPages]. The window holds min(windowSize, TotalPages)
// consecutive pages, centred on the current page and shifted to stay inside
// [1, TotalPages].
func Window(totalCount, currentPage, pageSize, windowSize int) View {
	if totalCount < 0 {
		totalCount = 0
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if windowSize < 1 {
		windowSize = 1
	}

	totalPages := (totalCount + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	if currentPage < 1 {
		currentPage = 1
	} else if currentPage > totalPages {
		currentPage = totalPages
	}

	startPage := max(1, currentPage-windowSize/2)
	if startPage+windowSize-1 > totalPages {
		startPage = max(1, totalPages-windowSize+1)
	}
	endPage := min(totalPages, startPage+windowSize-1)

	pages := make([]int, 0, endPage-startPage+1)
	for p := startPage; p <= endPage; p++ {
		pages = append(pages, p)
	}

	return View{
		CurrentPage: currentPage,
		TotalPages:  totalPages,
		StartPage:   startPage,
		EndPage:     endPage,
		Pages:       pages,
	}
}

// Inner returns the window pages without the first and last page. Those two
// are always rendered as their own fixed buttons, so iterating Inner instead
// of Pages keeps them from showing up twice.
func (v View) Inner() []int {
	out := make([]int, 0, len(v.Pages))
	for _, p := range v.Pages {
		if p == 1 || p == v.TotalPages {
			continue
		}
		out = append(out, p)
	}
	return out
}

// LeadingEllipsis reports whether pages are hidden between the first page
// button and the window.
func (v View) LeadingEllipsis() bool {
	return v.StartPage > 2
}

// TrailingEllipsis reports whether pages are hidden between the window and
// the last page button.
func (v View) TrailingEllipsis() bool {
	return v.EndPage < v.TotalPages-1
}

// HasPrevious reports whether the previous arrow is enabled.
func (v View) HasPrevious() bool {
	return v.CurrentPage > 1
}

// HasNext reports whether the next arrow is enabled.
func (v View) HasNext() bool {
	return v.CurrentPage < v.TotalPages
}

// PreviousPage returns the target of the previous arrow, or 0 when disabled.
func (v View) PreviousPage() int {
	if !v.HasPrevious() {
		return 0
	}
	return v.CurrentPage - 1
}

// NextPage returns the target of the next arrow, or 0 when disabled.
func (v View) NextPage() int {
	if !v.HasNext() {
		return 0
	}
	return v.CurrentPage + 1
}
