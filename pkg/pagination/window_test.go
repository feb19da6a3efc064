package pagination

import (
	"reflect"
	"testing"
)

const (
	testPageSize   = 52
	testWindowSize = 5
)

func TestWindow(t *testing.T) {
	tests := []struct {
		name         string
		totalCount   int
		currentPage  int
		want         View
		wantInner    []int
		wantLeading  bool
		wantTrailing bool
		wantPrevious bool
		wantNext     bool
	}{
		{
			name:        "empty result",
			totalCount:  0,
			currentPage: 1,
			want:        View{CurrentPage: 1, TotalPages: 1, StartPage: 1, EndPage: 1, Pages: []int{1}},
			wantInner:   []int{},
		},
		{
			name:         "first of ten",
			totalCount:   520,
			currentPage:  1,
			want:         View{CurrentPage: 1, TotalPages: 10, StartPage: 1, EndPage: 5, Pages: []int{1, 2, 3, 4, 5}},
			wantInner:    []int{2, 3, 4, 5},
			wantTrailing: true,
			wantNext:     true,
		},
		{
			name:         "last of ten",
			totalCount:   520,
			currentPage:  10,
			want:         View{CurrentPage: 10, TotalPages: 10, StartPage: 6, EndPage: 10, Pages: []int{6, 7, 8, 9, 10}},
			wantInner:    []int{6, 7, 8, 9},
			wantLeading:  true,
			wantPrevious: true,
		},
		{
			name:         "middle of ten",
			totalCount:   520,
			currentPage:  5,
			want:         View{CurrentPage: 5, TotalPages: 10, StartPage: 3, EndPage: 7, Pages: []int{3, 4, 5, 6, 7}},
			wantInner:    []int{3, 4, 5, 6, 7},
			wantLeading:  true,
			wantTrailing: true,
			wantPrevious: true,
			wantNext:     true,
		},
		{
			name:         "window touches first page",
			totalCount:   520,
			currentPage:  3,
			want:         View{CurrentPage: 3, TotalPages: 10, StartPage: 1, EndPage: 5, Pages: []int{1, 2, 3, 4, 5}},
			wantInner:    []int{2, 3, 4, 5},
			wantTrailing: true,
			wantPrevious: true,
			wantNext:     true,
		},
		{
			name:         "window one away from first page",
			totalCount:   520,
			currentPage:  4,
			want:         View{CurrentPage: 4, TotalPages: 10, StartPage: 2, EndPage: 6, Pages: []int{2, 3, 4, 5, 6}},
			wantInner:    []int{2, 3, 4, 5, 6},
			wantTrailing: true,
			wantPrevious: true,
			wantNext:     true,
		},
		{
			name:         "window one away from last page",
			totalCount:   520,
			currentPage:  7,
			want:         View{CurrentPage: 7, TotalPages: 10, StartPage: 5, EndPage: 9, Pages: []int{5, 6, 7, 8, 9}},
			wantInner:    []int{5, 6, 7, 8, 9},
			wantLeading:  true,
			wantPrevious: true,
			wantNext:     true,
		},
		{
			name:        "fewer pages than window",
			totalCount:  104,
			currentPage: 1,
			want:        View{CurrentPage: 1, TotalPages: 2, StartPage: 1, EndPage: 2, Pages: []int{1, 2}},
			wantInner:   []int{},
			wantNext:    true,
		},
		{
			name:         "page past the end clamps to last",
			totalCount:   104,
			currentPage:  3,
			want:         View{CurrentPage: 2, TotalPages: 2, StartPage: 1, EndPage: 2, Pages: []int{1, 2}},
			wantInner:    []int{},
			wantPrevious: true,
		},
		{
			name:         "partial last page counts",
			totalCount:   53,
			currentPage:  2,
			want:         View{CurrentPage: 2, TotalPages: 2, StartPage: 1, EndPage: 2, Pages: []int{1, 2}},
			wantInner:    []int{},
			wantPrevious: true,
		},
		{
			name:        "negative count and page clamp",
			totalCount:  -10,
			currentPage: -3,
			want:        View{CurrentPage: 1, TotalPages: 1, StartPage: 1, EndPage: 1, Pages: []int{1}},
			wantInner:   []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Window(tt.totalCount, tt.currentPage, testPageSize, testWindowSize)

			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Window() = %+v, want %+v", got, tt.want)
			}
			if inner := got.Inner(); !reflect.DeepEqual(inner, tt.wantInner) {
				t.Errorf("Inner() = %v, want %v", inner, tt.wantInner)
			}
			if got.LeadingEllipsis() != tt.wantLeading {
				t.Errorf("LeadingEllipsis() = %v, want %v", got.LeadingEllipsis(), tt.wantLeading)
			}
			if got.TrailingEllipsis() != tt.wantTrailing {
				t.Errorf("TrailingEllipsis() = %v, want %v", got.TrailingEllipsis(), tt.wantTrailing)
			}
			if got.HasPrevious() != tt.wantPrevious {
				t.Errorf("HasPrevious() = %v, want %v", got.HasPrevious(), tt.wantPrevious)
			}
			if got.HasNext() != tt.wantNext {
				t.Errorf("HasNext() = %v, want %v", got.HasNext(), tt.wantNext)
			}
		})
	}
}

func TestWindow_Idempotent(t *testing.T) {
	for page := 0; page <= 12; page++ {
		a := Window(520, page, testPageSize, testWindowSize)
		b := Window(520, page, testPageSize, testWindowSize)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("page %d: %+v != %+v", page, a, b)
		}
	}
}

func TestWindow_DefensiveSizes(t *testing.T) {
	tests := []struct {
		name       string
		pageSize   int
		windowSize int
		wantTotal  int
		wantPages  []int
	}{
		{name: "zero page size", pageSize: 0, windowSize: 5, wantTotal: 3, wantPages: []int{1, 2, 3}},
		{name: "negative page size", pageSize: -1, windowSize: 5, wantTotal: 3, wantPages: []int{1, 2, 3}},
		{name: "zero window size", pageSize: 1, windowSize: 0, wantTotal: 3, wantPages: []int{1}},
		{name: "single button window", pageSize: 1, windowSize: 1, wantTotal: 3, wantPages: []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Window(3, 1, tt.pageSize, tt.windowSize)
			if got.TotalPages != tt.wantTotal {
				t.Errorf("TotalPages = %d, want %d", got.TotalPages, tt.wantTotal)
			}
			if !reflect.DeepEqual(got.Pages, tt.wantPages) {
				t.Errorf("Pages = %v, want %v", got.Pages, tt.wantPages)
			}
		})
	}
}

// TestWindow_Invariants sweeps a range of inputs and checks the shape of
// every window.
func TestWindow_Invariants(t *testing.T) {
	for total := 0; total <= 600; total += 13 {
		for page := -1; page <= 14; page++ {
			for _, size := range []int{1, 3, 5, 7} {
				v := Window(total, page, testPageSize, size)

				if v.CurrentPage < 1 || v.CurrentPage > v.TotalPages {
					t.Fatalf("total=%d page=%d size=%d: current %d outside [1,%d]", total, page, size, v.CurrentPage, v.TotalPages)
				}
				if v.StartPage < 1 || v.EndPage > v.TotalPages || v.StartPage > v.EndPage {
					t.Fatalf("total=%d page=%d size=%d: bad bounds %d..%d", total, page, size, v.StartPage, v.EndPage)
				}
				if v.CurrentPage < v.StartPage || v.CurrentPage > v.EndPage {
					t.Fatalf("total=%d page=%d size=%d: current %d not in window %d..%d", total, page, size, v.CurrentPage, v.StartPage, v.EndPage)
				}
				if want := min(size, v.TotalPages); len(v.Pages) != want {
					t.Fatalf("total=%d page=%d size=%d: %d pages, want %d", total, page, size, len(v.Pages), want)
				}
			}
		}
	}
}

func TestView_Arrows(t *testing.T) {
	v := Window(520, 5, testPageSize, testWindowSize)
	if v.PreviousPage() != 4 || v.NextPage() != 6 {
		t.Errorf("PreviousPage/NextPage = %d/%d, want 4/6", v.PreviousPage(), v.NextPage())
	}

	first := Window(520, 1, testPageSize, testWindowSize)
	if first.PreviousPage() != 0 {
		t.Errorf("PreviousPage on first page = %d, want 0", first.PreviousPage())
	}

	last := Window(520, 10, testPageSize, testWindowSize)
	if last.NextPage() != 0 {
		t.Errorf("NextPage on last page = %d, want 0", last.NextPage())
	}
}
