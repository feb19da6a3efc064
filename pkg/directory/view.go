package directory

import (
	"github.com/profiledir/directory-client/pkg/cache"
	"github.com/profiledir/directory-client/pkg/client"
	"github.com/profiledir/directory-client/pkg/filter"
	"github.com/profiledir/directory-client/pkg/pagination"
	"github.com/profiledir/directory-client/pkg/request"
)

// FilterOption is one catalog category as shown to the user.
type FilterOption struct {
	filter.Category

	Selected bool `json:"selected"`

	// Count is the number of profiles with the tag; HasCount is false while
	// the counts are loading or unavailable.
	Count    int  `json:"count,omitempty"`
	HasCount bool `json:"hasCount"`
}

// ActiveFilter is a selected tag with its display title. Tags missing from
// the catalog use their id as title.
type ActiveFilter struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// View is everything needed to render one state.
type View struct {
	Hash request.StabilityHash `json:"hash"`
	Key  string                `json:"key"`

	// Items is the page of profiles; HasData is false until the first load
	// of the page finished.
	Items      []client.Designer `json:"items"`
	TotalCount int               `json:"totalCount"`
	HasData    bool              `json:"hasData"`

	Pagination pagination.View `json:"pagination"`

	// Loading is true while a fetch for the page is in flight.
	Loading bool `json:"loading"`

	// Err is the last fetch error for the page. Items may still hold the
	// previous data.
	Err error `json:"-"`

	Filters []FilterOption `json:"filters"`
	Active  []ActiveFilter `json:"active"`
}

func (s *Service) view(st State, d request.Descriptor, res cache.Result[*client.ProfilePage], meta cache.Result[*client.Meta]) View {
	v := View{
		Hash:    s.hash,
		Key:     d.Key(),
		Items:   []client.Designer{},
		HasData: res.HasData && res.Data != nil,
		Loading: res.Loading,
		Err:     res.Err,
	}
	if v.HasData {
		v.Items = res.Data.Designers
		v.TotalCount = res.Data.Info.NumFilteredDesigners
	}
	v.Pagination = pagination.Window(v.TotalCount, st.Page, s.pageSize, s.windowSize)

	var counts map[string]int
	if meta.HasData && meta.Data != nil {
		counts = meta.Data.NumDesignersPerTag
	}

	visible := s.catalog.Visible(st.ShowAllFilters)
	v.Filters = make([]FilterOption, 0, len(visible))
	for _, cat := range visible {
		count, ok := counts[cat.ID]
		v.Filters = append(v.Filters, FilterOption{
			Category: cat,
			Selected: st.Filters.Has(cat.ID),
			Count:    count,
			HasCount: ok,
		})
	}

	tags := st.Filters.Canonical()
	v.Active = make([]ActiveFilter, 0, len(tags))
	for _, tag := range tags {
		v.Active = append(v.Active, ActiveFilter{ID: tag, Title: s.catalog.Title(tag)})
	}

	return v
}
