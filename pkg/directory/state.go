package directory

import (
	"github.com/profiledir/directory-client/pkg/filter"
)

// State is what one browsing session has selected: the filter set, the
// requested page and whether all filter options are shown. It is a plain
// value owned by a single caller; the Service never stores it.
type State struct {
	Filters *filter.Set
	Page    int

	// ShowAllFilters lists every catalog category instead of only the
	// primary ones.
	ShowAllFilters bool
}

// NewState returns the initial state: no filters, page 1.
func NewState(tags ...string) State {
	return State{Filters: filter.NewSet(tags...), Page: 1}
}

// AddFilter selects tag. Changing the filter set sends the session back to
// page 1. Returns false if tag was already selected.
func (s *State) AddFilter(tag string) bool {
	return s.resetIf(s.filters().Add(tag))
}

// RemoveFilter deselects tag, resetting to page 1 if it was selected.
func (s *State) RemoveFilter(tag string) bool {
	return s.resetIf(s.filters().Remove(tag))
}

// ToggleFilter flips tag and resets to page 1. Returns the new membership.
func (s *State) ToggleFilter(tag string) bool {
	selected := s.filters().Toggle(tag)
	s.Page = 1
	return selected
}

// ClearFilters deselects everything, resetting to page 1 if anything was
// selected. Returns false if the set was already empty.
func (s *State) ClearFilters() bool {
	return s.resetIf(s.filters().Clear())
}

// SetPage moves to page. Pages below 1 become 1; pages past the end are
// clamped when the view is built.
func (s *State) SetPage(page int) {
	s.Page = max(page, 1)
}

// Clone returns a copy that shares nothing with s.
func (s State) Clone() State {
	s.Filters = s.filters().Clone()
	return s
}

func (s *State) filters() *filter.Set {
	if s.Filters == nil {
		s.Filters = filter.NewSet()
	}
	return s.Filters
}

func (s *State) resetIf(changed bool) bool {
	if changed {
		s.Page = 1
	}
	return changed
}
