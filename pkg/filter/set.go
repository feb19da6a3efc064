// Package filter holds the active tag filters of a directory view and the
// static category catalog they are picked from.
package filter

import "sort"

// Set is an unordered set of tag identifiers.
//
// Membership is what matters: the order tags were toggled in never leaks
// out, because Canonical is the only way tags leave the set on their way
// into a request key.
type Set struct {
	tags map[string]struct{}
}

// NewSet creates a set holding the given tags. Duplicates collapse.
func NewSet(tags ...string) *Set {
	s := &Set{tags: make(map[string]struct{}, len(tags))}
	for _, tag := range tags {
		s.tags[tag] = struct{}{}
	}
	return s
}

// Add inserts tag. Returns false if it was already present.
func (s *Set) Add(tag string) bool {
	if s.tags == nil {
		s.tags = make(map[string]struct{})
	}
	if _, ok := s.tags[tag]; ok {
		return false
	}
	s.tags[tag] = struct{}{}
	return true
}

// Remove deletes tag. Returns false if it was not present.
func (s *Set) Remove(tag string) bool {
	if _, ok := s.tags[tag]; !ok {
		return false
	}
	delete(s.tags, tag)
	return true
}

// Toggle adds tag when absent and removes it when present.
// Returns true if tag is a member afterwards.
func (s *Set) Toggle(tag string) bool {
	if s.Remove(tag) {
		return false
	}
	s.Add(tag)
	return true
}

// Has reports whether tag is a member.
func (s *Set) Has(tag string) bool {
	if s == nil {
		return false
	}
	_, ok := s.tags[tag]
	return ok
}

// Len returns the number of tags.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tags)
}

// Clear removes every tag. Returns false if the set was already empty.
func (s *Set) Clear() bool {
	if s.Len() == 0 {
		return false
	}
	s.tags = make(map[string]struct{})
	return true
}

// Clone returns an independent copy.
func (s *Set) Clone() *Set {
	return NewSet(s.Canonical()...)
}

// Canonical returns the tags sorted lexicographically in a fresh slice.
// A nil or empty set yields an empty, non-nil slice.
func (s *Set) Canonical() []string {
	out := make([]string, 0, s.Len())
	if s == nil {
		return out
	}
	for tag := range s.tags {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether both sets hold the same tags.
func (s *Set) Equal(other *Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for _, tag := range s.Canonical() {
		if !other.Has(tag) {
			return false
		}
	}
	return true
}
