// Package request builds the canonical description of a profiles request:
// the query sent to the API and the key it is cached under.
package request

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/profiledir/directory-client/pkg/filter"
)

// KeyPrefix namespaces profile request keys.
const KeyPrefix = "profiles"

// Descriptor holds every parameter that changes the API response for a
// page of profiles.
type Descriptor struct {
	// Hash pins the server-side shuffle for the session.
	Hash StabilityHash

	// Limit is the page size.
	Limit int

	// Offset is the index of the first item, Limit * (page - 1).
	Offset int

	// Tags are the active filters in canonical order.
	Tags []string
}

// New builds the descriptor for a 1-based page of the given filters.
// Pages below 1 are treated as page 1 and page sizes below 1 as 1.
func New(hash StabilityHash, pageSize, page int, filters *filter.Set) Descriptor {
	if pageSize < 1 {
		pageSize = 1
	}
	if page < 1 {
		page = 1
	}
	return Descriptor{
		Hash:   hash,
		Limit:  pageSize,
		Offset: Offset(page, pageSize),
		Tags:   filters.Canonical(),
	}
}

// Offset returns the item offset of a 1-based page.
func Offset(page, pageSize int) int {
	if page < 1 || pageSize < 1 {
		return 0
	}
	return pageSize * (page - 1)
}

// Page returns the 1-based page number the descriptor points at.
func (d Descriptor) Page() int {
	if d.Limit < 1 {
		return 1
	}
	return d.Offset/d.Limit + 1
}

// WithPage returns a copy of d pointing at another page.
func (d Descriptor) WithPage(page int) Descriptor {
	next := d
	next.Tags = append([]string(nil), d.Tags...)
	next.Offset = Offset(page, d.Limit)
	return next
}

// Key generates a deterministic cache key string.
// Format: profiles:hash=H:limit=L:offset=O:tags=t1,t2
//
// Tags are sorted, de-duplicated and query-escaped, so two descriptors share
// a key only when they would produce the same API request.
//
// Example:
//
//	profiles:hash=421337:limit=52:offset=104:tags=animation,illustration
func (d Descriptor) Key() string {
	tags := canonicalTags(d.Tags)
	escaped := make([]string, len(tags))
	for i, tag := range tags {
		escaped[i] = url.QueryEscape(tag)
	}

	parts := []string{
		KeyPrefix,
		"hash=" + d.Hash.String(),
		"limit=" + strconv.Itoa(d.Limit),
		"offset=" + strconv.Itoa(d.Offset),
		"tags=" + strings.Join(escaped, ","),
	}
	return strings.Join(parts, ":")
}

// String returns the cache key.
func (d Descriptor) String() string {
	return d.Key()
}

// Query returns the outbound query parameters. Tags are repeated in
// canonical order: hash=H&limit=L&offset=O&tags=a&tags=b.
func (d Descriptor) Query() url.Values {
	q := url.Values{}
	q.Set("hash", d.Hash.String())
	q.Set("limit", strconv.Itoa(d.Limit))
	q.Set("offset", strconv.Itoa(d.Offset))
	for _, tag := range canonicalTags(d.Tags) {
		q.Add("tags", tag)
	}
	return q
}

func canonicalTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	sorted := make([]string, len(tags))
	copy(sorted, tags)
	sort.Strings(sorted)

	out := sorted[:1]
	for _, tag := range sorted[1:] {
		if tag != out[len(out)-1] {
			out = append(out, tag)
		}
	}
	return out
}
