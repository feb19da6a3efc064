// Package pagination turns a result count into the page buttons of a
// directory view and warms neighbouring pages ahead of navigation.
//
// Window is a pure function: it never fails, clamps out of range input and
// returns identical output for identical input, so it is safe to call on
// every render.
//
//	view := pagination.Window(totalCount, currentPage, 52, 5)
//	// first page button: 1
//	if view.LeadingEllipsis() { /* … */ }
//	for _, p := range view.Inner() { /* page buttons */ }
//	if view.TrailingEllipsis() { /* … */ }
//	// last page button: view.TotalPages
//
// BatchFetcher runs a bounded worker pool over a list of pages:
//
//	fetcher := pagination.NewBatchFetcher(loader, pagination.DefaultConfig())
//	loaded, err := fetcher.FetchPages(ctx, view.Pages)
//
// Failed pages are reported through the joined error; the remaining pages
// still load.
package pagination
