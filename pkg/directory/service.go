// Package directory composes the filter set, request keys, fetch caches and
// pagination window into the browsing model of the profile directory.
//
// A caller keeps a State, asks the Service for a View of it, and renders the
// view. Snapshot never blocks and reports Loading while data is fetched;
// Load waits for the page.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/profiledir/directory-client/pkg/cache"
	"github.com/profiledir/directory-client/pkg/client"
	"github.com/profiledir/directory-client/pkg/filter"
	"github.com/profiledir/directory-client/pkg/pagination"
	"github.com/profiledir/directory-client/pkg/request"
)

const (
	// DefaultPageSize is the number of profiles per page.
	DefaultPageSize = 52

	// DefaultWindowSize is the number of page buttons around the current page.
	DefaultWindowSize = 5

	metaKey = "meta"
)

// Source loads profile pages and per-tag counts. *client.Client implements it.
type Source interface {
	FetchProfiles(ctx context.Context, d request.Descriptor) (*client.ProfilePage, error)
	FetchMeta(ctx context.Context) (*client.Meta, error)
}

// Config holds service configuration.
type Config struct {
	// Source is required.
	Source Source

	// Catalog lists the filter categories. Zero value uses filter.DefaultCatalog.
	Catalog filter.Catalog

	// Hash pins the stability hash. nil draws a random one.
	Hash *request.StabilityHash

	PageSize   int
	WindowSize int

	// MaxEntries bounds the profile page cache. 0 keeps every page.
	MaxEntries int

	// Prefetch loads the other pages of the window after Load.
	Prefetch bool

	// Prefetcher configures the prefetch worker pool.
	Prefetcher pagination.Config

	// Logger defaults to a "directory" component logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration for source with the default page and
// window sizes.
func DefaultConfig(source Source) Config {
	return Config{
		Source:     source,
		Catalog:    filter.DefaultCatalog(),
		PageSize:   DefaultPageSize,
		WindowSize: DefaultWindowSize,
		Prefetcher: pagination.DefaultConfig(),
	}
}

// Service serves directory views for one stability hash. It is safe for
// concurrent use; concurrent views of the same page share one fetch.
type Service struct {
	source     Source
	catalog    filter.Catalog
	hash       request.StabilityHash
	pageSize   int
	windowSize int
	prefetch   bool
	prefetcher pagination.Config

	profiles *cache.FetchCache[*client.ProfilePage]
	meta     *cache.FetchCache[*client.Meta]

	logger zerolog.Logger
}

// New creates a service.
func New(cfg Config) (*Service, error) {
	if cfg.Source == nil {
		return nil, errors.New("source is required")
	}
	if cfg.Catalog.Len() == 0 {
		cfg.Catalog = filter.DefaultCatalog()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.MaxEntries < 0 {
		return nil, fmt.Errorf("max_entries must be >= 0 (got %d)", cfg.MaxEntries)
	}

	hash := request.NewStabilityHash()
	if cfg.Hash != nil {
		if *cfg.Hash < 0 {
			return nil, fmt.Errorf("stability hash must be >= 0 (got %d)", *cfg.Hash)
		}
		hash = *cfg.Hash
	}

	logger := log.With().Str("component", "directory").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	logger = logger.With().Stringer("hash", hash).Logger()

	return &Service{
		source:     cfg.Source,
		catalog:    cfg.Catalog,
		hash:       hash,
		pageSize:   cfg.PageSize,
		windowSize: cfg.WindowSize,
		prefetch:   cfg.Prefetch,
		prefetcher: cfg.Prefetcher,
		profiles: cache.NewFetchCache[*client.ProfilePage](cache.FetchCacheConfig{
			Name:       "profiles",
			MaxEntries: cfg.MaxEntries,
			Logger:     cfg.Logger,
		}),
		meta: cache.NewFetchCache[*client.Meta](cache.FetchCacheConfig{
			Name:   "meta",
			Logger: cfg.Logger,
		}),
		logger: logger,
	}, nil
}

// Hash returns the stability hash of the session.
func (s *Service) Hash() request.StabilityHash {
	return s.hash
}

// Catalog returns the filter catalog.
func (s *Service) Catalog() filter.Catalog {
	return s.catalog
}

// PageSize returns the number of profiles per page.
func (s *Service) PageSize() int {
	return s.pageSize
}

// Descriptor returns the request for st.
func (s *Service) Descriptor(st State) request.Descriptor {
	return request.New(s.hash, s.pageSize, st.Page, st.Filters)
}

// Snapshot returns the view of st without waiting. Missing data is fetched
// in the background and reported through Loading; a failed page is retried
// on the next call.
func (s *Service) Snapshot(ctx context.Context, st State) View {
	d := s.Descriptor(st)
	res := s.profiles.Get(ctx, d.Key(), s.resolveProfiles(d))
	meta := s.meta.Get(ctx, metaKey, s.resolveMeta)

	return s.view(st, d, res, meta)
}

// Load returns the view of st once its page has loaded. On failure the view
// keeps the last good data for the page, if any, and the error is returned
// as well as set on the view. A page past the end is replaced by the last
// page.
func (s *Service) Load(ctx context.Context, st State) (View, error) {
	// Start meta first so its counts are usually ready with the page
	s.meta.Get(ctx, metaKey, s.resolveMeta)

	d := s.Descriptor(st)
	page, err := s.profiles.Fetch(ctx, d.Key(), s.resolveProfiles(d))

	if err == nil && page != nil {
		window := pagination.Window(page.Info.NumFilteredDesigners, st.Page, s.pageSize, s.windowSize)
		if window.CurrentPage != st.Page {
			s.logger.Debug().Int("page", st.Page).Int("last_page", window.CurrentPage).Msg("Page out of range, loading last page")
			st.Page = window.CurrentPage
			d = s.Descriptor(st)
			page, err = s.profiles.Fetch(ctx, d.Key(), s.resolveProfiles(d))
		}
	}

	res := cache.Result[*client.ProfilePage]{Data: page, HasData: page != nil, Err: err}
	meta := s.meta.Get(ctx, metaKey, s.resolveMeta)
	v := s.view(st, d, res, meta)

	if err != nil {
		s.logger.Warn().Err(err).Str("key", d.Key()).Bool("has_stale", res.HasData).Msg("Page load failed")
		return v, err
	}

	if s.prefetch {
		go func() {
			if _, err := s.PrefetchWindow(context.WithoutCancel(ctx), st, v.Pagination); err != nil {
				s.logger.Debug().Err(err).Msg("Prefetch incomplete")
			}
		}()
	}
	return v, nil
}

// Revalidate refetches the page of st and the tag counts, keeping the
// current data visible until the new data arrives.
func (s *Service) Revalidate(ctx context.Context, st State) View {
	d := s.Descriptor(st)
	res := s.profiles.Revalidate(ctx, d.Key(), s.resolveProfiles(d))
	meta := s.meta.Revalidate(ctx, metaKey, s.resolveMeta)

	return s.view(st, d, res, meta)
}

// PrefetchWindow loads the pages of window other than the current one,
// plus the first and last page, into the page cache. Pages already cached
// or in flight are not fetched again. Returns the pages that loaded.
func (s *Service) PrefetchWindow(ctx context.Context, st State, window pagination.View) ([]int, error) {
	pages := make([]int, 0, len(window.Pages)+2)
	for _, p := range append([]int{1, window.TotalPages}, window.Pages...) {
		if p != window.CurrentPage {
			pages = append(pages, p)
		}
	}

	fetcher := pagination.NewBatchFetcher(pagination.PageFetcherFunc(func(ctx context.Context, page int) error {
		next := st
		next.Page = page
		d := s.Descriptor(next)
		_, err := s.profiles.Fetch(ctx, d.Key(), s.resolveProfiles(d))
		return err
	}), s.prefetcher)

	return fetcher.FetchPages(ctx, pages)
}

// Invalidate drops every cached page and the tag counts.
func (s *Service) Invalidate() {
	s.profiles.Clear()
	s.meta.Clear()
}

func (s *Service) resolveProfiles(d request.Descriptor) cache.ResolveFunc[*client.ProfilePage] {
	return func(ctx context.Context) (*client.ProfilePage, error) {
		return s.source.FetchProfiles(ctx, d)
	}
}

func (s *Service) resolveMeta(ctx context.Context) (*client.Meta, error) {
	meta, err := s.source.FetchMeta(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Tag counts unavailable")
	}
	return meta, err
}
