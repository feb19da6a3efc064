package pagination

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel page fetches
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
}

// DefaultConfig returns a conservative configuration for warming a handful
// of neighbouring pages.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 2,
		Timeout:        15 * time.Second,
	}
}

// PageFetcher loads a single 1-based page. Implementations are expected to
// keep the result somewhere useful, typically a fetch cache.
type PageFetcher interface {
	FetchPage(ctx context.Context, page int) error
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, page int) error

// FetchPage calls f.
func (f PageFetcherFunc) FetchPage(ctx context.Context, page int) error {
	return f(ctx, page)
}

// PageResult represents the result of fetching a single page
type PageResult struct {
	PageNumber int
	Error      error
}

// BatchFetcher fetches a set of pages with a bounded worker pool.
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchPages fetches every listed page, skipping duplicates and pages below 1.
// It returns the pages that loaded successfully in ascending order; failures
// are joined into the returned error and do not stop the other workers.
func (bf *BatchFetcher) FetchPages(ctx context.Context, pages []int) ([]int, error) {
	start := time.Now()

	queue := uniquePages(pages)
	if len(queue) == 0 {
		return nil, nil
	}

	pageQueue := make(chan int, len(queue))
	for _, page := range queue {
		pageQueue <- page
	}
	close(pageQueue)

	pageResults := make(chan PageResult, len(queue))

	workers := min(bf.config.MaxConcurrency, len(queue))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(ctx, pageQueue, pageResults, &wg, i)
	}

	go func() {
		wg.Wait()
		close(pageResults)
	}()

	var fetched []int
	var errs []error
	for result := range pageResults {
		if result.Error != nil {
			errs = append(errs, fmt.Errorf("page %d: %w", result.PageNumber, result.Error))
			continue
		}
		fetched = append(fetched, result.PageNumber)
	}
	sort.Ints(fetched)

	log.Debug().
		Ints("pages", fetched).
		Int("failed", len(errs)).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	return fetched, errors.Join(errs...)
}

// worker processes pages from the queue
func (bf *BatchFetcher) worker(ctx context.Context, pageQueue <-chan int, results chan<- PageResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageNum := range pageQueue {
		if err := ctx.Err(); err != nil {
			results <- PageResult{PageNumber: pageNum, Error: err}
			continue
		}

		pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		err := bf.fetcher.FetchPage(pageCtx, pageNum)
		cancel()

		if err != nil {
			log.Warn().
				Err(err).
				Int("worker_id", workerID).
				Int("page", pageNum).
				Msg("Page fetch failed")
		}

		results <- PageResult{PageNumber: pageNum, Error: err}
		pagesProcessed++
	}

	if pagesProcessed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}

func uniquePages(pages []int) []int {
	seen := make(map[int]bool, len(pages))
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		if p < 1 || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
