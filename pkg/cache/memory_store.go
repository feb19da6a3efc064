package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

// MemoryStoreConfig sizes the in-process response store.
type MemoryStoreConfig struct {
	// MaxBytes bounds the total size of stored bodies.
	MaxBytes int64

	// NumCounters is the number of keys tracked for admission (about 10x
	// the expected number of entries).
	NumCounters int64
}

// DefaultMemoryStoreConfig returns a 64 MiB store.
func DefaultMemoryStoreConfig() MemoryStoreConfig {
	return MemoryStoreConfig{
		MaxBytes:    64 << 20,
		NumCounters: 100_000,
	}
}

// MemoryStore is a Store kept in process memory, for deployments without
// Redis. Entries cost their body size.
type MemoryStore struct {
	c *ristretto.Cache[string, *ResponseEntry]
}

// NewMemoryStore creates an in-process response store.
func NewMemoryStore(cfg MemoryStoreConfig) (*MemoryStore, error) {
	def := DefaultMemoryStoreConfig()
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = def.NumCounters
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, *ResponseEntry]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &MemoryStore{c: c}, nil
}

// Get retrieves an entry by key.
// Returns ErrCacheMiss if the key doesn't exist.
func (s *MemoryStore) Get(_ context.Context, key ResponseKey) (*ResponseEntry, error) {
	entry, ok := s.c.Get(key.String())
	if !ok || entry == nil {
		StoreMisses.WithLabelValues("memory").Inc()
		return nil, ErrCacheMiss
	}
	StoreHits.WithLabelValues("memory").Inc()

	// Callers may Refresh the entry in place
	clone := *entry
	return &clone, nil
}

// Set stores an entry. The write is applied before Set returns.
func (s *MemoryStore) Set(_ context.Context, key ResponseKey, entry *ResponseEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	stored := *entry
	cost := int64(len(stored.Data)) + 1
	if !s.c.SetWithTTL(key.String(), &stored, cost, retentionTTL(&stored)) {
		StoreErrors.WithLabelValues("memory", "set").Inc()
		return fmt.Errorf("memory store rejected %s", key.String())
	}
	s.c.Wait()
	return nil
}

// Delete removes an entry.
func (s *MemoryStore) Delete(_ context.Context, key ResponseKey) error {
	s.c.Del(key.String())
	return nil
}

// Close releases the store.
func (s *MemoryStore) Close() {
	s.c.Close()
}

var _ Store = (*MemoryStore)(nil)
