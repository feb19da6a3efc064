package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/profiledir/directory-client/pkg/cache"
	"github.com/profiledir/directory-client/pkg/client"
	"github.com/profiledir/directory-client/pkg/directory"
	"github.com/profiledir/directory-client/pkg/metrics"
	"github.com/profiledir/directory-client/pkg/pagination"
	"github.com/profiledir/directory-client/pkg/ratelimit"
	"github.com/profiledir/directory-client/pkg/request"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// server owns the shared client and one directory service per stability
// hash in use.
type server struct {
	cfg    *Config
	logger zerolog.Logger

	redis  *redis.Client
	ready  pinger
	memory *cache.MemoryStore
	client *client.Client

	mu       sync.Mutex
	fallback *directory.Service
	sessions map[request.StabilityHash]*directory.Service
}

func newServer(ctx context.Context, cfg *Config, logger zerolog.Logger) (*server, error) {
	s := &server{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[request.StabilityHash]*directory.Service),
	}

	var store cache.Store
	var tracker *ratelimit.Tracker
	if cfg.RedisURL != "" {
		opts, err := redisOptions(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		s.redis = redis.NewClient(opts)
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.redis.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		redisStore := cache.NewRedisStore(s.redis)
		store, s.ready = redisStore, redisStore
		tracker = ratelimit.NewTracker(s.redis, logger.With().Str("component", "rate-limit").Logger())
		logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	} else {
		memory, err := cache.NewMemoryStore(cache.DefaultMemoryStoreConfig())
		if err != nil {
			return nil, err
		}
		s.memory = memory
		store = memory
	}

	clientLogger := logger.With().Str("component", "directory-client").Logger()
	c, err := client.New(client.Config{
		BaseURL:     cfg.APIBaseURL,
		UserAgent:   cfg.UserAgent,
		Store:       store,
		RateLimiter: tracker,
		Logger:      &clientLogger,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create directory client: %w", err)
	}
	s.client = c

	var pinned *request.StabilityHash
	if h, ok, _ := cfg.Hash(); ok {
		pinned = &h
	}
	s.fallback, err = s.newService(pinned)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.sessions[s.fallback.Hash()] = s.fallback

	return s, nil
}

func redisOptions(raw string) (*redis.Options, error) {
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: raw}, nil
}

func (s *server) newService(hash *request.StabilityHash) (*directory.Service, error) {
	logger := s.logger.With().Str("component", "directory").Logger()
	return directory.New(directory.Config{
		Source:     s.client,
		Hash:       hash,
		PageSize:   s.cfg.PageSize,
		WindowSize: s.cfg.WindowSize,
		MaxEntries: s.cfg.CacheMaxEntries,
		Prefetch:   s.cfg.Prefetch,
		Prefetcher: pagination.DefaultConfig(),
		Logger:     &logger,
	})
}

// service returns the directory service for hash, creating it on first
// use. Once MaxSessions hashes are in use, unknown hashes get the default
// service; its hash is echoed in the response.
func (s *server) service(hash *request.StabilityHash) *directory.Service {
	if hash == nil {
		return s.fallback
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if svc, ok := s.sessions[*hash]; ok {
		return svc
	}
	if len(s.sessions) >= s.cfg.MaxSessions {
		s.logger.Warn().Stringer("hash", *hash).Int("max_sessions", s.cfg.MaxSessions).Msg("Session limit reached, using default hash")
		return s.fallback
	}

	svc, err := s.newService(hash)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create session")
		return s.fallback
	}
	s.sessions[*hash] = svc
	return svc
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(s.ready))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /profiles", s.profilesHandler)
	return withRequestID(s.logger, mux)
}

func (s *server) httpServer() *http.Server {
	return &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.routes(),
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Close releases the client, stores and Redis connection.
func (s *server) Close() {
	if s.client != nil {
		s.client.Close()
	}
	if s.memory != nil {
		s.memory.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close Redis")
		}
	}
}
