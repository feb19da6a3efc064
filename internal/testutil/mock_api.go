// Package testutil provides testing utilities for the directory client.
package testutil

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MockProfile is a profile served by MockAPI.
type MockProfile struct {
	Image       string   `json:"image"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Color       string   `json:"color"`
	Username    string   `json:"username"`
	DisplayURL  string   `json:"display_url"`
	ExpandedURL string   `json:"expanded_url"`
	Tags        []string `json:"-"`
}

// MockResponse defines a canned response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is an in-process directory API.
//
// GET /api filters profiles by every requested tag, orders them by a hash of
// the stability hash and username, and pages with offset and limit.
// GET /meta counts profiles per tag. Both send an ETag and answer a matching
// If-None-Match with 304.
type MockAPI struct {
	server *httptest.Server

	mu       sync.RWMutex
	profiles []MockProfile
	handlers map[string]http.HandlerFunc
	failures []MockResponse
	hold     chan struct{}

	// MaxAge is the Cache-Control max-age sent with 200 and 304 responses.
	MaxAge int

	// Tracking
	RequestCount      int
	ConditionalCount  int
	PathCounts        map[string]int
	LastRequestHeader http.Header
	LastQuery         map[string][]string
}

// NewMockAPI starts a mock API serving profiles.
func NewMockAPI(profiles ...MockProfile) *MockAPI {
	mock := &MockAPI{
		profiles:   profiles,
		handlers:   make(map[string]http.HandlerFunc),
		PathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

// GenerateProfiles builds n profiles named user-000..; profile i carries
// tags[i % len(tags)].
func GenerateProfiles(n int, tags ...string) []MockProfile {
	profiles := make([]MockProfile, n)
	for i := range profiles {
		username := fmt.Sprintf("user-%03d", i)
		profiles[i] = MockProfile{
			Image:       "https://img.example.com/" + username + ".jpg",
			Name:        fmt.Sprintf("Designer %d", i),
			Description: "Product designer",
			Location:    "Berlin",
			Color:       "#1a1a1a",
			Username:    username,
			DisplayURL:  "example.com/" + username,
			ExpandedURL: "https://example.com/" + username,
		}
		if len(tags) > 0 {
			profiles[i].Tags = []string{tags[i%len(tags)]}
		}
	}
	return profiles
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.Release()
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.PathCounts = make(map[string]int)
	m.LastRequestHeader = nil
	m.LastQuery = nil
}

// SetHandler overrides the handler for a path.
func (m *MockAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeMockResponse(w, r, resp)
	})
}

// FailNext answers the next len(resps) requests, on any path, with resps
// in order.
func (m *MockAPI) FailNext(resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, resps...)
}

// Hold makes requests wait until Release is called.
func (m *MockAPI) Hold() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hold == nil {
		m.hold = make(chan struct{})
	}
}

// Release lets held requests continue.
func (m *MockAPI) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hold != nil {
		close(m.hold)
		m.hold = nil
	}
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockAPI) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// GetPathCount returns the number of requests for path.
func (m *MockAPI) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

func (m *MockAPI) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	m.PathCounts[r.URL.Path]++
	m.LastRequestHeader = r.Header.Clone()
	m.LastQuery = r.URL.Query()
	if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
		m.ConditionalCount++
	}
	hold := m.hold
	var failure *MockResponse
	if len(m.failures) > 0 {
		failure = &m.failures[0]
		m.failures = m.failures[1:]
	}
	handler, exists := m.handlers[r.URL.Path]
	m.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	switch {
	case failure != nil:
		writeMockResponse(w, r, *failure)
	case exists:
		handler(w, r)
	case r.URL.Path == "/api":
		m.serveProfiles(w, r)
	case r.URL.Path == "/meta":
		m.serveMeta(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (m *MockAPI) serveProfiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit < 1 {
		http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
		return
	}
	offset, err := strconv.Atoi(q.Get("offset"))
	if err != nil || offset < 0 {
		http.Error(w, `{"error":"invalid offset"}`, http.StatusBadRequest)
		return
	}
	hash := q.Get("hash")
	tags := q["tags"]

	m.mu.RLock()
	matches := make([]MockProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		if hasAllTags(p, tags) {
			matches = append(matches, p)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return orderKey(hash, matches[i].Username) < orderKey(hash, matches[j].Username)
	})

	start := min(offset, len(matches))
	end := min(offset+limit, len(matches))

	m.writeJSON(w, r, map[string]any{
		"designers": matches[start:end],
		"info":      map[string]int{"numFilteredDesigners": len(matches)},
	})
}

func (m *MockAPI) serveMeta(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	counts := make(map[string]int)
	for _, p := range m.profiles {
		for _, tag := range p.Tags {
			counts[tag]++
		}
	}
	m.mu.RUnlock()

	m.writeJSON(w, r, map[string]any{"numDesignersPerTag": counts})
}

// writeJSON sends body with an ETag derived from its content.
func (m *MockAPI) writeJSON(w http.ResponseWriter, r *http.Request, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h := fnv.New64a()
	h.Write(data)
	etag := fmt.Sprintf(`"%x"`, h.Sum64())

	m.mu.RLock()
	maxAge := m.MaxAge
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
	w.Header().Set("ETag", etag)

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeMockResponse(w http.ResponseWriter, r *http.Request, resp MockResponse) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func hasAllTags(p MockProfile, tags []string) bool {
	for _, tag := range tags {
		if !slices.Contains(p.Tags, tag) {
			return false
		}
	}
	return true
}

func orderKey(hash, username string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(hash))
	h.Write([]byte{0})
	h.Write([]byte(username))
	return h.Sum64()
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfterSeconds int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
			"Retry-After":  strconv.Itoa(retryAfterSeconds),
		},
	}
}

// NewMalformedResponse creates a 200 response whose body is not a valid page.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"designers": "oops"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
