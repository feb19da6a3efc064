package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/profiledir/directory-client/pkg/client"
	"github.com/profiledir/directory-client/pkg/directory"
	"github.com/profiledir/directory-client/pkg/logging"
	"github.com/profiledir/directory-client/pkg/pagination"
	"github.com/profiledir/directory-client/pkg/request"
)

const requestTimeout = 30 * time.Second

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports 503 while the shared store is unreachable. Without a
// shared store the proxy is always ready.
func readyHandler(store pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				logging.FromContext(r.Context()).Warn().Err(err).Msg("Readiness check failed")
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

type profilesResponse struct {
	directory.View
	Error string     `json:"error,omitempty"`
	Links *pageLinks `json:"links,omitempty"`
}

// pageLinks are ready-made URLs for the pagination controls. First, Prev,
// Next and Last are empty when the control is disabled.
type pageLinks struct {
	First string     `json:"first,omitempty"`
	Prev  string     `json:"prev,omitempty"`
	Next  string     `json:"next,omitempty"`
	Last  string     `json:"last,omitempty"`
	Pages []pageLink `json:"pages"`
}

type pageLink struct {
	Page    int    `json:"page"`
	URL     string `json:"url"`
	Current bool   `json:"current,omitempty"`
}

type profilesQuery struct {
	hash     *request.StabilityHash
	state    directory.State
	snapshot bool
}

func parseProfilesQuery(q url.Values) (profilesQuery, error) {
	var pq profilesQuery

	pq.state = directory.NewState(q["tags"]...)
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return pq, fmt.Errorf("invalid page %q", raw)
		}
		pq.state.SetPage(page)
	}
	if raw := q.Get("hash"); raw != "" {
		h, err := request.ParseStabilityHash(raw)
		if err != nil {
			return pq, fmt.Errorf("invalid hash %q", raw)
		}
		pq.hash = &h
	}
	pq.state.ShowAllFilters = q.Get("expanded") == "1"
	pq.snapshot = q.Get("wait") == "0"
	return pq, nil
}

// profilesHandler serves the directory view for the query
// ?page=&tags=&tags=&hash=&expanded=1. With wait=0 it answers from cache
// immediately and reports loading instead of waiting for the page.
func (s *server) profilesHandler(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	pq, err := parseProfilesQuery(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	svc := s.service(pq.hash)

	var view directory.View
	if pq.snapshot {
		view = svc.Snapshot(r.Context(), pq.state)
		err = view.Err
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		view, err = svc.Load(ctx, pq.state)
	}

	resp := profilesResponse{View: view}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		if !view.HasData {
			status = errorStatus(err)
		}
		logger.Warn().Err(err).Str("key", view.Key).Bool("has_stale", view.HasData).Msg("Profiles request failed")
	}
	if view.HasData {
		resp.Links = buildLinks(view, pq.state)
	}

	writeJSON(w, status, resp)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, client.ErrRateLimited):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func buildLinks(view directory.View, st directory.State) *pageLinks {
	pv := view.Pagination
	link := func(page int) string {
		q := url.Values{}
		q.Set("hash", view.Hash.String())
		q.Set("page", strconv.Itoa(page))
		for _, tag := range st.Filters.Canonical() {
			q.Add("tags", tag)
		}
		if st.ShowAllFilters {
			q.Set("expanded", "1")
		}
		return "/profiles?" + q.Encode()
	}

	links := &pageLinks{Pages: make([]pageLink, 0, len(pv.Pages))}
	if pv.CurrentPage != 1 {
		links.First = link(1)
	}
	if pv.HasPrevious() {
		links.Prev = link(pv.PreviousPage())
	}
	if pv.HasNext() {
		links.Next = link(pv.NextPage())
	}
	if pv.CurrentPage != pv.TotalPages {
		links.Last = link(pv.TotalPages)
	}
	for _, p := range windowPages(pv) {
		links.Pages = append(links.Pages, pageLink{Page: p, URL: link(p), Current: p == pv.CurrentPage})
	}
	return links
}

// windowPages is the window with the first and last page always present.
func windowPages(pv pagination.View) []int {
	pages := []int{1}
	pages = append(pages, pv.Inner()...)
	if pv.TotalPages > 1 {
		pages = append(pages, pv.TotalPages)
	}
	return pages
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// withRequestID tags each request with an id, taken from X-Request-Id or
// generated, and logs its outcome.
func withRequestID(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(client.RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(client.RequestIDHeader, id)

		ctx := logging.WithRequestID(r.Context(), logger, id)
		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()

		next.ServeHTTP(sw, r.WithContext(ctx))

		zerolog.Ctx(ctx).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Int("size", sw.size).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
