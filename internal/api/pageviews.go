package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eliksir-bar/eliksir-analytics/internal/pageview"
	"github.com/eliksir-bar/eliksir-analytics/internal/store"
)

// pageViewsResponse represents the response for the page view listing.
type pageViewsResponse struct {
	Items      []pageview.PageView `json:"items"`
	NextCursor *string             `json:"nextCursor,omitempty"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

// handlePageViews handles GET /api/v1/pageviews
func (s *Server) handlePageViews(w http.ResponseWriter, r *http.Request) {
	filter, err := parsePageViewFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}

	result, err := s.pageViews.Query(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := pageViewsResponse{
		Items:      result.Items,
		NextCursor: result.NextCursor,
	}
	// Ensure Items is an empty array, not null, for JSON serialization
	if resp.Items == nil {
		resp.Items = []pageview.PageView{}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handlePageViewsCount handles GET /api/v1/pageviews/count
func (s *Server) handlePageViewsCount(w http.ResponseWriter, r *http.Request) {
	filter, err := parsePageViewFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}

	n, err := s.pageViews.Count(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, countResponse{Count: n})
}

// handlePageView handles GET /api/v1/pageviews/{id}
func (s *Server) handlePageView(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, r, http.StatusBadRequest, "invalid id", nil)
		return
	}

	pv, err := s.pageViews.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, pv)
}

// parsePageViewFilter parses query parameters into a QueryFilter.
func parsePageViewFilter(r *http.Request) (store.QueryFilter, error) {
	var filter store.QueryFilter
	q := r.URL.Query()

	if p := q.Get("path"); p != "" {
		filter.Path = &p
	}
	if v := q.Get("visitor_id"); v != "" {
		filter.VisitorID = &v
	}

	// Parse 'since' (RFC3339, inclusive)
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return filter, fmt.Errorf("invalid since: %s", s)
		}
		filter.Since = &t
	}

	// Parse 'until' (RFC3339, exclusive)
	if u := q.Get("until"); u != "" {
		t, err := time.Parse(time.RFC3339, u)
		if err != nil {
			return filter, fmt.Errorf("invalid until: %s", u)
		}
		filter.Until = &t
	}

	if filter.Since != nil && filter.Until != nil && !filter.Since.Before(*filter.Until) {
		return filter, fmt.Errorf("since must be before until")
	}

	// Parse 'limit'
	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 1 {
			return filter, fmt.Errorf("invalid limit: %s", l)
		}
		filter.Limit = limit
	}

	// Parse 'cursor'
	if c := q.Get("cursor"); c != "" {
		filter.Cursor = &c
	}

	order, ok := store.ParseOrder(q.Get("order"))
	if !ok {
		return filter, fmt.Errorf("invalid order: %s", q.Get("order"))
	}
	filter.Order = order

	return filter, nil
}
