package store

import (
	"time"

	"github.com/eliksir-bar/eliksir-analytics/internal/pageview"
)

const (
	// DefaultLimit is the page size used when QueryFilter.Limit is unset.
	DefaultLimit = 100
	// MaxLimit caps QueryFilter.Limit.
	MaxLimit = 500
)

// QueryOrder selects the sort direction over (created_at, id).
type QueryOrder int

const (
	// OrderDesc returns newest page views first.
	OrderDesc QueryOrder = iota
	// OrderAsc returns oldest page views first.
	OrderAsc
)

// ParseOrder maps "asc"/"desc" to a QueryOrder. Empty means descending.
func ParseOrder(s string) (QueryOrder, bool) {
	switch s {
	case "", "desc":
		return OrderDesc, true
	case "asc":
		return OrderAsc, true
	}
	return OrderDesc, false
}

// QueryFilter contains filter options for querying page views.
// Since is inclusive, Until is exclusive.
type QueryFilter struct {
	Path      *string
	VisitorID *string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Cursor    *string
	Order     QueryOrder
}

// EffectiveLimit clamps Limit to [1, MaxLimit], substituting DefaultLimit for zero.
func (f QueryFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultLimit
	case f.Limit > MaxLimit:
		return MaxLimit
	}
	return f.Limit
}

// QueryResult contains the result of a query.
type QueryResult struct {
	Items      []pageview.PageView `json:"items"`
	NextCursor *string             `json:"nextCursor"`
}

// CountStat is a value with its occurrence count.
type CountStat struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// SummaryStats holds aggregated page view statistics for a time window.
type SummaryStats struct {
	TotalViews        int64       `json:"totalViews"`
	RecentViews       int64       `json:"recentViews"`
	UniqueVisitors    int64       `json:"uniqueVisitors"`
	AverageTimeOnPage int64       `json:"averageTimeOnPage"`
	BounceRate        float64     `json:"bounceRate"`
	PopularPages      []CountStat `json:"popularPages"`
	TrafficSources    []CountStat `json:"trafficSources"`
	UserAgents        []CountStat `json:"userAgents"`
	LastViewAt        *time.Time  `json:"lastViewAt"`
}

// Limits for SummaryStats lists.
const (
	TopPagesLimit      = 10
	TopReferrersLimit  = 10
	TopUserAgentsLimit = 50
)

// BounceRate returns the percentage of visitors with exactly one view,
// rounded to one decimal place.
func BounceRate(singleViewVisitors, visitors int64) float64 {
	if visitors == 0 {
		return 0
	}
	pct := float64(singleViewVisitors) * 1000 / float64(visitors)
	return float64(int64(pct+0.5)) / 10
}
