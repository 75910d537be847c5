package app

import (
	"context"

	"github.com/eliksir-bar/eliksir-analytics/internal/pageview"
	"github.com/eliksir-bar/eliksir-analytics/internal/store"
)

// PageViewsUsecase defines the page view query use case.
type PageViewsUsecase interface {
	Query(ctx context.Context, filter store.QueryFilter) (store.QueryResult, error)
	Count(ctx context.Context, filter store.QueryFilter) (int64, error)
	Get(ctx context.Context, id int64) (*pageview.PageView, error)
}

// PageViewStore defines store operations needed by PageViewsService.
// Implemented by *store.Store and *postgres.Store.
type PageViewStore interface {
	QueryPageViews(ctx context.Context, filter store.QueryFilter) (store.QueryResult, error)
	CountPageViews(ctx context.Context, filter store.QueryFilter) (int64, error)
	GetPageView(ctx context.Context, id int64) (*pageview.PageView, error)
}

// PageViewsService implements PageViewsUsecase.
type PageViewsService struct {
	Store PageViewStore
}

// Query lists page views with the given filter.
func (s *PageViewsService) Query(ctx context.Context, filter store.QueryFilter) (store.QueryResult, error) {
	return s.Store.QueryPageViews(ctx, filter)
}

// Count counts page views matching the filter.
func (s *PageViewsService) Count(ctx context.Context, filter store.QueryFilter) (int64, error) {
	return s.Store.CountPageViews(ctx, filter)
}

// Get returns one page view.
func (s *PageViewsService) Get(ctx context.Context, id int64) (*pageview.PageView, error) {
	return s.Store.GetPageView(ctx, id)
}
