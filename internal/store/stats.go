package store

import (
	"context"
	"fmt"
	"math"
	"time"
)

// SummaryStats aggregates page views created in [since, until).
// TotalViews counts every stored page view regardless of the window.
func (s *Store) SummaryStats(ctx context.Context, since, until time.Time) (*SummaryStats, error) {
	stats := &SummaryStats{
		PopularPages:   []CountStat{},
		TrafficSources: []CountStat{},
		UserAgents:     []CountStat{},
	}

	sinceStr := since.UTC().Format(TimeFormat)
	untilStr := until.UTC().Format(TimeFormat)

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM page_views`).Scan(&stats.TotalViews); err != nil {
		return nil, fmt.Errorf("count total views: %w", err)
	}

	var avg float64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT visitor_id),
			COALESCE(AVG(time_on_page), 0)
		FROM page_views
		WHERE created_at >= ? AND created_at < ?
	`, sinceStr, untilStr).Scan(&stats.RecentViews, &stats.UniqueVisitors, &avg)
	if err != nil {
		return nil, fmt.Errorf("aggregate views: %w", err)
	}
	stats.AverageTimeOnPage = int64(math.Round(avg))

	var single int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT visitor_id FROM page_views
			WHERE created_at >= ? AND created_at < ?
			GROUP BY visitor_id
			HAVING COUNT(*) = 1
		)
	`, sinceStr, untilStr).Scan(&single)
	if err != nil {
		return nil, fmt.Errorf("count single-view visitors: %w", err)
	}
	stats.BounceRate = BounceRate(single, stats.UniqueVisitors)

	if stats.PopularPages, err = s.topValues(ctx, "path", sinceStr, untilStr, TopPagesLimit); err != nil {
		return nil, err
	}
	if stats.TrafficSources, err = s.topValues(ctx, "referrer", sinceStr, untilStr, TopReferrersLimit); err != nil {
		return nil, err
	}
	if stats.UserAgents, err = s.topValues(ctx, "user_agent", sinceStr, untilStr, TopUserAgentsLimit); err != nil {
		return nil, err
	}

	last, err := s.LastPageViewTime(ctx)
	if err != nil {
		return nil, err
	}
	if !last.IsZero() {
		stats.LastViewAt = &last
	}

	return stats, nil
}

// topValues returns the most frequent non-empty values of column in the window.
// column is always a constant from this package.
func (s *Store) topValues(ctx context.Context, column, since, until string, limit int) ([]CountStat, error) {
	query := fmt.Sprintf(`
		SELECT %[1]s, COUNT(*) AS c FROM page_views
		WHERE created_at >= ? AND created_at < ?
			AND %[1]s IS NOT NULL AND %[1]s != ''
		GROUP BY %[1]s
		ORDER BY c DESC, %[1]s ASC
		LIMIT ?
	`, column)

	rows, err := s.db.QueryContext(ctx, query, since, until, limit)
	if err != nil {
		return nil, fmt.Errorf("top %s: %w", column, err)
	}
	defer rows.Close()

	out := []CountStat{}
	for rows.Next() {
		var cs CountStat
		if err := rows.Scan(&cs.Value, &cs.Count); err != nil {
			return nil, fmt.Errorf("scan top %s: %w", column, err)
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
