package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eliksir-bar/eliksir-analytics/internal/pageview"
)

// InsertPageView appends a page view and returns its assigned ID.
// The store assigns CreatedAt; any value set by the caller is ignored.
// On success, p.ID and p.CreatedAt are set.
func (s *Store) InsertPageView(ctx context.Context, p *pageview.PageView) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	createdAt := s.now().UTC()
	if createdAt.Before(s.lastCreated) {
		createdAt = s.lastCreated
	}

	const query = `
	INSERT INTO page_views
	(path, visitor_id, user_agent, referrer, screen_resolution, time_on_page, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	row := pageViewToRow(p)
	result, err := s.db.ExecContext(ctx, query,
		row.Path,
		row.VisitorID,
		row.UserAgent,
		row.Referrer,
		row.ScreenResolution,
		row.TimeOnPage,
		createdAt.Format(TimeFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("insert page view: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	s.lastCreated = createdAt
	p.ID = id
	p.CreatedAt = createdAt
	return id, nil
}

// whereClause renders the non-paging filters of f.
func whereClause(f QueryFilter) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(" WHERE 1=1")

	if f.Path != nil {
		sb.WriteString(" AND path = ?")
		args = append(args, *f.Path)
	}
	if f.VisitorID != nil {
		sb.WriteString(" AND visitor_id = ?")
		args = append(args, *f.VisitorID)
	}
	if f.Since != nil {
		sb.WriteString(" AND created_at >= ?")
		args = append(args, f.Since.UTC().Format(TimeFormat))
	}
	if f.Until != nil {
		sb.WriteString(" AND created_at < ?")
		args = append(args, f.Until.UTC().Format(TimeFormat))
	}
	return sb.String(), args
}

// QueryPageViews lists page views with optional filters and cursor-based pagination.
func (s *Store) QueryPageViews(ctx context.Context, f QueryFilter) (QueryResult, error) {
	limit := f.EffectiveLimit()

	where, args := whereClause(f)

	var sb strings.Builder
	sb.WriteString("SELECT " + pageViewColumns + " FROM page_views")
	sb.WriteString(where)

	// Composite cursor: created_at|id
	if f.Cursor != nil && *f.Cursor != "" {
		cursorTime, cursorID, err := DecodeCursor(*f.Cursor)
		if err != nil {
			return QueryResult{}, fmt.Errorf("decode cursor: %w", err)
		}
		op := ">"
		if f.Order == OrderDesc {
			op = "<"
		}
		fmt.Fprintf(&sb, " AND (created_at %s ? OR (created_at = ? AND id %s ?))", op, op)
		cursorTimeStr := cursorTime.UTC().Format(TimeFormat)
		args = append(args, cursorTimeStr, cursorTimeStr, cursorID)
	}

	if f.Order == OrderAsc {
		sb.WriteString(" ORDER BY created_at ASC, id ASC")
	} else {
		sb.WriteString(" ORDER BY created_at DESC, id DESC")
	}
	sb.WriteString(" LIMIT ?")
	args = append(args, limit+1) // fetch one extra to detect next page

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return QueryResult{}, fmt.Errorf("query page views: %w", err)
	}
	defer rows.Close()

	items := make([]pageview.PageView, 0, limit+1)
	for rows.Next() {
		var r pageViewRow
		if err := r.scan(rows); err != nil {
			return QueryResult{}, fmt.Errorf("scan page view: %w", err)
		}
		p, err := r.toPageView()
		if err != nil {
			return QueryResult{}, err
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, fmt.Errorf("rows error: %w", err)
	}

	var nextCursor *string
	if len(items) > limit {
		last := items[limit-1]
		items = items[:limit]
		c := EncodeCursor(last.CreatedAt, last.ID)
		nextCursor = &c
	}

	return QueryResult{Items: items, NextCursor: nextCursor}, nil
}

// CountPageViews returns the number of page views matching f. Paging fields are ignored.
func (s *Store) CountPageViews(ctx context.Context, f QueryFilter) (int64, error) {
	where, args := whereClause(f)

	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM page_views"+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count page views: %w", err)
	}
	return count, nil
}

// GetPageView returns a single page view by ID.
func (s *Store) GetPageView(ctx context.Context, id int64) (*pageview.PageView, error) {
	var r pageViewRow
	err := r.scan(s.db.QueryRowContext(ctx,
		"SELECT "+pageViewColumns+" FROM page_views WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get page view: %w", err)
	}
	return r.toPageView()
}

// LastPageViewTime returns the created_at of the most recent page view.
// Returns zero time if no page views exist.
func (s *Store) LastPageViewTime(ctx context.Context) (time.Time, error) {
	const query = `SELECT created_at FROM page_views ORDER BY created_at DESC, id DESC LIMIT 1`

	var ts string
	err := s.db.QueryRowContext(ctx, query).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get last page view time: %w", err)
	}

	t, err := time.Parse(TimeFormat, ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	return t, nil
}
