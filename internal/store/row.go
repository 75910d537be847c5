package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/eliksir-bar/eliksir-analytics/internal/pageview"
)

// pageViewRow is the internal type representing a database row.
type pageViewRow struct {
	ID               int64
	Path             string
	VisitorID        string
	UserAgent        sql.NullString
	Referrer         sql.NullString
	ScreenResolution sql.NullString
	TimeOnPage       int64
	CreatedAt        string
}

const pageViewColumns = `id, path, visitor_id, user_agent, referrer, screen_resolution, time_on_page, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func (r *pageViewRow) scan(sc scanner) error {
	return sc.Scan(
		&r.ID, &r.Path, &r.VisitorID, &r.UserAgent,
		&r.Referrer, &r.ScreenResolution, &r.TimeOnPage, &r.CreatedAt,
	)
}

// toPageView converts a database row to a PageView.
func (r *pageViewRow) toPageView() (*pageview.PageView, error) {
	createdAt, err := time.Parse(TimeFormat, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", r.CreatedAt, err)
	}

	p := &pageview.PageView{
		ID:         r.ID,
		Path:       r.Path,
		VisitorID:  r.VisitorID,
		TimeOnPage: r.TimeOnPage,
		CreatedAt:  createdAt,
	}
	p.UserAgent = fromNull(r.UserAgent)
	p.Referrer = fromNull(r.Referrer)
	p.ScreenResolution = fromNull(r.ScreenResolution)
	return p, nil
}

// pageViewToRow converts a PageView to a database row.
func pageViewToRow(p *pageview.PageView) *pageViewRow {
	return &pageViewRow{
		ID:               p.ID,
		Path:             p.Path,
		VisitorID:        p.VisitorID,
		UserAgent:        toNull(p.UserAgent),
		Referrer:         toNull(p.Referrer),
		ScreenResolution: toNull(p.ScreenResolution),
		TimeOnPage:       p.TimeOnPage,
		CreatedAt:        p.CreatedAt.UTC().Format(TimeFormat),
	}
}

func toNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
