// Package postgres implements the page view and user storage on PostgreSQL.
// It mirrors the SQLite store's contract for deployments that already run
// a PostgreSQL server.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eliksir-bar/eliksir-analytics/internal/auth"
	"github.com/eliksir-bar/eliksir-analytics/internal/pageview"
	"github.com/eliksir-bar/eliksir-analytics/internal/store"
)

// insertLockKey serializes page view inserts so created_at order matches id order.
const insertLockKey = 0x656c696b // "elik"

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS page_views (
	id                BIGSERIAL PRIMARY KEY,
	path              TEXT NOT NULL,
	visitor_id        TEXT NOT NULL,
	user_agent        TEXT,
	referrer          TEXT,
	screen_resolution TEXT,
	time_on_page      BIGINT NOT NULL DEFAULT 0 CHECK (time_on_page >= 0),
	created_at        TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);

CREATE INDEX IF NOT EXISTS idx_page_views_path ON page_views(path);
CREATE INDEX IF NOT EXISTS idx_page_views_created_at ON page_views(created_at);
CREATE INDEX IF NOT EXISTS idx_page_views_visitor_id ON page_views(visitor_id);

CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT 'customer',
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
	last_login_at TIMESTAMPTZ
);
`

// Store is a PostgreSQL-backed page view store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and creates the schema if needed.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{pool: pool}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping verifies the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertPageView appends a page view. On success, p.ID and p.CreatedAt are set.
func (s *Store) InsertPageView(ctx context.Context, p *pageview.PageView) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, insertLockKey); err != nil {
		return 0, fmt.Errorf("lock: %w", err)
	}

	var (
		id        int64
		createdAt time.Time
	)
	err = tx.QueryRow(ctx, `
		INSERT INTO page_views
		(path, visitor_id, user_agent, referrer, screen_resolution, time_on_page, created_at)
		VALUES ($1, $2, $3, $4, $5, $6,
			GREATEST(clock_timestamp(), COALESCE((SELECT MAX(created_at) FROM page_views), '-infinity')))
		RETURNING id, created_at
	`, p.Path, p.VisitorID, p.UserAgent, p.Referrer, p.ScreenResolution, p.TimeOnPage).
		Scan(&id, &createdAt)
	if err != nil {
		return 0, fmt.Errorf("insert page view: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	p.ID = id
	p.CreatedAt = createdAt.UTC()
	return id, nil
}

type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a))
}

func whereClause(f store.QueryFilter, a *args) string {
	var sb strings.Builder
	sb.WriteString(" WHERE TRUE")
	if f.Path != nil {
		sb.WriteString(" AND path = " + a.add(*f.Path))
	}
	if f.VisitorID != nil {
		sb.WriteString(" AND visitor_id = " + a.add(*f.VisitorID))
	}
	if f.Since != nil {
		sb.WriteString(" AND created_at >= " + a.add(f.Since.UTC()))
	}
	if f.Until != nil {
		sb.WriteString(" AND created_at < " + a.add(f.Until.UTC()))
	}
	return sb.String()
}

const pageViewColumns = `id, path, visitor_id, user_agent, referrer, screen_resolution, time_on_page, created_at`

func scanPageView(row pgx.Row) (pageview.PageView, error) {
	var p pageview.PageView
	err := row.Scan(&p.ID, &p.Path, &p.VisitorID, &p.UserAgent, &p.Referrer,
		&p.ScreenResolution, &p.TimeOnPage, &p.CreatedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, err
}

// QueryPageViews lists page views with optional filters and cursor-based pagination.
func (s *Store) QueryPageViews(ctx context.Context, f store.QueryFilter) (store.QueryResult, error) {
	limit := f.EffectiveLimit()

	var a args
	var sb strings.Builder
	sb.WriteString("SELECT " + pageViewColumns + " FROM page_views")
	sb.WriteString(whereClause(f, &a))

	if f.Cursor != nil && *f.Cursor != "" {
		cursorTime, cursorID, err := store.DecodeCursor(*f.Cursor)
		if err != nil {
			return store.QueryResult{}, fmt.Errorf("decode cursor: %w", err)
		}
		op := ">"
		if f.Order == store.OrderDesc {
			op = "<"
		}
		fmt.Fprintf(&sb, " AND (created_at, id) %s (%s, %s)", op, a.add(cursorTime.UTC()), a.add(cursorID))
	}

	if f.Order == store.OrderAsc {
		sb.WriteString(" ORDER BY created_at ASC, id ASC")
	} else {
		sb.WriteString(" ORDER BY created_at DESC, id DESC")
	}
	sb.WriteString(" LIMIT " + a.add(limit+1))

	rows, err := s.pool.Query(ctx, sb.String(), a...)
	if err != nil {
		return store.QueryResult{}, fmt.Errorf("query page views: %w", err)
	}
	defer rows.Close()

	items := make([]pageview.PageView, 0, limit+1)
	for rows.Next() {
		p, err := scanPageView(rows)
		if err != nil {
			return store.QueryResult{}, fmt.Errorf("scan page view: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return store.QueryResult{}, fmt.Errorf("rows error: %w", err)
	}

	var nextCursor *string
	if len(items) > limit {
		last := items[limit-1]
		items = items[:limit]
		c := store.EncodeCursor(last.CreatedAt, last.ID)
		nextCursor = &c
	}
	return store.QueryResult{Items: items, NextCursor: nextCursor}, nil
}

// CountPageViews returns the number of page views matching f. Paging fields are ignored.
func (s *Store) CountPageViews(ctx context.Context, f store.QueryFilter) (int64, error) {
	var a args
	where := whereClause(f, &a)

	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM page_views"+where, a...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count page views: %w", err)
	}
	return n, nil
}

// GetPageView returns a single page view by ID.
func (s *Store) GetPageView(ctx context.Context, id int64) (*pageview.PageView, error) {
	p, err := scanPageView(s.pool.QueryRow(ctx,
		"SELECT "+pageViewColumns+" FROM page_views WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get page view: %w", err)
	}
	return &p, nil
}

// LastPageViewTime returns the created_at of the most recent page view, or zero time.
func (s *Store) LastPageViewTime(ctx context.Context) (time.Time, error) {
	var t *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT MAX(created_at) FROM page_views`).Scan(&t); err != nil {
		return time.Time{}, fmt.Errorf("get last page view time: %w", err)
	}
	if t == nil {
		return time.Time{}, nil
	}
	return t.UTC(), nil
}

// SummaryStats aggregates page views created in [since, until).
func (s *Store) SummaryStats(ctx context.Context, since, until time.Time) (*store.SummaryStats, error) {
	stats := &store.SummaryStats{}
	since, until = since.UTC(), until.UTC()

	var (
		avg    float64
		single int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM page_views),
			COUNT(*),
			COUNT(DISTINCT visitor_id),
			COALESCE(ROUND(AVG(time_on_page)), 0)::float8,
			(SELECT COUNT(*) FROM (
				SELECT visitor_id FROM page_views
				WHERE created_at >= $1 AND created_at < $2
				GROUP BY visitor_id HAVING COUNT(*) = 1) v)
		FROM page_views
		WHERE created_at >= $1 AND created_at < $2
	`, since, until).Scan(&stats.TotalViews, &stats.RecentViews, &stats.UniqueVisitors, &avg, &single)
	if err != nil {
		return nil, fmt.Errorf("aggregate views: %w", err)
	}
	stats.AverageTimeOnPage = int64(avg)
	stats.BounceRate = store.BounceRate(single, stats.UniqueVisitors)

	if stats.PopularPages, err = s.topValues(ctx, "path", since, until, store.TopPagesLimit); err != nil {
		return nil, err
	}
	if stats.TrafficSources, err = s.topValues(ctx, "referrer", since, until, store.TopReferrersLimit); err != nil {
		return nil, err
	}
	if stats.UserAgents, err = s.topValues(ctx, "user_agent", since, until, store.TopUserAgentsLimit); err != nil {
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

func (s *Store) topValues(ctx context.Context, column string, since, until time.Time, limit int) ([]store.CountStat, error) {
	query := fmt.Sprintf(`
		SELECT %[1]s, COUNT(*) AS c FROM page_views
		WHERE created_at >= $1 AND created_at < $2
			AND %[1]s IS NOT NULL AND %[1]s <> ''
		GROUP BY %[1]s
		ORDER BY c DESC, %[1]s ASC
		LIMIT $3
	`, column)

	rows, err := s.pool.Query(ctx, query, since, until, limit)
	if err != nil {
		return nil, fmt.Errorf("top %s: %w", column, err)
	}
	defer rows.Close()

	out := []store.CountStat{}
	for rows.Next() {
		var cs store.CountStat
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

const userColumns = `id, email, name, role, password_hash, created_at, last_login_at`

// CreateUser inserts a user. On success, u.ID and u.CreatedAt are set.
func (s *Store) CreateUser(ctx context.Context, u *auth.User) (int64, error) {
	u.Email = store.NormalizeEmail(u.Email)
	if u.Email == "" {
		return 0, errors.New("create user: email is required")
	}
	if u.Role == "" {
		u.Role = auth.RoleCustomer
	}
	if !u.Role.Valid() {
		return 0, fmt.Errorf("create user: unknown role %q", u.Role)
	}
	if u.PasswordHash == "" {
		return 0, errors.New("create user: password hash is required")
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, role, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, u.Email, u.Name, string(u.Role), u.PasswordHash).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, store.ErrDuplicateEmail
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u.ID, nil
}

// GetUserByEmail looks up a user by normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.getUser(ctx, "email = $1", store.NormalizeEmail(email))
}

// GetUserByID looks up a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*auth.User, error) {
	return s.getUser(ctx, "id = $1", id)
}

func (s *Store) getUser(ctx context.Context, cond string, arg any) (*auth.User, error) {
	var (
		u    auth.User
		role string
	)
	err := s.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE "+cond, arg).
		Scan(&u.ID, &u.Email, &u.Name, &role, &u.PasswordHash, &u.CreatedAt, &u.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = auth.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	if u.LastLoginAt != nil {
		t := u.LastLoginAt.UTC()
		u.LastLoginAt = &t
	}
	return &u, nil
}

// CountUsers returns the number of registered users.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// TouchLogin records a successful login.
func (s *Store) TouchLogin(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET last_login_at = clock_timestamp(), updated_at = clock_timestamp() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}
	return nil
}
