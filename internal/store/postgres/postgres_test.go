package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/eliksir-bar/eliksir-analytics/internal/auth"
	"github.com/eliksir-bar/eliksir-analytics/internal/pageview"
	"github.com/eliksir-bar/eliksir-analytics/internal/store"
)

// openTestStore connects to ELIKSIR_TEST_POSTGRES_DSN and empties the tables.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("ELIKSIR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ELIKSIR_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if _, err := s.pool.Exec(ctx, `TRUNCATE page_views, users RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func TestPostgres_RoundTripAndFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	quiz := &pageview.PageView{Path: "/quiz", VisitorID: "v1", TimeOnPage: 42}
	if _, err := s.InsertPageView(ctx, quiz); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertPageView(ctx, &pageview.PageView{Path: "/", VisitorID: "v2"}); err != nil {
		t.Fatal(err)
	}

	path := "/quiz"
	res, err := s.QueryPageViews(ctx, store.QueryFilter{Path: &path})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 1 || res.Items[0].TimeOnPage != 42 || res.Items[0].UserAgent != nil {
		t.Fatalf("items = %+v", res.Items)
	}

	got, err := s.GetPageView(ctx, quiz.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.VisitorID != "v1" {
		t.Errorf("VisitorID = %q", got.VisitorID)
	}
	if _, err := s.GetPageView(ctx, 1<<40); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	_, err = s.InsertPageView(ctx, &pageview.PageView{VisitorID: "v3"})
	if !errors.Is(err, pageview.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
	n, err := s.CountPageViews(ctx, store.QueryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestPostgres_ConcurrentInsertOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const m = 30
	var wg sync.WaitGroup
	errs := make(chan error, m)
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.InsertPageView(ctx, &pageview.PageView{Path: "/", VisitorID: "v"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	res, err := s.QueryPageViews(ctx, store.QueryFilter{Limit: m, Order: store.OrderAsc})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != m {
		t.Fatalf("len = %d, want %d", len(res.Items), m)
	}
	for i := 1; i < len(res.Items); i++ {
		prev, cur := res.Items[i-1], res.Items[i]
		if cur.ID <= prev.ID || cur.CreatedAt.Before(prev.CreatedAt) {
			t.Errorf("ordering broken at %d: %+v then %+v", i, prev, cur)
		}
	}
}

func TestPostgres_Users(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u := &auth.User{Email: "Admin@Example.com", Role: auth.RoleAdmin, PasswordHash: "h"}
	if _, err := s.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateUser(ctx, &auth.User{Email: "admin@example.com", PasswordHash: "h"}); !errors.Is(err, store.ErrDuplicateEmail) {
		t.Errorf("err = %v, want ErrDuplicateEmail", err)
	}

	got, err := s.GetUserByEmail(ctx, "ADMIN@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != u.ID || got.Role != auth.RoleAdmin {
		t.Errorf("got %+v", got)
	}

	if err := s.TouchLogin(ctx, u.ID); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastLoginAt == nil || time.Since(*got.LastLoginAt) > time.Minute {
		t.Errorf("LastLoginAt = %v", got.LastLoginAt)
	}
}

func TestPostgres_SummaryStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, v := range []string{"a", "a", "b"} {
		if _, err := s.InsertPageView(ctx, &pageview.PageView{Path: "/", VisitorID: v, TimeOnPage: 3}); err != nil {
			t.Fatal(err)
		}
	}
	now := time.Now()
	stats, err := s.SummaryStats(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if stats.RecentViews != 3 || stats.UniqueVisitors != 2 || stats.AverageTimeOnPage != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.BounceRate != 50 {
		t.Errorf("BounceRate = %v, want 50", stats.BounceRate)
	}
}
