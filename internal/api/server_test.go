package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eliksir-bar/eliksir-analytics/internal/app"
	"github.com/eliksir-bar/eliksir-analytics/internal/auth"
	"github.com/eliksir-bar/eliksir-analytics/internal/ingest"
	"github.com/eliksir-bar/eliksir-analytics/internal/pageview"
	"github.com/eliksir-bar/eliksir-analytics/internal/store"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// MockTracker implements Tracker for testing.
type MockTracker struct {
	TrackFunc func(ctx context.Context, p ingest.Payload) (ingest.Ack, error)
	last      ingest.Payload
}

func (m *MockTracker) Track(ctx context.Context, p ingest.Payload) (ingest.Ack, error) {
	m.last = p
	if m.TrackFunc != nil {
		return m.TrackFunc(ctx, p)
	}
	return ingest.Ack{ID: 1, CreatedAt: time.Now().UTC()}, nil
}

// MockPageViewsService implements app.PageViewsUsecase for testing.
type MockPageViewsService struct {
	QueryFunc func(ctx context.Context, filter store.QueryFilter) (store.QueryResult, error)
	CountFunc func(ctx context.Context, filter store.QueryFilter) (int64, error)
	GetFunc   func(ctx context.Context, id int64) (*pageview.PageView, error)
}

func (m *MockPageViewsService) Query(ctx context.Context, filter store.QueryFilter) (store.QueryResult, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, filter)
	}
	return store.QueryResult{}, nil
}

func (m *MockPageViewsService) Count(ctx context.Context, filter store.QueryFilter) (int64, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx, filter)
	}
	return 0, nil
}

func (m *MockPageViewsService) Get(ctx context.Context, id int64) (*pageview.PageView, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, store.ErrNotFound
}

// MockStatsService implements app.StatsUsecase for testing.
type MockStatsService struct {
	err error
}

func (m *MockStatsService) Summary(ctx context.Context) (*app.StatsResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &app.StatsResult{
		SummaryStats: store.SummaryStats{TotalViews: 12, RecentViews: 3},
		WindowDays:   30,
	}, nil
}

// MockAuthService implements app.AuthUsecase for testing.
type MockAuthService struct {
	users  map[int64]*auth.User
	issuer *auth.Issuer
}

func (m *MockAuthService) Login(ctx context.Context, email, password string) (*app.LoginResult, error) {
	for _, u := range m.users {
		if u.Email == email && password == "correct-horse" {
			token, exp, err := m.issuer.Issue(u)
			if err != nil {
				return nil, err
			}
			return &app.LoginResult{TokenResult: app.TokenResult{Token: token, ExpiresAt: exp}, User: u}, nil
		}
	}
	return nil, app.ErrInvalidCredentials
}

func (m *MockAuthService) Me(ctx context.Context, userID int64) (*auth.User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return u, nil
}

func (m *MockAuthService) StreamToken(ctx context.Context, userID int64) (*app.TokenResult, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	token, exp, err := m.issuer.IssueStreamToken(u)
	if err != nil {
		return nil, err
	}
	return &app.TokenResult{Token: token, ExpiresAt: exp}, nil
}

func (m *MockAuthService) CreateUser(ctx context.Context, req app.CreateUserRequest) (*auth.User, error) {
	return nil, errors.New("not implemented")
}

type MockConfigService struct{}

func (MockConfigService) GetConfig(ctx context.Context) app.ConfigResponse {
	return app.ConfigResponse{Version: "test"}
}

type testEnv struct {
	server    *Server
	issuer    *auth.Issuer
	authSvc   *MockAuthService
	tracker   *MockTracker
	pageViews *MockPageViewsService
}

var testUsers = map[int64]*auth.User{
	1: {ID: 1, Email: "admin@eliksir-bar.pl", Role: auth.RoleAdmin},
	2: {ID: 2, Email: "editor@eliksir-bar.pl", Role: auth.RoleEditor},
	3: {ID: 3, Email: "client@eliksir-bar.pl", Role: auth.RoleCustomer},
}

func newTestEnv(t *testing.T, opts ...ServerOption) *testEnv {
	t.Helper()
	iss, err := auth.NewIssuer(testSecret, "eliksir")
	if err != nil {
		t.Fatal(err)
	}
	env := &testEnv{
		issuer:    iss,
		authSvc:   &MockAuthService{users: testUsers, issuer: iss},
		tracker:   &MockTracker{},
		pageViews: &MockPageViewsService{},
	}
	all := append([]ServerOption{
		WithTracker(env.tracker),
		WithPageViewsUsecase(env.pageViews),
		WithStatsUsecase(&MockStatsService{}),
		WithConfigUsecase(MockConfigService{}),
		WithAuth(env.authSvc, iss),
	}, opts...)
	env.server = NewServer(":8080", app.HealthService{Version: "test-version"}, all...)
	return env
}

func (e *testEnv) token(t *testing.T, userID int64) string {
	t.Helper()
	tok, _, err := e.issuer.Issue(testUsers[userID])
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(t *testing.T, target string, userID int64) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}
	return e.do(req)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

// --- Health ---

func TestHealthEndpoint(t *testing.T) {
	server := NewServer(":8080", app.HealthService{Version: "test-version"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var resp app.HealthResult
	decodeBody(t, rec, &resp)

	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", resp.Status)
	}
	if resp.Version != "test-version" {
		t.Errorf("expected version 'test-version', got '%s'", resp.Version)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("disk gone") }

func TestHealthEndpoint_Degraded(t *testing.T) {
	server := NewServer(":8080", app.HealthService{Version: "v", Store: failingPinger{}})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
}

func TestHealthEndpointMethodNotAllowed(t *testing.T) {
	server := NewServer(":8080", app.HealthService{Version: "test-version"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/health", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get(t, "/api/v1/nope", 0)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

// --- Track ---

func postTrack(env *testEnv, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "TestBrowser/1.0")
	return env.do(req)
}

func TestTrackEndpoint_Created(t *testing.T) {
	env := newTestEnv(t)
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	env.tracker.TrackFunc = func(ctx context.Context, p ingest.Payload) (ingest.Ack, error) {
		return ingest.Ack{ID: 77, CreatedAt: created}, nil
	}

	for _, path := range []string{"/api/v1/track", "/api/seo/track"} {
		rec := postTrack(env, path, `{"path":"/quiz","visitorId":"v1","timeOnPage":42}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("%s: expected 201, got %d: %s", path, rec.Code, rec.Body.String())
		}

		var resp trackResponse
		decodeBody(t, rec, &resp)
		if !resp.Success || resp.ID != 77 || !resp.CreatedAt.Equal(created) {
			t.Errorf("%s: response = %+v", path, resp)
		}
	}

	if env.tracker.last.TimeOnPage != 42 {
		t.Errorf("TimeOnPage = %d, want 42", env.tracker.last.TimeOnPage)
	}
	if ua := env.tracker.last.UserAgent; ua == nil || *ua != "TestBrowser/1.0" {
		t.Errorf("UserAgent = %v, want header fallback", ua)
	}
}

func TestTrackEndpoint_PayloadUserAgentWins(t *testing.T) {
	env := newTestEnv(t)
	rec := postTrack(env, "/api/v1/track", `{"path":"/","visitorId":"v1","userAgent":"FromPayload"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if ua := env.tracker.last.UserAgent; ua == nil || *ua != "FromPayload" {
		t.Errorf("UserAgent = %v", ua)
	}
}

func TestTrackEndpoint_NoHeaderFallback(t *testing.T) {
	env := newTestEnv(t, WithTrackOptions(TrackOptions{UserAgentFromHeader: false}))
	rec := postTrack(env, "/api/v1/track", `{"path":"/","visitorId":"v1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if env.tracker.last.UserAgent != nil {
		t.Errorf("UserAgent = %q, want nil", *env.tracker.last.UserAgent)
	}
}

func TestTrackEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		trackErr error
		want     int
	}{
		{"malformed json", `{"path":`, nil, http.StatusBadRequest},
		{"empty body", ``, nil, http.StatusBadRequest},
		{"validation", `{"path":"/"}`, &pageview.ValidationError{Field: "visitorId", Reason: "is required"}, http.StatusBadRequest},
		{"storage", `{"path":"/","visitorId":"v"}`, &pageview.StorageUnavailableError{Op: "insert", Err: errors.New("locked")}, http.StatusServiceUnavailable},
		{"unknown", `{"path":"/","visitorId":"v"}`, &pageview.UnknownError{Err: context.Canceled}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.tracker.TrackFunc = func(ctx context.Context, p ingest.Payload) (ingest.Ack, error) {
				if tt.trackErr != nil {
					return ingest.Ack{}, tt.trackErr
				}
				return ingest.Ack{ID: 1}, nil
			}
			rec := postTrack(env, "/api/v1/track", tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			var resp errorResponse
			decodeBody(t, rec, &resp)
			if resp.Error == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestTrackEndpoint_ValidationField(t *testing.T) {
	env := newTestEnv(t)
	env.tracker.TrackFunc = func(ctx context.Context, p ingest.Payload) (ingest.Ack, error) {
		return ingest.Ack{}, &pageview.ValidationError{Field: "visitorId", Reason: "is required"}
	}
	rec := postTrack(env, "/api/v1/track", `{"path":"/"}`)

	var resp errorResponse
	decodeBody(t, rec, &resp)
	if resp.Field != "visitorId" {
		t.Errorf("field = %q, want visitorId", resp.Field)
	}
}

func TestTrackEndpoint_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, WithTrackOptions(TrackOptions{MaxBodyBytes: 64}))
	body := `{"path":"/` + strings.Repeat("a", 200) + `","visitorId":"v1"}`
	rec := postTrack(env, "/api/v1/track", body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestTrackEndpoint_RateLimited(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 2, CleanupInterval: time.Hour})
	defer rl.Stop()
	env := newTestEnv(t, WithTrackLimiter(rl))

	for i := 0; i < 2; i++ {
		if rec := postTrack(env, "/api/v1/track", `{"path":"/","visitorId":"v"}`); rec.Code != http.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d", i+1, rec.Code)
		}
	}
	rec := postTrack(env, "/api/seo/track", `{"path":"/","visitorId":"v"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
}

// --- Auth ---

func postLogin(env *testEnv, email, password string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(loginRequest{Email: email, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(string(body)))
	req.RemoteAddr = "203.0.113.9:5555"
	return env.do(req)
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := postLogin(env, "editor@eliksir-bar.pl", "correct-horse")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp app.LoginResult
	decodeBody(t, rec, &resp)
	claims, err := env.issuer.Validate(resp.Token)
	if err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
	if claims.Role != auth.RoleEditor {
		t.Errorf("role = %s, want editor", claims.Role)
	}
}

func TestLoginEndpoint_Lockout(t *testing.T) {
	afl := NewAuthFailureLimiter(AuthFailureLimiterConfig{
		MaxFailures:   3,
		Window:        time.Minute,
		LockoutPeriod: time.Minute,
	})
	env := newTestEnv(t, WithAuthFailureLimiter(afl))

	for i := 0; i < 2; i++ {
		if rec := postLogin(env, "editor@eliksir-bar.pl", "wrong"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}
	if rec := postLogin(env, "editor@eliksir-bar.pl", "wrong"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("3rd failure: expected 429, got %d", rec.Code)
	}
	// Even the right password is refused while locked out.
	if rec := postLogin(env, "editor@eliksir-bar.pl", "correct-horse"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("locked: expected 429, got %d", rec.Code)
	}
}

func TestLoginEndpoint_BadRequest(t *testing.T) {
	env := newTestEnv(t)
	rec := postLogin(env, "", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestMeEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/api/v1/auth/me", 3)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var u auth.User
	decodeBody(t, rec, &u)
	if u.Email != "client@eliksir-bar.pl" {
		t.Errorf("email = %q", u.Email)
	}
}

func TestProtectedRoutes_Authorization(t *testing.T) {
	env := newTestEnv(t)

	expired, err := auth.NewIssuer(testSecret, "eliksir",
		auth.WithNow(func() time.Time { return time.Now().Add(-48 * time.Hour) }))
	if err != nil {
		t.Fatal(err)
	}
	expiredToken, _, err := expired.Issue(testUsers[1])
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"no token", "/api/v1/pageviews", "", http.StatusUnauthorized},
		{"garbage token", "/api/v1/pageviews", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"basic scheme", "/api/v1/pageviews", "Basic YWRtaW46YWRtaW4=", http.StatusUnauthorized},
		{"expired", "/api/v1/pageviews", "Bearer " + expiredToken, http.StatusUnauthorized},
		{"customer on pageviews", "/api/v1/pageviews", "Bearer " + env.token(t, 3), http.StatusForbidden},
		{"editor on pageviews", "/api/v1/pageviews", "Bearer " + env.token(t, 2), http.StatusOK},
		{"admin on stats", "/api/v1/stats", "Bearer " + env.token(t, 1), http.StatusOK},
		{"editor on config", "/api/v1/config", "Bearer " + env.token(t, 2), http.StatusForbidden},
		{"admin on config", "/api/v1/config", "Bearer " + env.token(t, 1), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := env.do(req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate header")
			}
		})
	}
}

func TestStreamTokenEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/stream-token", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, 2))
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp app.TokenResult
	decodeBody(t, rec, &resp)
	if _, err := env.issuer.ValidateStreamToken(resp.Token); err != nil {
		t.Errorf("stream token invalid: %v", err)
	}
	// A stream token is not an access token.
	if _, err := env.issuer.Validate(resp.Token); err == nil {
		t.Error("stream token must not validate as access token")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/stream-token", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, 3))
	if rec := env.do(req); rec.Code != http.StatusForbidden {
		t.Errorf("customer: expected 403, got %d", rec.Code)
	}
}

// --- Page views ---

func TestPageViewsEndpoint_Success(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	next := "next-cursor"
	env.pageViews.QueryFunc = func(ctx context.Context, filter store.QueryFilter) (store.QueryResult, error) {
		return store.QueryResult{
			Items: []pageview.PageView{
				{ID: 2, Path: "/quiz", VisitorID: "v1", CreatedAt: now},
				{ID: 1, Path: "/", VisitorID: "v2", CreatedAt: now},
			},
			NextCursor: &next,
		}, nil
	}

	rec := env.get(t, "/api/v1/pageviews", 1)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp pageViewsResponse
	decodeBody(t, rec, &resp)
	if len(resp.Items) != 2 {
		t.Errorf("expected 2 items, got %d", len(resp.Items))
	}
	if resp.NextCursor == nil || *resp.NextCursor != next {
		t.Errorf("NextCursor = %v", resp.NextCursor)
	}
}

func TestPageViewsEndpoint_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get(t, "/api/v1/pageviews", 1)
	if !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Errorf("body = %s, want empty items array", rec.Body.String())
	}
}

func TestPageViewsEndpoint_WithFilters(t *testing.T) {
	env := newTestEnv(t)
	var captured store.QueryFilter
	env.pageViews.QueryFunc = func(ctx context.Context, filter store.QueryFilter) (store.QueryResult, error) {
		captured = filter
		return store.QueryResult{}, nil
	}

	rec := env.get(t, "/api/v1/pageviews?path=/quiz&visitor_id=v1&since=2026-01-01T00:00:00Z&until=2026-02-01T00:00:00Z&limit=50&order=asc", 2)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if captured.Path == nil || *captured.Path != "/quiz" {
		t.Error("expected path filter /quiz")
	}
	if captured.VisitorID == nil || *captured.VisitorID != "v1" {
		t.Error("expected visitor filter v1")
	}
	if captured.Since == nil || !captured.Since.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("since = %v", captured.Since)
	}
	if captured.Until == nil || !captured.Until.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("until = %v", captured.Until)
	}
	if captured.Limit != 50 {
		t.Errorf("expected limit 50, got %d", captured.Limit)
	}
	if captured.Order != store.OrderAsc {
		t.Error("expected ascending order")
	}
}

func TestPageViewsEndpoint_BadParams(t *testing.T) {
	env := newTestEnv(t)
	for _, q := range []string{
		"since=yesterday",
		"until=2026-13-01",
		"limit=0",
		"limit=abc",
		"order=sideways",
		"since=2026-02-01T00:00:00Z&until=2026-01-01T00:00:00Z",
	} {
		rec := env.get(t, "/api/v1/pageviews?"+q, 1)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestPageViewsEndpoint_InvalidCursor(t *testing.T) {
	env := newTestEnv(t)
	env.pageViews.QueryFunc = func(ctx context.Context, filter store.QueryFilter) (store.QueryResult, error) {
		return store.QueryResult{}, store.ErrInvalidCursor
	}
	rec := env.get(t, "/api/v1/pageviews?cursor=bogus", 1)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestPageViewsEndpoint_StorageUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.pageViews.QueryFunc = func(ctx context.Context, filter store.QueryFilter) (store.QueryResult, error) {
		return store.QueryResult{}, &pageview.StorageUnavailableError{Op: "query", Err: errors.New("db locked")}
	}
	rec := env.get(t, "/api/v1/pageviews", 1)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "db locked") {
		t.Error("internal error detail leaked to client")
	}
}

func TestPageViewsCountEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.pageViews.CountFunc = func(ctx context.Context, filter store.QueryFilter) (int64, error) {
		if filter.Path == nil || *filter.Path != "/quiz" {
			t.Errorf("path filter = %v", filter.Path)
		}
		return 5, nil
	}
	rec := env.get(t, "/api/v1/pageviews/count?path=/quiz", 2)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp countResponse
	decodeBody(t, rec, &resp)
	if resp.Count != 5 {
		t.Errorf("count = %d, want 5", resp.Count)
	}
}

func TestPageViewEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.pageViews.GetFunc = func(ctx context.Context, id int64) (*pageview.PageView, error) {
		if id == 9 {
			return &pageview.PageView{ID: 9, Path: "/menu", VisitorID: "v"}, nil
		}
		return nil, store.ErrNotFound
	}

	if rec := env.get(t, "/api/v1/pageviews/9", 1); rec.Code != http.StatusOK {
		t.Errorf("existing: expected 200, got %d", rec.Code)
	}
	if rec := env.get(t, "/api/v1/pageviews/10", 1); rec.Code != http.StatusNotFound {
		t.Errorf("missing: expected 404, got %d", rec.Code)
	}
	if rec := env.get(t, "/api/v1/pageviews/abc", 1); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", rec.Code)
	}
}

// --- Stats, config, tools ---

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get(t, "/api/v1/stats", 2)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	decodeBody(t, rec, &resp)
	if resp["totalViews"] != float64(12) || resp["windowDays"] != float64(30) {
		t.Errorf("stats = %v", resp)
	}
}

func TestStatsEndpoint_Error(t *testing.T) {
	env := newTestEnv(t, WithStatsUsecase(&MockStatsService{err: errors.New("boom")}))
	rec := env.get(t, "/api/v1/stats", 1)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Error("internal error detail leaked to client")
	}
}

func TestFixPolishEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/fix-polish",
		strings.NewReader(`{"text":"ZaÅ¼Ã³Å‚Ä‡ gÄ™Å›lÄ… jaÅºÅ„"}`))
	req.Header.Set("Authorization", "Bearer "+env.token(t, 2))
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp fixPolishResponse
	decodeBody(t, rec, &resp)
	if resp.Text != "Zażółć gęślą jaźń" || !resp.Changed {
		t.Errorf("response = %+v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, WithMetrics("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("eliksir_up 1\n"))
	}), nil))
	rec := env.get(t, "/metrics", 0)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "eliksir_up") {
		t.Errorf("metrics: %d %s", rec.Code, rec.Body.String())
	}
}

func TestLegacyRoutes(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		target string
		userID int64
		want   int
	}{
		{"me", http.MethodGet, "/api/auth/me", 3, http.StatusOK},
		{"me without token", http.MethodGet, "/api/auth/me", 0, http.StatusUnauthorized},
		{"logout", http.MethodPost, "/api/auth/logout", 0, http.StatusNoContent},
		{"v1 logout", http.MethodPost, "/api/v1/auth/logout", 2, http.StatusNoContent},
		{"stream token", http.MethodPost, "/api/auth/stream-token", 2, http.StatusOK},
		{"stats as editor", http.MethodGet, "/api/seo/stats", 2, http.StatusOK},
		{"stats as customer", http.MethodGet, "/api/seo/stats", 3, http.StatusForbidden},
		{"stats without token", http.MethodGet, "/api/seo/stats", 0, http.StatusUnauthorized},
		{"meta is public", http.MethodGet, "/api/seo/meta/home", 0, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.userID != 0 {
				req.Header.Set("Authorization", "Bearer "+env.token(t, tt.userID))
			}
			rec := env.do(req)
			if rec.Code != tt.want {
				t.Errorf("%s %s: expected %d, got %d: %s", tt.method, tt.target, tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestLegacyLogin(t *testing.T) {
	env := newTestEnv(t)

	body := `{"email":"admin@eliksir-bar.pl","password":"correct-horse"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp app.LoginResult
	decodeBody(t, rec, &resp)
	if _, err := env.issuer.Validate(resp.Token); err != nil {
		t.Errorf("issued token invalid: %v", err)
	}
}

func TestLegacyLogin_SharesLockout(t *testing.T) {
	afl := NewAuthFailureLimiter(AuthFailureLimiterConfig{
		MaxFailures:   2,
		Window:        time.Minute,
		LockoutPeriod: time.Minute,
	})
	env := newTestEnv(t, WithAuthFailureLimiter(afl))

	if rec := postLogin(env, "editor@eliksir-bar.pl", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := postLogin(env, "editor@eliksir-bar.pl", "wrong"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	body := `{"email":"editor@eliksir-bar.pl","password":"correct-horse"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.9:5555"
	if rec := env.do(req); rec.Code != http.StatusTooManyRequests {
		t.Errorf("legacy path while locked: expected 429, got %d", rec.Code)
	}
}

func TestSEOMetaEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/api/seo/meta/kontakt", 0)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp seoMetaResponse
	decodeBody(t, rec, &resp)
	if !resp.Success || resp.Page != "kontakt" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.CanonicalURL != "https://eliksirbar.pl/kontakt" {
		t.Errorf("canonicalUrl = %q", resp.CanonicalURL)
	}
	if resp.Title != "Kontakt - Eliksir Bar & Restaurant" {
		t.Errorf("title = %q", resp.Title)
	}

	rec = env.get(t, "/api/seo/meta/oferta", 0)
	decodeBody(t, rec, &resp)
	if resp.Title != "Eliksir Bar & Restaurant" || resp.CanonicalURL != "https://eliksirbar.pl/oferta" {
		t.Errorf("fallback = %+v", resp)
	}
}

func TestSEOMetaEndpoint_TooLong(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get(t, "/api/seo/meta/"+strings.Repeat("a", maxPageNameLen+1), 0)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
