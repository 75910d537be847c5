package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.PageViewIngested(3 * time.Millisecond)
	m.PageViewIngested(time.Millisecond)
	m.PageViewRejected("validation")

	if got := testutil.ToFloat64(m.pageViewsIngested); got != 2 {
		t.Errorf("ingested = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.pageViewsRejected.WithLabelValues("validation")); got != 1 {
		t.Errorf("rejected{validation} = %v, want 1", got)
	}

	m.StreamSubscribers(3)
	if got := testutil.ToFloat64(m.streamSubscribers); got != 3 {
		t.Errorf("stream_subscribers = %v, want 3", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveHTTP("POST", "/api/v1/track", 201, 5*time.Millisecond)
	m.AuthFailure()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`eliksir_http_requests_total{code="201",method="POST",route="/api/v1/track"} 1`,
		`eliksir_auth_failures_total 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.PageViewIngested(time.Second)
	m.PageViewRejected("storage")
	m.ObserveHTTP("GET", "/", 200, time.Second)
	m.StreamSubscribers(1)
	m.AuthFailure()
	if m.Registry() != nil {
		t.Error("nil Metrics should have nil registry")
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
