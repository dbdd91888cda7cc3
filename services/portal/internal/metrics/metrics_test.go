package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentCountsRequests(t *testing.T) {
	m := New()
	h := m.Instrument(func(*http.Request) string { return "/api/documents/{id}" }, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/documents/abc", nil))
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/documents/{id}", "404")); got != 2 {
		t.Fatalf("requests_total = %v, want 2", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Upload("ok")
	m.SideEffectFailed("notification")
	m.ReminderSent()
	h := m.Instrument(nil, http.NotFoundHandler())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.SideEffectFailed("notification")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `loanportal_app_side_effect_failures_total{kind="notification"} 1`) {
		t.Fatalf("metric missing from exposition")
	}
}
