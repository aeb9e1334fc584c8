package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/appointments/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointments/abc", nil))
	}

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues("/appointments/{id}", http.MethodGet, "404"))
	if got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveBooking("created")
	m.ObserveBooking("conflict")
	m.ObserveBooking("conflict")
	m.ObserveTransition("approve", "ok")
	m.RelayPublished(3)
	m.RelayFailed()

	if got := testutil.ToFloat64(m.bookings.WithLabelValues("conflict")); got != 2 {
		t.Errorf("expected 2 conflicts, got %v", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("approve", "ok")); got != 1 {
		t.Errorf("expected 1 approve, got %v", got)
	}
	if got := testutil.ToFloat64(m.relayEvents.WithLabelValues("published")); got != 3 {
		t.Errorf("expected 3 published, got %v", got)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveBooking("created")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "counseling_scheduling_bookings_total") {
		t.Errorf("expected bookings counter in output")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveBooking("created")
	m.RelayFailed()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected passthrough, got %d", rec.Code)
	}
}
