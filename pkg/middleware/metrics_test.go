package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatal("expected counter metric to have Counter field")
	}
	return m.GetCounter().GetValue()
}

func metricGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	return m.GetGauge().GetValue()
}

func metricHistogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T does not implement prometheus.Metric", o)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	if m.Histogram == nil {
		t.Fatal("expected histogram metric to have Histogram field")
	}
	return m.GetHistogram().GetSampleCount()
}

func TestMetricsRecordsByChiPattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg))

	r := chi.NewRouter()
	r.Use(m.Handler)
	r.Get("/api/urls/{url}/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	for _, path := range []string{"/api/urls/a.com/status", "/api/urls/b.com/status", "/healthz"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	if got := metricCounterValue(t, m.requestsTotal.WithLabelValues("/api/urls/{url}/status", "GET", "404")); got != 2 {
		t.Errorf("requests_total(status route) = %v, want 2", got)
	}
	if got := metricCounterValue(t, m.requestsTotal.WithLabelValues("/healthz", "GET", "200")); got != 1 {
		t.Errorf("requests_total(healthz) = %v, want 1", got)
	}
	if got := metricHistogramCount(t, m.requestDuration.WithLabelValues("/healthz")); got != 1 {
		t.Errorf("request_duration count = %d, want 1", got)
	}
	if got := metricGaugeValue(t, m.inFlight); got != 0 {
		t.Errorf("requests_in_flight = %v, want 0", got)
	}
}

func TestMetricsCustomRouteLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(
		WithRegistry(reg),
		WithNamespace("test"),
		WithSubsystem(""),
		WithRouteLabel(func(*http.Request) string { return "URLStatus" }),
	)

	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/url/x/status", nil))

	if got := metricCounterValue(t, m.requestsTotal.WithLabelValues("URLStatus", "GET", "200")); got != 1 {
		t.Errorf("requests_total(URLStatus) = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "test_requests_total" {
			found = true
		}
	}
	if !found {
		t.Error("test_requests_total not registered")
	}
}

func TestMetricsConfigDefaults(t *testing.T) {
	c := defaultMetricsConfig()
	if c.Namespace != "proxycop" {
		t.Errorf("Namespace = %q, want proxycop", c.Namespace)
	}
	if c.Subsystem != "http" {
		t.Errorf("Subsystem = %q, want http", c.Subsystem)
	}
	if c.Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should default to prometheus.DefaultRegisterer")
	}
	if c.RouteLabel == nil {
		t.Error("RouteLabel should default to ChiRoutePattern")
	}
}

func TestChiRoutePatternWithoutChi(t *testing.T) {
	if got := ChiRoutePattern(httptest.NewRequest("GET", "/x", nil)); got != "other" {
		t.Errorf("ChiRoutePattern() = %q, want other", got)
	}
}
