package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestConfig_Defaults(t *testing.T) {
	p := NewProvider(Config{})

	if p.cfg.ServiceName != "records-server" {
		t.Fatalf("expected default ServiceName='records-server', got %q", p.cfg.ServiceName)
	}
	if p.cfg.ServiceVersion != "0.0.0" {
		t.Fatalf("expected default ServiceVersion='0.0.0', got %q", p.cfg.ServiceVersion)
	}
	if p.cfg.Environment != "development" {
		t.Fatalf("expected default Environment='development', got %q", p.cfg.Environment)
	}
	if !p.cfg.metricsOn() {
		t.Fatal("expected metrics enabled by default")
	}
}

func TestConfig_MetricsDisabled(t *testing.T) {
	cfg := Config{MetricsEnabled: BoolPtr(false)}
	if cfg.metricsOn() {
		t.Fatal("expected metrics disabled")
	}
}

func TestProvider_NilSafe(t *testing.T) {
	var p *Provider
	p.VisitCreated("embedded")
	p.DiagnosisAppended()
	p.SearchPerformed("name", "collapsed", 3)
	p.ExportBuilt()
}

func TestProvider_BusinessCounters(t *testing.T) {
	p := NewProvider(Config{})

	p.VisitCreated("embedded")
	p.VisitCreated("embedded")
	p.VisitCreated("normalized")
	p.DiagnosisAppended()
	p.SearchPerformed("name", "collapsed", 2)
	p.SearchPerformed("name", "collapsed", 0)
	p.SearchPerformed("icd_10", "exploded", 1)
	p.ExportBuilt()

	if got := testutil.ToFloat64(p.visitsCreated.WithLabelValues("embedded")); got != 2 {
		t.Errorf("expected 2 embedded visits, got %v", got)
	}
	if got := testutil.ToFloat64(p.visitsCreated.WithLabelValues("normalized")); got != 1 {
		t.Errorf("expected 1 normalized visit, got %v", got)
	}
	if got := testutil.ToFloat64(p.diagnosesAppended); got != 1 {
		t.Errorf("expected 1 append, got %v", got)
	}
	if got := testutil.ToFloat64(p.searches.WithLabelValues("name", "collapsed")); got != 2 {
		t.Errorf("expected 2 name searches, got %v", got)
	}
	if got := testutil.ToFloat64(p.exports); got != 1 {
		t.Errorf("expected 1 export, got %v", got)
	}
}

func TestMetricsMiddleware_RecordsRequests(t *testing.T) {
	p := NewProvider(Config{})
	e := echo.New()
	e.Use(p.MetricsMiddleware())
	e.GET("/api/v1/visits/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "missing")
	})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/visits/abc", nil)
		e.ServeHTTP(httptest.NewRecorder(), req)
	}
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	if got := testutil.ToFloat64(p.httpRequests.WithLabelValues("GET", "/api/v1/visits/:id", "200")); got != 3 {
		t.Errorf("expected 3 requests on the route pattern, got %v", got)
	}
	if got := testutil.ToFloat64(p.httpRequests.WithLabelValues("GET", "/boom", "404")); got != 1 {
		t.Errorf("expected the handler error status to be recorded, got %v", got)
	}
	if got := testutil.ToFloat64(p.inFlight); got != 0 {
		t.Errorf("expected no requests in flight, got %v", got)
	}
}

func TestMetricsMiddleware_Disabled(t *testing.T) {
	p := NewProvider(Config{MetricsEnabled: BoolPtr(false)})
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	called := false
	err := p.MetricsMiddleware()(func(c echo.Context) error {
		called = true
		return errors.New("passthrough")
	})(c)
	if !called || err == nil || err.Error() != "passthrough" {
		t.Fatalf("expected handler error to pass through, got %v", err)
	}
	if n := testutil.CollectAndCount(p.httpRequests); n != 0 {
		t.Errorf("expected no request series, got %d", n)
	}
}

func TestPrometheusHandler_Exposition(t *testing.T) {
	p := NewProvider(Config{ServiceName: "records-test"})
	p.VisitCreated("embedded")
	p.ExportBuilt()

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/metrics", nil), rec)
	if err := p.PrometheusHandler()(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`visits_created_total{service="records-test",shape="embedded"} 1`,
		`visit_exports_total{service="records-test"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected exposition to contain %q", want)
		}
	}
}

func TestPrometheusHandler_NilProvider(t *testing.T) {
	var p *Provider
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/metrics", nil), httptest.NewRecorder())

	err := p.PrometheusHandler()(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil provider, got %v", err)
	}
}
