// Package telemetry exposes Prometheus metrics for the records service:
// HTTP server metrics recorded by an Echo middleware, plus the business
// counters for visit intake, diagnosis appends, searches and exports.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds the telemetry settings.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// MetricsEnabled nil means enabled.
	MetricsEnabled *bool
	// IncludeRuntime registers the Go runtime and process collectors.
	IncludeRuntime bool
}

func (c *Config) metricsOn() bool {
	if c.MetricsEnabled == nil {
		return true
	}
	return *c.MetricsEnabled
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "records-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// BoolPtr is a helper to create a *bool for Config fields.
func BoolPtr(b bool) *bool {
	return &b
}

var defaultDurationBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Provider owns a private registry so several providers (tests, mostly)
// can coexist in one process. All recording methods are safe on a nil
// *Provider, which records nothing.
type Provider struct {
	cfg      Config
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	inFlight     prometheus.Gauge

	visitsCreated     *prometheus.CounterVec
	diagnosesAppended prometheus.Counter
	searches          *prometheus.CounterVec
	searchRows        prometheus.Histogram
	exports           prometheus.Counter
}

// NewProvider builds the metric set and registers it.
func NewProvider(cfg Config) *Provider {
	cfg.applyDefaults()
	reg := prometheus.NewRegistry()
	factory := func(c prometheus.Collector) { reg.MustRegister(c) }

	constLabels := prometheus.Labels{"service": cfg.ServiceName}

	p := &Provider{
		cfg:      cfg,
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: constLabels,
			Buckets:     defaultDurationBuckets,
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests currently being processed",
			ConstLabels: constLabels,
		}),
		visitsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "visits_created_total",
			Help:        "Total number of visits recorded at intake",
			ConstLabels: constLabels,
		}, []string{"shape"}),
		diagnosesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "visit_diagnoses_appended_total",
			Help:        "Total number of diagnoses appended to existing visits",
			ConstLabels: constLabels,
		}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "visit_searches_total",
			Help:        "Total number of visit searches",
			ConstLabels: constLabels,
		}, []string{"selector", "mode"}),
		searchRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "visit_search_rows",
			Help:        "Rows returned per visit search",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(1, 4, 8),
		}),
		exports: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "visit_exports_total",
			Help:        "Total number of spreadsheet exports",
			ConstLabels: constLabels,
		}),
	}

	factory(p.httpRequests)
	factory(p.httpDuration)
	factory(p.inFlight)
	factory(p.visitsCreated)
	factory(p.diagnosesAppended)
	factory(p.searches)
	factory(p.searchRows)
	factory(p.exports)
	if cfg.IncludeRuntime {
		factory(collectors.NewGoCollector())
		factory(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return p
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Provider) Registry() *prometheus.Registry { return p.registry }

// VisitCreated counts one intake in the given persistence shape.
func (p *Provider) VisitCreated(shape string) {
	if p == nil {
		return
	}
	p.visitsCreated.WithLabelValues(shape).Inc()
}

// DiagnosisAppended counts one successful append.
func (p *Provider) DiagnosisAppended() {
	if p == nil {
		return
	}
	p.diagnosesAppended.Inc()
}

// SearchPerformed counts one resolver run and the number of rows it produced.
func (p *Provider) SearchPerformed(selector, mode string, rows int) {
	if p == nil {
		return
	}
	p.searches.WithLabelValues(selector, mode).Inc()
	p.searchRows.Observe(float64(rows))
}

// ExportBuilt counts one spreadsheet export.
func (p *Provider) ExportBuilt() {
	if p == nil {
		return
	}
	p.exports.Inc()
}

// MetricsMiddleware returns an Echo middleware that records HTTP server metrics.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if p == nil || !p.cfg.metricsOn() {
				return next(c)
			}

			p.inFlight.Inc()
			defer p.inFlight.Dec()

			start := time.Now()
			err := next(c)
			duration := time.Since(start).Seconds()

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			// Route pattern keeps label cardinality bounded.
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}

			method := c.Request().Method
			p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			p.httpDuration.WithLabelValues(method, route).Observe(duration)
			return err
		}
	}
}

// PrometheusHandler returns an Echo handler that serves the registry in
// Prometheus text exposition format at /metrics.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	if p == nil {
		return func(c echo.Context) error {
			return echo.NewHTTPError(http.StatusNotFound, "metrics disabled")
		}
	}
	h := promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
	return echo.WrapHandler(h)
}
