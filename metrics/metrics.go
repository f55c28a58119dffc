// Package metrics exposes Prometheus instrumentation for the pay engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Business metrics
	ImportsTotal     *prometheus.CounterVec
	ImportRowsTotal  *prometheus.CounterVec
	DailyPayComputed *prometheus.CounterVec
	FactWritesTotal  *prometheus.CounterVec
	TierChangesTotal *prometheus.CounterVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// New creates a Metrics instance registered on its own registry, so tests
// can create as many as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		ImportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tierpay_imports_total",
				Help: "Imports ingested, by outcome",
			},
			[]string{"status"}, // created, duplicate
		),
		ImportRowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tierpay_import_rows_total",
				Help: "Import rows processed, by outcome",
			},
			[]string{"outcome"}, // upserted, skipped
		),
		DailyPayComputed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tierpay_daily_pay_computed_total",
				Help: "Daily pay computations, by pay mode and eligibility",
			},
			[]string{"pay_mode", "eligible"},
		),
		FactWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tierpay_fact_writes_total",
				Help: "Manual fact upserts, by kind",
			},
			[]string{"kind"}, // demo, sales_hours
		),
		TierChangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tierpay_tier_changes_total",
				Help: "Tier schedule edits, by action",
			},
			[]string{"action"}, // upsert, update, deactivate
		),

		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{r.Method, path, strconv.Itoa(status)}
		m.HTTPRequestsTotal.WithLabelValues(labels...).Inc()
		m.HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}

// RecordImport counts one ingestion and its row outcomes.
func (m *Metrics) RecordImport(status string, upserted, skipped int) {
	m.ImportsTotal.WithLabelValues(status).Inc()
	m.ImportRowsTotal.WithLabelValues("upserted").Add(float64(upserted))
	m.ImportRowsTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordDailyPay counts one computation.
func (m *Metrics) RecordDailyPay(mode string, eligible bool) {
	m.DailyPayComputed.WithLabelValues(mode, strconv.FormatBool(eligible)).Inc()
}

// RecordFactWrite counts a manual fact upsert.
func (m *Metrics) RecordFactWrite(kind string) {
	m.FactWritesTotal.WithLabelValues(kind).Inc()
}

// RecordTierChange counts a schedule edit.
func (m *Metrics) RecordTierChange(action string) {
	m.TierChangesTotal.WithLabelValues(action).Inc()
}

// RecordCacheHit increments cache hits counter
func (m *Metrics) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss increments cache misses counter
func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}
