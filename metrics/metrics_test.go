package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordImport(t *testing.T) {
	m := New()

	m.RecordImport("created", 3, 1)
	m.RecordImport("duplicate", 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportsTotal.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportsTotal.WithLabelValues("duplicate")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ImportRowsTotal.WithLabelValues("upserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportRowsTotal.WithLabelValues("skipped")))
}

func TestRecordDailyPay(t *testing.T) {
	m := New()

	m.RecordDailyPay("hourly", false)
	m.RecordDailyPay("commission", true)
	m.RecordDailyPay("commission", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DailyPayComputed.WithLabelValues("commission", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DailyPayComputed.WithLabelValues("hourly", "false")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/workers/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	req := httptest.NewRequest(http.MethodGet, "/api/workers/w1", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues("GET", "/api/workers/{id}", "418")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "http_requests_total"))
}
