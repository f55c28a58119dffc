/*
handlers_test.go - HTTP round trips through the full router

Tests for:
- Scenario pay through facts + tier endpoints
- Validation, not-found and conflict status mapping
- Memo invalidation after fact writes (miniredis)
- Import upload, duplicate detection and lookup
- Pay periods, daily metrics and recompute
*/
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tierpay/cache"
	"github.com/warp/tierpay/calculator"
	"github.com/warp/tierpay/metrics"
	"github.com/warp/tierpay/store/sqlite"
)

type testServer struct {
	t      *testing.T
	router http.Handler
}

func newTestServer(t *testing.T, memo calculator.Memo) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	h := NewHandler(Deps{
		Store:   store,
		Memo:    memo,
		Metrics: metrics.New(),
		Log:     log,
		Now:     func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	return &testServer{t: t, router: NewRouter(h, RouterOptions{})}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(filename string, content []byte) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(s.t, err)
	_, err = part.Write(content)
	require.NoError(s.t, err)
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// seed creates w1 with the hourly tier used by most tests: goal 500,
// three demos minimum, $25/h, $2 per demo.
func (s *testServer) seed() TierDTO {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/workers", map[string]any{
		"id": "w1", "name": "Ana", "email": "ana@example.com", "username": "ana",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/workers/w1/tiers", map[string]any{
		"pay_mode":             "hourly",
		"sales_goal_in_period": 500,
		"daily_demo_minimum":   3,
		"hourly_rate":          25,
		"demo_bonus":           2,
	})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeAs[TierDTO](s.t, rec)
}

func (s *testServer) facts(date string, sales int, hours string, demos int) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/workers/w1/sales-hours", map[string]any{
		"date": date, "sales": sales, "hours": hours,
	})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPost, "/api/workers/w1/demos", map[string]any{
		"date": date, "demo_count": demos,
	})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
}

// =============================================================================
// DAILY PAY
// =============================================================================

func TestDailyPay_QualifyingDay(t *testing.T) {
	s := newTestServer(t, nil)
	tier := s.seed()

	// GIVEN: 1000 in sales, 8 hours and 5 demos
	s.facts("2025-03-10", 1000, "8", 5)

	// WHEN
	rec := s.do(http.MethodGet, "/api/workers/w1/daily-pay?date=2025-03-10", nil)

	// THEN: 25*8 + 2*5
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeAs[DailyPayResponse](t, rec)
	assert.True(t, got.Eligible)
	require.NotNil(t, got.TierID)
	assert.Equal(t, tier.ID, string(*got.TierID))
	assert.True(t, decimal.NewFromInt(210).Equal(got.ComputedPay), got.ComputedPay.String())
	assert.Equal(t, int64(1000), got.CumulativeSales)
	assert.Equal(t, 5, got.DemosToday)
	require.NotNil(t, got.Period)
	assert.True(t, got.Period.Transient)
}

func TestDailyPay_NoFacts(t *testing.T) {
	s := newTestServer(t, nil)
	s.seed()

	rec := s.do(http.MethodGet, "/api/workers/w1/daily-pay?date=2025-03-10", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeAs[DailyPayResponse](t, rec)
	assert.False(t, got.Eligible)
	assert.Nil(t, got.TierID)
	assert.True(t, got.ComputedPay.IsZero())
	assert.False(t, got.HasSalesHours)
	assert.False(t, got.HasDemos)
}

func TestDailyPay_UnknownWorker(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(http.MethodGet, "/api/workers/ghost/daily-pay?date=2025-03-10", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeAs[ErrorResponse](t, rec).Code)
}

func TestDailyPay_MemoInvalidatedByFactWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	memo := cache.Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute, nil)
	t.Cleanup(func() { memo.Close() })

	s := newTestServer(t, memo)
	s.seed()
	s.facts("2025-03-10", 1000, "8", 5)

	first := decodeAs[DailyPayResponse](t, s.do(http.MethodGet, "/api/workers/w1/daily-pay?date=2025-03-10", nil))
	require.True(t, first.Eligible)
	assert.NotEmpty(t, mr.Keys())

	// WHEN: The demo count drops below the minimum
	rec := s.do(http.MethodPost, "/api/workers/w1/demos", map[string]any{"date": "2025-03-10", "demo_count": 0})
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: The stale memo is not served
	second := decodeAs[DailyPayResponse](t, s.do(http.MethodGet, "/api/workers/w1/daily-pay?date=2025-03-10", nil))
	assert.False(t, second.Eligible)
	assert.True(t, second.ComputedPay.IsZero())
}

// =============================================================================
// FACTS
// =============================================================================

func TestFacts_ValidationAndListing(t *testing.T) {
	s := newTestServer(t, nil)
	s.seed()

	// Negative counts are rejected before any write
	rec := s.do(http.MethodPost, "/api/workers/w1/demos", map[string]any{"date": "2025-03-10", "demo_count": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeAs[ErrorResponse](t, rec).Code)

	rec = s.do(http.MethodPost, "/api/workers/w1/demos", map[string]any{"date": "someday", "demo_count": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/workers/w1/sales-hours", map[string]any{"date": "2025-03-10", "sales": 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "hours is required")

	rec = s.do(http.MethodPost, "/api/workers/ghost/demos", map[string]any{"date": "2025-03-10", "demo_count": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Two writes for one day: last wins
	s.facts("2025-03-10", 100, "4", 1)
	s.facts("2025-03-10", 300, "6.5", 2)
	s.facts("2025-03-11", 50, "2", 0)

	rec = s.do(http.MethodGet, "/api/workers/w1/sales-hours?start=2025-03-10&end=2025-03-11", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeAs[[]SalesHoursDTO](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, int64(300), list[0].Sales)
	assert.Equal(t, "6.5", list[0].Hours.String())
	assert.Equal(t, "manual", list[0].Source)

	rec = s.do(http.MethodGet, "/api/workers/w1/demos?start=2025-03-11&end=2025-03-10", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// TIERS
// =============================================================================

func TestTiers_UpsertInPlaceAndConflict(t *testing.T) {
	s := newTestServer(t, nil)
	hourly := s.seed()

	// Upserting the same mode overwrites the active tier
	rec := s.do(http.MethodPost, "/api/workers/w1/tiers", map[string]any{
		"pay_mode": "hourly", "sales_goal_in_period": 800, "hourly_rate": 30,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	again := decodeAs[TierDTO](t, rec)
	assert.Equal(t, hourly.ID, again.ID)
	assert.Equal(t, int64(800), again.SalesGoal)

	rec = s.do(http.MethodPost, "/api/workers/w1/tiers", map[string]any{
		"pay_mode": "commission", "commission_rate_percent": 10,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	commission := decodeAs[TierDTO](t, rec)
	assert.NotEqual(t, hourly.ID, commission.ID)

	list := decodeAs[[]TierDTO](t, s.do(http.MethodGet, "/api/workers/w1/tiers", nil))
	assert.Len(t, list, 2)

	// Switching commission to hourly would leave two active hourly tiers
	rec = s.do(http.MethodPut, "/api/workers/w1/tiers/"+commission.ID, map[string]any{"pay_mode": "hourly"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/api/workers/w1/tiers", map[string]any{"pay_mode": "salary"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTiers_DeactivateStopsPay(t *testing.T) {
	s := newTestServer(t, nil)
	tier := s.seed()
	s.facts("2025-03-10", 1000, "8", 5)

	rec := s.do(http.MethodDelete, "/api/workers/w1/tiers/"+tier.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeAs[TierDTO](t, rec).Active)

	got := decodeAs[DailyPayResponse](t, s.do(http.MethodGet, "/api/workers/w1/daily-pay?date=2025-03-10", nil))
	assert.False(t, got.Eligible)
	assert.True(t, got.ComputedPay.IsZero())

	// The row is kept
	list := decodeAs[[]TierDTO](t, s.do(http.MethodGet, "/api/workers/w1/tiers", nil))
	assert.Len(t, list, 1)
}

func TestTiers_ScopedToWorker(t *testing.T) {
	s := newTestServer(t, nil)
	tier := s.seed()
	rec := s.do(http.MethodPost, "/api/workers", map[string]any{"id": "w2", "name": "Ben"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(http.MethodDelete, "/api/workers/w2/tiers/"+tier.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodDelete, "/api/workers/w1/tiers/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// IMPORTS
// =============================================================================

func TestImports_UploadDuplicateAndLookup(t *testing.T) {
	s := newTestServer(t, nil)
	s.seed()
	content := []byte("Email,Date,Net Sales,Hours\nana@example.com,2025-03-10,\"1,000\",8\nnobody@example.com,2025-03-10,5,1\n")

	// WHEN: First upload
	rec := s.upload("week.csv", content)

	// THEN
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeAs[ImportResultDTO](t, rec)
	assert.Equal(t, "created", created.Status)
	assert.Equal(t, "parsed", created.ImportStatus)
	assert.Equal(t, 1, created.RowsUpserted)
	assert.Equal(t, 1, created.RowsSkipped)
	assert.Equal(t, []string{"w1"}, created.Workers)

	// WHEN: Same bytes again
	rec = s.upload("renamed.csv", content)

	// THEN: Duplicate, same id
	require.Equal(t, http.StatusOK, rec.Code)
	dup := decodeAs[ImportResultDTO](t, rec)
	assert.Equal(t, "duplicate", dup.Status)
	assert.Equal(t, created.ImportID, dup.ImportID)

	rec = s.do(http.MethodGet, "/api/imports/"+created.ImportID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	imp := decodeAs[ImportDTO](t, rec)
	assert.Equal(t, 2, imp.Rows)
	require.NotNil(t, imp.SalesHoursRows)
	assert.Equal(t, 1, *imp.SalesHoursRows)
	assert.Equal(t, "week.csv", imp.Filename)

	rec = s.do(http.MethodGet, "/api/imports/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Imported sales feed the calculator
	sales := decodeAs[[]SalesHoursDTO](t, s.do(http.MethodGet, "/api/workers/w1/sales-hours?start=2025-03-10&end=2025-03-10", nil))
	require.Len(t, sales, 1)
	assert.Equal(t, int64(1000), sales[0].Sales)
	assert.Equal(t, "import", sales[0].Source)
	require.NotNil(t, sales[0].ImportRef)
	assert.Equal(t, created.ImportID, *sales[0].ImportRef)
}

func TestImports_JSONRows(t *testing.T) {
	s := newTestServer(t, nil)
	s.seed()

	rec := s.do(http.MethodPost, "/api/imports", map[string]any{
		"filename": "api.json",
		"rows": []map[string]any{
			{"username": "ana", "date": "2025-03-12", "sales": 42, "hours": 3},
		},
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decodeAs[ImportResultDTO](t, rec).RowsUpserted)

	rec = s.do(http.MethodPost, "/api/imports", map[string]any{"filename": "empty.json"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// PAY PERIODS
// =============================================================================

func TestPayPeriods_MetricsAndRecompute(t *testing.T) {
	s := newTestServer(t, nil)
	s.seed()
	s.facts("2025-03-10", 1000, "8", 5)

	rec := s.do(http.MethodPost, "/api/pay-periods", map[string]any{"start": "2025-03-01", "end": "2025-03-15"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	period := decodeAs[PayPeriodDTO](t, rec)
	assert.Equal(t, "UTC", period.Timezone)

	rec = s.do(http.MethodPost, "/api/pay-periods", map[string]any{"start": "2025-03-15", "end": "2025-03-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, "/api/pay-periods", map[string]any{"start": "2025-03-01", "end": "2025-03-15", "timezone": "Mars/Olympus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Daily metrics resolve the covering stored period
	rec = s.do(http.MethodGet, "/api/workers/w1/daily-metrics?start=2025-03-09&end=2025-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	metricsResp := decodeAs[DailyMetricsResponse](t, rec)
	assert.Equal(t, period.ID, metricsResp.Period.ID)
	require.Len(t, metricsResp.Days, 2)
	assert.True(t, metricsResp.Days[0].ComputedPay.IsZero())
	assert.True(t, decimal.NewFromInt(210).Equal(metricsResp.TotalPay))

	// Daily pay by explicit period id
	got := decodeAs[DailyPayResponse](t, s.do(http.MethodGet, "/api/workers/w1/daily-pay?date=2025-03-10&period_id="+period.ID, nil))
	require.NotNil(t, got.Period)
	assert.Equal(t, period.ID, got.Period.ID)

	rec = s.do(http.MethodPost, "/api/pay-periods/"+period.ID+"/recompute?worker_id=w1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	recompute := decodeAs[RecomputeDTO](t, rec)
	assert.Equal(t, 15, recompute.Days)
	assert.True(t, decimal.NewFromInt(210).Equal(recompute.TotalPay))

	rec = s.do(http.MethodPost, "/api/pay-periods/"+period.ID+"/recompute", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/pay-periods/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	list := decodeAs[[]PayPeriodDTO](t, s.do(http.MethodGet, "/api/pay-periods", nil))
	assert.Len(t, list, 1)
}

func TestPayPeriods_OversizedRangesRejected(t *testing.T) {
	s := newTestServer(t, nil)
	s.seed()

	// A range spanning millennia is rejected up front
	rec := s.do(http.MethodGet, "/api/workers/w1/daily-metrics?start=0002-01-01&end=9999-12-31", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeAs[ErrorResponse](t, rec).Code)

	rec = s.do(http.MethodPost, "/api/pay-periods", map[string]any{"start": "0002-01-01", "end": "9999-12-31"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A leap year is the longest period accepted
	rec = s.do(http.MethodPost, "/api/pay-periods", map[string]any{"start": "2024-01-01", "end": "2024-12-31"})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// =============================================================================
// WORKERS, HEALTH, METRICS
// =============================================================================

func TestWorkers(t *testing.T) {
	s := newTestServer(t, nil)
	s.seed()

	rec := s.do(http.MethodPost, "/api/workers", map[string]any{"id": "w1", "name": "Ana again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/api/workers", map[string]any{"name": "No Id", "email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/workers", map[string]any{"name": "Generated"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, decodeAs[WorkerDTO](t, rec).ID)

	rec = s.do(http.MethodGet, "/api/workers/w1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana@example.com", decodeAs[WorkerDTO](t, rec).Email)

	assert.Len(t, decodeAs[[]WorkerDTO](t, s.do(http.MethodGet, "/api/workers", nil)), 2)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store":"ok"`)

	rec = s.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}
