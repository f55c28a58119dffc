/*
handlers.go - HTTP API handlers for the tiered daily pay engine

PURPOSE:
  Exposes facts, tiers, imports and daily pay via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the services.

ENDPOINTS:
  Workers:
    GET    /api/workers                         List workers
    POST   /api/workers                         Create worker
    GET    /api/workers/{id}                    Get worker

  Facts:
    POST   /api/workers/{id}/demos              Upsert demo count for a date
    GET    /api/workers/{id}/demos              Demo facts in ?start&end
    POST   /api/workers/{id}/sales-hours        Upsert sales/hours for a date
    GET    /api/workers/{id}/sales-hours        Sales/hours facts in ?start&end

  Tiers:
    GET    /api/workers/{id}/tiers              Full schedule
    POST   /api/workers/{id}/tiers              Upsert the active tier of a mode
    PUT    /api/workers/{id}/tiers/{tierID}     Partial update
    DELETE /api/workers/{id}/tiers/{tierID}     Deactivate (row is kept)

  Pay:
    GET    /api/workers/{id}/daily-pay          ?date[&period_id]
    GET    /api/workers/{id}/daily-metrics      ?start&end

  Imports:
    POST   /api/imports                         multipart "file" or JSON rows
    GET    /api/imports/{id}                    Ledger row with counts

  Scenarios (scenarios.go):
    GET    /api/scenarios                       List demo scenarios
    GET    /api/scenarios/current               Last loaded scenario
    POST   /api/scenarios/load                  Seed a scenario

  Pay periods:
    GET    /api/pay-periods                     List
    POST   /api/pay-periods                     Create
    GET    /api/pay-periods/{id}                Get
    POST   /api/pay-periods/{id}/recompute      ?worker_id; drop memo, recompute

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (active tier per mode)
  - 500: Internal errors (logged)

CACHE:
  Every write that can change a worker's pay drops that worker's memoized
  daily results before responding.

SECURITY NOTE:
  No authentication or authorization. Identity and permissions belong to
  whatever sits in front of this service.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/tierpay/calculator"
	"github.com/warp/tierpay/facts"
	"github.com/warp/tierpay/imports"
	"github.com/warp/tierpay/metrics"
	"github.com/warp/tierpay/payroll"
	"github.com/warp/tierpay/tiers"
)

// maxMetricsDays bounds a daily-metrics request.
const maxMetricsDays = payroll.MaxPeriodDays

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Deps are the collaborators NewHandler wires together.
type Deps struct {
	Store          payroll.TxStore
	Memo           calculator.Memo // optional
	Metrics        *metrics.Metrics
	Log            logrus.FieldLogger
	MaxUploadBytes int64
	Now            func() time.Time
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   payroll.TxStore
	Facts   *facts.Service
	Tiers   *tiers.Schedule
	Imports *imports.Ledger
	Calc    *calculator.Calculator
	Metrics *metrics.Metrics
	Memo    calculator.Memo
	Log     logrus.FieldLogger

	maxUploadBytes int64
	now            func() time.Time
	validate       *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler builds the services over one store.
func NewHandler(d Deps) *Handler {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 10 << 20
	}

	factSvc := facts.New(d.Store, facts.WithLogger(d.Log), facts.WithClock(d.Now))
	schedule := tiers.New(d.Store, tiers.WithLogger(d.Log), tiers.WithClock(d.Now))
	calcOpts := []calculator.Option{
		calculator.WithLogger(d.Log),
		calculator.WithRecorder(d.Metrics),
	}
	if d.Memo != nil {
		calcOpts = append(calcOpts, calculator.WithMemo(d.Memo))
	}

	return &Handler{
		Store:   d.Store,
		Facts:   factSvc,
		Tiers:   schedule,
		Imports: imports.New(d.Store, imports.WithLogger(d.Log), imports.WithClock(d.Now), imports.WithRecorder(d.Metrics)),
		Calc:    calculator.New(factSvc, schedule, d.Store, calcOpts...),
		Metrics: d.Metrics,
		Memo:    d.Memo,
		Log:     d.Log,

		maxUploadBytes: d.MaxUploadBytes,
		now:            d.Now,
		validate:       newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// HEALTH
// =============================================================================

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports store (and cache, when configured) reachability.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := http.StatusOK

	if p, ok := h.Store.(pinger); ok {
		checks["store"] = "ok"
		if err := p.Ping(r.Context()); err != nil {
			checks["store"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if p, ok := h.Memo.(pinger); ok {
		checks["cache"] = "ok"
		if err := p.Ping(r.Context()); err != nil {
			// Cache outages degrade latency only.
			checks["cache"] = err.Error()
		}
	}

	state := "ok"
	if status != http.StatusOK {
		state = "unavailable"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

// =============================================================================
// WORKER HANDLERS
// =============================================================================

// ListWorkers returns all workers.
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.Store.ListWorkers(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list workers", err)
		return
	}

	dtos := make([]WorkerDTO, len(workers))
	for i, wk := range workers {
		dtos[i] = toWorkerDTO(wk)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetWorker returns a single worker.
func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	worker, err := h.requireWorker(r.Context(), workerParam(r))
	if err != nil {
		h.fail(w, r, "Failed to get worker", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkerDTO(*worker))
}

// CreateWorker adds a worker to the directory.
func (h *Handler) CreateWorker(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkerRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	id := payroll.WorkerID(strings.TrimSpace(req.ID))
	if id == "" {
		id = payroll.WorkerID(uuid.NewString())
	}
	existing, err := h.Store.GetWorker(ctx, id)
	if err != nil {
		h.fail(w, r, "Failed to create worker", err)
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "Worker already exists", nil)
		return
	}

	worker := payroll.Worker{
		ID:         id,
		Name:       req.Name,
		Email:      strings.TrimSpace(req.Email),
		Username:   strings.TrimSpace(req.Username),
		LocationID: req.LocationID,
		CreatedAt:  h.now().UTC(),
	}
	if err := h.Store.SaveWorker(ctx, worker); err != nil {
		h.fail(w, r, "Failed to create worker", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkerDTO(worker))
}

// =============================================================================
// FACT HANDLERS
// =============================================================================

// UpsertDemo records a manual demo count.
// POST /api/workers/{id}/demos
func (h *Handler) UpsertDemo(w http.ResponseWriter, r *http.Request) {
	var req UpsertDemoRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	day, err := parseDate("date", req.Date)
	if err != nil {
		h.fail(w, r, "Invalid date", err)
		return
	}

	worker := workerParam(r)
	fact, err := h.Facts.UpsertDemo(r.Context(), worker, day, *req.DemoCount, payroll.SourceManual)
	if err != nil {
		h.fail(w, r, "Failed to save demo count", err)
		return
	}
	h.Calc.Invalidate(r.Context(), worker)
	h.Metrics.RecordFactWrite("demo")
	writeJSON(w, http.StatusOK, toDemoDTO(*fact))
}

// ListDemos returns demo facts in a date range.
// GET /api/workers/{id}/demos?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *Handler) ListDemos(w http.ResponseWriter, r *http.Request) {
	from, to, err := rangeParams(r)
	if err != nil {
		h.fail(w, r, "Invalid range", err)
		return
	}
	list, err := h.Facts.ListDemos(r.Context(), workerParam(r), from, to)
	if err != nil {
		h.fail(w, r, "Failed to list demos", err)
		return
	}

	dtos := make([]DemoDTO, len(list))
	for i, f := range list {
		dtos[i] = toDemoDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpsertSalesHours records manual sales and hours.
// POST /api/workers/{id}/sales-hours
func (h *Handler) UpsertSalesHours(w http.ResponseWriter, r *http.Request) {
	var req UpsertSalesHoursRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	day, err := parseDate("date", req.Date)
	if err != nil {
		h.fail(w, r, "Invalid date", err)
		return
	}

	worker := workerParam(r)
	fact, err := h.Facts.UpsertSalesHours(r.Context(), worker, day, *req.Sales, *req.Hours, payroll.SourceManual, nil)
	if err != nil {
		h.fail(w, r, "Failed to save sales and hours", err)
		return
	}
	h.Calc.Invalidate(r.Context(), worker)
	h.Metrics.RecordFactWrite("sales_hours")
	writeJSON(w, http.StatusOK, toSalesHoursDTO(*fact))
}

// ListSalesHours returns sales/hours facts in a date range.
// GET /api/workers/{id}/sales-hours?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *Handler) ListSalesHours(w http.ResponseWriter, r *http.Request) {
	from, to, err := rangeParams(r)
	if err != nil {
		h.fail(w, r, "Invalid range", err)
		return
	}
	list, err := h.Facts.ListSalesHours(r.Context(), workerParam(r), from, to)
	if err != nil {
		h.fail(w, r, "Failed to list sales and hours", err)
		return
	}

	dtos := make([]SalesHoursDTO, len(list))
	for i, f := range list {
		dtos[i] = toSalesHoursDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// TIER HANDLERS
// =============================================================================

// ListTiers returns the worker's full schedule, inactive tiers included.
func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	list, err := h.Tiers.List(r.Context(), workerParam(r))
	if err != nil {
		h.fail(w, r, "Failed to list tiers", err)
		return
	}

	dtos := make([]TierDTO, len(list))
	for i, t := range list {
		dtos[i] = toTierDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpsertTier creates or overwrites the active tier for a pay mode.
// POST /api/workers/{id}/tiers
func (h *Handler) UpsertTier(w http.ResponseWriter, r *http.Request) {
	var req UpsertTierRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	worker := workerParam(r)
	if _, err := h.requireWorker(ctx, worker); err != nil {
		h.fail(w, r, "Failed to save tier", err)
		return
	}

	fields := tiers.Fields{
		SalesGoal:             req.SalesGoal,
		DailyDemoMinimum:      req.DailyDemoMinimum,
		HourlyRate:            req.HourlyRate,
		CommissionRatePercent: req.CommissionRatePercent,
		DemoBonus:             req.DemoBonus,
		OrderIndex:            req.OrderIndex,
	}
	if req.EffectiveFrom != "" {
		from, err := parseDate("effective_from", req.EffectiveFrom)
		if err != nil {
			h.fail(w, r, "Invalid effective_from", err)
			return
		}
		fields.EffectiveFrom = &from
	}

	tier, err := h.Tiers.Upsert(ctx, worker, payroll.PayMode(req.PayMode), fields)
	if err != nil {
		h.fail(w, r, "Failed to save tier", err)
		return
	}
	h.Calc.Invalidate(ctx, worker)
	h.Metrics.RecordTierChange("upsert")
	writeJSON(w, http.StatusOK, toTierDTO(*tier))
}

// UpdateTier applies a partial update.
// PUT /api/workers/{id}/tiers/{tierID}
func (h *Handler) UpdateTier(w http.ResponseWriter, r *http.Request) {
	var req UpdateTierRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	worker := workerParam(r)
	id := payroll.TierID(chi.URLParam(r, "tierID"))
	if err := h.requireTierOf(ctx, worker, id); err != nil {
		h.fail(w, r, "Failed to update tier", err)
		return
	}

	patch := tiers.Patch{
		SalesGoal:             req.SalesGoal,
		DailyDemoMinimum:      req.DailyDemoMinimum,
		HourlyRate:            req.HourlyRate,
		CommissionRatePercent: req.CommissionRatePercent,
		DemoBonus:             req.DemoBonus,
		Active:                req.Active,
		OrderIndex:            req.OrderIndex,
	}
	if req.PayMode != nil {
		mode := payroll.PayMode(*req.PayMode)
		patch.PayMode = &mode
	}
	if req.EffectiveFrom != nil {
		from, err := parseDate("effective_from", *req.EffectiveFrom)
		if err != nil {
			h.fail(w, r, "Invalid effective_from", err)
			return
		}
		patch.EffectiveFrom = &from
	}

	tier, err := h.Tiers.Update(ctx, id, patch)
	if err != nil {
		h.fail(w, r, "Failed to update tier", err)
		return
	}
	h.Calc.Invalidate(ctx, worker)
	h.Metrics.RecordTierChange("update")
	writeJSON(w, http.StatusOK, toTierDTO(*tier))
}

// DeactivateTier removes a tier from selection without deleting it.
// DELETE /api/workers/{id}/tiers/{tierID}
func (h *Handler) DeactivateTier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	worker := workerParam(r)
	id := payroll.TierID(chi.URLParam(r, "tierID"))
	if err := h.requireTierOf(ctx, worker, id); err != nil {
		h.fail(w, r, "Failed to deactivate tier", err)
		return
	}

	tier, err := h.Tiers.Deactivate(ctx, id)
	if err != nil {
		h.fail(w, r, "Failed to deactivate tier", err)
		return
	}
	h.Calc.Invalidate(ctx, worker)
	h.Metrics.RecordTierChange("deactivate")
	writeJSON(w, http.StatusOK, toTierDTO(*tier))
}

// =============================================================================
// PAY HANDLERS
// =============================================================================

// GetDailyPay computes one worker-day.
// GET /api/workers/{id}/daily-pay?date=YYYY-MM-DD[&period_id=...]
//
// Without period_id the stored period covering the date is used, or a
// single-day transient period if none covers it.
func (h *Handler) GetDailyPay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	worker := workerParam(r)
	if _, err := h.requireWorker(ctx, worker); err != nil {
		h.fail(w, r, "Failed to compute daily pay", err)
		return
	}

	q := r.URL.Query()
	day := payroll.DateOf(h.now())
	if raw := q.Get("date"); raw != "" {
		d, err := parseDate("date", raw)
		if err != nil {
			h.fail(w, r, "Invalid date", err)
			return
		}
		day = d
	}

	var period payroll.PayPeriod
	if id := q.Get("period_id"); id != "" {
		p, err := h.requirePeriod(ctx, payroll.PeriodID(id))
		if err != nil {
			h.fail(w, r, "Failed to compute daily pay", err)
			return
		}
		period = *p
	} else {
		p, err := payroll.FindCovering(ctx, h.Store, day, day)
		if err != nil {
			h.fail(w, r, "Failed to compute daily pay", err)
			return
		}
		period = p
	}

	result, err := h.Calc.ComputeDailyPay(ctx, worker, day, period)
	if err != nil {
		h.fail(w, r, "Failed to compute daily pay", err)
		return
	}

	resp := toDailyPayResponse(result)
	pdto := toPayPeriodDTO(period)
	resp.Period = &pdto
	writeJSON(w, http.StatusOK, resp)
}

// GetDailyMetrics computes every day in a range.
// GET /api/workers/{id}/daily-metrics?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *Handler) GetDailyMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	worker := workerParam(r)
	if _, err := h.requireWorker(ctx, worker); err != nil {
		h.fail(w, r, "Failed to compute daily metrics", err)
		return
	}

	from, to, err := rangeParams(r)
	if err != nil {
		h.fail(w, r, "Invalid range", err)
		return
	}
	if n := from.CountThrough(to); n > maxMetricsDays {
		h.fail(w, r, "Invalid range", payroll.Invalid("end", "range spans %d days, limit is %d", n, maxMetricsDays))
		return
	}

	period, days, err := h.Calc.ListDailyMetrics(ctx, worker, from, to)
	if err != nil {
		h.fail(w, r, "Failed to compute daily metrics", err)
		return
	}

	resp := DailyMetricsResponse{
		WorkerID: string(worker),
		Period:   toPayPeriodDTO(period),
		Days:     make([]DailyPayResponse, len(days)),
		TotalPay: decimal.Zero,
	}
	for i, d := range days {
		resp.Days[i] = toDailyPayResponse(d)
		resp.TotalPay = resp.TotalPay.Add(d.ComputedPay)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// IMPORT HANDLERS
// =============================================================================

// CreateImport ingests a CSV/XLSX upload (multipart field "file") or a
// JSON body {"filename": ..., "rows": [...]}. Re-uploading identical
// content answers 200 with status "duplicate" instead of 201.
// POST /api/imports
func (h *Handler) CreateImport(w http.ResponseWriter, r *http.Request) {
	sub, err := h.readSubmission(w, r)
	if err != nil {
		h.fail(w, r, "Invalid upload", err)
		return
	}

	ctx := r.Context()
	res, err := h.Imports.Ingest(ctx, sub)
	if err != nil {
		h.fail(w, r, "Failed to ingest import", err)
		return
	}
	for _, worker := range res.Workers {
		h.Calc.Invalidate(ctx, worker)
	}

	workers := make([]string, len(res.Workers))
	for i, wk := range res.Workers {
		workers[i] = string(wk)
	}
	status := http.StatusCreated
	if res.Status == imports.StatusDuplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, ImportResultDTO{
		ImportID:     string(res.Import.ID),
		Status:       string(res.Status),
		ImportStatus: string(res.Import.Status),
		Filename:     res.Import.Filename,
		RowsUpserted: res.RowsUpserted,
		RowsSkipped:  res.RowsSkipped,
		Workers:      workers,
	})
}

func (h *Handler) readSubmission(w http.ResponseWriter, r *http.Request) (imports.Submission, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			return imports.Submission{}, payroll.Invalid("file", "could not read upload: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return imports.Submission{}, payroll.Invalid("file", "multipart field \"file\" is required")
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			return imports.Submission{}, payroll.Invalid("file", "could not read upload: %v", err)
		}
		return imports.Submission{Filename: header.Filename, Content: content}, nil
	}

	var req JSONImportRequest
	if err := h.decode(r, &req); err != nil {
		return imports.Submission{}, err
	}
	return imports.Submission{Filename: req.Filename, Rows: req.Rows}, nil
}

// GetImport returns a ledger row with its parsed rows and fact count.
// GET /api/imports/{id}
func (h *Handler) GetImport(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Imports.Get(r.Context(), payroll.ImportID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Failed to get import", err)
		return
	}

	dto := toImportDTO(summary.Import)
	n := summary.SalesHoursRows
	dto.SalesHoursRows = &n
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// PAY PERIOD HANDLERS
// =============================================================================

// ListPayPeriods returns stored periods, earliest first.
func (h *Handler) ListPayPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.Store.ListPayPeriods(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list pay periods", err)
		return
	}

	dtos := make([]PayPeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toPayPeriodDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePayPeriod stores a new period.
func (h *Handler) CreatePayPeriod(w http.ResponseWriter, r *http.Request) {
	var req CreatePayPeriodRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	start, err := parseDate("start", req.Start)
	if err != nil {
		h.fail(w, r, "Invalid start", err)
		return
	}
	end, err := parseDate("end", req.End)
	if err != nil {
		h.fail(w, r, "Invalid end", err)
		return
	}

	period := payroll.PayPeriod{
		ID:       payroll.PeriodID(uuid.NewString()),
		Start:    start,
		End:      end,
		Timezone: req.Timezone,
	}
	if period.Timezone == "" {
		period.Timezone = payroll.DefaultTimezone
	}
	if err := period.Validate(); err != nil {
		h.fail(w, r, "Invalid pay period", err)
		return
	}
	if err := h.Store.SavePayPeriod(r.Context(), period); err != nil {
		h.fail(w, r, "Failed to create pay period", err)
		return
	}

	h.Log.WithFields(logrus.Fields{"period_id": period.ID, "period": period.String()}).Info("pay period created")
	writeJSON(w, http.StatusCreated, toPayPeriodDTO(period))
}

// GetPayPeriod returns one period.
func (h *Handler) GetPayPeriod(w http.ResponseWriter, r *http.Request) {
	period, err := h.requirePeriod(r.Context(), payroll.PeriodID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Failed to get pay period", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayPeriodDTO(*period))
}

// RecomputePayPeriod drops a worker's memoized results and recomputes
// every day of the period.
// POST /api/pay-periods/{id}/recompute?worker_id=...
func (h *Handler) RecomputePayPeriod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	period, err := h.requirePeriod(ctx, payroll.PeriodID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Failed to recompute", err)
		return
	}
	worker := payroll.WorkerID(r.URL.Query().Get("worker_id"))
	if worker == "" {
		h.fail(w, r, "Failed to recompute", payroll.Invalid("worker_id", "is required"))
		return
	}
	if _, err := h.requireWorker(ctx, worker); err != nil {
		h.fail(w, r, "Failed to recompute", err)
		return
	}

	if n := period.Len(); n > payroll.MaxPeriodDays {
		h.fail(w, r, "Failed to recompute", payroll.Invalid("period", "spans %d days, limit is %d", n, payroll.MaxPeriodDays))
		return
	}

	h.Calc.Invalidate(ctx, worker)
	total := decimal.Zero
	days := period.Days()
	for _, day := range days {
		res, err := h.Calc.ComputeDailyPay(ctx, worker, day, *period)
		if err != nil {
			h.fail(w, r, "Failed to recompute", err)
			return
		}
		total = total.Add(res.ComputedPay)
	}

	writeJSON(w, http.StatusOK, RecomputeDTO{
		PeriodID: string(period.ID),
		WorkerID: string(worker),
		Days:     len(days),
		TotalPay: total,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func workerParam(r *http.Request) payroll.WorkerID {
	return payroll.WorkerID(chi.URLParam(r, "id"))
}

func (h *Handler) requireWorker(ctx context.Context, id payroll.WorkerID) (*payroll.Worker, error) {
	worker, err := h.Store.GetWorker(ctx, id)
	if err != nil {
		return nil, err
	}
	if worker == nil {
		return nil, fmt.Errorf("%w: %s", payroll.ErrWorkerNotFound, id)
	}
	return worker, nil
}

// requireTierOf hides tiers that belong to another worker.
func (h *Handler) requireTierOf(ctx context.Context, worker payroll.WorkerID, id payroll.TierID) error {
	tier, err := h.Tiers.Get(ctx, id)
	if err != nil {
		return err
	}
	if tier.WorkerID != worker {
		return fmt.Errorf("%w: %s", payroll.ErrTierNotFound, id)
	}
	return nil
}

func (h *Handler) requirePeriod(ctx context.Context, id payroll.PeriodID) (*payroll.PayPeriod, error) {
	period, err := h.Store.GetPayPeriod(ctx, id)
	if err != nil {
		return nil, err
	}
	if period == nil {
		return nil, fmt.Errorf("%w: %s", payroll.ErrPayPeriodNotFound, id)
	}
	return period, nil
}

func parseDate(field, raw string) (payroll.Date, error) {
	if raw == "" {
		return payroll.Date{}, payroll.Invalid(field, "is required")
	}
	d, err := payroll.ParseDate(raw)
	if err != nil {
		return payroll.Date{}, payroll.Invalid(field, "invalid date %q (use YYYY-MM-DD)", raw)
	}
	return d, nil
}

func rangeParams(r *http.Request) (payroll.Date, payroll.Date, error) {
	q := r.URL.Query()
	from, err := parseDate("start", q.Get("start"))
	if err != nil {
		return payroll.Date{}, payroll.Date{}, err
	}
	to, err := parseDate("end", q.Get("end"))
	if err != nil {
		return payroll.Date{}, payroll.Date{}, err
	}
	if to.Before(from) {
		return payroll.Date{}, payroll.Date{}, payroll.Invalid("end", "must not be before start")
	}
	return from, to, nil
}

// decode reads a JSON body and runs struct validation.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return payroll.Invalid("body", "malformed JSON: %v", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return payroll.Invalid(fe.Field(), "failed %q check", fe.Tag())
		}
		return payroll.Invalid("body", "%v", err)
	}
	return nil
}

// fail maps a service error to a status and writes it. Only unexpected
// errors are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		h.Log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error(message)
	}
	writeErrorCode(w, status, code, message, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, payroll.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case payroll.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case payroll.IsConflict(err):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	writeErrorCode(w, status, "", message, err)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
