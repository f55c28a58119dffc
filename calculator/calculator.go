/*
Package calculator computes a worker's pay for a single day.

PURPOSE:
  Combines the day's facts with the tier schedule and returns a
  deterministic, explainable result. It never writes facts or tiers.

ALGORITHM (worker W, day D, pay period P):
  1. cumulative_sales = sum of sales from P.Start through D (reporting only)
  2. demos, sales, hours on D (missing facts are zero)
  3. candidates = tiers in effect on D
  4. a candidate is eligible iff
        sales >= sales_goal  AND  (daily_demo_min <= 0 OR demos >= daily_demo_min)
  5. base pay:  commission -> rate% x sales,  hourly -> hourly_rate x hours
  6. pick the eligible tier with the highest base pay; ties go to the
     higher demo bonus, then the higher sales goal, then candidate order
  7. total = base + demo_bonus x demos

ALL-OR-NOTHING:
  If no tier is eligible the day pays zero, even when hours were worked.
  This mirrors how eligibility is defined; see noTierResult.

ROUNDING:
  Currency and hours are rounded to 2 decimal places in the result only.
  Selection compares unrounded base pay.

MEMOIZATION:
  An optional Memo caches results per (worker, day, period). Writers must
  call Invalidate (or InvalidateMemo) after changing facts or tiers for a
  worker. Invalidation also rotates a per-worker generation token; a result
  whose computation overlapped an invalidation is dropped right after it
  is written.

SEE ALSO:
  - tiers/schedule.go: Candidate source
  - facts/facts.go:    Fact source
  - cache/redis.go:    Memo implementation
*/
package calculator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/tierpay/payroll"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// FactReader is the read side of the fact store.
type FactReader interface {
	GetDemo(ctx context.Context, worker payroll.WorkerID, day payroll.Date) (*payroll.DemoFact, error)
	GetSalesHours(ctx context.Context, worker payroll.WorkerID, day payroll.Date) (*payroll.SalesHoursFact, error)
	SumSales(ctx context.Context, worker payroll.WorkerID, from, to payroll.Date) (int64, error)
}

// TierSource returns the tiers in effect for a worker on a day, in
// candidate order.
type TierSource interface {
	ListActive(ctx context.Context, worker payroll.WorkerID, day payroll.Date) ([]payroll.TierRule, error)
}

// Memo caches computed results. Implementations must treat every error as
// a miss; the calculator never fails because of the memo.
type Memo interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, value any) error
	DeletePattern(ctx context.Context, pattern string) error
}

// Recorder receives calculation outcomes for metrics.
type Recorder interface {
	RecordDailyPay(mode string, eligible bool)
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// =============================================================================
// RESULT
// =============================================================================

// DailyPay is the explainable outcome for one worker-day.
type DailyPay struct {
	WorkerID              payroll.WorkerID `json:"worker_id"`
	Date                  payroll.Date     `json:"date"`
	TierID                *payroll.TierID  `json:"tier_id"`
	PayMode               payroll.PayMode  `json:"pay_mode"`
	HourlyRate            decimal.Decimal  `json:"hourly_rate"`
	CommissionRatePercent decimal.Decimal  `json:"commission_rate_percent"`
	DemoBonus             decimal.Decimal  `json:"demo_bonus"`
	ComputedPay           decimal.Decimal  `json:"computed_pay"`
	CumulativeSales       int64            `json:"cumulative_sales"`
	DemosToday            int              `json:"demos_today"`
	HoursToday            decimal.Decimal  `json:"hours_today"`
	SalesToday            int64            `json:"sales_today"`
	HasSalesHours         bool             `json:"has_sales_hours"`
	HasDemos              bool             `json:"has_demos"`
}

// Eligible reports whether a tier was selected.
func (d DailyPay) Eligible() bool {
	return d.TierID != nil
}

// =============================================================================
// CALCULATOR
// =============================================================================

type Calculator struct {
	facts    FactReader
	tiers    TierSource
	periods  payroll.PeriodStore
	memo     Memo
	recorder Recorder
	log      logrus.FieldLogger
}

type Option func(*Calculator)

// WithMemo enables result memoization.
func WithMemo(m Memo) Option {
	return func(c *Calculator) { c.memo = m }
}

func WithRecorder(r Recorder) Option {
	return func(c *Calculator) { c.recorder = r }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Calculator) { c.log = l }
}

func New(facts FactReader, tiers TierSource, periods payroll.PeriodStore, opts ...Option) *Calculator {
	c := &Calculator{facts: facts, tiers: tiers, periods: periods, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ComputeDailyPay evaluates one worker-day against period for cumulative
// reporting. Missing facts are zero; the only errors are store failures
// and an empty worker id.
func (c *Calculator) ComputeDailyPay(ctx context.Context, worker payroll.WorkerID, day payroll.Date, period payroll.PayPeriod) (DailyPay, error) {
	if worker == "" {
		return DailyPay{}, payroll.Invalid("worker_id", "is required")
	}

	key := memoKey(worker, day, period)
	var gen string
	if c.memo != nil {
		var cached DailyPay
		hit, err := c.memo.GetJSON(ctx, key, &cached)
		if err != nil {
			c.log.WithError(err).WithField("key", key).Warn("memo read failed")
		}
		if hit && err == nil {
			c.recordCache(true)
			return cached, nil
		}
		c.recordCache(false)
		gen = c.generation(ctx, worker)
	}

	result, err := c.compute(ctx, worker, day, period)
	if err != nil {
		return DailyPay{}, err
	}

	if c.memo != nil {
		c.remember(ctx, worker, key, gen, result)
	}
	if c.recorder != nil {
		c.recorder.RecordDailyPay(string(result.PayMode), result.Eligible())
	}
	return result, nil
}

func (c *Calculator) compute(ctx context.Context, worker payroll.WorkerID, day payroll.Date, period payroll.PayPeriod) (DailyPay, error) {
	var cumulative int64
	if !day.Before(period.Start) {
		total, err := c.facts.SumSales(ctx, worker, period.Start, day)
		if err != nil {
			return DailyPay{}, fmt.Errorf("sum sales: %w", err)
		}
		cumulative = total
	}

	demoFact, err := c.facts.GetDemo(ctx, worker, day)
	if err != nil {
		return DailyPay{}, fmt.Errorf("get demos: %w", err)
	}
	shFact, err := c.facts.GetSalesHours(ctx, worker, day)
	if err != nil {
		return DailyPay{}, fmt.Errorf("get sales/hours: %w", err)
	}

	today := dayFacts{hours: decimal.Zero}
	if demoFact != nil {
		today.demos = demoFact.DemoCount
	}
	if shFact != nil {
		today.sales = shFact.Sales
		today.hours = shFact.Hours
	}

	candidates, err := c.tiers.ListActive(ctx, worker, day)
	if err != nil {
		return DailyPay{}, fmt.Errorf("list tiers: %w", err)
	}

	result := noTierResult()
	if best, ok := selectTier(candidates, today); ok {
		result = payFor(best.tier, best.base, today)
	}

	result.WorkerID = worker
	result.Date = day
	result.CumulativeSales = cumulative
	result.DemosToday = today.demos
	result.SalesToday = today.sales
	result.HoursToday = today.hours.Round(2)
	result.HasSalesHours = shFact != nil
	result.HasDemos = demoFact != nil

	c.log.WithFields(logrus.Fields{
		"worker_id":    worker,
		"date":         day.String(),
		"eligible":     result.Eligible(),
		"computed_pay": result.ComputedPay.StringFixed(2),
	}).Debug("daily pay computed")
	return result, nil
}

// ListDailyMetrics computes every day in [from, to] against the stored pay
// period covering the range, or a transient UTC period spanning it.
func (c *Calculator) ListDailyMetrics(ctx context.Context, worker payroll.WorkerID, from, to payroll.Date) (payroll.PayPeriod, []DailyPay, error) {
	period, err := payroll.FindCovering(ctx, c.periods, from, to)
	if err != nil {
		return payroll.PayPeriod{}, nil, err
	}

	days := from.DaysThrough(to)
	results := make([]DailyPay, 0, len(days))
	for _, day := range days {
		r, err := c.ComputeDailyPay(ctx, worker, day, period)
		if err != nil {
			return payroll.PayPeriod{}, nil, err
		}
		results = append(results, r)
	}
	return period, results, nil
}

// Invalidate drops memoized results for worker.
func (c *Calculator) Invalidate(ctx context.Context, worker payroll.WorkerID) {
	if err := InvalidateMemo(ctx, c.memo, worker); err != nil {
		c.log.WithError(err).WithField("worker_id", worker).Warn("memo invalidation failed")
	}
}

// InvalidateMemo drops memoized results for worker straight from memo, for
// writers that hold no Calculator. A nil memo is a no-op.
func InvalidateMemo(ctx context.Context, memo Memo, worker payroll.WorkerID) error {
	if memo == nil {
		return nil
	}
	genErr := memo.SetJSON(ctx, generationKey(worker), uuid.NewString())
	return errors.Join(genErr, memo.DeletePattern(ctx, workerPattern(worker)))
}

// remember caches result, then drops it again if worker was invalidated
// since gen was read.
func (c *Calculator) remember(ctx context.Context, worker payroll.WorkerID, key, gen string, result DailyPay) {
	if err := c.memo.SetJSON(ctx, key, result); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("memo write failed")
		return
	}
	if c.generation(ctx, worker) == gen {
		return
	}
	if err := c.memo.DeletePattern(ctx, key); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("memo write rollback failed")
	}
}

// generation is empty until the worker is first invalidated.
func (c *Calculator) generation(ctx context.Context, worker payroll.WorkerID) string {
	var gen string
	if _, err := c.memo.GetJSON(ctx, generationKey(worker), &gen); err != nil {
		c.log.WithError(err).WithField("worker_id", worker).Debug("memo generation read failed")
	}
	return gen
}

// =============================================================================
// SELECTION
// =============================================================================

type dayFacts struct {
	demos int
	sales int64
	hours decimal.Decimal
}

type candidate struct {
	tier payroll.TierRule
	base decimal.Decimal
}

// eligible applies the same-day sales goal and the optional demo minimum.
func eligible(t payroll.TierRule, f dayFacts) bool {
	if f.sales < t.SalesGoal {
		return false
	}
	return t.DailyDemoMinimum <= 0 || f.demos >= t.DailyDemoMinimum
}

func basePay(t payroll.TierRule, f dayFacts) decimal.Decimal {
	if t.PayMode == payroll.PayModeCommission {
		return t.CommissionRatePercent.Div(decimal.NewFromInt(100)).Mul(decimal.NewFromInt(f.sales))
	}
	return t.HourlyRate.Mul(f.hours)
}

// selectTier picks the best eligible candidate. Input order breaks full ties.
func selectTier(tiers []payroll.TierRule, f dayFacts) (candidate, bool) {
	var pool []candidate
	for _, t := range tiers {
		if eligible(t, f) {
			pool = append(pool, candidate{tier: t, base: basePay(t, f)})
		}
	}
	if len(pool) == 0 {
		return candidate{}, false
	}

	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if !a.base.Equal(b.base) {
			return a.base.GreaterThan(b.base)
		}
		if !a.tier.DemoBonus.Equal(b.tier.DemoBonus) {
			return a.tier.DemoBonus.GreaterThan(b.tier.DemoBonus)
		}
		return a.tier.SalesGoal > b.tier.SalesGoal
	})
	return pool[0], true
}

func payFor(t payroll.TierRule, base decimal.Decimal, f dayFacts) DailyPay {
	id := t.ID
	total := base.Add(t.DemoBonus.Mul(decimal.NewFromInt(int64(f.demos))))
	return DailyPay{
		TierID:                &id,
		PayMode:               t.PayMode,
		HourlyRate:            t.HourlyRate.Round(2),
		CommissionRatePercent: t.CommissionRatePercent.Round(2),
		DemoBonus:             t.DemoBonus.Round(2),
		ComputedPay:           total.Round(2),
	}
}

// noTierResult is the all-or-nothing outcome: no tier, zero pay, reported
// as hourly.
func noTierResult() DailyPay {
	return DailyPay{
		PayMode:               payroll.PayModeHourly,
		HourlyRate:            decimal.Zero,
		CommissionRatePercent: decimal.Zero,
		DemoBonus:             decimal.Zero,
		ComputedPay:           decimal.Zero,
	}
}

// =============================================================================
// MEMO KEYS
// =============================================================================

const memoPrefix = "dailypay"

func memoKey(worker payroll.WorkerID, day payroll.Date, period payroll.PayPeriod) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", memoPrefix, worker, day, period.Start, period.End)
}

func workerPattern(worker payroll.WorkerID) string {
	return fmt.Sprintf("%s:%s:*", memoPrefix, worker)
}

// generationKey sits outside workerPattern so invalidation never deletes it.
func generationKey(worker payroll.WorkerID) string {
	return fmt.Sprintf("%s-gen:%s", memoPrefix, worker)
}

func (c *Calculator) recordCache(hit bool) {
	if c.recorder == nil {
		return
	}
	if hit {
		c.recorder.RecordCacheHit("redis")
	} else {
		c.recorder.RecordCacheMiss("redis")
	}
}
