/*
Package tiers manages each worker's tier schedule.

PURPOSE:
  A tier is one way a worker can be paid for a day: either an hourly rate
  or a commission percentage of same-day sales, plus a per-demo bonus.
  The calculator asks the schedule which tiers are in effect on a date
  and picks the best eligible one.

INVARIANTS:
  - At most one ACTIVE tier per (worker, pay mode). Upsert overwrites the
    active tier of the same mode in place; it never creates a second one.
  - A tier is in effect on day D iff it is active and effective_from <= D.
  - Rates that do not apply to the tier's mode are stored as zero.
  - Tiers are deactivated, never deleted, so history stays explainable.

ORDERING:
  ListActive:  order_index, then sales goal, then id (candidate order)
  List:        sales goal, then id (display order)

SEE ALSO:
  - calculator/calculator.go: Consumer of ListActive
*/
package tiers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/tierpay/payroll"
)

// Schedule reads and edits tier rules.
type Schedule struct {
	store payroll.TierStore
	log   logrus.FieldLogger
	now   func() time.Time
}

type Option func(*Schedule)

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Schedule) { s.log = l }
}

// WithClock overrides the clock used for timestamps and the default
// effective date.
func WithClock(now func() time.Time) Option {
	return func(s *Schedule) { s.now = now }
}

func New(store payroll.TierStore, opts ...Option) *Schedule {
	s := &Schedule{store: store, log: logrus.StandardLogger(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fields are the values supplied when creating or overwriting a tier.
// Nil pointers keep the existing value (or the default on create).
type Fields struct {
	SalesGoal             int64
	DailyDemoMinimum      int
	HourlyRate            decimal.Decimal
	CommissionRatePercent decimal.Decimal
	DemoBonus             decimal.Decimal
	EffectiveFrom         *payroll.Date
	OrderIndex            *int
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	SalesGoal             *int64
	DailyDemoMinimum      *int
	PayMode               *payroll.PayMode
	HourlyRate            *decimal.Decimal
	CommissionRatePercent *decimal.Decimal
	DemoBonus             *decimal.Decimal
	EffectiveFrom         *payroll.Date
	Active                *bool
	OrderIndex            *int
}

// =============================================================================
// READS
// =============================================================================

// ListActive returns the tiers in effect for worker on day, in candidate order.
func (s *Schedule) ListActive(ctx context.Context, worker payroll.WorkerID, day payroll.Date) ([]payroll.TierRule, error) {
	all, err := s.store.ListTiers(ctx, worker)
	if err != nil {
		return nil, err
	}

	var active []payroll.TierRule
	for _, t := range all {
		if t.InEffect(day) {
			active = append(active, t)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if a.OrderIndex != b.OrderIndex {
			return a.OrderIndex < b.OrderIndex
		}
		if a.SalesGoal != b.SalesGoal {
			return a.SalesGoal < b.SalesGoal
		}
		return a.ID < b.ID
	})
	return active, nil
}

// List returns every tier for worker, active or not.
func (s *Schedule) List(ctx context.Context, worker payroll.WorkerID) ([]payroll.TierRule, error) {
	tiers, err := s.store.ListTiers(ctx, worker)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tiers, func(i, j int) bool {
		if tiers[i].SalesGoal != tiers[j].SalesGoal {
			return tiers[i].SalesGoal < tiers[j].SalesGoal
		}
		return tiers[i].ID < tiers[j].ID
	})
	return tiers, nil
}

// Get returns a tier or ErrTierNotFound.
func (s *Schedule) Get(ctx context.Context, id payroll.TierID) (*payroll.TierRule, error) {
	t, err := s.store.GetTier(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", payroll.ErrTierNotFound, id)
	}
	return t, nil
}

// =============================================================================
// WRITES
// =============================================================================

// Upsert overwrites the worker's active tier of this mode, or creates one.
func (s *Schedule) Upsert(ctx context.Context, worker payroll.WorkerID, mode payroll.PayMode, f Fields) (*payroll.TierRule, error) {
	if worker == "" {
		return nil, payroll.Invalid("worker_id", "is required")
	}
	if !mode.Valid() {
		return nil, payroll.Invalid("pay_mode", "must be hourly or commission, got %q", mode)
	}

	existing, err := s.activeByMode(ctx, worker, mode)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var tier payroll.TierRule
	if existing != nil {
		tier = *existing
	} else {
		tier = payroll.TierRule{
			ID:            payroll.TierID(uuid.NewString()),
			WorkerID:      worker,
			PayMode:       mode,
			EffectiveFrom: payroll.DateOf(now),
			Active:        true,
			CreatedAt:     now,
		}
	}

	tier.SalesGoal = f.SalesGoal
	tier.DailyDemoMinimum = f.DailyDemoMinimum
	tier.HourlyRate = f.HourlyRate
	tier.CommissionRatePercent = f.CommissionRatePercent
	tier.DemoBonus = f.DemoBonus
	if f.EffectiveFrom != nil {
		tier.EffectiveFrom = *f.EffectiveFrom
	}
	if f.OrderIndex != nil {
		tier.OrderIndex = *f.OrderIndex
	}
	tier.UpdatedAt = now
	normalizeRates(&tier)

	if err := validate(tier); err != nil {
		return nil, err
	}
	if err := s.store.SaveTier(ctx, tier); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"worker_id": worker,
		"tier_id":   tier.ID,
		"pay_mode":  mode,
		"replaced":  existing != nil,
	}).Info("tier upserted")
	return &tier, nil
}

// Update applies a partial change to one tier.
func (s *Schedule) Update(ctx context.Context, id payroll.TierID, p Patch) (*payroll.TierRule, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	tier := *current

	if p.SalesGoal != nil {
		tier.SalesGoal = *p.SalesGoal
	}
	if p.DailyDemoMinimum != nil {
		tier.DailyDemoMinimum = *p.DailyDemoMinimum
	}
	if p.PayMode != nil {
		if !p.PayMode.Valid() {
			return nil, payroll.Invalid("pay_mode", "must be hourly or commission, got %q", *p.PayMode)
		}
		tier.PayMode = *p.PayMode
	}
	if p.HourlyRate != nil {
		tier.HourlyRate = *p.HourlyRate
	}
	if p.CommissionRatePercent != nil {
		tier.CommissionRatePercent = *p.CommissionRatePercent
	}
	if p.DemoBonus != nil {
		tier.DemoBonus = *p.DemoBonus
	}
	if p.EffectiveFrom != nil {
		tier.EffectiveFrom = *p.EffectiveFrom
	}
	if p.Active != nil {
		tier.Active = *p.Active
	}
	if p.OrderIndex != nil {
		tier.OrderIndex = *p.OrderIndex
	}
	normalizeRates(&tier)

	if err := validate(tier); err != nil {
		return nil, err
	}
	if tier.Active {
		other, err := s.activeByMode(ctx, tier.WorkerID, tier.PayMode)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != tier.ID {
			return nil, fmt.Errorf("%w: %s already has active %s tier %s",
				payroll.ErrTierConflict, tier.WorkerID, tier.PayMode, other.ID)
		}
	}

	tier.UpdatedAt = s.now().UTC()
	if err := s.store.SaveTier(ctx, tier); err != nil {
		return nil, err
	}
	return &tier, nil
}

// Deactivate marks a tier inactive. The row is kept.
func (s *Schedule) Deactivate(ctx context.Context, id payroll.TierID) (*payroll.TierRule, error) {
	tier, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tier.Active {
		return tier, nil
	}
	tier.Active = false
	tier.UpdatedAt = s.now().UTC()
	if err := s.store.SaveTier(ctx, *tier); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"worker_id": tier.WorkerID,
		"tier_id":   tier.ID,
	}).Info("tier deactivated")
	return tier, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Schedule) activeByMode(ctx context.Context, worker payroll.WorkerID, mode payroll.PayMode) (*payroll.TierRule, error) {
	all, err := s.store.ListTiers(ctx, worker)
	if err != nil {
		return nil, err
	}
	for _, t := range all {
		if t.Active && t.PayMode == mode {
			return &t, nil
		}
	}
	return nil, nil
}

// normalizeRates zeroes the rate that does not apply to the tier's mode.
func normalizeRates(t *payroll.TierRule) {
	switch t.PayMode {
	case payroll.PayModeHourly:
		t.CommissionRatePercent = decimal.Zero
	case payroll.PayModeCommission:
		t.HourlyRate = decimal.Zero
	}
}

func validate(t payroll.TierRule) error {
	if t.SalesGoal < 0 {
		return payroll.Invalid("sales_goal", "must be >= 0")
	}
	if t.DailyDemoMinimum < 0 {
		return payroll.Invalid("daily_demo_min", "must be >= 0")
	}
	if t.HourlyRate.IsNegative() {
		return payroll.Invalid("hourly_rate", "must be >= 0")
	}
	if t.CommissionRatePercent.IsNegative() {
		return payroll.Invalid("commission_rate_percent", "must be >= 0")
	}
	if t.DemoBonus.IsNegative() {
		return payroll.Invalid("demo_bonus", "must be >= 0")
	}
	if t.EffectiveFrom.IsZero() {
		return payroll.Invalid("effective_from", "is required")
	}
	return nil
}
