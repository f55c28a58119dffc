package payroll

import (
	"context"
	"time"
	_ "time/tzdata"
)

// =============================================================================
// PAY PERIOD - Reporting window for cumulative sales
// =============================================================================

// DefaultTimezone is used for transient periods and when none is supplied.
const DefaultTimezone = "UTC"

// MaxPeriodDays bounds a stored pay period.
const MaxPeriodDays = 366

// PayPeriod is a date range. A transient period (built on the fly for an
// uncovered range) has an empty ID and is never stored.
type PayPeriod struct {
	ID       PeriodID
	Start    Date
	End      Date
	Timezone string
}

// Contains returns true if day is within [Start, End].
func (p PayPeriod) Contains(day Date) bool {
	return day.AfterOrEqual(p.Start) && day.BeforeOrEqual(p.End)
}

// Days returns all days in the period.
func (p PayPeriod) Days() []Date {
	return p.Start.DaysThrough(p.End)
}

// Len is the number of days in the period.
func (p PayPeriod) Len() int {
	return p.Start.CountThrough(p.End)
}

// Transient reports whether the period was synthesized rather than stored.
func (p PayPeriod) Transient() bool {
	return p.ID == ""
}

// Validate checks ordering and the timezone name.
func (p PayPeriod) Validate() error {
	if p.Start.IsZero() {
		return Invalid("start_date", "is required")
	}
	if p.End.IsZero() {
		return Invalid("end_date", "is required")
	}
	if p.End.Before(p.Start) {
		return Invalid("end_date", "must not be before start_date")
	}
	if n := p.Len(); n > MaxPeriodDays {
		return Invalid("end_date", "period spans %d days, limit is %d", n, MaxPeriodDays)
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return Invalid("timezone", "unknown timezone %q", p.Timezone)
		}
	}
	return nil
}

func (p PayPeriod) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// FindCovering returns a stored period with start <= from and end >= to.
// When none exists it returns a transient UTC period spanning exactly
// [from, to].
func FindCovering(ctx context.Context, periods PeriodStore, from, to Date) (PayPeriod, error) {
	if to.Before(from) {
		return PayPeriod{}, Invalid("end", "must not be before start")
	}
	found, err := periods.FindCoveringPeriod(ctx, from, to)
	if err != nil {
		return PayPeriod{}, err
	}
	if found != nil {
		return *found, nil
	}
	return PayPeriod{Start: from, End: to, Timezone: DefaultTimezone}, nil
}
