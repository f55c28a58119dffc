/*
Package payroll holds the shared vocabulary of the tiered daily pay engine.

PURPOSE:
  Entities, identifiers and persistence contracts used by every other
  package. Nothing in here computes pay; it only describes the facts the
  calculator reads and the rules it evaluates.

KEY CONCEPTS IN THIS FILE (types.go):
  - DemoFact:       Demos performed by one worker on one date
  - SalesHoursFact: Sales and hours worked by one worker on one date
  - RawImport:      Ledger entry for one uploaded sales/hours file
  - TierRule:       One eligibility rule in a worker's tier schedule
  - PayPeriod:      A named date range used for cumulative reporting
  - Worker:         Directory record used to resolve import rows

UNIQUENESS:
  Facts are keyed by (worker, date); a second write for the same key
  replaces the first. RawImport is keyed by the SHA-256 of its content.
  At most one ACTIVE TierRule exists per (worker, pay mode).

MONEY:
  Rates, bonuses, hours and pay use decimal.Decimal. Sales are whole
  currency units (int64).

SEE ALSO:
  - date.go:   Civil date type used as fact keys
  - store.go:  Persistence interfaces
  - errors.go: Error kinds
*/
package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkerID string
type TierID string
type ImportID string
type PeriodID string

// =============================================================================
// FACTS
// =============================================================================

// Fact sources.
const (
	SourceManual = "manual"
	SourceImport = "import"
)

// DemoFact is the number of demos a worker performed on a date.
type DemoFact struct {
	WorkerID  WorkerID
	Date      Date
	DemoCount int
	Source    string
	UpdatedAt time.Time
}

// SalesHoursFact is a worker's sales and hours for a date.
// ImportRef is traceability only; it never affects pay.
type SalesHoursFact struct {
	WorkerID  WorkerID
	Date      Date
	Sales     int64
	Hours     decimal.Decimal
	Source    string
	ImportRef *ImportID
	UpdatedAt time.Time
}

// =============================================================================
// RAW IMPORT
// =============================================================================

type ImportStatus string

const (
	// ImportParsed means a header was recognised and rows were read.
	ImportParsed ImportStatus = "parsed"
	// ImportEmpty means the file was malformed or had no usable rows.
	ImportEmpty ImportStatus = "empty"
)

// RawImport records one ingested file. ContentHash is unique.
type RawImport struct {
	ID          ImportID
	Filename    string
	ContentHash string
	UploadedAt  time.Time
	Status      ImportStatus
	ParsedRows  []map[string]string
}

// =============================================================================
// TIER RULE
// =============================================================================

type PayMode string

const (
	PayModeHourly     PayMode = "hourly"
	PayModeCommission PayMode = "commission"
)

// Valid reports whether m is a known pay mode.
func (m PayMode) Valid() bool {
	return m == PayModeHourly || m == PayModeCommission
}

// TierRule is one entry of a worker's tier schedule.
//
// SalesGoal is compared against the sales of the evaluated day, not the
// period-to-date total, even though it is persisted as sales_goal_in_period.
type TierRule struct {
	ID                    TierID
	WorkerID              WorkerID
	SalesGoal             int64
	DailyDemoMinimum      int
	PayMode               PayMode
	HourlyRate            decimal.Decimal
	CommissionRatePercent decimal.Decimal
	DemoBonus             decimal.Decimal
	EffectiveFrom         Date
	Active                bool
	OrderIndex            int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// InEffect reports whether the rule is active and effective on day.
func (t TierRule) InEffect(day Date) bool {
	return t.Active && t.EffectiveFrom.BeforeOrEqual(day)
}

// =============================================================================
// WORKER DIRECTORY
// =============================================================================

// Worker is the minimal identity record the engine needs.
type Worker struct {
	ID         WorkerID
	Name       string
	Email      string
	Username   string
	LocationID string
	CreatedAt  time.Time
}

// WorkerRef identifies a worker by any of the keys an import row may carry.
type WorkerRef struct {
	ID       WorkerID
	Email    string
	Username string
}

// IsZero reports whether the reference carries no key at all.
func (r WorkerRef) IsZero() bool {
	return r.ID == "" && r.Email == "" && r.Username == ""
}
