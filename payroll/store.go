/*
store.go - Persistence interfaces for facts, tiers, imports and periods

PURPOSE:
  Defines the boundary between the pay engine and the database.
  Different implementations can use SQLite or in-memory storage; the
  engine never depends on a concrete backend.

KEY INTERFACES:
  FactStore:       Demo and sales/hours facts keyed by (worker, date)
  TierStore:       Tier rules per worker
  ImportStore:     Raw import ledger, unique by content hash
  PeriodStore:     Pay periods
  WorkerDirectory: Identity lookups used by imports and the API
  Store:           All of the above
  TxStore:         Store plus atomic multi-write transactions

UPSERT CONTRACT:
  Fact writes replace the whole row for (worker, date). Absent facts are
  reported as (nil, nil) by getters, never as an error.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go:  SQLite
  - payroll/store/memory.go: In-memory for tests and development

SEE ALSO:
  - facts/facts.go:     Validating service on top of FactStore
  - imports/ledger.go:  Uses TxStore for all-or-nothing ingestion
*/
package payroll

import "context"

// =============================================================================
// FACTS
// =============================================================================

type FactStore interface {
	// UpsertDemo replaces the demo fact for (worker, date).
	UpsertDemo(ctx context.Context, f DemoFact) error

	// UpsertSalesHours replaces the sales/hours fact for (worker, date).
	UpsertSalesHours(ctx context.Context, f SalesHoursFact) error

	GetDemo(ctx context.Context, worker WorkerID, day Date) (*DemoFact, error)
	GetSalesHours(ctx context.Context, worker WorkerID, day Date) (*SalesHoursFact, error)

	// SumSales totals sales over [from, to]. Missing days count as zero.
	SumSales(ctx context.Context, worker WorkerID, from, to Date) (int64, error)

	// ListDemos and ListSalesHours return facts in [from, to] ordered by date.
	ListDemos(ctx context.Context, worker WorkerID, from, to Date) ([]DemoFact, error)
	ListSalesHours(ctx context.Context, worker WorkerID, from, to Date) ([]SalesHoursFact, error)

	// CountSalesHoursByImport counts facts whose ImportRef is id.
	CountSalesHoursByImport(ctx context.Context, id ImportID) (int, error)
}

// =============================================================================
// TIERS
// =============================================================================

type TierStore interface {
	// SaveTier inserts or updates by ID.
	SaveTier(ctx context.Context, t TierRule) error
	GetTier(ctx context.Context, id TierID) (*TierRule, error)

	// ListTiers returns every rule for the worker, active or not,
	// ordered by sales goal then id.
	ListTiers(ctx context.Context, worker WorkerID) ([]TierRule, error)
}

// =============================================================================
// IMPORTS
// =============================================================================

type ImportStore interface {
	// CreateImport returns ErrDuplicateImport if ContentHash already exists.
	CreateImport(ctx context.Context, imp RawImport) error
	GetImport(ctx context.Context, id ImportID) (*RawImport, error)
	GetImportByHash(ctx context.Context, hash string) (*RawImport, error)
}

// =============================================================================
// PAY PERIODS
// =============================================================================

type PeriodStore interface {
	SavePayPeriod(ctx context.Context, p PayPeriod) error
	GetPayPeriod(ctx context.Context, id PeriodID) (*PayPeriod, error)
	ListPayPeriods(ctx context.Context) ([]PayPeriod, error)

	// FindCoveringPeriod returns the stored period with the earliest start
	// such that start <= from and end >= to, or nil.
	FindCoveringPeriod(ctx context.Context, from, to Date) (*PayPeriod, error)
}

// =============================================================================
// WORKER DIRECTORY
// =============================================================================

type WorkerDirectory interface {
	SaveWorker(ctx context.Context, w Worker) error
	GetWorker(ctx context.Context, id WorkerID) (*Worker, error)
	ListWorkers(ctx context.Context) ([]Worker, error)

	// Lookups are case-insensitive.
	FindWorkerByEmail(ctx context.Context, email string) (*Worker, error)
	FindWorkerByUsername(ctx context.Context, username string) (*Worker, error)
}

// ResolveWorker tries id, then email, then username. Returns nil when no
// key matches a known worker.
func ResolveWorker(ctx context.Context, dir WorkerDirectory, ref WorkerRef) (*Worker, error) {
	if ref.ID != "" {
		w, err := dir.GetWorker(ctx, ref.ID)
		if err != nil || w != nil {
			return w, err
		}
	}
	if ref.Email != "" {
		w, err := dir.FindWorkerByEmail(ctx, ref.Email)
		if err != nil || w != nil {
			return w, err
		}
	}
	if ref.Username != "" {
		return dir.FindWorkerByUsername(ctx, ref.Username)
	}
	return nil, nil
}

// =============================================================================
// AGGREGATE + TRANSACTIONAL STORE
// =============================================================================

// Store is everything the engine persists.
type Store interface {
	FactStore
	TierStore
	ImportStore
	PeriodStore
	WorkerDirectory
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
