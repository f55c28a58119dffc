/*
Package facts is the validating front of the fact store.

PURPOSE:
  Records what happened on a day: how many demos a worker performed and
  how much they sold over how many hours. Every write is a full-row
  replace keyed by (worker, date); the latest write wins.

VALIDATION (before any write):
  - worker id is non-empty and known to the worker directory
  - demo count, sales and hours are non-negative
  - source defaults to "manual"

READS:
  Absent facts are returned as nil without error. Callers treat a
  missing day as zero.

SEE ALSO:
  - payroll/store.go:        FactStore contract
  - imports/ledger.go:       Bulk writer (source "import")
  - calculator/calculator.go: Reader
*/
package facts

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/tierpay/payroll"
)

// Backend is what the service needs from persistence.
type Backend interface {
	payroll.FactStore
	payroll.WorkerDirectory
}

// Service validates and persists daily facts.
type Service struct {
	store Backend
	log   logrus.FieldLogger
	now   func() time.Time
}

type Option func(*Service)

// WithLogger sets the logger. Defaults to the logrus standard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides the clock used for updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Backend, opts ...Option) *Service {
	s := &Service{store: store, log: logrus.StandardLogger(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// With returns a copy bound to another backend, typically a transaction.
func (s *Service) With(store Backend) *Service {
	c := *s
	c.store = store
	return &c
}

// =============================================================================
// WRITES
// =============================================================================

// UpsertDemo records the demo count for (worker, day).
func (s *Service) UpsertDemo(ctx context.Context, worker payroll.WorkerID, day payroll.Date, count int, source string) (*payroll.DemoFact, error) {
	if err := s.requireWorker(ctx, worker); err != nil {
		return nil, err
	}
	if day.IsZero() {
		return nil, payroll.Invalid("date", "is required")
	}
	if count < 0 {
		return nil, payroll.Invalid("demo_count", "must be >= 0, got %d", count)
	}

	fact := payroll.DemoFact{
		WorkerID:  worker,
		Date:      day,
		DemoCount: count,
		Source:    sourceOrDefault(source),
		UpdatedAt: s.now().UTC(),
	}
	if err := s.store.UpsertDemo(ctx, fact); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"worker_id":  worker,
		"date":       day.String(),
		"demo_count": count,
		"source":     fact.Source,
	}).Debug("demo fact upserted")
	return &fact, nil
}

// UpsertSalesHours records sales and hours for (worker, day). importRef is
// stored for traceability only.
func (s *Service) UpsertSalesHours(ctx context.Context, worker payroll.WorkerID, day payroll.Date, sales int64, hours decimal.Decimal, source string, importRef *payroll.ImportID) (*payroll.SalesHoursFact, error) {
	if err := s.requireWorker(ctx, worker); err != nil {
		return nil, err
	}
	if day.IsZero() {
		return nil, payroll.Invalid("date", "is required")
	}
	if sales < 0 {
		return nil, payroll.Invalid("sales", "must be >= 0, got %d", sales)
	}
	if hours.IsNegative() {
		return nil, payroll.Invalid("hours", "must be >= 0, got %s", hours)
	}

	fact := payroll.SalesHoursFact{
		WorkerID:  worker,
		Date:      day,
		Sales:     sales,
		Hours:     hours,
		Source:    sourceOrDefault(source),
		ImportRef: importRef,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.store.UpsertSalesHours(ctx, fact); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"worker_id": worker,
		"date":      day.String(),
		"sales":     sales,
		"hours":     hours.String(),
		"source":    fact.Source,
	}).Debug("sales/hours fact upserted")
	return &fact, nil
}

// =============================================================================
// READS
// =============================================================================

func (s *Service) GetDemo(ctx context.Context, worker payroll.WorkerID, day payroll.Date) (*payroll.DemoFact, error) {
	return s.store.GetDemo(ctx, worker, day)
}

func (s *Service) GetSalesHours(ctx context.Context, worker payroll.WorkerID, day payroll.Date) (*payroll.SalesHoursFact, error) {
	return s.store.GetSalesHours(ctx, worker, day)
}

// SumSales totals sales over [from, to] inclusive.
func (s *Service) SumSales(ctx context.Context, worker payroll.WorkerID, from, to payroll.Date) (int64, error) {
	if err := checkRange(from, to); err != nil {
		return 0, err
	}
	return s.store.SumSales(ctx, worker, from, to)
}

func (s *Service) ListDemos(ctx context.Context, worker payroll.WorkerID, from, to payroll.Date) ([]payroll.DemoFact, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	return s.store.ListDemos(ctx, worker, from, to)
}

func (s *Service) ListSalesHours(ctx context.Context, worker payroll.WorkerID, from, to payroll.Date) ([]payroll.SalesHoursFact, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	return s.store.ListSalesHours(ctx, worker, from, to)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) requireWorker(ctx context.Context, worker payroll.WorkerID) error {
	if worker == "" {
		return payroll.Invalid("worker_id", "is required")
	}
	w, err := s.store.GetWorker(ctx, worker)
	if err != nil {
		return err
	}
	if w == nil {
		return fmt.Errorf("%w: %s", payroll.ErrWorkerNotFound, worker)
	}
	return nil
}

func checkRange(from, to payroll.Date) error {
	if to.Before(from) {
		return payroll.Invalid("end", "%s is before start %s", to, from)
	}
	return nil
}

func sourceOrDefault(source string) string {
	if source == "" {
		return payroll.SourceManual
	}
	return source
}
