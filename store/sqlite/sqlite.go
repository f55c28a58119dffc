/*
Package sqlite provides a SQLite-backed implementation of the payroll storage interfaces.

PURPOSE:
  Implements payroll.TxStore (facts, tiers, raw imports, pay periods and
  the worker directory) using SQLite through database/sql.

KEY TABLES:
  demo_fact:        Demo counts, UNIQUE(worker_id, date)
  sales_hours_fact: Sales and hours, UNIQUE(worker_id, date)
  raw_import:       Import ledger, UNIQUE(content_hash)
  tier_rule:        Tier schedule, at most one active rule per (worker, pay_mode)
  pay_period:       Reporting windows
  workers:          Directory used to resolve import rows

UPSERTS:
  Fact writes use INSERT ... ON CONFLICT(worker_id, date) DO UPDATE so a
  second write for the same key replaces every column (last write wins).

CONSTRAINTS:
  - idx_raw_import_hash turns a concurrent duplicate import into
    payroll.ErrDuplicateImport.
  - idx_tier_active_mode turns a second active rule for a mode into
    payroll.ErrTierConflict.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single pooled connection so
  ":memory:" databases are shared by every query.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/tierpay.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - payroll/store.go: Interface definitions
  - payroll/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/tierpay/payroll"
)

// Store implements payroll.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ payroll.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Demo facts (one row per worker per day)
	CREATE TABLE IF NOT EXISTS demo_fact (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		worker_id TEXT NOT NULL,
		date TEXT NOT NULL,
		demo_count INTEGER NOT NULL CHECK (demo_count >= 0),
		source TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (worker_id, date)
	);

	-- Sales/hours facts (one row per worker per day)
	CREATE TABLE IF NOT EXISTS sales_hours_fact (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		worker_id TEXT NOT NULL,
		date TEXT NOT NULL,
		sales INTEGER NOT NULL CHECK (sales >= 0),
		hours TEXT NOT NULL,
		source TEXT NOT NULL,
		import_ref TEXT,
		updated_at TEXT NOT NULL,
		UNIQUE (worker_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_sales_hours_import
		ON sales_hours_fact(import_ref) WHERE import_ref IS NOT NULL;

	-- Raw import ledger
	CREATE TABLE IF NOT EXISTS raw_import (
		id TEXT PRIMARY KEY,
		filename TEXT,
		content_hash TEXT NOT NULL,
		uploaded_at TEXT NOT NULL,
		status TEXT NOT NULL,
		parsed_rows_json TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_raw_import_hash
		ON raw_import(content_hash);

	-- Tier schedule (rules are deactivated, never deleted)
	CREATE TABLE IF NOT EXISTS tier_rule (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		sales_goal_in_period INTEGER NOT NULL DEFAULT 0,
		daily_demo_min INTEGER NOT NULL DEFAULT 0,
		pay_mode TEXT NOT NULL CHECK (pay_mode IN ('hourly', 'commission')),
		hourly_rate TEXT NOT NULL DEFAULT '0',
		commission_rate_percent TEXT NOT NULL DEFAULT '0',
		demo_bonus TEXT NOT NULL DEFAULT '0',
		effective_from TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		order_index INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tier_rule_worker
		ON tier_rule(worker_id, active, effective_from);

	-- At most one active rule per pay mode
	CREATE UNIQUE INDEX IF NOT EXISTS idx_tier_active_mode
		ON tier_rule(worker_id, pay_mode) WHERE active = 1;

	-- Pay periods
	CREATE TABLE IF NOT EXISTS pay_period (
		id TEXT PRIMARY KEY,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		timezone TEXT NOT NULL DEFAULT 'UTC'
	);

	CREATE INDEX IF NOT EXISTS idx_pay_period_range
		ON pay_period(start_date, end_date);

	-- Worker directory
	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		username TEXT,
		location_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_workers_email ON workers(lower(email));
	CREATE INDEX IF NOT EXISTS idx_workers_username ON workers(lower(username));
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries runs statements without taking the store lock. Store wraps each
// call with the lock; WithTx hands a tx-bound queries to the callback.
type queries struct {
	q querier
}

func (s *Store) queries() queries {
	return queries{q: s.db}
}

// =============================================================================
// TRANSACTIONAL STORE (payroll.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store payroll.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// =============================================================================
// FACT STORE
// =============================================================================

func (s *Store) UpsertDemo(ctx context.Context, f payroll.DemoFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries().UpsertDemo(ctx, f)
}

func (s *Store) UpsertSalesHours(ctx context.Context, f payroll.SalesHoursFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries().UpsertSalesHours(ctx, f)
}

func (s *Store) GetDemo(ctx context.Context, worker payroll.WorkerID, day payroll.Date) (*payroll.DemoFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries().GetDemo(ctx, worker, day)
}

func (s *Store) GetSalesHours(ctx context.Context, worker payroll.WorkerID, day payroll.Date) (*payroll.SalesHoursFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries().GetSalesHours(ctx, worker, day)
}

func (s *Store) SumSales(ctx context.Context, worker payroll.WorkerID, from, to payroll.Date) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries().SumSales(ctx, worker, from, to)
}

func (s *Store) ListDemos(ctx context.Context, worker payroll.WorkerID, from, to payroll.Date) ([]payroll.DemoFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries().ListDemos(ctx, worker, from, to)
}

func (s *Store) ListSalesHours(ctx context.Context, worker payroll.WorkerID, from, to payroll.Date) ([]payroll.SalesHoursFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries().ListSalesHours(ctx, worker, from, to)
}

func (s *Store) CountSalesHoursByImport(ctx context.Context, id payroll.ImportID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries().CountSalesHoursByImport(ctx, id)
}

func (q queries) UpsertDemo(ctx context.Context, f payroll.DemoFact) error {
	query := `
		INSERT INTO demo_fact (worker_id, date, demo_count, source, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(worker_id, date) DO UPDATE SET
			demo_count = excluded.demo_count,
			source = excluded.source,
			updated_at = excluded.updated_at
	`
	_, err := q.q.ExecContext(ctx, query,
		f.WorkerID, f.Date.String(), f.DemoCount, f.Source, formatTime(f.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert demo fact: %w", err)
	}
	return nil
}

func (q queries) UpsertSalesHours(ctx context.Context, f payroll.SalesHoursFact) error {
	query := `
		INSERT INTO sales_hours_fact (worker_id, date, sales, hours, source, import_ref, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(worker_id, date) DO UPDATE SET
			sales = excluded.sales,
			hours = excluded.hours,
			source = excluded.source,
			import_ref = excluded.import_ref,
			updated_at = excluded.updated_at
	`
	var importRef sql.NullString
	if f.ImportRef != nil {
		importRef = nullString(string(*f.ImportRef))
	}
	_, err := q.q.ExecContext(ctx, query,
		f.WorkerID, f.Date.String(), f.Sales, f.Hours.String(), f.Source, importRef, formatTime(f.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert sales/hours fact: %w", err)
	}
	return nil
}

const demoColumns = `worker_id, date, demo_count, source, updated_at`

func (q queries) GetDemo(ctx context.Context, worker payroll.WorkerID, day payroll.Date) (*payroll.DemoFact, error) {
	row := q.q.QueryRowContext(ctx,
		"SELECT "+demoColumns+" FROM demo_fact WHERE worker_id = ? AND date = ?",
		worker, day.String())
	f, err := scanDemo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (q queries) ListDemos(ctx context.Context, worker payroll.WorkerID, from, to payroll.Date) ([]payroll.DemoFact, error) {
	rows, err := q.q.QueryContext(ctx,
		"SELECT "+demoColumns+" FROM demo_fact WHERE worker_id = ? AND date >= ? AND date <= ? ORDER BY date",
		worker, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query demo facts: %w", err)
	}
	defer rows.Close()

	var facts []payroll.DemoFact
	for rows.Next() {
		f, err := scanDemo(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

const salesHoursColumns = `worker_id, date, sales, hours, source, import_ref, updated_at`

func (q queries) GetSalesHours(ctx context.Context, worker payroll.WorkerID, day payroll.Date) (*payroll.SalesHoursFact, error) {
	row := q.q.QueryRowContext(ctx,
		"SELECT "+salesHoursColumns+" FROM sales_hours_fact WHERE worker_id = ? AND date = ?",
		worker, day.String())
	f, err := scanSalesHours(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (q queries) ListSalesHours(ctx context.Context, worker payroll.WorkerID, from, to payroll.Date) ([]payroll.SalesHoursFact, error) {
	rows, err := q.q.QueryContext(ctx,
		"SELECT "+salesHoursColumns+" FROM sales_hours_fact WHERE worker_id = ? AND date >= ? AND date <= ? ORDER BY date",
		worker, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query sales/hours facts: %w", err)
	}
	defer rows.Close()

	var facts []payroll.SalesHoursFact
	for rows.Next() {
		f, err := scanSalesHours(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func (q queries) SumSales(ctx context.Context, worker payroll.WorkerID, from, to payroll.Date) (int64, error) {
	var total int64
	err := q.q.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(sales), 0) FROM sales_hours_fact WHERE worker_id = ? AND date >= ? AND date <= ?",
		worker, from.String(), to.String(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum sales: %w", err)
	}
	return total, nil
}

func (q queries) CountSalesHoursByImport(ctx context.Context, id payroll.ImportID) (int, error) {
	var count int
	err := q.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sales_hours_fact WHERE import_ref = ?", id,
	).Scan(&count)
	return count, err
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDemo(row scanner) (payroll.DemoFact, error) {
	var (
		f         payroll.DemoFact
		date      string
		updatedAt string
	)
	if err := row.Scan(&f.WorkerID, &date, &f.DemoCount, &f.Source, &updatedAt); err != nil {
		return f, err
	}
	f.Date = parseDate(date)
	f.UpdatedAt = parseTime(updatedAt)
	return f, nil
}

func scanSalesHours(row scanner) (payroll.SalesHoursFact, error) {
	var (
		f         payroll.SalesHoursFact
		date      string
		hours     string
		importRef sql.NullString
		updatedAt string
	)
	if err := row.Scan(&f.WorkerID, &date, &f.Sales, &hours, &f.Source, &importRef, &updatedAt); err != nil {
		return f, err
	}
	f.Date = parseDate(date)
	f.Hours = parseDecimal(hours)
	if importRef.Valid {
		ref := payroll.ImportID(importRef.String)
		f.ImportRef = &ref
	}
	f.UpdatedAt = parseTime(updatedAt)
	return f, nil
}

// =============================================================================
// TIER STORE
// =============================================================================

func (s *Store) SaveTier(ctx context.Context, t payroll.TierRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries().SaveTier(ctx, t)
}

func (s *Store) GetTier(ctx context.Context, id payroll.TierID) (*payroll.TierRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries().GetTier(ctx, id)
}

func (s *Store) ListTiers(ctx context.Context, worker payroll.WorkerID) ([]payroll.TierRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries().ListTiers(ctx, worker)
}

const tierColumns = `id, worker_id, sales_goal_in_period, daily_demo_min, pay_mode, hourly_rate,
	commission_rate_percent, demo_bonus, effective_from, active, order_index, created_at, updated_at`

func (q queries) SaveTier(ctx context.Context, t payroll.TierRule) error {
	query := `
		INSERT INTO tier_rule (` + tierColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sales_goal_in_period = excluded.sales_goal_in_period,
			daily_demo_min = excluded.daily_demo_min,
			pay_mode = excluded.pay_mode,
			hourly_rate = excluded.hourly_rate,
			commission_rate_percent = excluded.commission_rate_percent,
			demo_bonus = excluded.demo_bonus,
			effective_from = excluded.effective_from,
			active = excluded.active,
			order_index = excluded.order_index,
			updated_at = excluded.updated_at
	`
	_, err := q.q.ExecContext(ctx, query,
		t.ID, t.WorkerID, t.SalesGoal, t.DailyDemoMinimum, string(t.PayMode),
		t.HourlyRate.String(), t.CommissionRatePercent.String(), t.DemoBonus.String(),
		t.EffectiveFrom.String(), t.Active, t.OrderIndex,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return payroll.ErrTierConflict
		}
		return fmt.Errorf("failed to save tier: %w", err)
	}
	return nil
}

func (q queries) GetTier(ctx context.Context, id payroll.TierID) (*payroll.TierRule, error) {
	row := q.q.QueryRowContext(ctx, "SELECT "+tierColumns+" FROM tier_rule WHERE id = ?", id)
	t, err := scanTier(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (q queries) ListTiers(ctx context.Context, worker payroll.WorkerID) ([]payroll.TierRule, error) {
	rows, err := q.q.QueryContext(ctx,
		"SELECT "+tierColumns+" FROM tier_rule WHERE worker_id = ? ORDER BY sales_goal_in_period ASC, id ASC",
		worker)
	if err != nil {
		return nil, fmt.Errorf("failed to query tiers: %w", err)
	}
	defer rows.Close()

	var tiers []payroll.TierRule
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func scanTier(row scanner) (payroll.TierRule, error) {
	var (
		t                                 payroll.TierRule
		payMode                           string
		hourlyRate, commission, demoBonus string
		effectiveFrom                     string
		createdAt, updatedAt              string
	)
	err := row.Scan(
		&t.ID, &t.WorkerID, &t.SalesGoal, &t.DailyDemoMinimum, &payMode,
		&hourlyRate, &commission, &demoBonus, &effectiveFrom,
		&t.Active, &t.OrderIndex, &createdAt, &updatedAt,
	)
	if err != nil {
		return t, err
	}
	t.PayMode = payroll.PayMode(payMode)
	t.HourlyRate = parseDecimal(hourlyRate)
	t.CommissionRatePercent = parseDecimal(commission)
	t.DemoBonus = parseDecimal(demoBonus)
	t.EffectiveFrom = parseDate(effectiveFrom)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}

// =============================================================================
// IMPORT STORE
// =============================================================================

func (s *Store) CreateImport(ctx context.Context, imp payroll.RawImport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries().CreateImport(ctx, imp)
}

func (s *Store) GetImport(ctx context.Context, id payroll.ImportID) (*payroll.RawImport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries().GetImport(ctx, id)
}

func (s *Store) GetImportByHash(ctx context.Context, hash string) (*payroll.RawImport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries().GetImportByHash(ctx, hash)
}

func (q queries) CreateImport(ctx context.Context, imp payroll.RawImport) error {
	rowsJSON, err := json.Marshal(imp.ParsedRows)
	if err != nil {
		return fmt.Errorf("failed to encode parsed rows: %w", err)
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO raw_import (id, filename, content_hash, uploaded_at, status, parsed_rows_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		imp.ID, nullString(imp.Filename), imp.ContentHash,
		formatTime(imp.UploadedAt), string(imp.Status), string(rowsJSON),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return payroll.ErrDuplicateImport
		}
		return fmt.Errorf("failed to create import: %w", err)
	}
	return nil
}

const importColumns = `id, filename, content_hash, uploaded_at, status, parsed_rows_json`

func (q queries) GetImport(ctx context.Context, id payroll.ImportID) (*payroll.RawImport, error) {
	return q.getImport(ctx, "SELECT "+importColumns+" FROM raw_import WHERE id = ?", id)
}

func (q queries) GetImportByHash(ctx context.Context, hash string) (*payroll.RawImport, error) {
	return q.getImport(ctx, "SELECT "+importColumns+" FROM raw_import WHERE content_hash = ?", hash)
}

func (q queries) getImport(ctx context.Context, query string, arg any) (*payroll.RawImport, error) {
	var (
		imp        payroll.RawImport
		filename   sql.NullString
		uploadedAt string
		status     string
		rowsJSON   sql.NullString
	)
	err := q.q.QueryRowContext(ctx, query, arg).Scan(
		&imp.ID, &filename, &imp.ContentHash, &uploadedAt, &status, &rowsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	imp.Filename = filename.String
	imp.UploadedAt = parseTime(uploadedAt)
	imp.Status = payroll.ImportStatus(status)
	if rowsJSON.Valid && rowsJSON.String != "" {
		if err := json.Unmarshal([]byte(rowsJSON.String), &imp.ParsedRows); err != nil {
			return nil, fmt.Errorf("failed to decode parsed rows of import %s: %w", imp.ID, err)
		}
	}
	return &imp, nil
}

// =============================================================================
// PAY PERIOD STORE
// =============================================================================

func (s *Store) SavePayPeriod(ctx context.Context, p payroll.PayPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries().SavePayPeriod(ctx, p)
}

func (s *Store) GetPayPeriod(ctx context.Context, id payroll.PeriodID) (*payroll.PayPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries().GetPayPeriod(ctx, id)
}

func (s *Store) ListPayPeriods(ctx context.Context) ([]payroll.PayPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries().ListPayPeriods(ctx)
}

func (s *Store) FindCoveringPeriod(ctx context.Context, from, to payroll.Date) (*payroll.PayPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries().FindCoveringPeriod(ctx, from, to)
}

func (q queries) SavePayPeriod(ctx context.Context, p payroll.PayPeriod) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO pay_period (id, start_date, end_date, timezone)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			timezone = excluded.timezone`,
		p.ID, p.Start.String(), p.End.String(), p.Timezone,
	)
	if err != nil {
		return fmt.Errorf("failed to save pay period: %w", err)
	}
	return nil
}

func (q queries) GetPayPeriod(ctx context.Context, id payroll.PeriodID) (*payroll.PayPeriod, error) {
	return q.getPeriod(ctx,
		"SELECT id, start_date, end_date, timezone FROM pay_period WHERE id = ?", id)
}

func (q queries) FindCoveringPeriod(ctx context.Context, from, to payroll.Date) (*payroll.PayPeriod, error) {
	return q.getPeriod(ctx, `
		SELECT id, start_date, end_date, timezone FROM pay_period
		WHERE start_date <= ? AND end_date >= ?
		ORDER BY start_date ASC, id ASC
		LIMIT 1`, from.String(), to.String())
}

func (q queries) getPeriod(ctx context.Context, query string, args ...any) (*payroll.PayPeriod, error) {
	p, err := scanPeriod(q.q.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (q queries) ListPayPeriods(ctx context.Context) ([]payroll.PayPeriod, error) {
	rows, err := q.q.QueryContext(ctx,
		"SELECT id, start_date, end_date, timezone FROM pay_period ORDER BY start_date ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query pay periods: %w", err)
	}
	defer rows.Close()

	var periods []payroll.PayPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func scanPeriod(row scanner) (payroll.PayPeriod, error) {
	var p payroll.PayPeriod
	var start, end string
	if err := row.Scan(&p.ID, &start, &end, &p.Timezone); err != nil {
		return p, err
	}
	p.Start = parseDate(start)
	p.End = parseDate(end)
	return p, nil
}

// =============================================================================
// WORKER DIRECTORY
// =============================================================================

func (s *Store) SaveWorker(ctx context.Context, w payroll.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries().SaveWorker(ctx, w)
}

func (s *Store) GetWorker(ctx context.Context, id payroll.WorkerID) (*payroll.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries().GetWorker(ctx, id)
}

func (s *Store) ListWorkers(ctx context.Context) ([]payroll.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries().ListWorkers(ctx)
}

func (s *Store) FindWorkerByEmail(ctx context.Context, email string) (*payroll.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries().FindWorkerByEmail(ctx, email)
}

func (s *Store) FindWorkerByUsername(ctx context.Context, username string) (*payroll.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries().FindWorkerByUsername(ctx, username)
}

const workerColumns = `id, name, email, username, location_id, created_at`

func (q queries) SaveWorker(ctx context.Context, w payroll.Worker) error {
	createdAt := w.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO workers (`+workerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			username = excluded.username,
			location_id = excluded.location_id`,
		w.ID, w.Name, nullString(w.Email), nullString(w.Username), nullString(w.LocationID),
		formatTime(createdAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save worker: %w", err)
	}
	return nil
}

func (q queries) GetWorker(ctx context.Context, id payroll.WorkerID) (*payroll.Worker, error) {
	return q.getWorker(ctx, "SELECT "+workerColumns+" FROM workers WHERE id = ?", id)
}

func (q queries) FindWorkerByEmail(ctx context.Context, email string) (*payroll.Worker, error) {
	return q.getWorker(ctx,
		"SELECT "+workerColumns+" FROM workers WHERE lower(email) = lower(?) ORDER BY id LIMIT 1", email)
}

func (q queries) FindWorkerByUsername(ctx context.Context, username string) (*payroll.Worker, error) {
	return q.getWorker(ctx,
		"SELECT "+workerColumns+" FROM workers WHERE lower(username) = lower(?) ORDER BY id LIMIT 1", username)
}

func (q queries) getWorker(ctx context.Context, query string, arg any) (*payroll.Worker, error) {
	w, err := scanWorker(q.q.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (q queries) ListWorkers(ctx context.Context) ([]payroll.Worker, error) {
	rows, err := q.q.QueryContext(ctx, "SELECT "+workerColumns+" FROM workers ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query workers: %w", err)
	}
	defer rows.Close()

	var workers []payroll.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

func scanWorker(row scanner) (payroll.Worker, error) {
	var (
		w                           payroll.Worker
		email, username, locationID sql.NullString
		createdAt                   string
	)
	if err := row.Scan(&w.ID, &w.Name, &email, &username, &locationID, &createdAt); err != nil {
		return w, err
	}
	w.Email = email.String
	w.Username = username.String
	w.LocationID = locationID.String
	w.CreatedAt = parseTime(createdAt)
	return w, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseDate(s string) payroll.Date {
	d, _ := payroll.ParseDate(s)
	return d
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
