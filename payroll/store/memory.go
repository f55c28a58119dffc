// Package store provides in-memory payroll.Store implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/tierpay/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	state memoryState
}

type factKey struct {
	WorkerID payroll.WorkerID
	Date     string
}

type memoryState struct {
	demos      map[factKey]payroll.DemoFact
	salesHours map[factKey]payroll.SalesHoursFact
	tiers      map[payroll.TierID]payroll.TierRule
	imports    map[payroll.ImportID]payroll.RawImport
	hashes     map[string]payroll.ImportID
	periods    map[payroll.PeriodID]payroll.PayPeriod
	workers    map[payroll.WorkerID]payroll.Worker
}

func newMemoryState() memoryState {
	return memoryState{
		demos:      make(map[factKey]payroll.DemoFact),
		salesHours: make(map[factKey]payroll.SalesHoursFact),
		tiers:      make(map[payroll.TierID]payroll.TierRule),
		imports:    make(map[payroll.ImportID]payroll.RawImport),
		hashes:     make(map[string]payroll.ImportID),
		periods:    make(map[payroll.PeriodID]payroll.PayPeriod),
		workers:    make(map[payroll.WorkerID]payroll.Worker),
	}
}

func NewMemory() *Memory {
	return &Memory{state: newMemoryState()}
}

func key(worker payroll.WorkerID, day payroll.Date) factKey {
	return factKey{WorkerID: worker, Date: day.String()}
}

// =============================================================================
// LOCKING WRAPPERS
// =============================================================================

func (m *Memory) UpsertDemo(ctx context.Context, f payroll.DemoFact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpsertDemo(ctx, f)
}

func (m *Memory) UpsertSalesHours(ctx context.Context, f payroll.SalesHoursFact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpsertSalesHours(ctx, f)
}

func (m *Memory) GetDemo(ctx context.Context, w payroll.WorkerID, d payroll.Date) (*payroll.DemoFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetDemo(ctx, w, d)
}

func (m *Memory) GetSalesHours(ctx context.Context, w payroll.WorkerID, d payroll.Date) (*payroll.SalesHoursFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetSalesHours(ctx, w, d)
}

func (m *Memory) SumSales(ctx context.Context, w payroll.WorkerID, from, to payroll.Date) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.SumSales(ctx, w, from, to)
}

func (m *Memory) ListDemos(ctx context.Context, w payroll.WorkerID, from, to payroll.Date) ([]payroll.DemoFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListDemos(ctx, w, from, to)
}

func (m *Memory) ListSalesHours(ctx context.Context, w payroll.WorkerID, from, to payroll.Date) ([]payroll.SalesHoursFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListSalesHours(ctx, w, from, to)
}

func (m *Memory) CountSalesHoursByImport(ctx context.Context, id payroll.ImportID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.CountSalesHoursByImport(ctx, id)
}

func (m *Memory) SaveTier(ctx context.Context, t payroll.TierRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveTier(ctx, t)
}

func (m *Memory) GetTier(ctx context.Context, id payroll.TierID) (*payroll.TierRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetTier(ctx, id)
}

func (m *Memory) ListTiers(ctx context.Context, w payroll.WorkerID) ([]payroll.TierRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListTiers(ctx, w)
}

func (m *Memory) CreateImport(ctx context.Context, imp payroll.RawImport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreateImport(ctx, imp)
}

func (m *Memory) GetImport(ctx context.Context, id payroll.ImportID) (*payroll.RawImport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetImport(ctx, id)
}

func (m *Memory) GetImportByHash(ctx context.Context, hash string) (*payroll.RawImport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetImportByHash(ctx, hash)
}

func (m *Memory) SavePayPeriod(ctx context.Context, p payroll.PayPeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SavePayPeriod(ctx, p)
}

func (m *Memory) GetPayPeriod(ctx context.Context, id payroll.PeriodID) (*payroll.PayPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetPayPeriod(ctx, id)
}

func (m *Memory) ListPayPeriods(ctx context.Context) ([]payroll.PayPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListPayPeriods(ctx)
}

func (m *Memory) FindCoveringPeriod(ctx context.Context, from, to payroll.Date) (*payroll.PayPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.FindCoveringPeriod(ctx, from, to)
}

func (m *Memory) SaveWorker(ctx context.Context, w payroll.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveWorker(ctx, w)
}

func (m *Memory) GetWorker(ctx context.Context, id payroll.WorkerID) (*payroll.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetWorker(ctx, id)
}

func (m *Memory) ListWorkers(ctx context.Context) ([]payroll.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListWorkers(ctx)
}

func (m *Memory) FindWorkerByEmail(ctx context.Context, email string) (*payroll.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.FindWorkerByEmail(ctx, email)
}

func (m *Memory) FindWorkerByUsername(ctx context.Context, username string) (*payroll.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.FindWorkerByUsername(ctx, username)
}

// =============================================================================
// STATE OPERATIONS (caller holds the lock)
// =============================================================================

func inRange(day string, from, to payroll.Date) bool {
	return from.String() <= day && day <= to.String()
}

func (s memoryState) UpsertDemo(_ context.Context, f payroll.DemoFact) error {
	s.demos[key(f.WorkerID, f.Date)] = f
	return nil
}

func (s memoryState) UpsertSalesHours(_ context.Context, f payroll.SalesHoursFact) error {
	s.salesHours[key(f.WorkerID, f.Date)] = f
	return nil
}

func (s memoryState) GetDemo(_ context.Context, w payroll.WorkerID, d payroll.Date) (*payroll.DemoFact, error) {
	f, ok := s.demos[key(w, d)]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (s memoryState) GetSalesHours(_ context.Context, w payroll.WorkerID, d payroll.Date) (*payroll.SalesHoursFact, error) {
	f, ok := s.salesHours[key(w, d)]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (s memoryState) SumSales(_ context.Context, w payroll.WorkerID, from, to payroll.Date) (int64, error) {
	var total int64
	for k, f := range s.salesHours {
		if k.WorkerID == w && inRange(k.Date, from, to) {
			total += f.Sales
		}
	}
	return total, nil
}

func (s memoryState) ListDemos(_ context.Context, w payroll.WorkerID, from, to payroll.Date) ([]payroll.DemoFact, error) {
	var result []payroll.DemoFact
	for k, f := range s.demos {
		if k.WorkerID == w && inRange(k.Date, from, to) {
			result = append(result, f)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (s memoryState) ListSalesHours(_ context.Context, w payroll.WorkerID, from, to payroll.Date) ([]payroll.SalesHoursFact, error) {
	var result []payroll.SalesHoursFact
	for k, f := range s.salesHours {
		if k.WorkerID == w && inRange(k.Date, from, to) {
			result = append(result, f)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (s memoryState) CountSalesHoursByImport(_ context.Context, id payroll.ImportID) (int, error) {
	n := 0
	for _, f := range s.salesHours {
		if f.ImportRef != nil && *f.ImportRef == id {
			n++
		}
	}
	return n, nil
}

func (s memoryState) SaveTier(_ context.Context, t payroll.TierRule) error {
	s.tiers[t.ID] = t
	return nil
}

func (s memoryState) GetTier(_ context.Context, id payroll.TierID) (*payroll.TierRule, error) {
	t, ok := s.tiers[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s memoryState) ListTiers(_ context.Context, w payroll.WorkerID) ([]payroll.TierRule, error) {
	var result []payroll.TierRule
	for _, t := range s.tiers {
		if t.WorkerID == w {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].SalesGoal != result[j].SalesGoal {
			return result[i].SalesGoal < result[j].SalesGoal
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s memoryState) CreateImport(_ context.Context, imp payroll.RawImport) error {
	if _, exists := s.hashes[imp.ContentHash]; exists {
		return payroll.ErrDuplicateImport
	}
	s.imports[imp.ID] = imp
	s.hashes[imp.ContentHash] = imp.ID
	return nil
}

func (s memoryState) GetImport(_ context.Context, id payroll.ImportID) (*payroll.RawImport, error) {
	imp, ok := s.imports[id]
	if !ok {
		return nil, nil
	}
	return &imp, nil
}

func (s memoryState) GetImportByHash(ctx context.Context, hash string) (*payroll.RawImport, error) {
	id, ok := s.hashes[hash]
	if !ok {
		return nil, nil
	}
	return s.GetImport(ctx, id)
}

func (s memoryState) SavePayPeriod(_ context.Context, p payroll.PayPeriod) error {
	s.periods[p.ID] = p
	return nil
}

func (s memoryState) GetPayPeriod(_ context.Context, id payroll.PeriodID) (*payroll.PayPeriod, error) {
	p, ok := s.periods[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s memoryState) ListPayPeriods(_ context.Context) ([]payroll.PayPeriod, error) {
	result := make([]payroll.PayPeriod, 0, len(s.periods))
	for _, p := range s.periods {
		result = append(result, p)
	}
	sortPeriods(result)
	return result, nil
}

func (s memoryState) FindCoveringPeriod(ctx context.Context, from, to payroll.Date) (*payroll.PayPeriod, error) {
	all, _ := s.ListPayPeriods(ctx)
	for _, p := range all {
		if p.Start.BeforeOrEqual(from) && p.End.AfterOrEqual(to) {
			return &p, nil
		}
	}
	return nil, nil
}

func sortPeriods(periods []payroll.PayPeriod) {
	sort.Slice(periods, func(i, j int) bool {
		if !periods[i].Start.Equal(periods[j].Start) {
			return periods[i].Start.Before(periods[j].Start)
		}
		return periods[i].ID < periods[j].ID
	})
}

func (s memoryState) SaveWorker(_ context.Context, w payroll.Worker) error {
	s.workers[w.ID] = w
	return nil
}

func (s memoryState) GetWorker(_ context.Context, id payroll.WorkerID) (*payroll.Worker, error) {
	w, ok := s.workers[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (s memoryState) ListWorkers(_ context.Context) ([]payroll.Worker, error) {
	result := make([]payroll.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		result = append(result, w)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s memoryState) FindWorkerByEmail(ctx context.Context, email string) (*payroll.Worker, error) {
	return s.findWorker(func(w payroll.Worker) bool { return w.Email != "" && strings.EqualFold(w.Email, email) })
}

func (s memoryState) FindWorkerByUsername(ctx context.Context, username string) (*payroll.Worker, error) {
	return s.findWorker(func(w payroll.Worker) bool { return w.Username != "" && strings.EqualFold(w.Username, username) })
}

func (s memoryState) findWorker(match func(payroll.Worker) bool) (*payroll.Worker, error) {
	ws, _ := s.ListWorkers(context.Background())
	for _, w := range ws {
		if match(w) {
			return &w, nil
		}
	}
	return nil, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(payroll.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.state.clone()

	// memoryState writes straight into the live maps; the snapshot is the undo log.
	if err := fn(tm.state); err != nil {
		tm.state = snapshot
		return err
	}
	return nil
}

func (s memoryState) clone() memoryState {
	c := newMemoryState()
	for k, v := range s.demos {
		c.demos[k] = v
	}
	for k, v := range s.salesHours {
		c.salesHours[k] = v
	}
	for k, v := range s.tiers {
		c.tiers[k] = v
	}
	for k, v := range s.imports {
		c.imports[k] = v
	}
	for k, v := range s.hashes {
		c.hashes[k] = v
	}
	for k, v := range s.periods {
		c.periods[k] = v
	}
	for k, v := range s.workers {
		c.workers[k] = v
	}
	return c
}
