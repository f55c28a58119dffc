package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tierpay/payroll"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsertSalesHours_LastWriteWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	day := payroll.NewDate(2025, 3, 10)

	// GIVEN: Two writes for the same worker and date
	require.NoError(t, store.UpsertSalesHours(ctx, payroll.SalesHoursFact{
		WorkerID: "w1", Date: day, Sales: 100, Hours: decimal.NewFromInt(4), Source: payroll.SourceManual,
	}))
	ref := payroll.ImportID("imp-1")
	require.NoError(t, store.UpsertSalesHours(ctx, payroll.SalesHoursFact{
		WorkerID: "w1", Date: day, Sales: 250, Hours: decimal.RequireFromString("7.5"),
		Source: payroll.SourceImport, ImportRef: &ref,
	}))

	// WHEN: Reading it back
	got, err := store.GetSalesHours(ctx, "w1", day)
	require.NoError(t, err)

	// THEN: The second write replaced every column
	require.NotNil(t, got)
	assert.Equal(t, int64(250), got.Sales)
	assert.True(t, got.Hours.Equal(decimal.RequireFromString("7.5")))
	assert.Equal(t, payroll.SourceImport, got.Source)
	require.NotNil(t, got.ImportRef)
	assert.Equal(t, ref, *got.ImportRef)

	n, err := store.CountSalesHoursByImport(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetDemo_AbsentReturnsNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetDemo(context.Background(), "nobody", payroll.NewDate(2025, 1, 1))

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDemoFacts_UpsertAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, count := range []int{2, 0, 5} {
		require.NoError(t, store.UpsertDemo(ctx, payroll.DemoFact{
			WorkerID: "w1", Date: payroll.NewDate(2025, 3, 1+i), DemoCount: count, Source: payroll.SourceManual,
		}))
	}
	require.NoError(t, store.UpsertDemo(ctx, payroll.DemoFact{
		WorkerID: "w1", Date: payroll.NewDate(2025, 3, 1), DemoCount: 3, Source: payroll.SourceManual,
	}))

	facts, err := store.ListDemos(ctx, "w1", payroll.NewDate(2025, 3, 1), payroll.NewDate(2025, 3, 2))
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, 3, facts[0].DemoCount)
	assert.Equal(t, "2025-03-02", facts[1].Date.String())
}

func TestSumSales_InclusiveRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for day, sales := range map[int]int64{1: 100, 2: 200, 5: 400} {
		require.NoError(t, store.UpsertSalesHours(ctx, payroll.SalesHoursFact{
			WorkerID: "w1", Date: payroll.NewDate(2025, 3, day), Sales: sales, Source: payroll.SourceManual,
		}))
	}
	require.NoError(t, store.UpsertSalesHours(ctx, payroll.SalesHoursFact{
		WorkerID: "w2", Date: payroll.NewDate(2025, 3, 2), Sales: 999, Source: payroll.SourceManual,
	}))

	total, err := store.SumSales(ctx, "w1", payroll.NewDate(2025, 3, 1), payroll.NewDate(2025, 3, 5))
	require.NoError(t, err)
	assert.Equal(t, int64(700), total)

	total, err = store.SumSales(ctx, "w1", payroll.NewDate(2025, 3, 3), payroll.NewDate(2025, 3, 4))
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestCreateImport_DuplicateHash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	imp := payroll.RawImport{
		ID: "imp-1", Filename: "week.csv", ContentHash: "abc", UploadedAt: time.Now(),
		Status: payroll.ImportParsed, ParsedRows: []map[string]string{{"date": "2025-03-10"}},
	}
	require.NoError(t, store.CreateImport(ctx, imp))

	imp.ID = "imp-2"
	err := store.CreateImport(ctx, imp)
	assert.True(t, errors.Is(err, payroll.ErrDuplicateImport))

	got, err := store.GetImportByHash(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, payroll.ImportID("imp-1"), got.ID)
	assert.Equal(t, "2025-03-10", got.ParsedRows[0]["date"])
}

func TestGetImport_CorruptRowsSurface(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateImport(ctx, payroll.RawImport{
		ID: "imp-1", ContentHash: "abc", UploadedAt: time.Now(), Status: payroll.ImportParsed,
	}))

	// GIVEN: The stored rows were damaged outside the application
	_, err := store.db.ExecContext(ctx, `UPDATE raw_import SET parsed_rows_json = '[{"date":' WHERE id = 'imp-1'`)
	require.NoError(t, err)

	// THEN: Reads fail instead of returning an import with no rows
	got, err := store.GetImport(ctx, "imp-1")
	assert.Error(t, err)
	assert.Nil(t, got)

	_, err = store.GetImportByHash(ctx, "abc")
	assert.ErrorContains(t, err, "failed to decode parsed rows")
}

func TestSaveTier_OneActivePerMode(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := payroll.TierRule{
		ID: "t1", WorkerID: "w1", PayMode: payroll.PayModeHourly, HourlyRate: decimal.NewFromInt(15),
		EffectiveFrom: payroll.NewDate(2025, 1, 1), Active: true,
	}
	require.NoError(t, store.SaveTier(ctx, first))

	second := first
	second.ID = "t2"
	err := store.SaveTier(ctx, second)
	assert.True(t, errors.Is(err, payroll.ErrTierConflict))

	// Deactivating the first frees the mode
	first.Active = false
	require.NoError(t, store.SaveTier(ctx, first))
	require.NoError(t, store.SaveTier(ctx, second))

	tiers, err := store.ListTiers(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, tiers, 2)
	assert.False(t, tiers[0].Active)
	assert.True(t, tiers[1].Active)
	assert.True(t, tiers[1].HourlyRate.Equal(decimal.NewFromInt(15)))
}

func TestFindCoveringPeriod(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePayPeriod(ctx, payroll.PayPeriod{
		ID: "p1", Start: payroll.NewDate(2025, 3, 1), End: payroll.NewDate(2025, 3, 15), Timezone: "UTC",
	}))

	got, err := store.FindCoveringPeriod(ctx, payroll.NewDate(2025, 3, 2), payroll.NewDate(2025, 3, 10))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, payroll.PeriodID("p1"), got.ID)

	got, err = store.FindCoveringPeriod(ctx, payroll.NewDate(2025, 3, 10), payroll.NewDate(2025, 3, 20))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWorkerLookup_CaseInsensitive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveWorker(ctx, payroll.Worker{
		ID: "w1", Name: "Ana", Email: "Ana@Example.com", Username: "ana.r",
	}))

	byEmail, err := store.FindWorkerByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, payroll.WorkerID("w1"), byEmail.ID)

	byUsername, err := store.FindWorkerByUsername(ctx, "ANA.R")
	require.NoError(t, err)
	require.NotNil(t, byUsername)

	missing, err := store.FindWorkerByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWithTx_RollbackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	day := payroll.NewDate(2025, 3, 10)

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx payroll.Store) error {
		if err := tx.UpsertDemo(ctx, payroll.DemoFact{WorkerID: "w1", Date: day, DemoCount: 4, Source: payroll.SourceManual}); err != nil {
			return err
		}
		// Reads inside the transaction see its own writes
		got, err := tx.GetDemo(ctx, "w1", day)
		if err != nil {
			return err
		}
		if got == nil || got.DemoCount != 4 {
			return errors.New("write not visible inside transaction")
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.GetDemo(ctx, "w1", day)
	require.NoError(t, err)
	assert.Nil(t, got)
}
