package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tierpay/payroll"
)

func TestTxMemory_RollbackRestoresSnapshot(t *testing.T) {
	// GIVEN: A store with one import recorded
	s := NewTxMemory()
	ctx := context.Background()
	require.NoError(t, s.CreateImport(ctx, payroll.RawImport{ID: "imp-1", ContentHash: "h1"}))

	// WHEN: A transaction writes and then fails
	err := s.WithTx(ctx, func(tx payroll.Store) error {
		require.NoError(t, tx.CreateImport(ctx, payroll.RawImport{ID: "imp-2", ContentHash: "h2"}))
		require.NoError(t, tx.UpsertSalesHours(ctx, payroll.SalesHoursFact{
			WorkerID: "w1", Date: payroll.NewDate(2025, 3, 10), Sales: 10,
		}))
		return errors.New("fail")
	})

	// THEN: Nothing written inside the transaction survives
	require.Error(t, err)
	imp, _ := s.GetImportByHash(ctx, "h2")
	assert.Nil(t, imp)
	fact, _ := s.GetSalesHours(ctx, "w1", payroll.NewDate(2025, 3, 10))
	assert.Nil(t, fact)
	imp, _ = s.GetImportByHash(ctx, "h1")
	assert.NotNil(t, imp)
}

func TestMemory_CreateImportDuplicateHash(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.CreateImport(ctx, payroll.RawImport{ID: "a", ContentHash: "same"}))
	err := s.CreateImport(ctx, payroll.RawImport{ID: "b", ContentHash: "same"})

	assert.ErrorIs(t, err, payroll.ErrDuplicateImport)
}

func TestResolveWorker_Order(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.SaveWorker(ctx, payroll.Worker{ID: "w1", Email: "a@x.com", Username: "alpha"}))
	require.NoError(t, s.SaveWorker(ctx, payroll.Worker{ID: "w2", Email: "b@x.com", Username: "beta"}))

	tests := []struct {
		name string
		ref  payroll.WorkerRef
		want payroll.WorkerID
	}{
		{"id wins", payroll.WorkerRef{ID: "w2", Email: "a@x.com"}, "w2"},
		{"unknown id falls back to email", payroll.WorkerRef{ID: "zzz", Email: "A@X.COM"}, "w1"},
		{"username last", payroll.WorkerRef{Username: "beta"}, "w2"},
		{"no match", payroll.WorkerRef{Email: "c@x.com"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := payroll.ResolveWorker(ctx, s, tt.ref)
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, w)
				return
			}
			require.NotNil(t, w)
			assert.Equal(t, tt.want, w.ID)
		})
	}
}
