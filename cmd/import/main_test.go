package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tierpay/cache"
	"github.com/warp/tierpay/imports"
	"github.com/warp/tierpay/payroll"
	"github.com/warp/tierpay/store/sqlite"
)

func TestIngestFiles_InvalidatesTouchedWorkers(t *testing.T) {
	ctx := context.Background()
	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.SaveWorker(ctx, payroll.Worker{ID: "w1", Name: "Ana", Username: "ana"}))

	mr := miniredis.RunT(t)
	memo := cache.Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute, log)
	t.Cleanup(func() { memo.Close() })

	// GIVEN: Cached pay for w1 (touched by the file) and w2 (not touched)
	stale := "dailypay:w1:2025-03-10:2025-03-10:2025-03-10"
	other := "dailypay:w2:2025-03-10:2025-03-10:2025-03-10"
	require.NoError(t, mr.Set(stale, "{}"))
	require.NoError(t, mr.Set(other, "{}"))

	path := filepath.Join(t.TempDir(), "week.csv")
	require.NoError(t, os.WriteFile(path, []byte("User ID,Date,Sales,Hours\nw1,2025-03-10,900,8\n"), 0o600))

	// WHEN
	failed := ingestFiles(ctx, imports.New(db, imports.WithLogger(log)), memo, log, []string{path})

	// THEN: Only the touched worker's memo is gone
	assert.Equal(t, 0, failed)
	assert.False(t, mr.Exists(stale))
	assert.True(t, mr.Exists(other))

	got, err := db.GetSalesHours(ctx, "w1", payroll.NewDate(2025, 3, 10))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(900), got.Sales)
}

func TestIngestFiles_CountsFailures(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// Missing files fail; no memo configured is fine
	failed := ingestFiles(context.Background(), imports.New(db, imports.WithLogger(log)), nil, log,
		[]string{filepath.Join(t.TempDir(), "missing.csv")})

	assert.Equal(t, 1, failed)
}
