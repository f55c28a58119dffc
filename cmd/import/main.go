/*
main.go - Offline import of sales/hours files

PURPOSE:
  Ingests CSV or XLSX files straight into the SQLite store, with the same
  duplicate detection as POST /api/imports. Useful for backfills.

USAGE:
  ./import -db=tierpay.db week1.csv week2.xlsx

CACHE:
  When REDIS_URL is set, the daily pay memo of every worker touched by an
  import is invalidated, so a running server sees the backfill at once.

OUTPUT:
  One log line per file with the import id, status and row counts.
  Exits non-zero if any file could not be ingested.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/warp/tierpay/cache"
	"github.com/warp/tierpay/calculator"
	"github.com/warp/tierpay/config"
	"github.com/warp/tierpay/imports"
	"github.com/warp/tierpay/store/sqlite"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: import [-db path] file...")
		return 2
	}

	log, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Error("Failed to initialize database")
		return 1
	}
	defer store.Close()

	var memo calculator.Memo
	if cfg.RedisURL != "" {
		client, err := cache.NewClient(cfg.RedisURL, cfg.CacheTTL, log)
		if err != nil {
			// Importing without invalidation would leave the server serving stale pay.
			log.WithError(err).Error("Failed to connect to Redis")
			return 1
		}
		defer client.Close()
		memo = client
	}

	ledger := imports.New(store, imports.WithLogger(log))
	if failed := ingestFiles(context.Background(), ledger, memo, log, flag.Args()); failed > 0 {
		return 1
	}
	return 0
}

// ingestFiles imports each path and invalidates the memo of every worker it
// touched. Returns the number of failures.
func ingestFiles(ctx context.Context, ledger *imports.Ledger, memo calculator.Memo, log logrus.FieldLogger, paths []string) int {
	failed := 0
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			log.WithError(err).WithField("file", path).Error("read failed")
			failed++
			continue
		}

		res, err := ledger.Ingest(ctx, imports.Submission{Filename: filepath.Base(path), Content: content})
		if err != nil {
			log.WithError(err).WithField("file", path).Error("ingest failed")
			failed++
			continue
		}
		log.WithFields(logrus.Fields{
			"file":          path,
			"import_id":     res.Import.ID,
			"status":        res.Status,
			"import_status": res.Import.Status,
			"rows_upserted": res.RowsUpserted,
			"rows_skipped":  res.RowsSkipped,
		}).Info("file processed")

		for _, worker := range res.Workers {
			if err := calculator.InvalidateMemo(ctx, memo, worker); err != nil {
				log.WithError(err).WithField("worker_id", worker).Error("cache invalidation failed")
				failed++
			}
		}
	}
	return failed
}
