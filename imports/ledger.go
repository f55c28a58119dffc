/*
Package imports turns uploaded sales/hours files into facts, exactly once.

PURPOSE:
  The raw import ledger remembers every file it has seen by the SHA-256
  of its content. Submitting the same bytes again is a no-op that reports
  status "duplicate"; new content is recorded and its rows are upserted
  into the fact store with source "import".

INPUTS:
  - Content: CSV bytes, or an .xlsx workbook (first sheet)
  - Rows:    Already-decoded rows (JSON uploads); hashed as canonical JSON

HEADERS:
  Columns are matched after lower-casing and stripping non-alphanumerics,
  against the synonym table in parse.go. Resolution happens once per
  import, not per row.

ROW OUTCOMES:
  upserted: date parses, worker resolves (id, then email, then username),
            and sales/hours are non-negative numbers
  skipped:  anything else (logged with the reason)

ATOMICITY:
  Ledger insert and every fact upsert run in one store transaction. A
  unique violation on content_hash (another writer won the race) rolls
  back and is reported as a duplicate of the winner.

MALFORMED FILES:
  Still recorded (status "empty") so the same bytes are not retried
  forever; no facts are written.

SEE ALSO:
  - parse.go:          Readers, synonyms, value parsing
  - facts/facts.go:    Fact writes
  - payroll/store.go:  ImportStore contract
*/
package imports

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/tierpay/facts"
	"github.com/warp/tierpay/payroll"
)

// Status is the outcome of one Ingest call.
type Status string

const (
	StatusCreated   Status = "created"
	StatusDuplicate Status = "duplicate"
)

// Submission is one upload.
type Submission struct {
	Filename string
	Content  []byte
	Rows     []map[string]any
}

// Result reports what Ingest did. Row counts are zero for duplicates.
type Result struct {
	Import       payroll.RawImport
	Status       Status
	RowsUpserted int
	RowsSkipped  int
	Workers      []payroll.WorkerID
}

// Summary describes a stored import.
type Summary struct {
	Import         payroll.RawImport
	Rows           int
	SalesHoursRows int
}

// Recorder receives ingestion outcomes for metrics.
type Recorder interface {
	RecordImport(status string, upserted, skipped int)
}

// Ledger ingests files into the fact store.
type Ledger struct {
	store    payroll.TxStore
	facts    *facts.Service
	log      logrus.FieldLogger
	now      func() time.Time
	newID    func() string
	recorder Recorder
}

type Option func(*Ledger)

func WithLogger(l logrus.FieldLogger) Option {
	return func(lg *Ledger) { lg.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(lg *Ledger) { lg.now = now }
}

func WithRecorder(r Recorder) Option {
	return func(lg *Ledger) { lg.recorder = r }
}

func New(store payroll.TxStore, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		log:   logrus.StandardLogger(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.facts = facts.New(store, facts.WithLogger(l.log), facts.WithClock(l.now))
	return l
}

// =============================================================================
// INGEST
// =============================================================================

// Ingest records the submission and upserts its rows, or reports it as a
// duplicate of an earlier import with identical content.
func (l *Ledger) Ingest(ctx context.Context, sub Submission) (*Result, error) {
	if len(sub.Content) == 0 && sub.Rows == nil {
		return nil, payroll.Invalid("file", "content or rows are required")
	}

	var (
		rows      []map[string]string
		canonical []byte
		parseErr  error
	)
	if sub.Rows != nil {
		rows = normalizeRows(sub.Rows)
		encoded, err := json.Marshal(rows)
		if err != nil {
			return nil, fmt.Errorf("encode rows: %w", err)
		}
		canonical = encoded
	} else {
		canonical = sub.Content
		rows, parseErr = readRows(sub.Filename, sub.Content)
	}
	hash := contentHash(canonical)

	log := l.log.WithFields(logrus.Fields{
		"filename":     sub.Filename,
		"content_hash": hash,
	})

	var result *Result
	err := l.store.WithTx(ctx, func(tx payroll.Store) error {
		existing, err := tx.GetImportByHash(ctx, hash)
		if err != nil {
			return err
		}
		if existing != nil {
			result = &Result{Import: *existing, Status: StatusDuplicate}
			return nil
		}

		result, err = l.record(ctx, tx, sub.Filename, hash, rows, parseErr, log)
		return err
	})
	if errors.Is(err, payroll.ErrDuplicateImport) {
		existing, lookupErr := l.store.GetImportByHash(ctx, hash)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing == nil {
			return nil, err
		}
		result, err = &Result{Import: *existing, Status: StatusDuplicate}, nil
	}
	if err != nil {
		return nil, err
	}

	if result.Status == StatusDuplicate {
		log.WithField("import_id", result.Import.ID).Info("duplicate import ignored")
	} else {
		log.WithFields(logrus.Fields{
			"import_id":     result.Import.ID,
			"status":        result.Import.Status,
			"rows_upserted": result.RowsUpserted,
			"rows_skipped":  result.RowsSkipped,
		}).Info("import ingested")
	}
	if l.recorder != nil {
		l.recorder.RecordImport(string(result.Status), result.RowsUpserted, result.RowsSkipped)
	}
	return result, nil
}

// record inserts the ledger row and upserts facts inside tx.
func (l *Ledger) record(ctx context.Context, tx payroll.Store, filename, hash string, rows []map[string]string, parseErr error, log logrus.FieldLogger) (*Result, error) {
	headers := resolveHeaders(headerKeys(rows))

	status := payroll.ImportParsed
	switch {
	case parseErr != nil:
		log.WithError(parseErr).Warn("import could not be parsed")
		status = payroll.ImportEmpty
	case len(rows) == 0:
		status = payroll.ImportEmpty
	case !headers.usable():
		log.WithField("headers", headerKeys(rows)).Warn("import has no recognisable columns")
		status = payroll.ImportEmpty
	}

	imp := payroll.RawImport{
		ID:          payroll.ImportID(l.newID()),
		Filename:    filename,
		ContentHash: hash,
		UploadedAt:  l.now().UTC(),
		Status:      status,
		ParsedRows:  rows,
	}
	if err := tx.CreateImport(ctx, imp); err != nil {
		return nil, err
	}

	result := &Result{Import: imp, Status: StatusCreated}
	if status == payroll.ImportEmpty {
		return result, nil
	}

	writer := l.facts.With(tx)
	touched := make(map[payroll.WorkerID]bool)
	for i, row := range rows {
		rec, reason, err := extract(ctx, tx, headers, row)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			result.RowsSkipped++
			log.WithFields(logrus.Fields{"row": i + 2, "reason": reason}).Debug("import row skipped")
			continue
		}

		ref := imp.ID
		if _, err := writer.UpsertSalesHours(ctx, rec.worker, rec.date, rec.sales, rec.hours, payroll.SourceImport, &ref); err != nil {
			return nil, err
		}
		result.RowsUpserted++
		touched[rec.worker] = true
	}

	for w := range touched {
		result.Workers = append(result.Workers, w)
	}
	sort.Slice(result.Workers, func(i, j int) bool { return result.Workers[i] < result.Workers[j] })
	return result, nil
}

type record struct {
	worker payroll.WorkerID
	date   payroll.Date
	sales  int64
	hours  decimal.Decimal
}

// extract returns a skip reason for unusable rows; err is reserved for
// store failures.
func extract(ctx context.Context, dir payroll.WorkerDirectory, hm headerMap, row map[string]string) (record, string, error) {
	day, err := payroll.ParseDate(hm.value(row, colDate))
	if err != nil {
		return record{}, "unparsable date", nil
	}

	ref := payroll.WorkerRef{
		ID:       payroll.WorkerID(hm.value(row, colWorkerID)),
		Email:    hm.value(row, colEmail),
		Username: hm.value(row, colUsername),
	}
	if ref.IsZero() {
		return record{}, "no worker key", nil
	}
	worker, err := payroll.ResolveWorker(ctx, dir, ref)
	if err != nil {
		return record{}, "", err
	}
	if worker == nil {
		return record{}, "unknown worker", nil
	}

	sales, err := parseSales(hm.value(row, colSales))
	if err != nil {
		return record{}, err.Error(), nil
	}
	hours, err := parseHours(hm.value(row, colHours))
	if err != nil {
		return record{}, err.Error(), nil
	}

	return record{worker: worker.ID, date: day, sales: sales, hours: hours}, "", nil
}

func contentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// =============================================================================
// LOOKUP
// =============================================================================

// Get returns a stored import with row counts.
func (l *Ledger) Get(ctx context.Context, id payroll.ImportID) (*Summary, error) {
	imp, err := l.store.GetImport(ctx, id)
	if err != nil {
		return nil, err
	}
	if imp == nil {
		return nil, fmt.Errorf("%w: %s", payroll.ErrImportNotFound, id)
	}
	n, err := l.store.CountSalesHoursByImport(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Summary{Import: *imp, Rows: len(imp.ParsedRows), SalesHoursRows: n}, nil
}
