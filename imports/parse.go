package imports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/tierpay/payroll"
	"github.com/xuri/excelize/v2"
)

// =============================================================================
// HEADER SYNONYMS - Resolved once per import
// =============================================================================

type column int

const (
	colDate column = iota
	colSales
	colHours
	colWorkerID
	colEmail
	colUsername
)

// synonyms lists accepted normalized header names per logical column, in
// priority order. "user" deliberately appears twice: it is tried as an id
// first and as a username if no worker has that id.
var synonyms = map[column][]string{
	colDate:     {"date", "day", "workdate"},
	colSales:    {"sales", "netsales", "totalsales"},
	colHours:    {"hours", "hour", "totalhours", "workedhours"},
	colWorkerID: {"userid", "employeeid", "workerid", "user"},
	colEmail:    {"email", "useremail"},
	colUsername: {"username", "user"},
}

// normalizeHeader lower-cases and strips everything but [a-z0-9].
func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// headerMap maps each logical column to the raw header carrying it.
type headerMap map[column]string

func resolveHeaders(headers []string) headerMap {
	byNorm := make(map[string]string, len(headers))
	for _, h := range headers {
		n := normalizeHeader(h)
		if _, seen := byNorm[n]; !seen && n != "" {
			byNorm[n] = h
		}
	}

	hm := make(headerMap)
	for col, names := range synonyms {
		for _, name := range names {
			if raw, ok := byNorm[name]; ok {
				hm[col] = raw
				break
			}
		}
	}
	return hm
}

// usable reports whether rows can produce facts at all.
func (hm headerMap) usable() bool {
	_, hasDate := hm[colDate]
	_, hasSales := hm[colSales]
	_, hasHours := hm[colHours]
	return hasDate && (hasSales || hasHours) && hm.hasWorkerKey()
}

func (hm headerMap) hasWorkerKey() bool {
	_, id := hm[colWorkerID]
	_, email := hm[colEmail]
	_, username := hm[colUsername]
	return id || email || username
}

func (hm headerMap) value(row map[string]string, col column) string {
	raw, ok := hm[col]
	if !ok {
		return ""
	}
	return strings.TrimSpace(row[raw])
}

// headerKeys returns the union of keys over rows, sorted.
func headerKeys(rows []map[string]string) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// FILE READERS
// =============================================================================

var zipMagic = []byte("PK\x03\x04")

func isSpreadsheet(filename string, content []byte) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".xlsx") || bytes.HasPrefix(content, zipMagic)
}

// readRows decodes a CSV or XLSX file into header-keyed rows.
func readRows(filename string, content []byte) ([]map[string]string, error) {
	var (
		records [][]string
		err     error
	)
	if isSpreadsheet(filename, content) {
		records, err = readXLSX(content)
	} else {
		records, err = readCSV(content)
	}
	if err != nil {
		return nil, err
	}
	return toRows(records), nil
}

func readCSV(content []byte) ([][]string, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func readXLSX(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx: workbook has no sheets")
	}
	// Raw values keep numbers unformatted; date cells come back as serials.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	if len(rows) == 0 {
		return rows, nil
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	raw, ok := resolveHeaders(rows[0])[colDate]
	if !ok {
		return rows, nil
	}
	for i, h := range rows[0] {
		if h != raw {
			continue
		}
		for _, row := range rows[1:] {
			if i < len(row) {
				row[i] = serialDate(row[i], date1904)
			}
		}
		break
	}
	return rows, nil
}

// serialDate rewrites a spreadsheet date serial as an ISO date. Text cells
// pass through untouched.
func serialDate(v string, date1904 bool) string {
	serial, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || serial <= 0 {
		return v
	}
	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return v
	}
	return t.Format(payroll.DateLayout)
}

// toRows uses the first record as headers and drops blank rows.
func toRows(records [][]string) []map[string]string {
	if len(records) == 0 {
		return nil
	}
	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	var rows []map[string]string
	for _, rec := range records[1:] {
		row := make(map[string]string, len(headers))
		blank := true
		for i, h := range headers {
			if h == "" {
				continue
			}
			v := ""
			if i < len(rec) {
				v = strings.TrimSpace(rec[i])
			}
			if v != "" {
				blank = false
			}
			row[h] = v
		}
		if !blank {
			rows = append(rows, row)
		}
	}
	return rows
}

// normalizeRows stringifies JSON-decoded rows.
func normalizeRows(in []map[string]any) []map[string]string {
	out := make([]map[string]string, 0, len(in))
	for _, row := range in {
		m := make(map[string]string, len(row))
		for k, v := range row {
			m[k] = stringify(v)
		}
		out = append(out, m)
	}
	return out
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// =============================================================================
// VALUE PARSERS
// =============================================================================

var moneyStripper = strings.NewReplacer("$", "", ",", "", " ", "")

// parseSales accepts "1,234.56" or "$1234" and truncates to whole units.
// Empty is zero.
func parseSales(s string) (int64, error) {
	s = moneyStripper.Replace(s)
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("sales %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("sales %q is negative", s)
	}
	return d.IntPart(), nil
}

// parseHours accepts a decimal number of hours. Empty is zero.
func parseHours(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("hours %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("hours %q is negative", s)
	}
	return d, nil
}
