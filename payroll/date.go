package payroll

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DATE - Civil calendar date (no time of day, always UTC midnight)
// =============================================================================

// DateLayout is the canonical wire and storage format.
const DateLayout = "2006-01-02"

// Date is a calendar day. Facts and tiers are keyed by Date, never by instant.
type Date struct {
	Time time.Time
}

// NewDate builds a Date at UTC midnight.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its calendar day in the instant's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Today returns the current UTC calendar day.
func Today() Date {
	return DateOf(time.Now().UTC())
}

var dateLayouts = []string{DateLayout, "01/02/2006", "1/2/2006"}

// ParseDate accepts ISO dates (with or without a trailing time part) and
// US-style month/day/year dates.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 10 {
		if t, err := time.Parse(DateLayout, s[:10]); err == nil {
			return DateOf(t), nil
		}
	}
	for _, layout := range dateLayouts[1:] {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("unrecognised date %q", s)
}

// MustParseDate panics on malformed input. Intended for tests and fixtures.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(o Date) bool        { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool         { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool         { return d.Time.Equal(o.Time) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.Before(o) }

// AddDays returns the date n days later (or earlier for negative n).
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

func (d Date) IsZero() bool   { return d.Time.IsZero() }
func (d Date) String() string { return d.Time.Format(DateLayout) }

// CountThrough returns how many days DaysThrough(end) would yield, without
// building them.
func (d Date) CountThrough(end Date) int {
	if end.Before(d) {
		return 0
	}
	return int((end.Time.Unix()-d.Time.Unix())/secondsPerDay) + 1
}

const secondsPerDay = 24 * 60 * 60

// DaysThrough returns every date from d to end inclusive. Empty when end < d.
func (d Date) DaysThrough(end Date) []Date {
	var days []Date
	for cur := d; cur.BeforeOrEqual(end); cur = cur.AddDays(1) {
		days = append(days, cur)
	}
	return days
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
