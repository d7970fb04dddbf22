package util

import (
	"fmt"
	"math"
	"time"
)

// Date layouts used at external boundaries. Compact dates appear in provider
// requests and the watermark file, ISO dates in persisted series rows.
const (
	CompactDate = "20060102"
	ISODate     = "2006-01-02"
)

// ParseCompact parses a YYYYMMDD date string into a UTC midnight time.
func ParseCompact(s string) (time.Time, error) {
	t, err := time.Parse(CompactDate, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing compact date %q: %w", s, err)
	}
	return t, nil
}

// ParseISO parses a YYYY-MM-DD date string into a UTC midnight time.
func ParseISO(s string) (time.Time, error) {
	t, err := time.Parse(ISODate, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

// Compact formats t as YYYYMMDD.
func Compact(t time.Time) string { return t.Format(CompactDate) }

// ISO formats t as YYYY-MM-DD.
func ISO(t time.Time) string { return t.Format(ISODate) }

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NextDay returns the calendar day after t.
func NextDay(t time.Time) time.Time { return Day(t).AddDate(0, 0, 1) }

// PrevDay returns the calendar day before t.
func PrevDay(t time.Time) time.Time { return Day(t).AddDate(0, 0, -1) }

// SameOrAfter reports whether a is the same day as b or later.
func SameOrAfter(a, b time.Time) bool { return !Day(a).Before(Day(b)) }

// Round2 rounds v to 2 decimal places, the canonical precision for price and
// percentage fields.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
