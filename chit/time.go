package chit

import (
	"strings"
	"time"
)

// MonthKeyLayout is the persisted format of a settlement month.
const MonthKeyLayout = "2006-01"

// MonthKey returns the YYYY-MM key for t in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format(MonthKeyLayout)
}

// ValidMonthKey reports whether s is a well-formed YYYY-MM key.
func ValidMonthKey(s string) bool {
	_, err := time.Parse(MonthKeyLayout, s)
	return err == nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate accepts RFC3339 timestamps and plain dates. ok is false for
// empty or unparsable input.
func ParseDate(s string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// Period is a contribution month.
type Period struct {
	Month string // "January"
	Year  int
}

// PeriodsFrom lists the first-of-month periods covered by a chit. A
// non-positive duration covers nothing.
func PeriodsFrom(start time.Time, months int) []Period {
	if months <= 0 {
		return []Period{}
	}
	periods := make([]Period, 0, months)
	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < months; i++ {
		d := first.AddDate(0, i, 0)
		periods = append(periods, Period{Month: d.Month().String(), Year: d.Year()})
	}
	return periods
}

// PeriodOf returns the contribution period containing t.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Month: t.Month().String(), Year: t.Year()}
}

func nowFunc(f func() time.Time) time.Time {
	if f != nil {
		return f().UTC()
	}
	return time.Now().UTC()
}
