package fleet

import (
	"strings"
	"time"
)

// DateLayout is the canonical on-disk representation of calendar dates.
const DateLayout = "2006-01-02"

// dateLayouts are tried in order when parsing dates from external input.
// The source spreadsheet mixes ISO dates with German day-first dates.
var dateLayouts = []string{
	DateLayout,
	"02.01.2006",
	"2.1.2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ParseDate parses a calendar date leniently. The zero time is returned for
// anything unparseable; callers treat a zero date as "missing" and exclude
// the row from recency computations (it still counts toward cost totals).
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// MonthsBetween returns the calendar-month-boundary difference between two
// dates: (year delta)*12 + (month delta). The day of month is ignored
// entirely, so a service on Jan 31 is already one month old on Feb 1. The
// coarse rule is load-bearing; do not substitute a day-precise duration.
func MonthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

// DaysUntil returns the signed number of whole days from today until due,
// comparing calendar days in due's location.
func DaysUntil(today, due time.Time) int {
	t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	d := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	return int(d.Sub(t).Hours() / 24)
}
