package gantt

import (
	"strings"
	"time"
)

// DateLayout is the wire format of every calendar date in the gantt model.
const DateLayout = "2006-01-02"

// civil truncates t to its calendar date in loc, expressed as UTC midnight.
func civil(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parseDate accepts YYYY-MM-DD or any RFC3339 timestamp and returns the civil date.
func parseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return civil(t, loc), true
	}
	if len(s) >= len(DateLayout) {
		if t, err := time.Parse(DateLayout, s[:len(DateLayout)]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseInstant accepts an RFC3339 timestamp or a bare date (midnight in loc).
func parseInstant(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func formatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func addDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func maxDate(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
