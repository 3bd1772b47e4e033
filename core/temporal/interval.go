// Package temporal provides half-open validity intervals and the single
// "active at date" lookup shared by every versioned table.
package temporal

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

// Day truncates t to its calendar date at midnight UTC.
// The wall-clock date of t is kept; the time zone is discarded.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// Interval is a half-open validity period [From, To).
// A nil To means the interval is open-ended.
type Interval struct {
	From time.Time  `json:"effective_from"`
	To   *time.Time `json:"effective_to,omitempty"`
}

// NewInterval builds an interval with both bounds truncated to dates
func NewInterval(from time.Time, to *time.Time) Interval {
	iv := Interval{From: Day(from)}
	if to != nil {
		end := Day(*to)
		iv.To = &end
	}
	return iv
}

// OpenFrom builds an open-ended interval starting at from
func OpenFrom(from time.Time) Interval {
	return NewInterval(from, nil)
}

// Period returns the interval itself so that rows embedding Interval
// satisfy Versioned.
func (i Interval) Period() Interval {
	return i
}

// IsOpen reports whether the interval has no end
func (i Interval) IsOpen() bool {
	return i.To == nil
}

// Contains reports whether the interval is active on the given date:
// From <= d AND (To IS NULL OR To > d).
func (i Interval) Contains(d time.Time) bool {
	day := Day(d)
	if Day(i.From).After(day) {
		return false
	}
	return i.To == nil || Day(*i.To).After(day)
}

// Overlaps reports whether two intervals share at least one date
func (i Interval) Overlaps(other Interval) bool {
	// [a1, a2) and [b1, b2) overlap iff a1 < b2 and b1 < a2
	if other.To != nil && !Day(i.From).Before(Day(*other.To)) {
		return false
	}
	if i.To != nil && !Day(other.From).Before(Day(*i.To)) {
		return false
	}
	return true
}

// Validate checks the interval is non-empty
func (i Interval) Validate() error {
	if i.From.IsZero() {
		return fmt.Errorf("effective_from is required")
	}
	if i.To != nil && !Day(*i.To).After(Day(i.From)) {
		return fmt.Errorf("effective_to %s must be after effective_from %s",
			i.To.Format(DateLayout), i.From.Format(DateLayout))
	}
	return nil
}

// Close returns a copy of the interval ending at end
func (i Interval) Close(end time.Time) Interval {
	e := Day(end)
	return Interval{From: i.From, To: &e}
}

// String returns the interval in [from, to) notation
func (i Interval) String() string {
	to := "∞"
	if i.To != nil {
		to = i.To.Format(DateLayout)
	}
	return "[" + i.From.Format(DateLayout) + ", " + to + ")"
}
