package temporal

import (
	"errors"
	"time"
)

// ErrNoMatch is returned when no row matches the keys at the requested date
var ErrNoMatch = errors.New("no row active at date")

// Versioned is implemented by every row carrying a validity interval
type Versioned interface {
	Period() Interval
}

// Match is the outcome of a temporal lookup
type Match[T any] struct {
	// Row is the first matching row in table order
	Row T

	// Index is the position of Row in the table
	Index int

	// Candidates counts every row that matched; more than one is a
	// data-integrity defect in the table.
	Candidates int
}

// Ambiguous reports whether more than one row matched
func (m Match[T]) Ambiguous() bool {
	return m.Candidates > 1
}

// Find selects the row whose keys satisfy match and whose interval contains
// asOf. Rows are scanned in order; the first match wins and the remaining
// matches are only counted.
func Find[T Versioned](rows []T, asOf time.Time, match func(T) bool) (Match[T], error) {
	result := Match[T]{Index: -1}
	day := Day(asOf)

	for i, row := range rows {
		if !row.Period().Contains(day) {
			continue
		}
		if match != nil && !match(row) {
			continue
		}
		if result.Candidates == 0 {
			result.Row = row
			result.Index = i
		}
		result.Candidates++
	}

	if result.Candidates == 0 {
		return result, ErrNoMatch
	}
	return result, nil
}
