// Package determinism provides primitives for reproducible pricing output.
// Hashes, rounding and monetary formatting all go through here.
package determinism

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is the only currency SDA amounts are published in
const Currency = "AUD"

var half = decimal.New(5, -1)

// ContentHash is a SHA-256 hash for content integrity
type ContentHash [32]byte

// Hex returns the hash as a hex string
func (h ContentHash) Hex() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 16 hex characters
func (h ContentHash) Short() string {
	return h.Hex()[:16]
}

// String implements Stringer
func (h ContentHash) String() string {
	return h.Short() + "..."
}

// RoundHalfUp rounds to the nearest whole number, halves away from zero
func RoundHalfUp(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return d.Sub(half).Ceil()
	}
	return d.Add(half).Floor()
}

// Money represents a monetary amount with full precision.
// NEVER use float64 for money calculations.
type Money struct {
	amount decimal.Decimal
}

// NewMoney creates Money from a decimal string
func NewMoney(amount string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, err
	}
	return Money{amount: d}, nil
}

// NewMoneyFromDecimal creates Money from decimal
func NewMoneyFromDecimal(amount decimal.Decimal) Money {
	return Money{amount: amount}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// String returns the amount with two decimals and the currency code
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(2), Currency)
}

// Display formats the amount as $1,234.56
func (m Money) Display() string {
	s := m.amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}

	sign := ""
	if m.amount.IsNegative() {
		sign = "-"
	}
	return sign + "$" + b.String() + "." + frac
}

// SortSlice sorts a slice in a stable, deterministic manner
func SortSlice[T any](slice []T, less func(a, b T) bool) {
	sort.SliceStable(slice, func(i, j int) bool {
		return less(slice[i], slice[j])
	})
}

// SortedKeys returns a sorted copy of map keys
func SortedKeys[K comparable, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
	})
	return keys
}
