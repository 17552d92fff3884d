package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Amount is a fixed-point quantity of the marketplace's unit of account,
// stored as hundredths of a unit. 45 units is Amount(4500).
type Amount int64

// AmountScale is the number of minor units in one whole unit.
const AmountScale = 100

// MaxPrice is the highest price a work may carry: one trillion units.
// Any percentage of it and any sum of a few of them stays well inside int64.
const MaxPrice = Amount(1_000_000_000_000 * AmountScale)

// Units builds an Amount from whole units.
func Units(n int64) Amount { return Amount(n * AmountScale) }

// Percent returns the share of a that corresponds to pct percent, truncated
// towards zero in minor units. pct is expected in [0, 100].
func (a Amount) Percent(pct int64) Amount {
	v := int64(a)
	return Amount(v/100*pct + v%100*pct/100)
}

// String renders the amount with exactly two fractional digits.
func (a Amount) String() string {
	v := int64(a)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/AmountScale, v%AmountScale)
}

// MarshalJSON writes the amount as a JSON number, e.g. 31.50.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or string with at most two fractional
// digits. null leaves the amount unchanged.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("amount: invalid value %s", b)
		}
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ParseAmount parses a decimal string like "45", "31.5" or "13.50".
// More than two fractional digits is an error, never a rounding.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount: empty value")
	}
	neg := false
	if s[0] == '-' || s[0] == '+' {
		neg = s[0] == '-'
		s = s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" && (!hasFrac || frac == "") {
		return 0, fmt.Errorf("amount: invalid value %q", s)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return 0, fmt.Errorf("amount: invalid value %q", s)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount: %q has more than two fractional digits", s)
	}
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount: invalid value %q: %w", s, err)
	}
	var f int64
	if frac != "" {
		for len(frac) < 2 {
			frac += "0"
		}
		f, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("amount: invalid value %q: %w", s, err)
		}
	}
	if w > (math.MaxInt64-f)/AmountScale {
		return 0, fmt.Errorf("amount: %q out of range", s)
	}
	v := w*AmountScale + f
	if neg {
		v = -v
	}
	return Amount(v), nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
