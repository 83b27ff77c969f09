// Package fixedpoint turns decimal feature values and split thresholds into
// the integers the homomorphic backends operate on.
package fixedpoint

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// MaxPrecision keeps 10^precision inside int64.
const MaxPrecision = 18

// Normalize maps boolean and "other" tokens to their numeric form:
// t|yes|other -> 1, f|no -> 0. Any other value is returned trimmed.
func Normalize(raw string) string {
	v := strings.TrimSpace(raw)
	switch v {
	case "t", "yes", "other":
		return "1"
	case "f", "no":
		return "0"
	}
	return v
}

// Encode scales a decimal value by 10^precision and truncates toward zero.
// Decimal strings are shifted exactly, so "0.29" at precision 2 is 29.
func Encode(value string, precision int) (int64, error) {
	if precision < 0 || precision > MaxPrecision {
		return 0, xerrors.Errorf("precision %d out of range [0, %d]", precision, MaxPrecision)
	}
	s := Normalize(value)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, xerrors.Errorf("not a number: %q", value)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, xerrors.Errorf("not a finite number: %q", value)
	}
	if !plainDecimal(s) {
		s = strconv.FormatFloat(f, 'f', -1, 64)
	}

	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i+1:]
	}
	if len(frac) > precision {
		frac = frac[:precision]
	}
	frac += strings.Repeat("0", precision-len(frac))

	digits := strings.TrimLeft(intPart+frac, "0")
	if digits == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, xerrors.Errorf("value %q out of range at precision %d", value, precision)
	}
	if neg {
		n = -n
	}
	return n, nil
}

// EncodeFloat encodes a threshold held as a float, using its shortest
// decimal representation.
func EncodeFloat(f float64, precision int) (int64, error) {
	return Encode(strconv.FormatFloat(f, 'f', -1, 64), precision)
}

// Decode is the inverse of Encode up to truncation.
func Decode(n int64, precision int) float64 {
	return float64(n) / math.Pow10(precision)
}

func plainDecimal(s string) bool {
	dot := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' && !dot:
			dot = true
		case (r == '-' || r == '+') && i == 0:
		default:
			return false
		}
	}
	return true
}
