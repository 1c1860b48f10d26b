package normalize

import (
	"math"
	"regexp"
	"strconv"
)

var (
	// integerLiteral matches an optionally signed run of digits.
	integerLiteral = regexp.MustCompile(`^[+-]?\d+$`)

	// decimalLiteral matches decimals and scientific notation.
	decimalLiteral = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
)

// Coerce converts a scalar into its canonical document value:
//
//   - booleans become bool
//   - integers within the int32 range become int32, wider ones int64
//   - fractional or exponent literals become float64
//   - everything else stays a string with its original text
//
// KindString scalars are never inspected. KindLiteral scalars are typed
// by their content with the rules above. Coerce never fails; numeric text
// that cannot be represented falls back to its string form. KindNull
// returns nil.
func Coerce(s Scalar) any {
	switch s.Kind {
	case KindNull:
		return nil
	case KindString:
		return s.Text
	case KindBool:
		if b, ok := parseBool(s.Text); ok {
			return b
		}
		return s.Text
	case KindNumber:
		if v, ok := parseNumber(s.Text); ok {
			return v
		}
		return s.Text
	case KindLiteral:
		if b, ok := parseBool(s.Text); ok {
			return b
		}
		if v, ok := parseNumber(s.Text); ok {
			return v
		}
		return s.Text
	default:
		return s.Text
	}
}

// parseBool accepts only the literal spellings true and false.
func parseBool(s string) (bool, bool) {
	switch s {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

// parseNumber types a numeric literal as int32, int64 or float64.
func parseNumber(s string) (any, bool) {
	if integerLiteral.MatchString(s) {
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, false
		}
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return int32(i), true
		}
		return i, true
	}

	if decimalLiteral.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) {
			return nil, false
		}
		return f, true
	}

	return nil, false
}
