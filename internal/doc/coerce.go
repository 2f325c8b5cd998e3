package doc

import (
	"math"
	"strconv"
	"strings"
)

// Scalar constrains the Go types accepted by Get and Set.
type Scalar interface {
	bool | int | int64 | float64 | string
}

// ToFloat converts a scalar to a number.
// Bools map to 0/1, numeric strings parse, "true"/"false" map to 1/0.
func ToFloat(n Node) (float64, bool) {
	switch v := n.(type) {
	case Number:
		return float64(v), true
	case Bool:
		if v {
			return 1, true
		}
		return 0, true
	case String:
		s := strings.TrimSpace(string(v))
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
		switch s {
		case "true":
			return 1, true
		case "false":
			return 0, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// ToBool converts a scalar to a bool. Numbers are true when non-zero.
func ToBool(n Node) (bool, bool) {
	switch v := n.(type) {
	case Bool:
		return bool(v), true
	case Number:
		return v != 0, true
	case String:
		s := strings.TrimSpace(string(v))
		switch s {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f != 0, true
		}
		return false, false
	default:
		return false, false
	}
}

// ToString converts a scalar to its canonical text form.
func ToString(n Node) (string, bool) {
	switch v := n.(type) {
	case String:
		return string(v), true
	case Number:
		return FormatNumber(float64(v)), true
	case Bool:
		return strconv.FormatBool(bool(v)), true
	default:
		return "", false
	}
}

// FormatNumber renders a float without exponent for ordinary magnitudes,
// so integral values print as "42" rather than "42.000000" or "4.2e+01".
func FormatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	if math.Abs(f) >= 1e21 || (f != 0 && math.Abs(f) < 1e-6) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// InferScalar turns override text into the most specific scalar:
// a number, then a bool, otherwise a string.
func InferScalar(text string) Node {
	if f, err := strconv.ParseFloat(text, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return Number(f)
	}
	switch text {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	return String(text)
}

// toNode wraps a Go scalar as a Node.
func toNode[T Scalar](v T) Node {
	switch x := any(v).(type) {
	case bool:
		return Bool(x)
	case int:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Number(0)
		}
		return Number(x)
	case string:
		return String(x)
	}
	return Null{}
}

// fromNode converts a scalar node into T, reporting failure.
func fromNode[T Scalar](n Node) (T, bool) {
	var zero T
	var out any
	ok := false

	switch any(zero).(type) {
	case bool:
		out, ok = ToBool(n)
	case int:
		var f float64
		f, ok = ToFloat(n)
		out = int(f)
	case int64:
		var f float64
		f, ok = ToFloat(n)
		out = int64(f)
	case float64:
		out, ok = ToFloat(n)
	case string:
		out, ok = ToString(n)
	}
	if !ok {
		return zero, false
	}
	return out.(T), true
}
