// Package coerce converts values produced by the VM to declared Go types.
package coerce

import (
	"math"
	"reflect"
	"strconv"
	"strings"
)

// To converts value to t. When no sensible conversion exists it returns the
// zero value of t and false. A nil t yields value as an interface.
func To(value any, t reflect.Type) (reflect.Value, bool) {
	if t == nil {
		return reflect.ValueOf(&value).Elem(), true
	}
	zero := reflect.Zero(t)
	if value == nil {
		return zero, false
	}

	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(v)
		return out, true
	}

	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := ToInt64(value)
		if !ok || out.OverflowInt(n) {
			return zero, false
		}
		out.SetInt(n)
		return out, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, ok := ToUint64(value)
		if !ok || out.OverflowUint(n) {
			return zero, false
		}
		out.SetUint(n)
		return out, true
	case reflect.Float32, reflect.Float64:
		f, ok := ToFloat64(value)
		if !ok || out.OverflowFloat(f) {
			return zero, false
		}
		out.SetFloat(f)
		return out, true
	case reflect.String:
		str, ok := ToString(value)
		if !ok {
			return zero, false
		}
		out.SetString(str)
		return out, true
	case reflect.Bool:
		b, ok := ToBool(value)
		if !ok {
			return zero, false
		}
		out.SetBool(b)
		return out, true
	case reflect.Slice:
		if str, ok := value.(string); ok && t.Elem().Kind() == reflect.Uint8 {
			out.SetBytes([]byte(str))
			return out, true
		}
	}

	if v.Kind() == t.Kind() && v.Type().ConvertibleTo(t) {
		return v.Convert(t), true
	}
	return zero, false
}

// ToInt64 accepts integers, integral floats and numeric strings.
func ToInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint:
		if uint64(v) <= math.MaxInt64 {
			return int64(v), true
		}
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
	case float64:
		if v >= math.MinInt64 && v < math.MaxInt64 && v == math.Trunc(v) {
			return int64(v), true
		}
	case float32:
		return ToInt64(float64(v))
	case string:
		if f, ok := parseNumber(v); ok {
			return ToInt64(f)
		}
	}
	return 0, false
}

// ToUint64 accepts non-negative integers, integral floats and numeric
// strings.
func ToUint64(value any) (uint64, bool) {
	switch v := value.(type) {
	case uint64:
		return v, true
	case uint:
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uintptr:
		return uint64(v), true
	case float64:
		if v >= 0 && v < math.MaxUint64 && v == math.Trunc(v) {
			return uint64(v), true
		}
	case float32:
		return ToUint64(float64(v))
	case string:
		if f, ok := parseNumber(v); ok {
			return ToUint64(f)
		}
	default:
		if n, ok := ToInt64(value); ok && n >= 0 {
			return uint64(n), true
		}
	}
	return 0, false
}

// ToFloat64 accepts any number and numeric strings.
func ToFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case string:
		return parseNumber(v)
	}
	if n, ok := ToInt64(value); ok {
		return float64(n), true
	}
	if n, ok := ToUint64(value); ok {
		return float64(n), true
	}
	return 0, false
}

// ToString accepts strings, byte slices and numbers, formatted the way the
// VM formats them.
func ToString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case float64:
		return formatNumber(v), true
	case float32:
		return formatNumber(float64(v)), true
	}
	if n, ok := ToInt64(value); ok {
		return strconv.FormatInt(n, 10), true
	}
	if n, ok := ToUint64(value); ok {
		return strconv.FormatUint(n, 10), true
	}
	return "", false
}

// ToBool accepts booleans only.
func ToBool(value any) (bool, bool) {
	b, ok := value.(bool)
	return b, ok
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', 14, 64)
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	if n, err := strconv.ParseInt(s, 0, 64); err == nil {
		return float64(n), true
	}
	return 0, false
}
