package formula

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// roundPrecision is the number of decimals kept on every float result.
const roundPrecision = 1e10

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

func round10(f float64) float64 {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return f
	}
	return math.Round(f*roundPrecision) / roundPrecision
}

func isInteger(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), n == math.Trunc(n)
	case float32:
		return int64(n), float64(n) == math.Trunc(float64(n))
	}
	return 0, false
}

// toFloat converts numbers and numeric strings. ok is false for anything else.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
		return f, err == nil
	}
	if i, ok := toInt64(v); ok && isInteger(v) {
		return float64(i), true
	}
	return 0, false
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case float64, float32, json.Number:
		return true
	}
	return isInteger(v)
}

func isString(v interface{}) bool {
	switch v.(type) {
	case string, []byte:
		return true
	}
	return false
}

// normalizeNumber collapses integer kinds to int and floats to a rounded float64.
func normalizeNumber(v interface{}) interface{} {
	switch n := v.(type) {
	case float64:
		return round10(n)
	case float32:
		return round10(float64(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		f, _ := n.Float64()
		return round10(f)
	}
	if isInteger(v) {
		i, _ := toInt64(v)
		return int(i)
	}
	return v
}

func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	case []byte:
		return toTime(string(t))
	}
	return time.Time{}, false
}

// toText renders a value the way TEXT() and string concatenation do.
func toText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02 15:04:05")
	}
	if isInteger(v) {
		i, _ := toInt64(v)
		return strconv.FormatInt(i, 10)
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(round10(f), 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}

// truthy is the boolean view of a value used by conditions: nil is false.
func truthy(v interface{}) (bool, error) {
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	case *bool:
		return b != nil && *b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1":
			return true, nil
		case "false", "0", "":
			return false, nil
		}
		return false, fmt.Errorf("expected boolean, got string %q", b)
	}
	if f, ok := toFloat(v); ok && isNumber(v) {
		return f != 0, nil
	}
	return false, fmt.Errorf("expected boolean, got %T", v)
}

func isBlank(v interface{}) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(s) == ""
	case []byte:
		return strings.TrimSpace(string(s)) == ""
	}
	return false
}

// equalValues compares two values loosely: numbers by value, times by
// instant, everything else by its text rendering.
func equalValues(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isNumber(a) || isNumber(b) {
		fa, okA := toFloat(a)
		fb, okB := toFloat(b)
		if okA && okB {
			return round10(fa) == round10(fb)
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := toTime(b); ok {
			return ta.Equal(tb)
		}
	}
	if tb, ok := b.(time.Time); ok {
		if ta, ok := toTime(a); ok {
			return ta.Equal(tb)
		}
	}
	return toText(a) == toText(b)
}
