// Package coerce converts loosely typed JSON-like values into the concrete
// scalar types used on the sync wire.
//
// Values may come from callers building payloads in Go (int, float64,
// []map[string]any, ...) or from JSON decoded with UseNumber (json.Number,
// []any, map[string]any). Both shapes coerce identically.
package coerce

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Int coerces v to an int64. Floats are truncated toward zero.
func Int(v any) (int64, bool) {
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
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		return parseInt(string(n))
	case string:
		return parseInt(n)
	default:
		return 0, false
	}
}

// Float coerces v to a float64.
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case json.Number:
		return parseFloat(string(n))
	case string:
		return parseFloat(n)
	default:
		if i, ok := Int(v); ok {
			return float64(i), true
		}
		return 0, false
	}
}

// String coerces v to a trimmed string. Blank strings are reported as absent.
func String(v any) (string, bool) {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case json.Number:
		s = x.String()
	case bool:
		s = strconv.FormatBool(x)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		i, ok := Int(v)
		if !ok {
			return "", false
		}
		s = strconv.FormatInt(i, 10)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	return s, true
}

// Normalize converts arbitrary Go values into the shape produced by decoding
// JSON with UseNumber: map[string]any, []any, json.Number, string, bool.
// Nil map values and nil slice elements are dropped. Nil maps and slices, and
// values that cannot be represented in JSON, normalize to nil.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case map[string]any:
		if x == nil {
			return nil
		}
		out := make(map[string]any, len(x))
		for k, val := range x {
			if n := Normalize(val); n != nil {
				out[k] = n
			}
		}
		return out
	case []any:
		if x == nil {
			return nil
		}
		out := make([]any, 0, len(x))
		for _, val := range x {
			if n := Normalize(val); n != nil {
				out = append(out, n)
			}
		}
		return out
	case []map[string]any:
		if x == nil {
			return nil
		}
		out := make([]any, 0, len(x))
		for _, val := range x {
			if val == nil {
				continue
			}
			out = append(out, Normalize(val))
		}
		return out
	case string, bool, json.Number:
		return x
	}

	if i, ok := v.(int64); ok {
		return json.Number(strconv.FormatInt(i, 10))
	}

	return roundTrip(v)
}

// Map normalizes v and returns it as an object, or nil when v is not one.
func Map(v any) map[string]any {
	m, _ := Normalize(v).(map[string]any)
	return m
}

// StripNulls returns a deep copy of v with nil object members and nil array
// elements removed at every depth.
func StripNulls(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			if val == nil {
				continue
			}
			if s := StripNulls(val); s != nil {
				out[k] = s
			}
		}
		return out
	case []any:
		out := make([]any, 0, len(x))
		for _, val := range x {
			if s := StripNulls(val); s != nil {
				out = append(out, s)
			}
		}
		return out
	default:
		return v
	}
}

// Clone returns a deep copy of a JSON-like value.
func Clone(v any) any {
	return StripNulls(v)
}

func roundTrip(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil
	}

	return StripNulls(out)
}

// floatToInt rejects values outside [-2^63, 2^63). float64(math.MaxInt64)
// rounds up to 2^63, so the bounds are spelled as exact powers of two.
func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= 0x1p63 || f < -0x1p63 {
		return 0, false
	}

	return int64(f), true
}

func parseInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}

	return floatToInt(f)
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}

	return finite(f)
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	return f, true
}
