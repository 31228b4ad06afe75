package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FlattenSeparator joins nested keys.
const FlattenSeparator = "__"

// EventListFields are the keys that may hold a time series' events, in
// order of preference.
var EventListFields = []string{"events", "data", "percentiles"}

// timeLayouts are tried in order for string timestamps without a zone
// designator; they are interpreted as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// decodeObject decodes raw into a map, keeping numbers as json.Number.
func decodeObject(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: want JSON object", ErrInvalidShape)
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	return obj, nil
}

func decodeAny(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	return v, nil
}

// Flatten joins nested object keys with FlattenSeparator. Arrays are kept
// as values. Numbers become int64 when integral, float64 otherwise.
func Flatten(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	flattenInto(out, "", obj)
	return out
}

func flattenInto(out map[string]any, prefix string, obj map[string]any) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + FlattenSeparator + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, key, nested)
			continue
		}
		out[key] = normalize(v)
	}
}

// normalize converts json.Number values, recursing into arrays.
func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = normalize(t[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = normalize(inner)
		}
		return out
	}
	return v
}

// coerce turns numbers and numeric strings into float64. Other values are
// returned normalized.
func coerce(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
	case string:
		s := strings.TrimSpace(t)
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
	}
	return normalize(v)
}

// toFloat returns v as a float64 pointer, nil for null.
func toFloat(v any) (*float64, error) {
	if v == nil {
		return nil, nil
	}
	switch c := coerce(v).(type) {
	case float64:
		return &c, nil
	default:
		return nil, fmt.Errorf("%w: not a number: %v", ErrInvalidShape, v)
	}
}

// ParseTimestamp accepts epoch milliseconds (number or numeric string) and
// RFC 3339 strings. Zone-less strings are read as UTC. Results are in UTC.
func ParseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, ErrMissingField
	case json.Number:
		return fromMillis(string(t))
	case float64:
		return fromFloatMillis(t)
	case int64:
		return fromFloatMillis(float64(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
		}
		if ts, err := fromMillis(s); err == nil {
			return ts, nil
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidTimestamp, v)
}

// Epoch millisecond bounds for years 0000 through 9999.
const (
	minEpochMillis = -62167219200000
	maxEpochMillis = 253402300799999
)

func fromMillis(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < minEpochMillis || ms > maxEpochMillis {
			return time.Time{}, fmt.Errorf("%w: %q out of range", ErrInvalidTimestamp, s)
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	return fromFloatMillis(f)
}

func fromFloatMillis(f float64) (time.Time, error) {
	if math.IsNaN(f) || f < minEpochMillis || f > maxEpochMillis {
		return time.Time{}, fmt.Errorf("%w: %v out of range", ErrInvalidTimestamp, f)
	}
	return time.UnixMilli(int64(f)).UTC(), nil
}
