// internal/models/document.go
package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Document is the raw JSONB body of an offers, vehicles or users row. Accessors never fail:
// a missing or malformed field reads as its zero value.
type Document map[string]interface{}

// ParseDocument decodes raw JSON. "null" and empty input give a nil Document.
func ParseDocument(raw []byte) (Document, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func (d Document) Has(field string) bool {
	v, ok := d[field]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// String returns string fields as-is and formats numbers and booleans.
func (d Document) String(field string) string {
	switch v := d[field].(type) {
	case string:
		return v
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func (d Document) Bool(field string) bool {
	switch v := d[field].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

func (d Document) Float(field string) (float64, bool) {
	switch v := d[field].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(v), ",", ""), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Time reads RFC3339 strings, plain dates, unix milliseconds and exported Firestore
// timestamps ({"_seconds": n} or {"seconds": n}).
func (d Document) Time(field string) (time.Time, bool) {
	return ParseTime(d[field])
}

func ParseTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	case float64:
		if t <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(t)).UTC(), true
	case map[string]interface{}:
		for _, key := range []string{"_seconds", "seconds"} {
			if secs, ok := t[key].(float64); ok {
				return time.Unix(int64(secs), 0).UTC(), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func (d Document) Map(field string) Document {
	if m, ok := d[field].(map[string]interface{}); ok {
		return Document(m)
	}
	if m, ok := d[field].(Document); ok {
		return m
	}
	return nil
}

// Strings returns the string elements of an array field.
func (d Document) Strings(field string) []string {
	switch v := d[field].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// FieldEqual compares a field across two snapshots by its JSON encoding. Absent and null
// are equal.
func FieldEqual(a, b Document, field string) bool {
	return canonical(a[field]) == canonical(b[field])
}

func canonical(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
