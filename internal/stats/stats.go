// Package stats models the loosely typed JSON documents returned by the
// service. No schema is enforced: lookups are optimistic and a missing or
// unusable key reads as the zero value.
package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const maxDocumentBytes = 2 << 20

// Stats is a decoded JSON object. Numbers are kept as json.Number.
type Stats map[string]any

// Streak holds the day-streak counters reported by the service.
type Streak struct {
	Current int64
	Max     int64
}

// Decode reads a single JSON object from r.
func Decode(r io.Reader) (Stats, error) {
	dec := json.NewDecoder(io.LimitReader(r, maxDocumentBytes))
	dec.UseNumber()
	var s Stats
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding json object: %w", err)
	}
	if s == nil {
		// A literal null body decodes to a nil map.
		s = Stats{}
	}
	return s, nil
}

// Value returns the raw value stored under key.
func (s Stats) Value(key string) (any, bool) {
	v, ok := s[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Int returns the integer stored under key, or 0.
func (s Stats) Int(key string) int64 {
	v, ok := s.Value(key)
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(t)
	case int64:
		return t
	case int:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// String returns the value under key rendered as a string, or "".
func (s Stats) String(key string) string {
	v, ok := s.Value(key)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

// Streak extracts the current and maximum streak counters.
func (s Stats) Streak(currentKey, maxKey string) Streak {
	return Streak{
		Current: s.Int(currentKey),
		Max:     s.Int(maxKey),
	}
}
