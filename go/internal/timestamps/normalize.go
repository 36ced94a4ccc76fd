// Package timestamps converts the temporal values found in stored documents
// into time.Time. Records may carry native dates, ISO strings, epoch
// milliseconds or the {seconds, nanoseconds} wrapper of document exports.
package timestamps

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"google.golang.org/protobuf/types/known/timestamppb"
)

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalize returns the instant held by v. The boolean is false when v is
// nil or not a recognized representation.
func Normalize(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case primitive.DateTime:
		return t.Time(), true
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0), true
	case *timestamppb.Timestamp:
		if t == nil || t.CheckValid() != nil {
			return time.Time{}, false
		}
		return t.AsTime(), true
	case string:
		return parseString(t)
	case int64:
		return time.UnixMilli(t), true
	case int32:
		return time.UnixMilli(int64(t)), true
	case int:
		return time.UnixMilli(int64(t)), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(t)), true
	case json.Number:
		ms, err := t.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(ms), true
	case primitive.M:
		return fromSeconds(map[string]any(t))
	case map[string]any:
		return fromSeconds(t)
	case primitive.D:
		return fromSeconds(t.Map())
	}
	return time.Time{}, false
}

// Ptr is Normalize for optional fields.
func Ptr(v any) *time.Time {
	t, ok := Normalize(v)
	if !ok {
		return nil
	}
	return &t
}

func parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// fromSeconds reads the {seconds, nanoseconds} wrapper, accepting the
// underscore-prefixed keys some exports use.
func fromSeconds(m map[string]any) (time.Time, bool) {
	secs, ok := number(first(m, "seconds", "_seconds"))
	if !ok {
		return time.Time{}, false
	}
	nanos, _ := number(first(m, "nanoseconds", "_nanoseconds", "nanos"))
	return time.Unix(secs, nanos), true
}

func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func number(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
