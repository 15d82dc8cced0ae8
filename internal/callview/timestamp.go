package callview

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/carefollow/callboard/internal/structs"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// dateConverter is implemented by timestamp types that know how to convert
// themselves, like the Firestore timestamp.
type dateConverter interface {
	ToDate() time.Time
}

// layouts are tried in order when coercing a string into a time.Time.
// Layouts without zone information are interpreted in the requested location.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"Mon Jan 02 2006 15:04:05",
	"Mon Jan 02 2006 15:04",
	"Mon Jan 02 2006",
	time.RFC1123,
	time.RFC1123Z,
}

// CoerceTime is like CoerceTimeIn but interprets zone-less values in the
// local time zone.
func CoerceTime(v any) (time.Time, bool) {
	return CoerceTimeIn(v, time.Local)
}

// CoerceTimeIn converts the different timestamp representations sent by the
// call backend into a time.Time. It returns false if v is nil, empty or cannot
// be interpreted as a valid point in time.
func CoerceTimeIn(v any, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}

	var t time.Time

	switch x := v.(type) {
	case nil:
		return time.Time{}, false

	case time.Time:
		t = x

	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		t = *x

	case dateConverter:
		t = x.ToDate()

	case primitive.DateTime:
		t = x.Time()

	case primitive.Timestamp:
		t = time.Unix(int64(x.T), 0)

	case string:
		t = parseTimeString(x, loc)

	case int:
		t = time.UnixMilli(int64(x))
	case int32:
		t = time.UnixMilli(int64(x))
	case int64:
		t = time.UnixMilli(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return time.Time{}, false
		}
		t = time.UnixMilli(int64(x))
	case json.Number:
		if ms, err := x.Int64(); err == nil {
			t = time.UnixMilli(ms)
		}

	case map[string]any:
		t = fromSeconds(x)
	case primitive.M:
		t = fromSeconds(map[string]any(x))
	case primitive.D:
		m := make(map[string]any, len(x))
		for _, e := range x {
			m[e.Key] = e.Value
		}
		t = fromSeconds(m)

	default:
		return time.Time{}, false
	}

	if t.IsZero() {
		return time.Time{}, false
	}

	return t.In(loc), true
}

func parseTimeString(s string, loc *time.Location) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}

	// JavaScript's Date.toString() appends the zone name in parentheses.
	if idx := strings.Index(s, " ("); idx > 0 {
		s = s[:idx]
	}

	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}

	return time.Time{}
}

// fromSeconds handles the serialized form of a Firestore timestamp.
func fromSeconds(m map[string]any) time.Time {
	secs, ok := number(m["seconds"])
	if !ok {
		secs, ok = number(m["_seconds"])
	}
	if !ok {
		return time.Time{}
	}

	nanos, ok := number(m["nanoseconds"])
	if !ok {
		nanos, _ = number(m["_nanoseconds"])
	}

	return time.Unix(int64(secs), int64(nanos))
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}

	return 0, false
}

// ParseClock parses a time of day in the format HH:MM or HH:MM:SS.
func ParseClock(s string) (hour, minute int, ok bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, false
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, false
	}

	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, false
	}

	return hour, minute, true
}

// ScheduledTime combines the date and time of a queued call's schedule.
func ScheduledTime(s structs.Schedule, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}

	date, ok := CoerceTimeIn(s.Date, loc)
	if !ok {
		return time.Time{}, false
	}

	if strings.TrimSpace(s.Time) == "" {
		return date, true
	}

	hour, minute, ok := ParseClock(s.Time)
	if !ok {
		return time.Time{}, false
	}

	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc), true
}
