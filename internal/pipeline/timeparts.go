package pipeline

import (
	"math"
	"time"
)

// StartTime converts an epoch-milliseconds event timestamp into the instant
// it denotes, expressed in loc. Fractional milliseconds are truncated.
// ok is false for NaN and infinities.
func StartTime(ts float64, loc *time.Location) (t time.Time, ok bool) {
	if math.IsNaN(ts) || math.IsInf(ts, 0) {
		return time.Time{}, false
	}
	ms := math.Trunc(ts)
	if ms >= math.MaxInt64 || ms < math.MinInt64 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).In(loc), true
}

// TimeParts are the calendar fields of one start_time, all in the zone the
// instant carries.
type TimeParts struct {
	Hour    int64 // 0-23
	Day     int64 // day of month
	Week    int64 // ISO-8601 week of year
	Month   int64 // 1-12
	Year    int64
	Weekday int64 // 1 = Sunday ... 7 = Saturday
}

// Parts derives the calendar fields of t.
func Parts(t time.Time) TimeParts {
	_, week := t.ISOWeek()
	return TimeParts{
		Hour:    int64(t.Hour()),
		Day:     int64(t.Day()),
		Week:    int64(week),
		Month:   int64(t.Month()),
		Year:    int64(t.Year()),
		Weekday: int64(t.Weekday()) + 1,
	}
}
