package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - Calendar day used by counting, history and rule windows
// =============================================================================

// TimePoint is a calendar day; only the UTC date of Time is significant.
type TimePoint struct {
	Time time.Time
}

const dateLayout = "2006-01-02"

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf truncates a timestamp to its UTC calendar day.
func DayOf(t time.Time) TimePoint {
	t = t.UTC()
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DayOf(t), nil
}

// MustDate is ParseDate for literals in tests and presets.
func MustDate(s string) TimePoint {
	tp, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return tp.Before(other) || tp.Equal(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return tp.After(other) || tp.Equal(other) }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint {
	return TimePoint{Time: tp.Time.AddDate(0, 0, n)}
}

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsWeekend() bool       { wd := tp.Weekday(); return wd == time.Saturday || wd == time.Sunday }
func (tp TimePoint) IsWorkday() bool       { return !tp.IsWeekend() }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

// ISOWeek returns the ISO 8601 year and week number.
func (tp TimePoint) ISOWeek() (year, week int) { return tp.Time.ISOWeek() }

// SameISOWeek reports whether both days fall in the same ISO week.
func (tp TimePoint) SameISOWeek(other TimePoint) bool {
	y1, w1 := tp.ISOWeek()
	y2, w2 := other.ISOWeek()
	return y1 == y2 && w1 == w2
}

// EndOfDay returns the last instant of the day, for "as of" lookups.
func (tp TimePoint) EndOfDay() time.Time {
	return tp.normalize().Add(24*time.Hour - time.Nanosecond)
}

func (tp TimePoint) String() string { return tp.Time.Format(dateLayout) }

// MarshalText encodes the day as YYYY-MM-DD (JSON and YAML).
func (tp TimePoint) MarshalText() ([]byte, error) {
	return []byte(tp.Time.Format(dateLayout)), nil
}

// UnmarshalText accepts YYYY-MM-DD or RFC 3339 (truncated to the day).
func (tp *TimePoint) UnmarshalText(b []byte) error {
	s := string(b)
	if parsed, err := ParseDate(s); err == nil {
		*tp = parsed
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	*tp = DayOf(t)
	return nil
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// DaysBetween returns the signed number of calendar days from -> to.
func DaysBetween(from, to TimePoint) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// AbsDaysBetween is DaysBetween without sign.
func AbsDaysBetween(a, b TimePoint) int {
	d := DaysBetween(a, b)
	if d < 0 {
		return -d
	}
	return d
}

func StartOfYear(year int) TimePoint { return NewTimePoint(year, time.January, 1) }
func EndOfYear(year int) TimePoint   { return NewTimePoint(year, time.December, 31) }
