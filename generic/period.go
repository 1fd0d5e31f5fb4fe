package generic

// =============================================================================
// PERIOD - Inclusive day range
// =============================================================================

// Period is an inclusive range of days [Start, End].
//
// Examples:
//   - A leave request: Mon 3 Mar - Fri 7 Mar
//   - A rolling duty window: the 30 days ending on the candidate date
type Period struct {
	Start TimePoint
	End   TimePoint
}

// NewPeriod validates and builds a period.
func NewPeriod(start, end TimePoint) (Period, error) {
	p := Period{Start: start, End: end}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// Trailing returns the window of n days ending on (and including) end.
func Trailing(end TimePoint, n int) Period {
	if n < 1 {
		n = 1
	}
	return Period{Start: end.AddDays(-(n - 1)), End: end}
}

// Validate fails with InvalidRangeError when Start is after End.
func (p Period) Validate() error {
	if p.Start.After(p.End) {
		return &InvalidRangeError{Start: p.Start, End: p.End}
	}
	return nil
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Overlaps reports whether the two periods share at least one day.
func (p Period) Overlaps(o Period) bool {
	return p.Start.BeforeOrEqual(o.End) && o.Start.BeforeOrEqual(p.End)
}

// Touches reports whether the periods overlap or are directly adjacent.
func (p Period) Touches(o Period) bool {
	return p.Start.BeforeOrEqual(o.End.AddDays(1)) && o.Start.BeforeOrEqual(p.End.AddDays(1))
}

// Union returns the smallest period covering both.
func (p Period) Union(o Period) Period {
	out := p
	if o.Start.Before(out.Start) {
		out.Start = o.Start
	}
	if o.End.After(out.End) {
		out.End = o.End
	}
	return out
}

// Len returns the number of calendar days in the period.
func (p Period) Len() int {
	if p.Start.After(p.End) {
		return 0
	}
	return DaysBetween(p.Start, p.End) + 1
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
