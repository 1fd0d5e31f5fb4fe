/*
Package leave converts date ranges into deducted leave days.

PURPOSE:
  A leave request, its approval and every report must agree on how many
  days a range costs. CountDays is a pure function of its inputs so the
  three stages can call it independently and get the same answer.

COUNTING METHODS:
  WEEKDAYS_IF_WORKING  Mon-Fri, minus holidays, minus days off per schedule
  MONDAY_TO_SATURDAY   Mon-Sat, minus holidays
  CONTINUOUS_ALL_DAYS  every calendar day
  WEEKDAYS_ONLY        Mon-Fri, holidays included
  NONE                 always 0 (the leave type deducts nothing)

HALF DAYS:
  A date flagged as a half day counts 0.5 when the method would count it,
  0 otherwise. Flags require AllowHalfDays.

SEE ALSO:
  - generic/calendar.go: HolidayCalendar, WorkSchedule
  - rules/leave.go: Leave rules counting requests with the rule's method
*/
package leave

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/planning-engine/generic"
)

// Method selects which days of a range are deducted.
type Method string

const (
	WeekdaysIfWorking Method = "WEEKDAYS_IF_WORKING"
	MondayToSaturday  Method = "MONDAY_TO_SATURDAY"
	ContinuousAllDays Method = "CONTINUOUS_ALL_DAYS"
	WeekdaysOnly      Method = "WEEKDAYS_ONLY"
	None              Method = "NONE"
)

// Methods lists every supported method.
var Methods = []Method{WeekdaysIfWorking, MondayToSaturday, ContinuousAllDays, WeekdaysOnly, None}

func (m Method) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMethod rejects unknown methods.
func ParseMethod(s string) (Method, error) {
	m := Method(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", generic.ErrUnknownCountingMethod, s)
	}
	return m, nil
}

// Request is a range to count with its optional half-day flags.
type Request struct {
	Start         generic.TimePoint
	End           generic.TimePoint
	Method        Method
	HalfDays      []generic.TimePoint
	AllowHalfDays bool
}

// CountDays counts full days of [start, end] with the given method.
// holidays and schedule may be nil (no holidays, Monday to Friday).
func CountDays(start, end generic.TimePoint, method Method, holidays generic.HolidayCalendar, schedule generic.WorkSchedule) (decimal.Decimal, error) {
	return Count(Request{Start: start, End: end, Method: method}, holidays, schedule)
}

// Count counts a request, honouring half-day flags.
func Count(req Request, holidays generic.HolidayCalendar, schedule generic.WorkSchedule) (decimal.Decimal, error) {
	period, err := generic.NewPeriod(req.Start, req.End)
	if err != nil {
		return decimal.Zero, err
	}
	if !req.Method.Valid() {
		return decimal.Zero, fmt.Errorf("%w: %q", generic.ErrUnknownCountingMethod, req.Method)
	}

	halves, err := halfDaySet(period, req)
	if err != nil {
		return decimal.Zero, err
	}
	if req.Method == None {
		return decimal.Zero, nil
	}
	if holidays == nil {
		holidays = generic.NoHolidays{}
	}
	if schedule == nil {
		schedule = generic.FullTime()
	}

	total := decimal.Zero
	for _, day := range period.Days() {
		if !counts(req.Method, day, holidays, schedule) {
			continue
		}
		if halves[day.String()] {
			total = total.Add(generic.Half)
		} else {
			total = total.Add(generic.One)
		}
	}

	if req.AllowHalfDays {
		total = generic.RoundToHalf(total)
	}
	return total, nil
}

func halfDaySet(period generic.Period, req Request) (map[string]bool, error) {
	if len(req.HalfDays) == 0 {
		return nil, nil
	}
	if !req.AllowHalfDays {
		return nil, generic.ErrHalfDayNotAllowed
	}
	set := make(map[string]bool, len(req.HalfDays))
	for _, d := range req.HalfDays {
		if !period.Contains(d) {
			return nil, fmt.Errorf("%w: %s not in %s", generic.ErrHalfDayOutsideRange, d, period)
		}
		set[d.String()] = true
	}
	return set, nil
}

// CountsDay reports whether a single day would be deducted by method.
func CountsDay(m Method, day generic.TimePoint, holidays generic.HolidayCalendar, schedule generic.WorkSchedule) bool {
	if holidays == nil {
		holidays = generic.NoHolidays{}
	}
	if schedule == nil {
		schedule = generic.FullTime()
	}
	return counts(m, day, holidays, schedule)
}

func counts(m Method, day generic.TimePoint, holidays generic.HolidayCalendar, schedule generic.WorkSchedule) bool {
	switch m {
	case WeekdaysIfWorking:
		return day.IsWorkdayWithHolidays(holidays) && schedule.Works(day)
	case MondayToSaturday:
		return day.Weekday() != time.Sunday && !holidays.IsHoliday(day)
	case ContinuousAllDays:
		return true
	case WeekdaysOnly:
		return day.IsWorkday()
	default:
		return false
	}
}
