package generic

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/teambition/rrule-go"
)

// =============================================================================
// HOLIDAY CALENDAR - Public holidays excluded from leave counting
// =============================================================================

// Holiday is a public or site holiday.
//
// Three shapes are supported:
//   - one-off: Date only
//   - Recurring: same month/day every year, anchored on Date
//   - RRule: an RFC 5545 recurrence (e.g. "FREQ=YEARLY;BYMONTH=7;BYMONTHDAY=14")
//     anchored on Date
type Holiday struct {
	ID        string    `json:"id,omitempty" yaml:"id,omitempty"`
	Date      TimePoint `json:"date" yaml:"date"`
	Name      string    `json:"name" yaml:"name"`
	Recurring bool      `json:"recurring,omitempty" yaml:"recurring,omitempty"`
	RRule     string    `json:"rrule,omitempty" yaml:"rrule,omitempty"`
}

// HolidayCalendar provides holiday lookup functionality.
type HolidayCalendar interface {
	IsHoliday(date TimePoint) bool
}

// NoHolidays is a calendar without any holiday.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(TimePoint) bool { return false }

// HolidaySet is an in-memory HolidayCalendar. Safe for concurrent reads.
type HolidaySet struct {
	mu        sync.Mutex
	fixed     map[string]bool
	recurring map[string]bool // MM-DD
	rules     []*rrule.RRule
}

// NewHolidaySet builds a calendar, parsing every RRULE up front.
func NewHolidaySet(holidays ...Holiday) (*HolidaySet, error) {
	hs := &HolidaySet{
		fixed:     make(map[string]bool),
		recurring: make(map[string]bool),
	}
	for _, h := range holidays {
		if err := hs.add(h); err != nil {
			return nil, err
		}
	}
	return hs, nil
}

func (hs *HolidaySet) add(h Holiday) error {
	switch {
	case h.RRule != "":
		rule, err := rrule.StrToRRule(h.RRule)
		if err != nil {
			return fmt.Errorf("holiday %q: invalid rrule: %w", h.Name, err)
		}
		anchor := h.Date.Time
		if anchor.IsZero() {
			anchor = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
		}
		rule.DTStart(anchor)
		hs.rules = append(hs.rules, rule)
	case h.Recurring:
		hs.recurring[h.Date.Time.Format("01-02")] = true
	default:
		if h.Date.IsZero() {
			return fmt.Errorf("holiday %q: date is required", h.Name)
		}
		hs.fixed[h.Date.String()] = true
	}
	return nil
}

// IsHoliday checks if a date is a holiday.
func (hs *HolidaySet) IsHoliday(date TimePoint) bool {
	if hs == nil {
		return false
	}
	if hs.fixed[date.String()] || hs.recurring[date.Time.Format("01-02")] {
		return true
	}
	if len(hs.rules) == 0 {
		return false
	}

	start := date.normalize()
	end := date.EndOfDay()

	hs.mu.Lock()
	defer hs.mu.Unlock()
	for _, rule := range hs.rules {
		if len(rule.Between(start, end, true)) > 0 {
			return true
		}
	}
	return false
}

// MultiCalendar reports a holiday when any member calendar does.
type MultiCalendar []HolidayCalendar

func (m MultiCalendar) IsHoliday(date TimePoint) bool {
	for _, c := range m {
		if c != nil && c.IsHoliday(date) {
			return true
		}
	}
	return false
}

// IsWorkdayWithHolidays checks if a date is a working day, considering holidays.
func (tp TimePoint) IsWorkdayWithHolidays(calendar HolidayCalendar) bool {
	if tp.IsWeekend() {
		return false
	}
	if calendar != nil && calendar.IsHoliday(tp) {
		return false
	}
	return true
}

// =============================================================================
// FRENCH PUBLIC HOLIDAYS
// =============================================================================

// FrenchPublicHolidays returns the eleven statutory holidays for a year.
func FrenchPublicHolidays(year int) []Holiday {
	easter := easterSunday(year)
	days := []Holiday{
		{Date: NewTimePoint(year, time.January, 1), Name: "Jour de l'an"},
		{Date: easter.AddDays(1), Name: "Lundi de Pâques"},
		{Date: NewTimePoint(year, time.May, 1), Name: "Fête du Travail"},
		{Date: NewTimePoint(year, time.May, 8), Name: "Victoire 1945"},
		{Date: easter.AddDays(39), Name: "Ascension"},
		{Date: easter.AddDays(50), Name: "Lundi de Pentecôte"},
		{Date: NewTimePoint(year, time.July, 14), Name: "Fête nationale"},
		{Date: NewTimePoint(year, time.August, 15), Name: "Assomption"},
		{Date: NewTimePoint(year, time.November, 1), Name: "Toussaint"},
		{Date: NewTimePoint(year, time.November, 11), Name: "Armistice 1918"},
		{Date: NewTimePoint(year, time.December, 25), Name: "Noël"},
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	for i := range days {
		days[i].ID = fmt.Sprintf("fr-%s", days[i].Date)
	}
	return days
}

// easterSunday uses the anonymous Gregorian algorithm.
func easterSunday(year int) TimePoint {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return NewTimePoint(year, time.Month(month), day)
}

// =============================================================================
// WORK SCHEDULES - Which days a person would otherwise work
// =============================================================================

// WorkSchedule tells whether a person is scheduled to work on a day.
type WorkSchedule interface {
	Works(date TimePoint) bool
}

// WeekdaySchedule works on a fixed set of weekdays.
type WeekdaySchedule map[time.Weekday]bool

// FullTime is Monday to Friday.
func FullTime() WeekdaySchedule {
	return NewWeekdaySchedule(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)
}

func NewWeekdaySchedule(days ...time.Weekday) WeekdaySchedule {
	s := make(WeekdaySchedule, len(days))
	for _, d := range days {
		s[d] = true
	}
	return s
}

func (s WeekdaySchedule) Works(date TimePoint) bool { return s[date.Weekday()] }

// AlternatingSchedule is a part-time pattern that differs between odd and
// even ISO weeks.
type AlternatingSchedule struct {
	OddWeeks  WeekdaySchedule
	EvenWeeks WeekdaySchedule
}

func (s AlternatingSchedule) Works(date TimePoint) bool {
	_, week := date.ISOWeek()
	if week%2 == 1 {
		return s.OddWeeks.Works(date)
	}
	return s.EvenWeeks.Works(date)
}
