/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types that are
  already JSON friendly (rules.Fact, rules.Report, generic.FatigueEntry,
  catalog.Catalog) are used as-is; the types here cover what is not.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response types returned to clients

VALIDATION:
  Request types carry go-playground/validator tags, checked by decode()
  before a handler sees them.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/planning-engine/catalog"
	"github.com/warp/planning-engine/fatigue"
	"github.com/warp/planning-engine/generic"
	"github.com/warp/planning-engine/rules"
	"github.com/warp/planning-engine/scoring"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error    string            `json:"error"`
	Details  string            `json:"details,omitempty"`
	Problems []generic.Problem `json:"problems,omitempty"`
}

// =============================================================================
// SCHEDULES AND CALENDARS
// =============================================================================

// ScheduleDTO describes the days a person works. Empty means Monday to
// Friday; with EvenWeekDays set the pattern alternates by ISO week parity.
type ScheduleDTO struct {
	WeekDays     []string `json:"weekDays,omitempty" validate:"omitempty,dive,oneof=MON TUE WED THU FRI SAT SUN"`
	EvenWeekDays []string `json:"evenWeekDays,omitempty" validate:"omitempty,dive,oneof=MON TUE WED THU FRI SAT SUN"`
}

var weekdays = map[string]time.Weekday{
	"MON": time.Monday, "TUE": time.Tuesday, "WED": time.Wednesday, "THU": time.Thursday,
	"FRI": time.Friday, "SAT": time.Saturday, "SUN": time.Sunday,
}

func toWeekdaySchedule(days []string) generic.WeekdaySchedule {
	ws := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		ws = append(ws, weekdays[d])
	}
	return generic.NewWeekdaySchedule(ws...)
}

// Schedule converts the DTO; nil means full time.
func (s *ScheduleDTO) Schedule() generic.WorkSchedule {
	if s == nil || len(s.WeekDays) == 0 {
		return generic.FullTime()
	}
	odd := toWeekdaySchedule(s.WeekDays)
	if len(s.EvenWeekDays) == 0 {
		return odd
	}
	return generic.AlternatingSchedule{OddWeeks: odd, EvenWeeks: toWeekdaySchedule(s.EvenWeekDays)}
}

// =============================================================================
// LEAVE COUNTING
// =============================================================================

// CountLeaveRequest asks how many days a leave consumes.
type CountLeaveRequest struct {
	Start         generic.TimePoint   `json:"start" validate:"required"`
	End           generic.TimePoint   `json:"end" validate:"required"`
	Method        string              `json:"method" validate:"required"`
	HalfDays      []generic.TimePoint `json:"halfDays,omitempty"`
	AllowHalfDays bool                `json:"allowHalfDays"`
	Schedule      *ScheduleDTO        `json:"schedule,omitempty"`
	// FrenchHolidays adds the statutory French holidays of the years
	// covered to the stored site holidays.
	FrenchHolidays bool `json:"frenchHolidays"`
}

type CountLeaveResponse struct {
	Start  generic.TimePoint `json:"start"`
	End    generic.TimePoint `json:"end"`
	Method string            `json:"method"`
	Days   decimal.Decimal   `json:"days"`
}

// =============================================================================
// RULE EVALUATION
// =============================================================================

// LeaveUsageDTO is one line of consumed leave.
type LeaveUsageDTO struct {
	PersonID  string          `json:"personId" validate:"required"`
	LeaveType string          `json:"leaveType" validate:"required"`
	Days      decimal.Decimal `json:"days"`
}

// EvaluationContextDTO mirrors rules.Context in a JSON friendly form.
// Holidays come from the holiday store.
type EvaluationContextDTO struct {
	History        []rules.Assignment     `json:"history,omitempty"`
	Leaves         []rules.LeaveRequest   `json:"leaves,omitempty"`
	RoleHeadcount  map[string]int         `json:"roleHeadcount,omitempty"`
	Roles          map[string]string      `json:"roles,omitempty"`
	LeaveUsage     []LeaveUsageDTO        `json:"leaveUsage,omitempty" validate:"omitempty,dive"`
	Schedules      map[string]ScheduleDTO `json:"schedules,omitempty" validate:"omitempty,dive"`
	AsOf           generic.TimePoint      `json:"asOf"`
	FrenchHolidays bool                   `json:"frenchHolidays"`
}

// EvaluateRequest evaluates one fact against a rule category.
type EvaluateRequest struct {
	Category catalog.Category     `json:"category" validate:"required,oneof=leaveRules dutyRules assignmentRules"`
	Fact     rules.Fact           `json:"fact"`
	Context  EvaluationContextDTO `json:"context"`
}

// EvaluateResponse is the report plus its verdict.
type EvaluateResponse struct {
	Blocking bool         `json:"blocking"`
	Report   rules.Report `json:"report"`
}

// =============================================================================
// FATIGUE
// =============================================================================

// RecordEventRequest records one fatigue event.
type RecordEventRequest struct {
	PersonID string            `json:"personId" validate:"required"`
	Kind     generic.EventKind `json:"kind" validate:"required"`
	At       time.Time         `json:"at" validate:"required"`
}

// RecordEventResponse has Recorded false when fatigue tracking is disabled
// in the catalog in force.
type RecordEventResponse struct {
	Recorded bool                  `json:"recorded"`
	Entry    *generic.FatigueEntry `json:"entry,omitempty"`
}

type FatigueScoreResponse struct {
	PersonID string        `json:"personId"`
	AsOf     time.Time     `json:"asOf"`
	Score    int           `json:"score"`
	Level    fatigue.Level `json:"level"`
}

type RecordAssignmentResponse struct {
	Entries []generic.FatigueEntry `json:"entries"`
}

// =============================================================================
// SCORING
// =============================================================================

type ScoreRequest struct {
	PersonID        string    `json:"personId" validate:"required"`
	EquityDeviation float64   `json:"equityDeviation" validate:"gte=0,lte=1"`
	AsOf            time.Time `json:"asOf"`
}

type ScoreResponse struct {
	PersonID string    `json:"personId"`
	AsOf     time.Time `json:"asOf"`
	Score    float64   `json:"score"`
}

type RankRequest struct {
	Candidates []scoring.Candidate `json:"candidates" validate:"required,min=1,dive"`
	AsOf       time.Time           `json:"asOf"`
}

type RankResponse struct {
	AsOf    time.Time           `json:"asOf"`
	Ranking []scoring.Breakdown `json:"ranking"`
}

// =============================================================================
// CATALOG AND HOLIDAYS
// =============================================================================

type CatalogResponse struct {
	Generation int64            `json:"generation"`
	Catalog    *catalog.Catalog `json:"catalog"`
}

type HolidayRequest struct {
	Date      generic.TimePoint `json:"date"`
	Name      string            `json:"name" validate:"required"`
	Recurring bool              `json:"recurring"`
	RRule     string            `json:"rrule,omitempty"`
}

type FrenchHolidaysRequest struct {
	Year int `json:"year" validate:"required,gte=1900,lte=2200"`
}

type HolidaysResponse struct {
	Holidays []generic.Holiday `json:"holidays"`
}
