/*
Package rules evaluates catalog rules against a candidate fact.

PURPOSE:
  The evaluator answers one question for a scheduler or a reviewer:
  "if this assignment (or leave request) were accepted, which rules would
  it break?" It never writes anything; all data it needs is passed in.

KEY CONCEPTS:
  - Fact: the candidate (an assignment or a leave request) and its person
  - Context: what already exists (assignment history, other leaves,
    headcounts, leave usage, calendars)
  - Report: violations, per-rule errors and one outcome per rule

SEE ALSO:
  - evaluator.go: Dispatch and precedence
  - leave.go, duty.go, incompatibility.go, assignment.go, supervision.go:
    One predicate per rule type
*/
package rules

import (
	"github.com/shopspring/decimal"
	"github.com/warp/planning-engine/generic"
)

// =============================================================================
// ASSIGNMENTS
// =============================================================================

// Common assignment types. Catalogs may use others; these are the ones the
// evaluator gives a meaning to.
const (
	TypeGarde        = "GARDE"
	TypeAstreinte    = "ASTREINTE"
	TypeReposGarde   = "REPOS_GARDE"
	TypeConsultation = "CONSULTATION"
	TypeSupervision  = "SUPERVISION"
	TypeBloc         = "BLOC"
)

// restTypes mark a day as rest: they never break a rest-day-after-duty.
var restTypes = map[string]bool{TypeReposGarde: true}

// Slot is the part of the day an assignment covers.
type Slot string

const (
	SlotMorning   Slot = "AM"
	SlotAfternoon Slot = "PM"
	SlotFullDay   Slot = "FULL"
)

func (s Slot) covers(other Slot) bool {
	return s == other || s == SlotFullDay || s == ""
}

// Assignment is one planned activity of one person on one day.
type Assignment struct {
	ID              string            `json:"id,omitempty"`
	PersonID        string            `json:"personId"`
	Date            generic.TimePoint `json:"date"`
	Type            string            `json:"type"`
	Slot            Slot              `json:"slot,omitempty"`
	SectorID        string            `json:"sectorId,omitempty"`
	RoomID          string            `json:"roomId,omitempty"`
	SupervisedRooms []string          `json:"supervisedRooms,omitempty"`
	// Justification documents an exceptional overrun (e.g. a 4th duty
	// within the exceptional band).
	Justification string `json:"justification,omitempty"`
}

func (a Assignment) supervisedRooms() []string {
	seen := make(map[string]bool, len(a.SupervisedRooms))
	out := make([]string, 0, len(a.SupervisedRooms))
	for _, r := range a.SupervisedRooms {
		if r != "" && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

// LeaveRequest is a requested or already granted absence.
type LeaveRequest struct {
	ID          string              `json:"id,omitempty"`
	PersonID    string              `json:"personId"`
	Role        string              `json:"role,omitempty"`
	LeaveType   string              `json:"leaveType"`
	Start       generic.TimePoint   `json:"start"`
	End         generic.TimePoint   `json:"end"`
	HalfDays    []generic.TimePoint `json:"halfDays,omitempty"`
	RequestedOn generic.TimePoint   `json:"requestedOn,omitempty"`
}

func (l LeaveRequest) Period() generic.Period {
	return generic.Period{Start: l.Start, End: l.End}
}

// =============================================================================
// FACT AND CONTEXT
// =============================================================================

// Fact is the candidate under evaluation. Exactly one of Assignment and
// Leave is expected, depending on the category evaluated.
type Fact struct {
	PersonID   string        `json:"personId"`
	Role       string        `json:"role,omitempty"`
	Assignment *Assignment   `json:"assignment,omitempty"`
	Leave      *LeaveRequest `json:"leave,omitempty"`
}

// UsageKey identifies consumed leave per person and leave type.
type UsageKey struct {
	PersonID  string
	LeaveType string
}

// Context is everything already known around the fact. Fields left nil
// make the rules that need them report a ContextMissingError.
type Context struct {
	// History holds existing assignments of every relevant person.
	History []Assignment
	// Leaves holds existing leaves of every relevant person.
	Leaves []LeaveRequest
	// RoleHeadcount is the number of staff per role.
	RoleHeadcount map[string]int
	// Roles maps a person to their role.
	Roles map[string]string
	// LeaveUsage is the amount already consumed in the current quota period.
	LeaveUsage map[UsageKey]decimal.Decimal
	Holidays   generic.HolidayCalendar
	Schedules  map[string]generic.WorkSchedule
	// AsOf is "today"; it stands in for a missing RequestedOn.
	AsOf generic.TimePoint
}

func (c Context) schedule(personID string) generic.WorkSchedule {
	if s, ok := c.Schedules[personID]; ok && s != nil {
		return s
	}
	return generic.FullTime()
}

func (c Context) holidays() generic.HolidayCalendar {
	if c.Holidays == nil {
		return generic.NoHolidays{}
	}
	return c.Holidays
}

func (c Context) roleOf(personID, declared string) string {
	if declared != "" {
		return declared
	}
	return c.Roles[personID]
}
