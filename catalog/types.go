/*
Package catalog holds the validated rule catalog.

PURPOSE:
  The catalog is the only configuration the engine reads: sector/room
  topology, leave types, leave/duty/assignment rules and the fatigue
  parameters. It is built once from YAML (or JSON), validated
  exhaustively, and then never mutated. A reload builds a new catalog and
  swaps it in atomically (see holder.go).

RULE CONFIGURATIONS:
  Each Rule carries a RuleConfig whose concrete type is determined by
  Rule.Type:

    LEAVE                          LeaveConfig
    DUTY                           DutyConfig
    DUTY_INCOMPATIBILITY           IncompatibilityConfig
    ASSIGNMENT                     AssignmentConfig
    ASSIGNMENT_SUPERVISION_SOURCE  SupervisionSourceConfig

SEVERITY:
  Severity is derived from Priority, never configured separately:

    LOW -> INFO, MEDIUM -> WARNING, WARNING -> WARNING,
    HIGH -> HIGH, CRITICAL -> CRITICAL

  HIGH and CRITICAL are blocking.

SEE ALSO:
  - load.go: YAML schema, validation and construction
  - topology.go: Sector/room lookups
  - rules/evaluator.go: Consumer of the catalog
*/
package catalog

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/planning-engine/generic"
	"github.com/warp/planning-engine/leave"
)

// =============================================================================
// PRIORITY AND SEVERITY
// =============================================================================

type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
	PriorityWarning  Priority = "WARNING"
)

type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severity derives the evaluation severity of a rule priority.
func (p Priority) Severity() Severity {
	switch p {
	case PriorityLow:
		return SeverityInfo
	case PriorityMedium, PriorityWarning:
		return SeverityWarning
	case PriorityHigh:
		return SeverityHigh
	case PriorityCritical:
		return SeverityCritical
	default:
		return SeverityWarning
	}
}

// Blocking reports whether a violation of this severity rejects the fact.
func (s Severity) Blocking() bool {
	return s == SeverityHigh || s == SeverityCritical
}

func (s Severity) rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool { return s.rank() >= other.rank() }

// =============================================================================
// RULE TYPES AND CATEGORIES
// =============================================================================

type RuleType string

const (
	TypeLeave               RuleType = "LEAVE"
	TypeDuty                RuleType = "DUTY"
	TypeDutyIncompatibility RuleType = "DUTY_INCOMPATIBILITY"
	TypeAssignment          RuleType = "ASSIGNMENT"
	TypeSupervisionSource   RuleType = "ASSIGNMENT_SUPERVISION_SOURCE"
)

type Category string

const (
	CategoryLeave      Category = "leaveRules"
	CategoryDuty       Category = "dutyRules"
	CategoryAssignment Category = "assignmentRules"
)

var Categories = []Category{CategoryLeave, CategoryDuty, CategoryAssignment}

// Allows reports whether rules of type t may be listed in the category.
func (c Category) Allows(t RuleType) bool {
	switch c {
	case CategoryLeave:
		return t == TypeLeave
	case CategoryDuty:
		return t == TypeDuty || t == TypeDutyIncompatibility
	case CategoryAssignment:
		return t == TypeAssignment || t == TypeSupervisionSource
	default:
		return false
	}
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// =============================================================================
// RULE
// =============================================================================

type Rule struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Type        RuleType   `json:"type"`
	Priority    Priority   `json:"priority"`
	Active      bool       `json:"isActive"`
	Config      RuleConfig `json:"configuration"`
}

func (r Rule) Severity() Severity { return r.Priority.Severity() }

// RuleConfig is the type-specific payload of a rule.
type RuleConfig interface {
	RuleType() RuleType
}

// LeaveConfig limits leave requests. Zero values disable a check.
type LeaveConfig struct {
	LeaveType          string           `json:"leaveType,omitempty"`
	Roles              RoleScope        `json:"roles"`
	CountingMethod     leave.Method     `json:"countingMethod"`
	MaxConsecutiveDays int              `json:"maxConsecutiveDays,omitempty"`
	MaxAbsentPercent   float64          `json:"maxAbsentPercent,omitempty"`
	QuotaDays          *decimal.Decimal `json:"quotaDays,omitempty"`
	MinLeadDays        int              `json:"minLeadDays,omitempty"`
}

func (LeaveConfig) RuleType() RuleType { return TypeLeave }

// DutyConfig limits on-site and on-call duties of one type.
type DutyConfig struct {
	DutyType       string `json:"dutyType"`
	RestDayAfter   bool   `json:"restDayAfter,omitempty"`
	MinGapDays     int    `json:"minGapDays,omitempty"`
	IdealGapDays   int    `json:"idealGapDays,omitempty"`
	MaxPerPeriod   int    `json:"maxPerPeriod,omitempty"`
	PeriodDays     int    `json:"periodDays,omitempty"`
	ExceptionalMax int    `json:"exceptionalMax,omitempty"`
	FatigueGate    bool   `json:"fatigueGate,omitempty"`
}

func (DutyConfig) RuleType() RuleType { return TypeDuty }

// IncompatibilityConfig forbids two assignment types on the same day.
type IncompatibilityConfig struct {
	AssignmentType   string   `json:"assignmentType"`
	IncompatibleWith []string `json:"incompatibleWith"`
}

func (IncompatibilityConfig) RuleType() RuleType { return TypeDutyIncompatibility }

// Incompatible reports whether kind is in the incompatibleWith set.
func (c IncompatibilityConfig) Incompatible(kind string) bool {
	for _, k := range c.IncompatibleWith {
		if k == kind {
			return true
		}
	}
	return false
}

// SupervisionTopology restricts which rooms a supervisor may cover together.
type SupervisionTopology string

const (
	TopologySameSector  SupervisionTopology = "SAME_SECTOR"
	TopologyContiguous  SupervisionTopology = "CONTIGUOUS"
	TopologyCrossSector SupervisionTopology = "CROSS_SECTOR"
)

// SectorOverride replaces rule defaults for one sector.
type SectorOverride struct {
	MaxRooms       int                 `json:"maxRooms,omitempty"`
	Topology       SupervisionTopology `json:"topology,omitempty"`
	AllowedSectors []string            `json:"allowedSectors,omitempty"`
}

// AssignmentConfig constrains room and sector assignments. SectorID, when
// set, scopes the whole rule to candidates working in that sector.
type AssignmentConfig struct {
	SectorID                 string                    `json:"sectorId,omitempty"`
	MaxConsecutiveSameSector int                       `json:"maxConsecutiveSameSector,omitempty"`
	MaxRoomsPerSupervisor    int                       `json:"maxRoomsPerSupervisor,omitempty"`
	ExceptionalMaxRooms      int                       `json:"exceptionalMaxRooms,omitempty"`
	SupervisionTopology      SupervisionTopology       `json:"supervisionTopology,omitempty"`
	AllowedSectors           []string                  `json:"allowedSectors,omitempty"`
	SectorOverrides          map[string]SectorOverride `json:"sectorOverrides,omitempty"`
	MaxConsultationsPerWeek  int                       `json:"maxConsultationsPerWeek,omitempty"`
	BalanceHalfDays          bool                      `json:"balanceHalfDays,omitempty"`
}

func (AssignmentConfig) RuleType() RuleType { return TypeAssignment }

// AssignmentCheck names one independently owned check of ASSIGNMENT rules.
type AssignmentCheck string

const (
	CheckConsecutiveSector AssignmentCheck = "consecutiveSameSector"
	CheckMaxRooms          AssignmentCheck = "maxRoomsPerSupervisor"
	CheckTopology          AssignmentCheck = "supervisionTopology"
	CheckConsultations     AssignmentCheck = "consultationsPerWeek"
)

var AssignmentChecks = []AssignmentCheck{CheckConsecutiveSector, CheckMaxRooms, CheckTopology, CheckConsultations}

// Defines reports whether the configuration sets the given check.
func (c AssignmentConfig) Defines(check AssignmentCheck) bool {
	switch check {
	case CheckConsecutiveSector:
		return c.MaxConsecutiveSameSector > 0
	case CheckMaxRooms:
		if c.MaxRoomsPerSupervisor > 0 {
			return true
		}
		for _, o := range c.SectorOverrides {
			if o.MaxRooms > 0 {
				return true
			}
		}
	case CheckTopology:
		if c.SupervisionTopology != "" {
			return true
		}
		for _, o := range c.SectorOverrides {
			if o.Topology != "" {
				return true
			}
		}
	case CheckConsultations:
		return c.MaxConsultationsPerWeek > 0 || c.BalanceHalfDays
	}
	return false
}

// RoomLimit returns the room limit for a sector: override first, then default.
func (c AssignmentConfig) RoomLimit(sectorID string) (limit, exceptional int) {
	limit = c.MaxRoomsPerSupervisor
	if o, ok := c.SectorOverrides[sectorID]; ok && o.MaxRooms > 0 {
		limit = o.MaxRooms
	}
	exceptional = c.ExceptionalMaxRooms
	if exceptional < limit {
		exceptional = limit
	}
	return limit, exceptional
}

// TopologyFor returns the supervision topology for a sector: override
// first, then default.
func (c AssignmentConfig) TopologyFor(sectorID string) (SupervisionTopology, []string) {
	if o, ok := c.SectorOverrides[sectorID]; ok && o.Topology != "" {
		return o.Topology, o.AllowedSectors
	}
	return c.SupervisionTopology, c.AllowedSectors
}

// SupervisionSourceConfig lists the rooms a target sector may be
// supervised from.
type SupervisionSourceConfig struct {
	TargetSectorID     string   `json:"targetSectorId"`
	AllowedSourceRooms []string `json:"allowedSourceRooms"`
}

func (SupervisionSourceConfig) RuleType() RuleType { return TypeSupervisionSource }

func (c SupervisionSourceConfig) Allows(roomID string) bool {
	for _, r := range c.AllowedSourceRooms {
		if r == roomID {
			return true
		}
	}
	return false
}

// =============================================================================
// ROLE SCOPE - Explicit "all roles" vs a set of roles
// =============================================================================

// RoleScope is either every role or an explicit, non-empty set of roles.
type RoleScope struct {
	all   bool
	roles map[string]bool
}

func AllRoles() RoleScope { return RoleScope{all: true} }

func SpecificRoles(roles ...string) RoleScope {
	set := make(map[string]bool, len(roles))
	for _, r := range roles {
		set[r] = true
	}
	return RoleScope{roles: set}
}

func (s RoleScope) IsAll() bool { return s.all }

func (s RoleScope) Includes(role string) bool {
	return s.all || s.roles[role]
}

// Roles returns the explicit roles, sorted. Empty for AllRoles.
func (s RoleScope) Roles() []string {
	out := make([]string, 0, len(s.roles))
	for r := range s.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func (s RoleScope) MarshalJSON() ([]byte, error) {
	if s.all {
		return json.Marshal(allRolesKeyword)
	}
	return json.Marshal(s.Roles())
}

const allRolesKeyword = "ALL"

// =============================================================================
// FATIGUE
// =============================================================================

type Thresholds struct {
	Alert    int `json:"alert"`
	Critical int `json:"critical"`
}

type Weighting struct {
	Equity  float64 `json:"equity"`
	Fatigue float64 `json:"fatigue"`
}

// FatigueConfig is the single source of truth for fatigue point values.
type FatigueConfig struct {
	Enabled    bool                      `json:"enabled"`
	Points     map[generic.EventKind]int `json:"points"`
	Recovery   map[generic.EventKind]int `json:"recovery"`
	Thresholds Thresholds                `json:"thresholds"`
	Weighting  Weighting                 `json:"weighting"`
}

// Delta returns the signed score change of an event kind.
func (f FatigueConfig) Delta(kind generic.EventKind) (int, bool) {
	if p, ok := f.Points[kind]; ok {
		return p, true
	}
	if r, ok := f.Recovery[kind]; ok {
		return -r, true
	}
	return 0, false
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

type LeaveType struct {
	Code            string       `json:"code"`
	Name            string       `json:"name"`
	CountingMethod  leave.Method `json:"countingMethod"`
	AllowHalfDays   bool         `json:"allowHalfDays"`
	MaxDurationDays int          `json:"maxDurationDays,omitempty"`
	MinLeadDays     int          `json:"minLeadDays,omitempty"`
	Roles           RoleScope    `json:"roles"`
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog is immutable after Load.
type Catalog struct {
	Version         string        `json:"version,omitempty"`
	Topology        *Topology     `json:"topology"`
	LeaveTypes      []LeaveType   `json:"leaveTypes"`
	LeaveRules      []Rule        `json:"leaveRules"`
	DutyRules       []Rule        `json:"dutyRules"`
	AssignmentRules []Rule        `json:"assignmentRules"`
	Fatigue         FatigueConfig `json:"fatigueRules"`
}

// Rules returns every rule of a category in catalog order.
func (c *Catalog) Rules(category Category) []Rule {
	switch category {
	case CategoryLeave:
		return c.LeaveRules
	case CategoryDuty:
		return c.DutyRules
	case CategoryAssignment:
		return c.AssignmentRules
	default:
		return nil
	}
}

// ActiveRules returns the rules of a category that participate in evaluation.
func (c *Catalog) ActiveRules(category Category) []Rule {
	var out []Rule
	for _, r := range c.Rules(category) {
		if r.Active {
			out = append(out, r)
		}
	}
	return out
}

// Rule finds a rule by name within a category.
func (c *Catalog) Rule(category Category, name string) (Rule, bool) {
	for _, r := range c.Rules(category) {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}

// LeaveType finds a leave type by code.
func (c *Catalog) LeaveType(code string) (LeaveType, bool) {
	for _, lt := range c.LeaveTypes {
		if lt.Code == code {
			return lt, true
		}
	}
	return LeaveType{}, false
}
