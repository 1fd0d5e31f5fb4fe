package catalog

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// SOURCE SCHEMA - What catalog authors write
// =============================================================================
//
//   version: "2025.1"
//   sectors:
//     - id: ortho
//       category: STANDARD
//       rooms: [{id: s1, order: 1}, {id: s2, order: 2}]
//   leaveTypes:
//     - {code: CP, countingMethod: WEEKDAYS_IF_WORKING, roles: ALL}
//   leaveRules: [...]
//   dutyRules: [...]
//   assignmentRules: [...]
//   fatigueRules:
//     enabled: true
//     points: {garde: 30, astreinte: 10, ...}
//     recovery: {jourOff: 15, weekendOff: 30, demiJourneeOff: 8}
//     thresholds: {alert: 50, critical: 80}
//     weighting: {equity: 0.5, fatigue: 0.5}
//
// JSON is accepted as well (it is valid YAML).

type catalogDoc struct {
	Version         string         `yaml:"version"`
	Sectors         []sectorDoc    `yaml:"sectors" validate:"dive"`
	LeaveTypes      []leaveTypeDoc `yaml:"leaveTypes" validate:"dive"`
	LeaveRules      []ruleDoc      `yaml:"leaveRules" validate:"dive"`
	DutyRules       []ruleDoc      `yaml:"dutyRules" validate:"dive"`
	AssignmentRules []ruleDoc      `yaml:"assignmentRules" validate:"dive"`
	FatigueRules    *fatigueDoc    `yaml:"fatigueRules" validate:"required"`
}

type sectorDoc struct {
	ID       string    `yaml:"id" validate:"required"`
	Name     string    `yaml:"name"`
	Category string    `yaml:"category" validate:"omitempty,oneof=STANDARD PEDIATRIC HEAVY_SPECIALTY"`
	Rooms    []roomDoc `yaml:"rooms" validate:"dive"`
}

type roomDoc struct {
	ID    string `yaml:"id" validate:"required"`
	Name  string `yaml:"name"`
	Order int    `yaml:"order" validate:"min=0"`
}

type leaveTypeDoc struct {
	Code            string   `yaml:"code" validate:"required"`
	Name            string   `yaml:"name"`
	CountingMethod  string   `yaml:"countingMethod" validate:"required"`
	AllowHalfDays   bool     `yaml:"allowHalfDays"`
	MaxDurationDays int      `yaml:"maxDurationDays" validate:"min=0"`
	MinLeadDays     int      `yaml:"minLeadDays" validate:"min=0"`
	Roles           rolesDoc `yaml:"roles"`
}

type ruleDoc struct {
	Name          string    `yaml:"name" validate:"required"`
	Description   string    `yaml:"description"`
	Type          string    `yaml:"type" validate:"required,oneof=LEAVE DUTY DUTY_INCOMPATIBILITY ASSIGNMENT ASSIGNMENT_SUPERVISION_SOURCE"`
	Priority      string    `yaml:"priority" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL WARNING"`
	IsActive      *bool     `yaml:"isActive"`
	Configuration yaml.Node `yaml:"configuration" validate:"-"`
}

// =============================================================================
// RULE CONFIGURATION SCHEMAS - One per rule type
// =============================================================================

type leaveRuleDoc struct {
	LeaveType          string           `yaml:"leaveType"`
	Roles              rolesDoc         `yaml:"roles"`
	CountingMethod     string           `yaml:"countingMethod"`
	MaxConsecutiveDays int              `yaml:"maxConsecutiveDays" validate:"min=0"`
	MaxAbsentPercent   float64          `yaml:"maxAbsentPercent" validate:"min=0,max=100"`
	QuotaDays          *decimal.Decimal `yaml:"quotaDays" validate:"-"`
	MinLeadDays        int              `yaml:"minLeadDays" validate:"min=0"`
}

type dutyRuleDoc struct {
	DutyType       string `yaml:"dutyType" validate:"required"`
	RestDayAfter   bool   `yaml:"restDayAfter"`
	MinGapDays     int    `yaml:"minGapDays" validate:"min=0"`
	IdealGapDays   int    `yaml:"idealGapDays" validate:"min=0"`
	MaxPerPeriod   int    `yaml:"maxPerPeriod" validate:"min=0"`
	PeriodDays     int    `yaml:"periodDays" validate:"min=0"`
	ExceptionalMax int    `yaml:"exceptionalMax" validate:"min=0"`
	FatigueGate    bool   `yaml:"fatigueGate"`
}

type incompatibilityDoc struct {
	AssignmentType   string   `yaml:"assignmentType" validate:"required"`
	IncompatibleWith []string `yaml:"incompatibleWith" validate:"required,min=1,dive,required"`
}

type assignmentRuleDoc struct {
	SectorID                 string                 `yaml:"sectorId"`
	MaxConsecutiveSameSector int                    `yaml:"maxConsecutiveSameSector" validate:"min=0"`
	MaxRoomsPerSupervisor    int                    `yaml:"maxRoomsPerSupervisor" validate:"min=0"`
	ExceptionalMaxRooms      int                    `yaml:"exceptionalMaxRooms" validate:"min=0"`
	SupervisionTopology      string                 `yaml:"supervisionTopology" validate:"omitempty,oneof=SAME_SECTOR CONTIGUOUS CROSS_SECTOR"`
	AllowedSectors           []string               `yaml:"allowedSectors" validate:"dive,required"`
	SectorOverrides          map[string]overrideDoc `yaml:"sectorOverrides" validate:"dive"`
	MaxConsultationsPerWeek  int                    `yaml:"maxConsultationsPerWeek" validate:"min=0"`
	BalanceHalfDays          bool                   `yaml:"balanceHalfDays"`
}

type overrideDoc struct {
	MaxRooms       int      `yaml:"maxRooms" validate:"min=0"`
	Topology       string   `yaml:"topology" validate:"omitempty,oneof=SAME_SECTOR CONTIGUOUS CROSS_SECTOR"`
	AllowedSectors []string `yaml:"allowedSectors" validate:"dive,required"`
}

type supervisionSourceDoc struct {
	TargetSectorID     string   `yaml:"targetSectorId" validate:"required"`
	AllowedSourceRooms []string `yaml:"allowedSourceRooms" validate:"required,min=1,dive,required"`
}

// =============================================================================
// FATIGUE SCHEMA
// =============================================================================

type fatigueDoc struct {
	Enabled    *bool         `yaml:"enabled" validate:"required"`
	Template   string        `yaml:"template" validate:"omitempty,oneof=STANDARD INTENSIF ALLEGE PEDIATRIE"`
	Points     pointsDoc     `yaml:"points"`
	Recovery   recoveryDoc   `yaml:"recovery"`
	Thresholds thresholdsDoc `yaml:"thresholds"`
	Weighting  weightingDoc  `yaml:"weighting"`

	// unknown lists the paths of keys no field matches; the template
	// fallback must not hide a misspelled value.
	unknown []string
}

type pointsDoc struct {
	Garde               *int `yaml:"garde" validate:"required,min=0"`
	Astreinte           *int `yaml:"astreinte" validate:"required,min=0"`
	SupervisionMultiple *int `yaml:"supervisionMultiple" validate:"required,min=0"`
	Pediatrie           *int `yaml:"pediatrie" validate:"required,min=0"`
	SpecialiteLourde    *int `yaml:"specialiteLourde" validate:"required,min=0"`
}

type recoveryDoc struct {
	JourOff        *int `yaml:"jourOff" validate:"required,min=0"`
	WeekendOff     *int `yaml:"weekendOff" validate:"required,min=0"`
	DemiJourneeOff *int `yaml:"demiJourneeOff" validate:"required,min=0"`
}

type thresholdsDoc struct {
	Alert    *int `yaml:"alert" validate:"required,min=0"`
	Critical *int `yaml:"critical" validate:"required,gt=0"`
}

type weightingDoc struct {
	Equity  *float64 `yaml:"equity" validate:"required,min=0,max=1"`
	Fatigue *float64 `yaml:"fatigue" validate:"required,min=0,max=1"`
}

// UnmarshalYAML seeds the document from a named template, then applies
// the explicit values on top of it.
func (d *fatigueDoc) UnmarshalYAML(node *yaml.Node) error {
	var head struct {
		Template string `yaml:"template"`
	}
	if err := node.Decode(&head); err != nil {
		return err
	}
	if tpl, ok := FatigueTemplate(head.Template); ok {
		d.seed(tpl)
	}
	d.unknown = unknownKeys("fatigueRules", node, reflect.TypeOf(fatigueDoc{}))
	type plain fatigueDoc
	return node.Decode((*plain)(d))
}

// unknownKeys walks a mapping node against the yaml tags of t, descending
// into nested struct fields.
func unknownKeys(path string, node *yaml.Node, t reflect.Type) []string {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	fields := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name := strings.SplitN(t.Field(i).Tag.Get("yaml"), ",", 2)[0]
		if name != "" && name != "-" {
			fields[name] = t.Field(i).Type
		}
	}

	var out []string
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		ft, ok := fields[key]
		if !ok {
			out = append(out, joinPath(path, key))
			continue
		}
		if ft.Kind() == reflect.Struct {
			out = append(out, unknownKeys(joinPath(path, key), node.Content[i+1], ft)...)
		}
	}
	return out
}

func (d *fatigueDoc) seed(f FatigueConfig) {
	ptr := func(v int) *int { return &v }
	fptr := func(v float64) *float64 { return &v }
	enabled := f.Enabled

	d.Enabled = &enabled
	d.Points = pointsDoc{
		Garde:               ptr(f.Points["garde"]),
		Astreinte:           ptr(f.Points["astreinte"]),
		SupervisionMultiple: ptr(f.Points["supervisionMultiple"]),
		Pediatrie:           ptr(f.Points["pediatrie"]),
		SpecialiteLourde:    ptr(f.Points["specialiteLourde"]),
	}
	d.Recovery = recoveryDoc{
		JourOff:        ptr(f.Recovery["jourOff"]),
		WeekendOff:     ptr(f.Recovery["weekendOff"]),
		DemiJourneeOff: ptr(f.Recovery["demiJourneeOff"]),
	}
	d.Thresholds = thresholdsDoc{Alert: ptr(f.Thresholds.Alert), Critical: ptr(f.Thresholds.Critical)}
	d.Weighting = weightingDoc{Equity: fptr(f.Weighting.Equity), Fatigue: fptr(f.Weighting.Fatigue)}
}

// =============================================================================
// ROLES - "ALL" or a list
// =============================================================================

// rolesDoc never fails decoding; problems are reported by validation so
// that they are listed together with everything else.
type rolesDoc struct {
	set     bool
	all     bool
	list    []string
	problem string
}

func (r *rolesDoc) UnmarshalYAML(node *yaml.Node) error {
	r.set = true
	switch node.Kind {
	case yaml.ScalarNode:
		if strings.EqualFold(node.Value, allRolesKeyword) {
			r.all = true
			return nil
		}
		r.problem = fmt.Sprintf("expected %s or a list of roles, got %q", allRolesKeyword, node.Value)
	case yaml.SequenceNode:
		if len(node.Content) == 0 {
			r.problem = "must list at least one role (use ALL for every role)"
			return nil
		}
		for _, n := range node.Content {
			if n.Kind != yaml.ScalarNode || n.Value == "" {
				r.problem = "roles must be non-empty strings"
				continue
			}
			r.list = append(r.list, n.Value)
		}
	default:
		r.problem = fmt.Sprintf("expected %s or a list of roles", allRolesKeyword)
	}
	return nil
}
