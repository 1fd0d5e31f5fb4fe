package catalog_test

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/planning-engine/catalog"
	"github.com/warp/planning-engine/generic"
	"github.com/warp/planning-engine/leave"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const fatigueBlock = `
fatigueRules:
  enabled: true
  points: {garde: 30, astreinte: 10, supervisionMultiple: 15, pediatrie: 10, specialiteLourde: 20}
  recovery: {jourOff: 20, weekendOff: 30, demiJourneeOff: 8}
  thresholds: {alert: 50, critical: 80}
  weighting: {equity: 0.6, fatigue: 0.4}
`

const sectorsBlock = `
sectors:
  - id: ortho
    rooms: [{id: s1, order: 1}, {id: s2, order: 2}]
`

func loadStandard(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.LoadFile("testdata/standard.yaml")
	require.NoError(t, err)
	return c
}

func validationProblems(t *testing.T, err error) generic.Problems {
	t.Helper()
	var verr *generic.ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Problems
}

func inconsistencies(t *testing.T, err error) generic.Problems {
	t.Helper()
	var cerr *generic.ConfigurationInconsistencyError
	require.ErrorAs(t, err, &cerr)
	return cerr.Problems
}

func hasProblem(ps generic.Problems, pathPrefix, fragment string) bool {
	for _, p := range ps {
		if strings.HasPrefix(p.Path, pathPrefix) && strings.Contains(p.Message, fragment) {
			return true
		}
	}
	return false
}

// =============================================================================
// VALID CATALOG
// =============================================================================

func TestLoad_StandardCatalog(t *testing.T) {
	c := loadStandard(t)

	assert.Equal(t, "2025.1", c.Version)
	assert.Len(t, c.LeaveTypes, 7)
	assert.Len(t, c.LeaveRules, 3)
	assert.Len(t, c.DutyRules, 3)
	assert.Len(t, c.AssignmentRules, 3)
	assert.True(t, c.Fatigue.Enabled)
	assert.Equal(t, 30, c.Fatigue.Points[generic.KindGarde])
	assert.Equal(t, 20, c.Fatigue.Recovery[generic.KindJourOff])
	assert.Equal(t, catalog.Thresholds{Alert: 50, Critical: 80}, c.Fatigue.Thresholds)

	sector, ok := c.Topology.Sector("endoscopie")
	require.True(t, ok)
	assert.Equal(t, catalog.SectorHeavySpecialty, sector.Category)
}

func TestLoad_LeaveRuleInheritsCountingMethodFromLeaveType(t *testing.T) {
	c := loadStandard(t)

	r, ok := c.Rule(catalog.CategoryLeave, "cp-max-consecutive")
	require.True(t, ok)
	cfg, ok := r.Config.(catalog.LeaveConfig)
	require.True(t, ok)
	assert.Equal(t, leave.WeekdaysIfWorking, cfg.CountingMethod)
	assert.True(t, cfg.Roles.IsAll())
}

func TestLoad_RoleScopes_AreExplicit(t *testing.T) {
	c := loadStandard(t)

	rtt, ok := c.LeaveType("RTT")
	require.True(t, ok)
	assert.False(t, rtt.Roles.IsAll())
	assert.True(t, rtt.Roles.Includes("MAR"))
	assert.False(t, rtt.Roles.Includes("SECRETAIRE"))
	assert.Equal(t, []string{"IADE", "MAR"}, rtt.Roles.Roles())

	cp, _ := c.LeaveType("CP")
	assert.True(t, cp.Roles.Includes("SECRETAIRE"))
}

func TestLoad_JSONSource(t *testing.T) {
	src := `{
	  "sectors": [{"id": "ortho", "rooms": [{"id": "s1", "order": 1}]}],
	  "dutyRules": [{"name": "g", "type": "DUTY", "priority": "HIGH",
	                 "configuration": {"dutyType": "GARDE", "minGapDays": 7}}],
	  "fatigueRules": {"enabled": false,
	    "points": {"garde": 1, "astreinte": 1, "supervisionMultiple": 1, "pediatrie": 1, "specialiteLourde": 1},
	    "recovery": {"jourOff": 1, "weekendOff": 1, "demiJourneeOff": 1},
	    "thresholds": {"alert": 1, "critical": 2},
	    "weighting": {"equity": 0.5, "fatigue": 0.5}}
	}`

	c, err := catalog.Load([]byte(src))
	require.NoError(t, err)
	require.Len(t, c.DutyRules, 1)
	assert.Equal(t, catalog.DutyConfig{DutyType: "GARDE", MinGapDays: 7}, c.DutyRules[0].Config)
	assert.False(t, c.Fatigue.Enabled)
}

func TestLoad_FatigueTemplate_SeedsAndOverrides(t *testing.T) {
	src := `
fatigueRules:
  enabled: true
  template: INTENSIF
  points: {garde: 40}
`
	c, err := catalog.Load([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, 40, c.Fatigue.Points[generic.KindGarde], "explicit value wins")
	assert.Equal(t, 12, c.Fatigue.Points[generic.KindAstreinte], "template value kept")
	assert.Equal(t, catalog.Thresholds{Alert: 60, Critical: 90}, c.Fatigue.Thresholds)
	assert.Equal(t, catalog.Weighting{Equity: 0.5, Fatigue: 0.5}, c.Fatigue.Weighting)
}

func TestLoad_FatigueUnknownKeys_Reported(t *testing.T) {
	// GIVEN: Misspelled keys on top of a template
	src := `
fatigueRules:
  enabled: true
  template: STANDARD
  typo: 1
  points: {gard: 99}
  thresholds: {critcal: 200}
`
	// WHEN: Loading
	_, err := catalog.Load([]byte(src))

	// THEN: Each misspelling is a problem instead of a silent template value
	require.Error(t, err)
	ps := validationProblems(t, err)
	assert.True(t, hasProblem(ps, "fatigueRules.typo", "unknown field"), ps)
	assert.True(t, hasProblem(ps, "fatigueRules.points.gard", "unknown field"), ps)
	assert.True(t, hasProblem(ps, "fatigueRules.thresholds.critcal", "unknown field"), ps)
}

func TestLoad_InactiveRuleKeptButNotActive(t *testing.T) {
	src := sectorsBlock + `
dutyRules:
  - name: off
    type: DUTY
    priority: LOW
    isActive: false
    configuration: {dutyType: GARDE, restDayAfter: true}
` + fatigueBlock

	c, err := catalog.Load([]byte(src))
	require.NoError(t, err)
	assert.Len(t, c.Rules(catalog.CategoryDuty), 1)
	assert.Empty(t, c.ActiveRules(catalog.CategoryDuty))
}

// =============================================================================
// VALIDATION ERRORS
// =============================================================================

func TestLoad_WeightingMustSumToOne(t *testing.T) {
	bad := strings.Replace(fatigueBlock, "fatigue: 0.4", "fatigue: 0.5", 1)

	_, err := catalog.Load([]byte(bad))

	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrInvalidCatalog)
	assert.True(t, hasProblem(validationProblems(t, err), "fatigueRules.weighting", "must equal 1"))
}

func TestLoad_WeightingWithinEpsilon_Accepted(t *testing.T) {
	ok := strings.Replace(fatigueBlock, "fatigue: 0.4", "fatigue: 0.4005", 1)

	_, err := catalog.Load([]byte(ok))

	assert.NoError(t, err)
}

func TestLoad_EnumeratesEveryProblem(t *testing.T) {
	// GIVEN: A catalog with many independent mistakes
	src := sectorsBlock + `
dutyRules:
  - name: dup
    type: DUTY
    priority: HIGH
    configuration: {minGapDays: 3}
  - name: dup
    type: DUTY
    priority: URGENT
    configuration: {dutyType: GARDE, maxPerPeriod: 3, colour: red}
  - name: misplaced
    type: LEAVE
    priority: LOW
    configuration: {roles: ALL, maxConsecutiveDays: 2, countingMethod: NONE}
fatigueRules:
  enabled: true
  points: {garde: -5, astreinte: 10, supervisionMultiple: 15, pediatrie: 10}
  recovery: {jourOff: 20, weekendOff: 30, demiJourneeOff: 8}
  thresholds: {alert: 80, critical: 50}
  weighting: {equity: 0.5, fatigue: 0.5}
`

	// WHEN: Loading it
	_, err := catalog.Load([]byte(src))

	// THEN: Every mistake is reported in one error
	ps := validationProblems(t, err)
	assert.True(t, hasProblem(ps, "dutyRules[0].configuration.dutyType", "is required"), ps)
	assert.True(t, hasProblem(ps, "dutyRules[1].name", "duplicate rule name"), ps)
	assert.True(t, hasProblem(ps, "dutyRules[1].priority", "must be one of"), ps)
	assert.True(t, hasProblem(ps, "dutyRules[1].configuration.colour", "unknown field"), ps)
	assert.True(t, hasProblem(ps, "dutyRules[1].configuration.periodDays", "is required with maxPerPeriod"), ps)
	assert.True(t, hasProblem(ps, "dutyRules[2].type", "not allowed"), ps)
	assert.True(t, hasProblem(ps, "fatigueRules.points.garde", ">= 0"), ps)
	assert.True(t, hasProblem(ps, "fatigueRules.points.specialiteLourde", "is required"), ps)
	assert.True(t, hasProblem(ps, "fatigueRules.thresholds", "must be < critical"), ps)
	assert.GreaterOrEqual(t, len(ps), 9)
}

func TestLoad_MissingRoles_IsNotAllRoles(t *testing.T) {
	src := `
leaveRules:
  - name: no-roles
    type: LEAVE
    priority: HIGH
    configuration: {countingMethod: WEEKDAYS_ONLY, maxConsecutiveDays: 10}
  - name: empty-roles
    type: LEAVE
    priority: HIGH
    configuration: {roles: [], countingMethod: WEEKDAYS_ONLY, maxConsecutiveDays: 10}
` + fatigueBlock

	_, err := catalog.Load([]byte(src))

	ps := validationProblems(t, err)
	assert.True(t, hasProblem(ps, "leaveRules[0].configuration.roles", "is required"), ps)
	assert.True(t, hasProblem(ps, "leaveRules[1].configuration.roles", "at least one role"), ps)
}

func TestLoad_DutyGapAndExceptionalBounds(t *testing.T) {
	src := `
dutyRules:
  - name: g
    type: DUTY
    priority: HIGH
    configuration: {dutyType: GARDE, minGapDays: 7, idealGapDays: 3, maxPerPeriod: 4, periodDays: 30, exceptionalMax: 2}
` + fatigueBlock

	_, err := catalog.Load([]byte(src))

	ps := validationProblems(t, err)
	assert.True(t, hasProblem(ps, "dutyRules[0].configuration.idealGapDays", ">= minGapDays"), ps)
	assert.True(t, hasProblem(ps, "dutyRules[0].configuration.exceptionalMax", ">= maxPerPeriod"), ps)
}

func TestLoad_MissingFatigueRules(t *testing.T) {
	_, err := catalog.Load([]byte(sectorsBlock))

	assert.True(t, hasProblem(validationProblems(t, err), "fatigueRules", "is required"))
}

func TestLoad_EmptySource(t *testing.T) {
	_, err := catalog.Load(nil)

	assert.True(t, hasProblem(validationProblems(t, err), "", "empty"))
}

func TestLoad_UnknownTopLevelKey(t *testing.T) {
	_, err := catalog.Load([]byte("gardeRules: []\n" + fatigueBlock))

	assert.ErrorIs(t, err, generic.ErrInvalidCatalog)
}

// =============================================================================
// CONFIGURATION INCONSISTENCIES
// =============================================================================

func TestLoad_OverrideOnUnknownSector_Inconsistent(t *testing.T) {
	src := sectorsBlock + `
assignmentRules:
  - name: rooms
    type: ASSIGNMENT
    priority: HIGH
    configuration:
      maxRoomsPerSupervisor: 2
      sectorOverrides:
        cardio: {maxRooms: 3}
  - name: source
    type: ASSIGNMENT_SUPERVISION_SOURCE
    priority: HIGH
    configuration: {targetSectorId: ortho, allowedSourceRooms: [s9]}
leaveRules:
  - name: unknown-type
    type: LEAVE
    priority: LOW
    configuration: {leaveType: SABBATIQUE, roles: ALL, maxConsecutiveDays: 10}
` + fatigueBlock

	_, err := catalog.Load([]byte(src))

	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrConfigurationInconsistent)
	ps := inconsistencies(t, err)
	assert.True(t, hasProblem(ps, "assignmentRules[0].configuration.sectorOverrides", `unknown sector "cardio"`), ps)
	assert.True(t, hasProblem(ps, "assignmentRules[1].configuration.allowedSourceRooms", `unknown room "s9"`), ps)
	assert.True(t, hasProblem(ps, "leaveRules[0].configuration.leaveType", "unknown leave type"), ps)
}

func TestLoad_TwoRulesOwningSameCheck_Inconsistent(t *testing.T) {
	src := sectorsBlock + `
assignmentRules:
  - name: a
    type: ASSIGNMENT
    priority: HIGH
    configuration: {maxRoomsPerSupervisor: 2}
  - name: b
    type: ASSIGNMENT
    priority: LOW
    configuration: {maxRoomsPerSupervisor: 3}
  - name: scoped
    type: ASSIGNMENT
    priority: LOW
    configuration: {sectorId: ortho, maxRoomsPerSupervisor: 1}
` + fatigueBlock

	_, err := catalog.Load([]byte(src))

	ps := inconsistencies(t, err)
	require.Len(t, ps, 1, "the sector-scoped rule does not clash with the general one")
	assert.Contains(t, ps[0].Message, `already defined by rule "a"`)
}

func TestLoad_StructuralAndInconsistencyErrorsJoined(t *testing.T) {
	src := sectorsBlock + `
assignmentRules:
  - name: rooms
    type: ASSIGNMENT
    priority: NOPE
    configuration: {sectorId: cardio, maxRoomsPerSupervisor: 2}
` + fatigueBlock

	_, err := catalog.Load([]byte(src))

	var verr *generic.ValidationError
	var cerr *generic.ConfigurationInconsistencyError
	assert.True(t, errors.As(err, &verr))
	assert.True(t, errors.As(err, &cerr))
	assert.True(t, generic.IsCatalogError(err))
}

// =============================================================================
// SEVERITY, TOPOLOGY, HOLDER
// =============================================================================

func TestPriority_SeverityDerivation(t *testing.T) {
	cases := map[catalog.Priority]catalog.Severity{
		catalog.PriorityLow:      catalog.SeverityInfo,
		catalog.PriorityMedium:   catalog.SeverityWarning,
		catalog.PriorityWarning:  catalog.SeverityWarning,
		catalog.PriorityHigh:     catalog.SeverityHigh,
		catalog.PriorityCritical: catalog.SeverityCritical,
	}
	for p, want := range cases {
		assert.Equal(t, want, p.Severity(), string(p))
	}
	assert.False(t, catalog.SeverityWarning.Blocking())
	assert.True(t, catalog.SeverityHigh.Blocking())
	assert.True(t, catalog.SeverityCritical.AtLeast(catalog.SeverityHigh))
}

func TestTopology_Contiguous(t *testing.T) {
	topo := loadStandard(t).Topology

	assert.True(t, topo.Contiguous("s2", "s3"))
	assert.True(t, topo.Contiguous("s1", "s2", "s3"))
	assert.False(t, topo.Contiguous("s1", "s3"))
	assert.False(t, topo.Contiguous("s4", "o1"), "different sectors")
	assert.False(t, topo.Contiguous("s1", "zz"))

	sector, ok := topo.RoomSector("o2")
	assert.True(t, ok)
	assert.Equal(t, "ophtalmo", sector)
}

func TestHolder_ReloadKeepsPreviousCatalogOnFailure(t *testing.T) {
	initial := loadStandard(t)
	h := catalog.NewHolder(initial, zerolog.Nop())
	require.Equal(t, int64(1), h.Generation())

	_, err := h.Reload([]byte("fatigueRules: {enabled: true}"))

	require.Error(t, err)
	assert.Same(t, initial, h.Current())
	assert.Equal(t, int64(1), h.Generation())

	data, err := os.ReadFile("testdata/standard.yaml")
	require.NoError(t, err)
	next, err := h.Reload(data)
	require.NoError(t, err)
	assert.Same(t, next, h.Current())
	assert.Equal(t, int64(2), h.Generation())
}

func TestFatigueTemplate_ReturnsCopies(t *testing.T) {
	a, ok := catalog.FatigueTemplate("STANDARD")
	require.True(t, ok)
	a.Points[generic.KindGarde] = 999

	b, _ := catalog.FatigueTemplate("STANDARD")
	assert.Equal(t, 30, b.Points[generic.KindGarde])

	_, ok = catalog.FatigueTemplate("UNKNOWN")
	assert.False(t, ok)
}
