package rules_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/planning-engine/catalog"
	"github.com/warp/planning-engine/fatigue"
	"github.com/warp/planning-engine/generic"
	"github.com/warp/planning-engine/generic/store"
	"github.com/warp/planning-engine/rules"
)

func supervising(person, sector, room, date string, rooms ...string) rules.Assignment {
	return rules.Assignment{
		ID:              person + "-" + room + "-" + date,
		PersonID:        person,
		Type:            rules.TypeSupervision,
		Date:            generic.MustDate(date),
		SectorID:        sector,
		RoomID:          room,
		SupervisedRooms: rooms,
	}
}

// =============================================================================
// PRECEDENCE
// =============================================================================

func TestAssignment_SectorRuleOwnsItsChecks(t *testing.T) {
	e := evaluator(standardCatalog(t), nil)

	// GIVEN: Endoscopy allows one room per supervisor, the general rule two
	// WHEN: A supervisor in endoscopy takes both rooms
	report := evalAssignment(t, e, catalog.CategoryAssignment, supervising("mar1", "endoscopie", "e1", "2025-03-03", "e1", "e2"))

	// THEN: The sector rule reports it; the general rule keeps the rest
	require.Len(t, report.Violations, 1)
	assert.Equal(t, "endoscopie-supervision", report.Violations[0].RuleName)
	assert.Equal(t, catalog.SeverityCritical, report.Violations[0].Severity)
	assert.Equal(t, rules.OutcomeSatisfied, outcome(t, report, "supervision-default"))
	assert.Equal(t, rules.OutcomeNotApplicable, outcome(t, report, "pediatrie-source"))
}

func TestAssignment_SectorScopedRuleIgnoresOtherSectors(t *testing.T) {
	e := evaluator(standardCatalog(t), nil)

	report := evalAssignment(t, e, catalog.CategoryAssignment, supervising("mar1", "ortho", "s1", "2025-03-03", "s1", "s2"))

	assert.Empty(t, report.Violations)
	assert.Equal(t, rules.OutcomeNotApplicable, outcome(t, report, "endoscopie-supervision"))
}

// =============================================================================
// ROOM LIMIT AND TOPOLOGY
// =============================================================================

func TestAssignment_RoomLimit(t *testing.T) {
	e := evaluator(standardCatalog(t), nil)

	t.Run("override raises the limit", func(t *testing.T) {
		report := evalAssignment(t, e, catalog.CategoryAssignment, supervising("mar1", "ophtalmo", "o1", "2025-03-03", "o2", "s1", "s2"))
		assert.Empty(t, report.Violations)
	})

	t.Run("exceptional band is a warning", func(t *testing.T) {
		report := evalAssignment(t, e, catalog.CategoryAssignment, supervising("mar1", "ortho", "s1", "2025-03-03", "s1", "s2", "s3"))
		require.Len(t, report.Violations, 1)
		assert.Equal(t, catalog.SeverityWarning, report.Violations[0].Severity)
		assert.Equal(t, "maxRoomsPerSupervisor", report.Violations[0].Context["check"])
		assert.False(t, report.Blocking())
	})

	t.Run("beyond the exceptional maximum", func(t *testing.T) {
		report := evalAssignment(t, e, catalog.CategoryAssignment, supervising("mar1", "ortho", "s1", "2025-03-03", "s1", "s2", "s3", "s4"))
		require.Len(t, report.Violations, 1)
		assert.Equal(t, catalog.SeverityHigh, report.Violations[0].Severity)
	})
}

func TestAssignment_Topology(t *testing.T) {
	e := evaluator(standardCatalog(t), nil)

	cases := []struct {
		name      string
		candidate rules.Assignment
		offending []string
	}{
		{"contiguous rooms", supervising("mar1", "ortho", "s1", "2025-03-03", "s2", "s3"), nil},
		{"gap in the row", supervising("mar1", "ortho", "s1", "2025-03-03", "s2", "s4"), []string{"s2", "s4"}},
		{"cross sector allowed", supervising("mar1", "ophtalmo", "o1", "2025-03-03", "o1", "s4"), nil},
		{"cross sector refused", supervising("mar1", "ophtalmo", "o1", "2025-03-03", "o1", "e1"), []string{"e1"}},
		{"same sector by default", supervising("mar1", "pediatrie", "p1", "2025-03-03", "p1", "s1"), []string{"s1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := evalAssignment(t, e, catalog.CategoryAssignment, tc.candidate)
			violations := report.ViolationsOf("supervision-default")
			if tc.offending == nil {
				assert.Empty(t, violations)
				return
			}
			require.Len(t, violations, 1)
			assert.Equal(t, tc.offending, violations[0].Context["offendingRooms"])
		})
	}
}

func TestAssignment_UnknownRoomIsRuleError(t *testing.T) {
	e := evaluator(standardCatalog(t), nil)

	report := evalAssignment(t, e, catalog.CategoryAssignment, supervising("mar1", "ortho", "s1", "2025-03-03", "s2", "x9"))

	assert.Equal(t, rules.OutcomeError, outcome(t, report, "supervision-default"))
	assert.Equal(t, rules.OutcomeError, outcome(t, report, "pediatrie-source"))
}

// =============================================================================
// CONSECUTIVE DAYS AND CONSULTATIONS
// =============================================================================

func TestAssignment_ConsecutiveSameSector(t *testing.T) {
	e := evaluator(standardCatalog(t), nil)
	history := []rules.Assignment{
		supervising("mar1", "ortho", "s1", "2025-03-03"),
		supervising("mar1", "ortho", "s2", "2025-03-04"),
		// room only, resolved through the topology
		{ID: "h3", PersonID: "mar1", Type: rules.TypeBloc, Date: generic.MustDate("2025-03-05"), RoomID: "s3"},
		supervising("mar1", "ortho", "s1", "2025-03-06"),
	}

	report := evalAssignment(t, e, catalog.CategoryAssignment, supervising("mar1", "ortho", "s1", "2025-03-07"), history...)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, 5, report.Violations[0].Context["days"])
	assert.Equal(t, "2025-03-03", report.Violations[0].Context["from"])

	// A day elsewhere breaks the run
	history[2].RoomID = "o1"
	report = evalAssignment(t, e, catalog.CategoryAssignment, supervising("mar1", "ortho", "s1", "2025-03-07"), history...)
	assert.Empty(t, report.Violations)
}

func TestAssignment_Consultations(t *testing.T) {
	e := evaluator(standardCatalog(t), nil)
	consult := func(id, date string, slot rules.Slot) rules.Assignment {
		return rules.Assignment{ID: id, PersonID: "mar1", Type: rules.TypeConsultation, Date: generic.MustDate(date), Slot: slot, SectorID: "ortho"}
	}

	// Monday and Wednesday already booked, the candidate on Friday
	report := evalAssignment(t, e, catalog.CategoryAssignment, consult("c3", "2025-03-07", rules.SlotAfternoon),
		consult("c1", "2025-03-03", rules.SlotMorning),
		consult("c2", "2025-03-05", rules.SlotMorning),
		consult("c0", "2025-02-28", rules.SlotMorning), // previous ISO week
	)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, "consultationsPerWeek", report.Violations[0].Context["check"])
	assert.Equal(t, 3, report.Violations[0].Context["count"])

	// Next week: three mornings for one afternoon
	report = evalAssignment(t, e, catalog.CategoryAssignment, consult("c5", "2025-03-11", rules.SlotMorning),
		consult("c4", "2025-03-10", rules.SlotFullDay),
		consult("x", "2025-03-10", rules.SlotMorning),
	)
	checks := make([]any, 0, len(report.Violations))
	for _, v := range report.Violations {
		checks = append(checks, v.Context["check"])
	}
	assert.Contains(t, checks, "balanceHalfDays")
}

// =============================================================================
// SUPERVISION SOURCE
// =============================================================================

func TestSupervisionSource(t *testing.T) {
	e := evaluator(standardCatalog(t), nil)

	cases := []struct {
		name    string
		a       rules.Assignment
		outcome rules.Outcome
	}{
		{"from an allowed room", supervising("mar1", "ortho", "s1", "2025-03-03", "p1"), rules.OutcomeSatisfied},
		{"from the sector itself", supervising("mar1", "pediatrie", "p1", "2025-03-03", "p1"), rules.OutcomeSatisfied},
		{"from elsewhere", supervising("mar1", "ortho", "s3", "2025-03-03", "p1"), rules.OutcomeViolated},
		{"no pediatric room", supervising("mar1", "ortho", "s3", "2025-03-03", "s3", "s4"), rules.OutcomeNotApplicable},
		{"current room unknown", supervising("mar1", "ortho", "", "2025-03-03", "p1"), rules.OutcomeError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := evalAssignment(t, e, catalog.CategoryAssignment, tc.a)
			assert.Equal(t, tc.outcome, outcome(t, report, "pediatrie-source"))
		})
	}
}

// =============================================================================
// FATIGUE ACCRUAL
// =============================================================================

func TestAccrualKinds(t *testing.T) {
	topo := standardCatalog(t).Topology

	garde := rules.Assignment{PersonID: "mar1", Type: rules.TypeGarde, Date: generic.MustDate("2025-03-03"), RoomID: "p1", SupervisedRooms: []string{"p1", "s1"}}
	assert.Equal(t, []generic.EventKind{generic.KindGarde, generic.KindSupervisionMultiple, generic.KindPediatrie}, rules.AccrualKinds(garde, topo))

	endo := rules.Assignment{PersonID: "mar1", Type: rules.TypeAstreinte, Date: generic.MustDate("2025-03-03"), SectorID: "endoscopie"}
	assert.Equal(t, []generic.EventKind{generic.KindAstreinte, generic.KindSpecialiteLourde}, rules.AccrualKinds(endo, topo))

	assert.Empty(t, rules.AccrualKinds(rules.Assignment{Type: rules.TypeBloc, SectorID: "ortho"}, topo))
	assert.Equal(t, []generic.EventKind{generic.KindGarde}, rules.AccrualKinds(rules.Assignment{Type: rules.TypeGarde, SectorID: "pediatrie"}, nil))
}

func TestRecordAssignment(t *testing.T) {
	ctx := context.Background()
	c := standardCatalog(t)
	ledger := fatigue.New(catalog.Static(c), store.NewMemory())

	// GIVEN: A garde in pediatrics covering two rooms
	a := rules.Assignment{PersonID: "mar1", Type: rules.TypeGarde, Date: generic.MustDate("2025-03-03"), SectorID: "pediatrie", SupervisedRooms: []string{"p1", "s1"}}

	// WHEN: It is finalized
	entries, err := rules.RecordAssignment(ctx, ledger, a, c.Topology)

	// THEN: Each accrual is a ledger entry, 30 + 15 + 10
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, 55, entries[2].RunningScore)

	score, err := ledger.CurrentScore(ctx, "mar1", generic.MustDate("2025-03-03").EndOfDay())
	require.NoError(t, err)
	assert.Equal(t, 55, score)
}

func TestRecordAssignment_Errors(t *testing.T) {
	ctx := context.Background()
	c := standardCatalog(t)

	_, err := rules.RecordAssignment(ctx, fatigue.New(catalog.Static(c), store.NewMemory()), rules.Assignment{Type: rules.TypeGarde, Date: generic.MustDate("2025-03-03")}, c.Topology)
	assert.ErrorIs(t, err, generic.ErrPersonRequired)

	failing := store.NewFailing()
	failing.FailWith(errors.New("disk full"))
	_, err = rules.RecordAssignment(ctx, fatigue.New(catalog.Static(c), failing), rules.Assignment{PersonID: "mar1", Type: rules.TypeGarde, Date: generic.MustDate("2025-03-03")}, c.Topology)
	assert.ErrorContains(t, err, "disk full")
}

func TestRecordAssignment_StoreFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	c := standardCatalog(t)
	failing := store.NewFailing()
	ledger := fatigue.New(catalog.Static(c), failing)
	a := rules.Assignment{PersonID: "mar1", Type: rules.TypeGarde, Date: generic.MustDate("2025-03-03"), SectorID: "pediatrie", SupervisedRooms: []string{"p1", "s1"}}

	// GIVEN: The store gives out on the second entry
	failing.FailOnEntry(2, errors.New("disk full"))

	// WHEN: The three accruals of a pediatric two-room garde are recorded
	entries, err := rules.RecordAssignment(ctx, ledger, a, c.Topology)

	// THEN: No accrual is kept, so retrying cannot count the garde twice
	require.ErrorContains(t, err, "disk full")
	assert.Empty(t, entries)
	score, err := ledger.CurrentScore(ctx, "mar1", generic.MustDate("2025-03-03").EndOfDay())
	require.NoError(t, err)
	assert.Equal(t, 0, score)
	persisted, err := failing.Load(ctx, "mar1")
	require.NoError(t, err)
	assert.Empty(t, persisted)

	// WHEN: The store recovers and the assignment is retried
	failing.FailWith(nil)
	entries, err = rules.RecordAssignment(ctx, ledger, a, c.Topology)

	// THEN: The garde is counted once
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, 55, entries[2].RunningScore)
}
