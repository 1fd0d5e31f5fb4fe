package rules_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/planning-engine/catalog"
	"github.com/warp/planning-engine/generic"
	"github.com/warp/planning-engine/rules"
)

func leaveOf(person, role, leaveType, start, end string) rules.LeaveRequest {
	return rules.LeaveRequest{
		ID:        person + "-" + leaveType + "-" + start,
		PersonID:  person,
		Role:      role,
		LeaveType: leaveType,
		Start:     generic.MustDate(start),
		End:       generic.MustDate(end),
	}
}

func evalLeave(t *testing.T, e *rules.Evaluator, req rules.LeaveRequest, env rules.Context) rules.Report {
	t.Helper()
	report, err := e.Evaluate(context.Background(), catalog.CategoryLeave, rules.Fact{PersonID: req.PersonID, Leave: &req}, env)
	require.NoError(t, err)
	return report
}

func noUsage() map[rules.UsageKey]decimal.Decimal {
	return map[rules.UsageKey]decimal.Decimal{}
}

// =============================================================================
// maxConsecutiveDays
// =============================================================================

func TestLeave_MaxConsecutive_ChainsAcrossWeekend(t *testing.T) {
	e := evaluator(standardCatalog(t), nil)
	env := rules.Context{
		Leaves:     []rules.LeaveRequest{leaveOf("iade1", "IADE", "CP", "2025-07-07", "2025-07-18")},
		LeaveUsage: noUsage(),
	}

	// GIVEN: Two weeks already booked, a third week requested after the weekend
	req := leaveOf("iade1", "IADE", "CP", "2025-07-21", "2025-07-25")
	req.RequestedOn = generic.MustDate("2025-06-01")

	// WHEN: The block reaches exactly fifteen working days
	report := evalLeave(t, e, req, env)

	// THEN: It is allowed
	assert.Empty(t, report.Violations)
	assert.Equal(t, rules.OutcomeSatisfied, outcome(t, report, "cp-max-consecutive"))
	assert.Equal(t, rules.OutcomeNotApplicable, outcome(t, report, "mar-absence-ratio"))

	// AND: One more week goes over
	req.End = generic.MustDate("2025-08-01")
	report = evalLeave(t, e, req, env)
	require.Len(t, report.ViolationsOf("cp-max-consecutive"), 1)
	v := report.ViolationsOf("cp-max-consecutive")[0]
	assert.Equal(t, "2025-07-07", v.Context["from"])
	assert.Equal(t, "2025-08-01", v.Context["to"])
	assert.True(t, decimal.NewFromInt(20).Equal(v.Context["consecutiveDays"].(decimal.Decimal)))
	assert.Equal(t, catalog.SeverityHigh, v.Severity)
}

func TestLeave_MaxConsecutive_WorkingDayBreaksChain(t *testing.T) {
	e := evaluator(standardCatalog(t), nil)
	env := rules.Context{
		// Ends on Thursday: Friday 07-18 is worked
		Leaves:     []rules.LeaveRequest{leaveOf("iade1", "IADE", "CP", "2025-07-07", "2025-07-17")},
		LeaveUsage: noUsage(),
	}
	req := leaveOf("iade1", "IADE", "CP", "2025-07-21", "2025-08-01")
	req.RequestedOn = generic.MustDate("2025-06-01")

	report := evalLeave(t, e, req, env)

	assert.Empty(t, report.ViolationsOf("cp-max-consecutive"))
}

// =============================================================================
// maxAbsentPercent
// =============================================================================

func TestLeave_AbsentRatio(t *testing.T) {
	e := evaluator(standardCatalog(t), nil)
	env := rules.Context{
		Leaves: []rules.LeaveRequest{
			leaveOf("mar2", "", "CP", "2025-03-04", "2025-03-10"),
			leaveOf("iade1", "", "CP", "2025-03-03", "2025-03-05"),
		},
		Roles:         map[string]string{"mar1": "MAR", "mar2": "MAR", "iade1": "IADE"},
		RoleHeadcount: map[string]int{"MAR": 3, "IADE": 5},
		LeaveUsage:    noUsage(),
	}

	// GIVEN: Another anaesthetist is away from Tuesday
	// WHEN: mar1 asks for Monday to Wednesday
	report := evalLeave(t, e, leaveOf("mar1", "", "MAL", "2025-03-03", "2025-03-05"), env)

	// THEN: Tuesday and Wednesday put two of three away
	require.Len(t, report.Violations, 1)
	v := report.Violations[0]
	assert.Equal(t, "mar-absence-ratio", v.RuleName)
	assert.Equal(t, catalog.SeverityCritical, v.Severity)
	assert.True(t, report.Blocking())
	assert.Contains(t, v.Message, "2 day(s)")
	assert.Contains(t, v.Message, "2025-03-04")
}

func TestLeave_AbsentRatio_MissingHeadcount(t *testing.T) {
	e := evaluator(standardCatalog(t), nil)
	env := rules.Context{LeaveUsage: noUsage()}

	req := leaveOf("mar1", "MAR", "CP", "2025-03-03", "2025-03-05")
	req.RequestedOn = generic.MustDate("2025-01-01")
	report := evalLeave(t, e, req, env)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, "mar-absence-ratio", report.Errors[0].RuleName)
	assert.ErrorIs(t, report.Errors[0], generic.ErrContextMissing)
	// the other rules still ran
	assert.Equal(t, rules.OutcomeSatisfied, outcome(t, report, "cp-max-consecutive"))
	assert.Equal(t, rules.OutcomeSatisfied, outcome(t, report, "cp-annual-quota"))
}

// =============================================================================
// quotaDays
// =============================================================================

func TestLeave_Quota(t *testing.T) {
	e := evaluator(standardCatalog(t), nil)
	req := leaveOf("iade1", "IADE", "CP", "2025-09-01", "2025-09-05")
	req.RequestedOn = generic.MustDate("2025-06-01")

	t.Run("within quota", func(t *testing.T) {
		env := rules.Context{LeaveUsage: map[rules.UsageKey]decimal.Decimal{
			{PersonID: "iade1", LeaveType: "CP"}: decimal.NewFromInt(20),
		}}
		report := evalLeave(t, e, req, env)
		assert.Empty(t, report.Violations)
	})

	t.Run("over quota", func(t *testing.T) {
		env := rules.Context{LeaveUsage: map[rules.UsageKey]decimal.Decimal{
			{PersonID: "iade1", LeaveType: "CP"}: decimal.NewFromInt(22),
		}}
		report := evalLeave(t, e, req, env)
		require.Len(t, report.ViolationsOf("cp-annual-quota"), 1)
		v := report.ViolationsOf("cp-annual-quota")[0]
		assert.True(t, decimal.NewFromInt(3).Equal(v.Context["remaining"].(decimal.Decimal)))
		assert.True(t, decimal.NewFromInt(5).Equal(v.Context["requested"].(decimal.Decimal)))
	})

	t.Run("no usage known", func(t *testing.T) {
		report := evalLeave(t, e, req, rules.Context{})
		assert.Equal(t, rules.OutcomeError, outcome(t, report, "cp-annual-quota"))
	})
}

// =============================================================================
// minLeadDays
// =============================================================================

func TestLeave_LeadTime(t *testing.T) {
	e := evaluator(standardCatalog(t), nil)

	short := leaveOf("iade1", "IADE", "CP", "2025-09-10", "2025-09-12")
	short.RequestedOn = generic.MustDate("2025-09-01")
	report := evalLeave(t, e, short, rules.Context{LeaveUsage: noUsage()})
	require.Len(t, report.ViolationsOf("cp-max-consecutive"), 1)
	assert.Equal(t, "minLeadDays", report.ViolationsOf("cp-max-consecutive")[0].Context["check"])
	assert.Equal(t, 9, report.ViolationsOf("cp-max-consecutive")[0].Context["leadDays"])

	// Without a request date, AsOf stands in
	undated := leaveOf("iade1", "IADE", "CP", "2025-09-10", "2025-09-12")
	report = evalLeave(t, e, undated, rules.Context{LeaveUsage: noUsage(), AsOf: generic.MustDate("2025-08-01")})
	assert.Empty(t, report.Violations)

	report = evalLeave(t, e, undated, rules.Context{LeaveUsage: noUsage()})
	assert.Equal(t, rules.OutcomeError, outcome(t, report, "cp-max-consecutive"))
}

// =============================================================================
// LEAVE TYPE LIMITS
// =============================================================================

func TestLeave_LeaveTypeLimits(t *testing.T) {
	e := evaluator(standardCatalog(t), nil)
	env := rules.Context{LeaveUsage: noUsage(), AsOf: generic.MustDate("2025-01-01")}

	t.Run("role not eligible", func(t *testing.T) {
		report := evalLeave(t, e, leaveOf("sec1", "SECRETAIRE", "RTT", "2025-03-03", "2025-03-03"), env)
		require.Len(t, report.ViolationsOf("leaveType:RTT"), 1)
		assert.Equal(t, catalog.SeverityCritical, report.ViolationsOf("leaveType:RTT")[0].Severity)
		assert.True(t, report.Blocking())
	})

	t.Run("longer than the type allows", func(t *testing.T) {
		report := evalLeave(t, e, leaveOf("mar1", "MAR", "RTT", "2025-03-03", "2025-03-10"), env)
		require.Len(t, report.ViolationsOf("leaveType:RTT"), 1)
		assert.Equal(t, catalog.SeverityHigh, report.ViolationsOf("leaveType:RTT")[0].Severity)
		assert.Equal(t, 5, report.ViolationsOf("leaveType:RTT")[0].Context["maxDurationDays"])
	})

	t.Run("half days on a full-day type", func(t *testing.T) {
		req := leaveOf("mar1", "MAR", "FORM", "2025-03-03", "2025-03-04")
		req.HalfDays = []generic.TimePoint{generic.MustDate("2025-03-04")}
		report := evalLeave(t, e, req, env)
		require.Len(t, report.ViolationsOf("leaveType:FORM"), 1)
		assert.Contains(t, report.ViolationsOf("leaveType:FORM")[0].Message, "half days")
	})

	t.Run("unknown type", func(t *testing.T) {
		report := evalLeave(t, e, leaveOf("mar1", "MAR", "SABBAT", "2025-03-03", "2025-03-04"), env)
		require.Len(t, report.ViolationsOf("leaveType:SABBAT"), 1)
		assert.Equal(t, catalog.SeverityCritical, report.ViolationsOf("leaveType:SABBAT")[0].Severity)
	})

	t.Run("eligible", func(t *testing.T) {
		report := evalLeave(t, e, leaveOf("mar1", "MAR", "RTT", "2025-03-03", "2025-03-04"), rules.Context{
			LeaveUsage:    noUsage(),
			RoleHeadcount: map[string]int{"MAR": 10},
		})
		assert.Empty(t, report.Violations)
		assert.Equal(t, rules.OutcomeSatisfied, outcome(t, report, "leaveType:RTT"))
	})
}
